package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/anandyadav-dev/HunarMitra-Backend/internal/cache"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/database/testutil"
)

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	current := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	store := NewMemoryRateStore(func() time.Time { return current })

	r := gin.New()
	r.Use(RateLimit(store, 2, time.Minute))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	do := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		r.ServeHTTP(w, req)
		return w
	}

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, do().Code)
	}

	limited := do()
	require.Equal(t, http.StatusTooManyRequests, limited.Code)
	require.Equal(t, "0", limited.Header().Get("X-RateLimit-Remaining"))
	require.Equal(t, "60", limited.Header().Get("Retry-After"))

	current = current.Add(time.Minute)
	require.Equal(t, http.StatusOK, do().Code)
}

func TestRateLimitKeysByUser(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store := NewMemoryRateStore(nil)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(CtxUserIDKey, c.GetHeader("X-Test-User"))
		c.Next()
	}, RateLimit(store, 1, time.Minute))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, user := range []string{"alice", "bob"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("X-Test-User", user)
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, user)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Test-User", "alice")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestCacheRateStoreUsesDatabase(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := NewCacheRateStore(cache.NewDatabaseStore(db))

	count, ttl, err := store.Increment(context.Background(), "ratelimit:test", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Greater(t, ttl, time.Duration(0))

	count, _, err = store.Increment(context.Background(), "ratelimit:test", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	require.Nil(t, NewCacheRateStore(nil))
}
