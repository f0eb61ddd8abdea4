package checks

import (
	"context"
	"time"

	"github.com/anandyadav-dev/HunarMitra-Backend/internal/monitoring"
)

// Pinger is implemented by the Redis cache store and the Mongo timeline recorder.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping probes an optional dependency. A disabled dependency reports up with a note so
// operators can tell it apart from a healthy one.
func Ping(name string, client Pinger, enabled bool, timeout time.Duration) monitoring.Check {
	return monitoring.NewCheck(name, func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if !enabled {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: name + " disabled"}
		}
		if client == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: name + " unavailable"}
		}

		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout))
		defer cancel()
		return monitoring.ResultFromError(name, client.Ping(probeCtx), time.Since(start))
	})
}
