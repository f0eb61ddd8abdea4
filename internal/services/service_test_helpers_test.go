package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/anandyadav-dev/HunarMitra-Backend/internal/database/testutil"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/models"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/push"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/queue"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/realtime"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/timeline"
)

// Lucknow city centre.
const (
	originLat = 26.8467
	originLng = 80.9462
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{now: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingHub struct {
	mu     sync.Mutex
	users  map[string][]realtime.Message
	stream []realtime.Message
}

func newRecordingHub() *recordingHub {
	return &recordingHub{users: make(map[string][]realtime.Message)}
}

func (h *recordingHub) BroadcastToUser(_ string, userID string, message realtime.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.users[userID] = append(h.users[userID], message)
}

func (h *recordingHub) BroadcastStream(_ string, message realtime.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stream = append(h.stream, message)
}

func (h *recordingHub) userEvents(userID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	events := make([]string, 0, len(h.users[userID]))
	for _, msg := range h.users[userID] {
		events = append(events, msg.Event)
	}
	return events
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, message realtime.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, message.Event)
}

func (p *recordingPublisher) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

// fakeGateway answers every message with respond, or fails the batch with err.
type fakeGateway struct {
	mu      sync.Mutex
	calls   int
	sent    []push.Message
	err     error
	respond func(push.Message) push.Result
}

func (g *fakeGateway) SendBatch(_ context.Context, messages []push.Message) ([]push.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.sent = append(g.sent, messages...)
	if g.err != nil {
		return nil, g.err
	}
	results := make([]push.Result, 0, len(messages))
	for _, msg := range messages {
		if g.respond == nil {
			results = append(results, push.Result{Outcome: push.OutcomeSent, MessageID: "msg-" + msg.Token})
			continue
		}
		results = append(results, g.respond(msg))
	}
	return results, nil
}

func (g *fakeGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *fakeGateway) Sent() []push.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]push.Message(nil), g.sent...)
}

// engine wires every service against one in-memory database and queue.
type engine struct {
	db            *gorm.DB
	clock         *fixedClock
	queue         *queue.MemoryQueue
	runner        *queue.Runner
	hub           *recordingHub
	publisher     *recordingPublisher
	gateway       *fakeGateway
	timeline      *timeline.GormRecorder
	notifications *NotificationService
	fanout        *FanoutService
	delivery      *PushDeliveryService
	dispatch      *DispatchService
	emergencies   *EmergencyService
	monitor       *TimeoutMonitor
	pushSettings  PushSettings
}

func newEngine(t *testing.T, pushSettings PushSettings) *engine {
	t.Helper()
	return newEngineOn(t, testutil.MustOpenTestDB(t, testutil.WithAutoMigrate()), pushSettings)
}

func newEngineOn(t *testing.T, db *gorm.DB, pushSettings PushSettings) *engine {
	t.Helper()

	e := &engine{
		db:           db,
		clock:        newFixedClock(),
		hub:          newRecordingHub(),
		publisher:    &recordingPublisher{},
		gateway:      &fakeGateway{},
		pushSettings: pushSettings,
	}
	e.queue = queue.NewMemoryQueue(e.clock.Now)

	recorder, err := timeline.NewGormRecorder(e.db)
	require.NoError(t, err)
	e.timeline = recorder

	opts := []Option{WithClock(e.clock.Now), WithPublisher(e.publisher), WithTimeline(recorder)}

	e.fanout, err = NewFanoutService(e.db, e.queue, opts...)
	require.NoError(t, err)
	e.notifications, err = NewNotificationService(e.db, e.hub, WithPushFanout(e.fanout, pushSettings))
	require.NoError(t, err)
	e.delivery, err = NewPushDeliveryService(e.db, e.gateway, e.queue, opts...)
	require.NoError(t, err)
	e.dispatch, err = NewDispatchService(e.db, e.notifications, opts...)
	require.NoError(t, err)
	e.emergencies, err = NewEmergencyService(e.db, e.queue, e.notifications, opts...)
	require.NoError(t, err)
	e.monitor, err = NewTimeoutMonitor(e.db, opts...)
	require.NoError(t, err)

	e.runner = queue.NewRunner(e.queue, queue.WithConcurrency(1))
	RegisterTaskHandlers(e.runner, e.dispatch, e.delivery, DispatchSettings{RadiusKm: 5}, pushSettings)
	return e
}

func (e *engine) drain(t *testing.T) int {
	t.Helper()
	n, err := e.runner.Drain(context.Background())
	require.NoError(t, err)
	return n
}

func enabledPush() PushSettings {
	settings := DefaultPushSettings()
	settings.Enabled = true
	return settings
}

func seedWorker(t *testing.T, db *gorm.DB, id string, lat, lng, rating float64, serviceIDs ...string) models.WorkerProfile {
	t.Helper()
	worker := models.WorkerProfile{
		BaseModel:   models.BaseModel{ID: id},
		UserID:      "user-" + id,
		DisplayName: id,
		Latitude:    &lat,
		Longitude:   &lng,
		IsAvailable: true,
		Rating:      rating,
	}
	require.NoError(t, db.Create(&worker).Error)
	for _, serviceID := range serviceIDs {
		require.NoError(t, db.Create(&models.WorkerService{WorkerID: id, ServiceID: serviceID}).Error)
	}
	return worker
}

func seedDevice(t *testing.T, db *gorm.DB, userID, token string, active bool) models.Device {
	t.Helper()
	device := models.Device{
		UserID:            stringPtr(userID),
		Platform:          models.PlatformAndroid,
		RegistrationToken: token,
		IsActive:          active,
	}
	require.NoError(t, db.Create(&device).Error)
	if !active {
		require.NoError(t, db.Model(&device).Update("is_active", false).Error)
	}
	return device
}

// seedLucknowWorkers places A and B about 0.5 km from the origin and C about 15 km away.
func seedLucknowWorkers(t *testing.T, db *gorm.DB) {
	t.Helper()
	seedWorker(t, db, "worker-a", originLat+0.0045, originLng, 4.0)
	seedWorker(t, db, "worker-b", originLat-0.0045, originLng, 4.8)
	seedWorker(t, db, "worker-c", originLat+0.135, originLng, 5.0)
}

func createOpenEmergency(t *testing.T, e *engine, requester string) EmergencyDTO {
	t.Helper()
	result, err := e.emergencies.Create(context.Background(), Actor{UserID: requester, Role: RoleUser}, CreateEmergencyInput{
		ContactPhone: "+919800000001",
		Latitude:     originLat,
		Longitude:    originLng,
		AddressText:  "Hazratganj, Lucknow",
		Urgency:      models.UrgencyHigh,
	}, EmergencySettings{})
	require.NoError(t, err)
	return result.Emergency
}

func loadEmergency(t *testing.T, db *gorm.DB, id string) models.EmergencyRequest {
	t.Helper()
	var emergency models.EmergencyRequest
	require.NoError(t, db.First(&emergency, "id = ?", id).Error)
	return emergency
}

func dispatchLogs(t *testing.T, db *gorm.DB, emergencyID string) []models.DispatchLog {
	t.Helper()
	var logs []models.DispatchLog
	require.NoError(t, db.Where("emergency_id = ?", emergencyID).Order("candidate_rank ASC").Find(&logs).Error)
	return logs
}
