package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/anandyadav-dev/HunarMitra-Backend/internal/cache"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/models"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/push"
)

func notifyUser(t *testing.T, e *engine, userID string) *NotificationDTO {
	t.Helper()
	dto, err := e.notifications.Create(context.Background(), CreateNotificationInput{
		UserID:  userID,
		Type:    NotificationTypeEmergencyDispatch,
		Title:   "Emergency Request Nearby",
		Message: "Urgent help needed 0.5km away. Tap to respond immediately.",
		Data:    map[string]any{"emergency_id": "em-1", "distance_km": 0.5},
	})
	require.NoError(t, err)
	return dto
}

func loadPush(t *testing.T, e *engine, deviceID string) models.OutgoingPush {
	t.Helper()
	var record models.OutgoingPush
	require.NoError(t, e.db.First(&record, "device_id = ?", deviceID).Error)
	return record
}

func loadDevice(t *testing.T, e *engine, id string) models.Device {
	t.Helper()
	var device models.Device
	require.NoError(t, e.db.First(&device, "id = ?", id).Error)
	return device
}

func TestDeliverySendsQueuedPushes(t *testing.T) {
	e := newEngine(t, enabledPush())
	device := seedDevice(t, e.db, "user-1", "token-1", true)
	notification := notifyUser(t, e, "user-1")

	require.Equal(t, 1, e.drain(t))

	record := loadPush(t, e, device.ID)
	require.Equal(t, models.PushStatusSent, record.Status)
	require.Equal(t, 1, record.Attempts)
	require.NotNil(t, record.LastAttemptAt)
	require.Equal(t, "msg-token-1", decodeJSON(record.ProviderResponse)["message_id"])

	sent := e.gateway.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, "token-1", sent[0].Token)
	require.Equal(t, "Emergency Request Nearby", sent[0].Title)
	require.Equal(t, "em-1", sent[0].Data["emergency_id"])
	require.Equal(t, "0.5", sent[0].Data["distance_km"])
	require.Equal(t, notification.ID, sent[0].Data["notification_id"])
}

func TestDeliveryIsIdempotentForSentRecords(t *testing.T) {
	e := newEngine(t, enabledPush())
	device := seedDevice(t, e.db, "user-1", "token-1", true)
	notifyUser(t, e, "user-1")
	e.drain(t)

	record := loadPush(t, e, device.ID)
	summary, err := e.delivery.ProcessBatch(context.Background(), []string{record.ID}, e.pushSettings)
	require.NoError(t, err)
	require.Equal(t, BatchSummary{Skipped: 1, Total: 1}, summary)
	require.Equal(t, 1, e.gateway.Calls())

	again := loadPush(t, e, device.ID)
	require.Equal(t, 1, again.Attempts)
	require.Equal(t, models.PushStatusSent, again.Status)
}

func TestDeliveryRetryStopsAtMaxRetries(t *testing.T) {
	settings := enabledPush()
	settings.MaxRetries = 3
	settings.BackoffBase = time.Second
	e := newEngine(t, settings)
	e.gateway.respond = func(push.Message) push.Result {
		return push.Result{Outcome: push.OutcomeTransient, StatusCode: 503, Error: "unavailable"}
	}
	device := seedDevice(t, e.db, "user-1", "token-1", true)
	notifyUser(t, e, "user-1")

	e.drain(t)
	record := loadPush(t, e, device.ID)
	require.Equal(t, models.PushStatusQueued, record.Status)
	require.Equal(t, 1, record.Attempts)
	require.NotNil(t, record.NextAttemptAt)
	require.True(t, record.NextAttemptAt.Equal(e.clock.Now().Add(2*time.Second)))

	// Not due yet.
	require.Zero(t, e.drain(t))
	require.Equal(t, 1, e.gateway.Calls())

	for i := 0; i < 5; i++ {
		e.clock.Advance(time.Minute)
		e.drain(t)
	}

	record = loadPush(t, e, device.ID)
	require.Equal(t, models.PushStatusFailed, record.Status)
	require.Equal(t, 3, record.Attempts)
	require.Equal(t, 3, e.gateway.Calls())
	require.True(t, loadDevice(t, e, device.ID).IsActive)
}

func TestDeliveryInvalidTokenDeactivatesDevice(t *testing.T) {
	e := newEngine(t, enabledPush())
	bad := seedDevice(t, e.db, "user-1", "token-bad", true)
	good := seedDevice(t, e.db, "user-1", "token-good", true)
	e.gateway.respond = func(msg push.Message) push.Result {
		if msg.Token == "token-bad" {
			return push.Result{Outcome: push.OutcomeInvalidToken, StatusCode: 404, Error: "unregistered"}
		}
		return push.Result{Outcome: push.OutcomeSent, MessageID: "ok"}
	}

	notifyUser(t, e, "user-1")
	e.drain(t)

	badRecord := loadPush(t, e, bad.ID)
	require.Equal(t, models.PushStatusFailed, badRecord.Status)
	require.Equal(t, 1, badRecord.Attempts)
	require.False(t, loadDevice(t, e, bad.ID).IsActive)
	require.Equal(t, models.PushStatusSent, loadPush(t, e, good.ID).Status)
	require.True(t, loadDevice(t, e, good.ID).IsActive)

	notifyUser(t, e, "user-1")
	var badPushes int64
	require.NoError(t, e.db.Model(&models.OutgoingPush{}).Where("device_id = ?", bad.ID).Count(&badPushes).Error)
	require.EqualValues(t, 1, badPushes)
}

func TestDeliveryRejectedRequestIsPermanent(t *testing.T) {
	e := newEngine(t, enabledPush())
	device := seedDevice(t, e.db, "user-1", "token-1", true)
	e.gateway.err = &push.GatewayError{StatusCode: 400, Err: errors.New("malformed payload")}

	notifyUser(t, e, "user-1")
	e.drain(t)

	record := loadPush(t, e, device.ID)
	require.Equal(t, models.PushStatusFailed, record.Status)
	require.Equal(t, 1, record.Attempts)
	require.EqualValues(t, 400, decodeJSON(record.ProviderResponse)["status_code"])
	require.False(t, loadDevice(t, e, device.ID).IsActive)
}

func TestDeliveryBatchNetworkErrorIsTransient(t *testing.T) {
	e := newEngine(t, enabledPush())
	device := seedDevice(t, e.db, "user-1", "token-1", true)
	e.gateway.err = errors.New("connection reset")

	notifyUser(t, e, "user-1")
	e.drain(t)

	record := loadPush(t, e, device.ID)
	require.Equal(t, models.PushStatusQueued, record.Status)
	require.Equal(t, 1, record.Attempts)
	require.Len(t, e.queue.Pending(), 1)
}

func TestDeliverySkipsInactiveDevice(t *testing.T) {
	e := newEngine(t, enabledPush())
	device := seedDevice(t, e.db, "user-1", "token-1", true)
	notifyUser(t, e, "user-1")

	// Unregistered between fan-out and delivery.
	require.NoError(t, e.db.Model(&models.Device{}).Where("id = ?", device.ID).Update("is_active", false).Error)

	record := loadPush(t, e, device.ID)
	summary, err := e.delivery.ProcessBatch(context.Background(), []string{record.ID, "missing"}, e.pushSettings)
	require.NoError(t, err)
	require.Equal(t, BatchSummary{Skipped: 2, Total: 2}, summary)
	require.Zero(t, e.gateway.Calls())

	record = loadPush(t, e, device.ID)
	require.Equal(t, models.PushStatusFailed, record.Status)
	require.Zero(t, record.Attempts)
	require.Equal(t, "device inactive", decodeJSON(record.ProviderResponse)["error"])
}

func TestDeliveryDisabledLeavesRecordsUntouched(t *testing.T) {
	e := newEngine(t, enabledPush())
	device := seedDevice(t, e.db, "user-1", "token-1", true)
	notifyUser(t, e, "user-1")
	record := loadPush(t, e, device.ID)

	summary, err := e.delivery.ProcessBatch(context.Background(), []string{record.ID}, PushSettings{Enabled: false})
	require.NoError(t, err)
	require.Equal(t, BatchSummary{Skipped: 1, Total: 1}, summary)
	require.Equal(t, models.PushStatusQueued, loadPush(t, e, device.ID).Status)
}

func TestDeliveryRateLimitDelaysWithoutConsumingAttempts(t *testing.T) {
	settings := enabledPush()
	settings.RateLimitPerMinute = 1
	e := newEngine(t, settings)
	e.delivery.WithRateStore(cache.NewDatabaseStore(e.db).WithClock(e.clock.Now))
	first := seedDevice(t, e.db, "user-1", "token-1", true)
	second := seedDevice(t, e.db, "user-1", "token-2", true)
	notifyUser(t, e, "user-1")

	e.drain(t)
	records := []models.OutgoingPush{loadPush(t, e, first.ID), loadPush(t, e, second.ID)}
	statuses := []string{records[0].Status, records[1].Status}
	require.ElementsMatch(t, []string{models.PushStatusSent, models.PushStatusDelayed}, statuses)

	var delayed models.OutgoingPush
	for _, r := range records {
		if r.Status == models.PushStatusDelayed {
			delayed = r
		}
	}
	require.Zero(t, delayed.Attempts)
	require.NotNil(t, delayed.NextAttemptAt)

	e.clock.Advance(time.Minute)
	e.drain(t)
	require.Equal(t, models.PushStatusSent, loadPush(t, e, delayed.DeviceID).Status)
	require.Equal(t, 2, e.gateway.Calls())
}

func TestDeliveryReschedulesRecordClaimedBeforeNextAttempt(t *testing.T) {
	settings := enabledPush()
	settings.MaxRetries = 2
	settings.BackoffBase = time.Second
	e := newEngine(t, settings)
	e.gateway.respond = func(push.Message) push.Result {
		return push.Result{Outcome: push.OutcomeTransient, StatusCode: 503, Error: "unavailable"}
	}
	device := seedDevice(t, e.db, "user-1", "token-1", true)
	notifyUser(t, e, "user-1")
	e.drain(t)

	record := loadPush(t, e, device.ID)
	require.NotNil(t, record.NextAttemptAt)
	next := *record.NextAttemptAt

	e.clock.Advance(time.Second)
	summary, err := e.delivery.ProcessBatch(context.Background(), []string{record.ID}, settings)
	require.NoError(t, err)
	require.Equal(t, BatchSummary{Delayed: 1, Total: 1}, summary)
	require.Equal(t, 1, e.gateway.Calls())

	pending := e.queue.Pending()
	require.Len(t, pending, 2)
	for _, task := range pending {
		require.True(t, task.RunAt.Equal(next.UTC()), "task scheduled at %s", task.RunAt)
	}

	e.clock.Advance(time.Minute)
	e.drain(t)
	record = loadPush(t, e, device.ID)
	require.Equal(t, models.PushStatusFailed, record.Status)
	require.Equal(t, 2, record.Attempts)
	require.Equal(t, 2, e.gateway.Calls())
}

func TestRequeueStrandedRecoversPushesWithoutTask(t *testing.T) {
	e := newEngine(t, enabledPush())
	device := seedDevice(t, e.db, "user-1", "token-1", true)
	notifyUser(t, e, "user-1")

	// Lose the delivery task the fan-out queued.
	lost, err := e.queue.Dequeue(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, lost, 1)
	require.NoError(t, e.queue.Complete(context.Background(), lost[0].ID, errors.New("worker crashed")))

	requeued, err := e.delivery.RequeueStranded(context.Background(), time.Minute)
	require.NoError(t, err)
	require.Zero(t, requeued)

	e.clock.Advance(2 * time.Minute)
	requeued, err = e.delivery.RequeueStranded(context.Background(), time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, requeued)

	// Rescheduled to now, so an immediate second run leaves it alone.
	requeued, err = e.delivery.RequeueStranded(context.Background(), time.Minute)
	require.NoError(t, err)
	require.Zero(t, requeued)

	require.Equal(t, 1, e.drain(t))
	record := loadPush(t, e, device.ID)
	require.Equal(t, models.PushStatusSent, record.Status)
	require.Equal(t, 1, e.gateway.Calls())

	e.clock.Advance(time.Hour)
	requeued, err = e.delivery.RequeueStranded(context.Background(), time.Minute)
	require.NoError(t, err)
	require.Zero(t, requeued)
}

func TestDeliveryBatchNotFoundKeepsDevicesActive(t *testing.T) {
	e := newEngine(t, enabledPush())
	first := seedDevice(t, e.db, "user-1", "token-1", true)
	second := seedDevice(t, e.db, "user-1", "token-2", true)
	e.gateway.err = &push.GatewayError{StatusCode: 404, Err: errors.New("requested entity was not found")}

	notifyUser(t, e, "user-1")
	e.drain(t)

	for _, device := range []models.Device{first, second} {
		record := loadPush(t, e, device.ID)
		require.Equal(t, models.PushStatusQueued, record.Status)
		require.Equal(t, 1, record.Attempts)
		require.True(t, loadDevice(t, e, device.ID).IsActive)
	}
}
