package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/anandyadav-dev/HunarMitra-Backend/internal/queue"
	apperrors "github.com/anandyadav-dev/HunarMitra-Backend/pkg/errors"
)

// TaskRegistry accepts handlers by task kind.
type TaskRegistry interface {
	Handle(kind string, handler queue.Handler)
}

// RegisterTaskHandlers binds dispatch and delivery to their task kinds. Settings are
// captured at registration so every run sees the same explicit configuration.
// Infrastructure errors are returned as-is so the runner retries the task; malformed
// payloads and missing or invalid records are marked permanent.
func RegisterTaskHandlers(registry TaskRegistry, dispatch *DispatchService, delivery *PushDeliveryService, dispatchSettings DispatchSettings, pushSettings PushSettings) {
	if dispatch != nil {
		registry.Handle(queue.KindEmergencyDispatch, func(ctx context.Context, task queue.Task) error {
			var payload queue.DispatchPayload
			if err := task.Decode(&payload); err != nil {
				return queue.Permanent(fmt.Errorf("decode dispatch task: %w", err))
			}
			_, err := dispatch.Dispatch(ctx, payload.EmergencyID, dispatchSettings)
			return permanentIfDomain(err)
		})
	}
	if delivery != nil {
		registry.Handle(queue.KindPushDeliver, func(ctx context.Context, task queue.Task) error {
			var payload queue.PushBatchPayload
			if err := task.Decode(&payload); err != nil {
				return queue.Permanent(fmt.Errorf("decode push task: %w", err))
			}
			_, err := delivery.ProcessBatch(ctx, payload.PushIDs, pushSettings)
			return err
		})
	}
}

func permanentIfDomain(err error) error {
	if errors.Is(err, apperrors.ErrNotFound) || errors.Is(err, apperrors.ErrValidation) {
		return queue.Permanent(err)
	}
	return err
}
