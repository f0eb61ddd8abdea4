package push

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anandyadav-dev/HunarMitra-Backend/pkg/logger"
)

// LogGateway logs messages instead of delivering them. It is used when no provider
// credentials are configured.
type LogGateway struct {
	log *zap.Logger
}

// NewLogGateway constructs a LogGateway.
func NewLogGateway() *LogGateway {
	return &LogGateway{log: logger.WithModule("push")}
}

// SendBatch implements Gateway. Every message is reported as sent.
func (g *LogGateway) SendBatch(_ context.Context, messages []Message) ([]Result, error) {
	results := make([]Result, 0, len(messages))
	for _, msg := range messages {
		id := "dev-" + uuid.NewString()
		g.log.Info("push logged (no provider configured)",
			zap.String("message_id", id),
			zap.String("platform", msg.Platform),
			zap.String("title", msg.Title),
		)
		results = append(results, Result{Outcome: OutcomeSent, MessageID: id})
	}
	return results, nil
}
