package hooks

import (
	"context"

	"github.com/rollwatch/rollwatch/internal/model"
)

// EventPublisher delivers rollout updates to an external sink.
type EventPublisher interface {
	Publish(ctx context.Context, update model.RolloutUpdate) error
}
