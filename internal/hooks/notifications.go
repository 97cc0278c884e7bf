package hooks

import (
	"context"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/rollwatch/rollwatch/internal/model"
)

// EventPublisherQueue drains rollout updates off a channel and fans them out
// to every registered publisher.
type EventPublisherQueue struct {
	UpdateChan <-chan model.RolloutUpdate
	publishers []EventPublisher
}

func NewEventPublisherQueue(updateChan <-chan model.RolloutUpdate, publishers []EventPublisher) *EventPublisherQueue {
	return &EventPublisherQueue{
		UpdateChan: updateChan,
		publishers: publishers,
	}
}

// Loop processes updates until the channel is closed. A publisher failure is
// logged and does not block the other publishers.
func (eq *EventPublisherQueue) Loop() {
	ctx := context.Background()
	logger := log.FromContext(ctx)

	logger.Info("Event publisher queue started", "publishers", len(eq.publishers))

	for update := range eq.UpdateChan {
		logger.V(1).Info("Received rollout update",
			"namespace", update.Namespace,
			"name", update.Name,
			"kind", update.Kind,
			"phase", update.Phase,
			"progress", update.Progress,
			"expected", update.Expected,
		)

		for _, publisher := range eq.publishers {
			if err := publisher.Publish(ctx, update); err != nil {
				logger.Error(err, "failed to publish rollout update",
					"namespace", update.Namespace,
					"name", update.Name,
				)
			}
		}
	}
}
