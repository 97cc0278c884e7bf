package webhook

import (
	"context"
	"fmt"
	"time"

	"resty.dev/v3"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/rollwatch/rollwatch/internal/model"
)

// HTTPPublisher POSTs rollout events to an HTTP endpoint.
type HTTPPublisher struct {
	client         *resty.Client
	endpoint       string
	clusterID      string
	environment    string
	trackerVersion string
}

// NewHTTPPublisher creates a webhook publisher for rollout events.
func NewHTTPPublisher(endpoint, clusterID, environment, trackerVersion string) *HTTPPublisher {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second)

	return &HTTPPublisher{
		client:         client,
		endpoint:       endpoint,
		clusterID:      clusterID,
		environment:    environment,
		trackerVersion: trackerVersion,
	}
}

// Publish sends one rollout update to the configured endpoint.
func (p *HTTPPublisher) Publish(ctx context.Context, update model.RolloutUpdate) error {
	logger := log.FromContext(ctx)

	event := model.NewRolloutEventPayload(update, p.clusterID, p.environment, p.trackerVersion)

	var errorResponse map[string]interface{}
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(event).
		SetError(&errorResponse).
		Post(p.endpoint)

	if err != nil {
		logger.Error(err, "Failed to send rollout event",
			"endpoint", p.endpoint,
			"eventID", event.EventID,
		)
		return fmt.Errorf("failed to send rollout event: %w", err)
	}

	if !resp.IsSuccess() {
		logger.Error(nil, "Webhook endpoint returned error",
			"statusCode", resp.StatusCode(),
			"status", resp.Status(),
			"error", errorResponse,
			"endpoint", p.endpoint,
			"eventID", event.EventID,
		)
		return fmt.Errorf("webhook returned error status %d: %s", resp.StatusCode(), resp.String())
	}

	logger.V(1).Info("Rollout event published",
		"endpoint", p.endpoint,
		"eventID", event.EventID,
		"statusCode", resp.StatusCode(),
		"phase", update.Phase,
	)

	return nil
}
