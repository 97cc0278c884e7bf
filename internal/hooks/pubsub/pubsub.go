package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub/v2"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/rollwatch/rollwatch/internal/model"
)

// PubSubPublisher sends rollout events to Google Cloud Pub/Sub.
type PubSubPublisher struct {
	client         *pubsub.Client
	publisher      *pubsub.Publisher
	topicPath      string
	clusterID      string
	environment    string
	trackerVersion string
}

// ParseTopicPath parses a full Pub/Sub topic path and returns projectID and topicID.
// Expected format: projects/<project>/topics/<topic>
func ParseTopicPath(topicPath string) (projectID, topicID string, err error) {
	parts := strings.Split(topicPath, "/")
	if len(parts) != 4 || parts[0] != "projects" || parts[2] != "topics" {
		return "", "", fmt.Errorf("invalid topic path %q: expected format projects/<project>/topics/<topic>", topicPath)
	}
	return parts[1], parts[3], nil
}

// NewPubSubPublisher creates a Pub/Sub publisher for rollout events.
//
// Authentication is handled via Application Default Credentials (ADC):
//   - Workload Identity (GKE): auto-detected from the metadata server
//   - Service Account JSON key: GOOGLE_APPLICATION_CREDENTIALS env var
//   - Default credentials: gcloud auth application-default login
func NewPubSubPublisher(ctx context.Context, topicPath, clusterID, environment, trackerVersion string) (*PubSubPublisher, error) {
	projectID, topicID, err := ParseTopicPath(topicPath)
	if err != nil {
		return nil, err
	}

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	// Ordered delivery keeps a workload's progression events in sequence.
	// The subscription must also have message ordering enabled.
	publisher := client.Publisher(topicID)
	publisher.EnableMessageOrdering = true

	return &PubSubPublisher{
		client:         client,
		publisher:      publisher,
		topicPath:      topicPath,
		clusterID:      clusterID,
		environment:    environment,
		trackerVersion: trackerVersion,
	}, nil
}

// Publish sends one rollout update to the topic.
func (p *PubSubPublisher) Publish(ctx context.Context, update model.RolloutUpdate) error {
	logger := log.FromContext(ctx)

	event := model.NewRolloutEventPayload(update, p.clusterID, p.environment, p.trackerVersion)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal rollout event: %w", err)
	}

	// Ordering key format: cluster/namespace/workload_name
	orderingKey := fmt.Sprintf("%s/%s/%s", p.clusterID, update.Namespace, update.Name)

	attributes := map[string]string{
		"cluster_name":  p.clusterID,
		"namespace":     update.Namespace,
		"workload_name": update.Name,
		"workload_type": update.Kind,
		"phase":         string(update.Phase),
	}
	if p.environment != "" {
		attributes["environment"] = p.environment
	}

	result := p.publisher.Publish(ctx, &pubsub.Message{
		Data:        data,
		Attributes:  attributes,
		OrderingKey: orderingKey,
	})

	msgID, err := result.Get(ctx)
	if err != nil {
		logger.Error(err, "Failed to publish rollout event to Pub/Sub",
			"topic", p.topicPath,
			"eventID", event.EventID,
		)
		return fmt.Errorf("failed to publish rollout event to pubsub: %w", err)
	}

	logger.V(1).Info("Rollout event published to Pub/Sub",
		"topic", p.topicPath,
		"eventID", event.EventID,
		"messageID", msgID,
		"phase", update.Phase,
	)

	return nil
}

// Stop stops the publisher and closes the client.
func (p *PubSubPublisher) Stop() {
	if p.publisher != nil {
		p.publisher.Stop()
	}
	if p.client != nil {
		_ = p.client.Close()
	}
}
