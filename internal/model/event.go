package model

import (
	"time"

	"github.com/google/uuid"
)

// SourceMetadata identifies where a rollout event came from.
type SourceMetadata struct {
	ClusterID      string `json:"clusterId"`
	TrackerVersion string `json:"trackerVersion"`
}

// WorkloadRef names the workload an event is about.
type WorkloadRef struct {
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
}

// RolloutEventPayload is the wire shape published to webhook and Pub/Sub
// sinks for each rollout update.
type RolloutEventPayload struct {
	EventID     string         `json:"eventId"`
	OccurredAt  time.Time      `json:"occurredAt"`
	Environment string         `json:"environment,omitempty"`
	Source      SourceMetadata `json:"source"`
	Workload    WorkloadRef    `json:"workload"`
	Phase       Phase          `json:"phase"`
	Progress    int32          `json:"progress"`
	Expected    int32          `json:"expected"`
	Message     string         `json:"message,omitempty"`
}

// NewRolloutEventPayload builds the publishable payload for one update.
func NewRolloutEventPayload(update RolloutUpdate, clusterID, environment, trackerVersion string) RolloutEventPayload {
	return RolloutEventPayload{
		EventID:     uuid.New().String(),
		OccurredAt:  time.Now().UTC(),
		Environment: environment,
		Source: SourceMetadata{
			ClusterID:      clusterID,
			TrackerVersion: trackerVersion,
		},
		Workload: WorkloadRef{
			Kind:      update.Kind,
			Name:      update.Name,
			Namespace: update.Namespace,
		},
		Phase:    update.Phase,
		Progress: update.Progress,
		Expected: update.Expected,
		Message:  update.Message,
	}
}
