package model

// Phase classifies where a tracking session is in its lifecycle.
type Phase string

const (
	PhaseProgressing Phase = "progressing"
	PhaseSucceeded   Phase = "succeeded"
	PhaseTimedOut    Phase = "timed_out"
	PhaseFailed      Phase = "failed"
)

// RolloutUpdate is one progress snapshot of a tracked rollout, sent to the
// publisher queue whenever the visible state changes and once at the end.
type RolloutUpdate struct {
	Name      string
	Namespace string
	Kind      string
	Phase     Phase
	Progress  int32
	Expected  int32
	Message   string
}
