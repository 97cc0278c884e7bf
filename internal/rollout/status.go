package rollout

import (
	"context"
	"fmt"

	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/selection"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// Outcome is a single point-in-time snapshot of how far along a rollout is.
// Consumers poll for it periodically and discard each snapshot after use.
type Outcome struct {
	// Progress is the current ready/updated count.
	Progress int32
	// Expected is the count being waited for.
	Expected int32
	// Message is human-readable status text, excluding counts. Deployments
	// source it from the Progressing condition; the others synthesize one.
	Message string
	// OK reports terminal success; polling should stop.
	OK bool
}

// State is the mutable tracking context threaded through the poll loop.
// It is owned by one tracking session; only the tracking loop mutates it.
type State struct {
	// Hash identifies the revision's child objects: the pod-template hash
	// for deployments, the update revision for statefulsets. Empty until
	// pinned, and always empty for daemonsets.
	Hash string
	// MinReplicas is the replica count being waited for.
	MinReplicas int32
	// Selector narrows over time: the workload's label selector at first,
	// later intersected with the pinned hash.
	Selector labels.Selector
}

// PinHash records the identifying hash of the revision being tracked.
func (s *State) PinHash(hash string) {
	s.Hash = hash
}

// NarrowSelector intersects the selector with an equality requirement on the
// pod-template hash, so later polls measure this rollout's children only.
func (s *State) NarrowSelector(hash string) error {
	req, err := labels.NewRequirement(podTemplateHashLabel, selection.Equals, []string{hash})
	if err != nil {
		return &MalformedInputError{Reason: fmt.Sprintf("hash requirement for %q", hash), Err: err}
	}
	s.Selector = s.Selector.Add(*req)
	return nil
}

// Status evaluates the rollout's current Outcome against state.
func (r *Rollout) Status(ctx context.Context, state *State) (Outcome, error) {
	switch r.Kind {
	case KindDeployment:
		return r.statusDeployment(ctx, state)
	case KindStatefulSet:
		return r.statusStatefulSet(ctx, state)
	case KindDaemonSet:
		return r.statusDaemonSet(ctx, state)
	default:
		return Outcome{}, fmt.Errorf("unsupported workload kind %q", r.Kind)
	}
}

func (r *Rollout) statusDeployment(ctx context.Context, state *State) (Outcome, error) {
	logger := log.FromContext(ctx)

	deploy, err := r.Deployment(ctx)
	if err != nil {
		return Outcome{}, err
	}
	d, err := NewDeploySummary(deploy)
	if err != nil {
		return Outcome{}, err
	}
	logger.V(1).Info("deployment status", "name", r.Name,
		"ready", d.Ready, "replicas", d.Replicas, "unavailable", d.Unavailable,
		"newReplicasAvailable", d.NewReplicasAvailable)

	// Prefer the pinned replica set's numbers once a hash is tracked; the
	// deployment-level aggregate mixes old and new revisions.
	var accurate *int32
	minimum := state.MinReplicas
	if state.Hash != "" {
		rs, err := r.ReplicaSet(ctx, state.Selector)
		if err != nil {
			return Outcome{}, err
		}
		if rs != nil {
			summary, err := NewReplicaSetSummary(rs)
			if err != nil {
				return Outcome{}, err
			}
			logger.V(1).Info("replicaset status", "name", r.Name,
				"hash", summary.Hash, "ready", summary.Ready, "replicas", summary.Replicas)
			accurate = &summary.Ready
			// The replica set may have been resized mid-rollout.
			if summary.Replicas > minimum {
				minimum = summary.Replicas
			}
		}
	}

	var ok bool
	if accurate != nil {
		// The pinned replica set is scaled to our minimum and all ready.
		ok = *accurate == minimum
	} else {
		// Fallback from aggregate counts only. All three signals are
		// needed: the aggregate sums ready pods across replica sets, so
		// completion also requires either the explicit go-ahead from the
		// Progressing condition or all unavailable pods to be gone.
		ok = d.Ready == d.Replicas &&
			d.Ready >= minimum &&
			(d.NewReplicasAvailable || d.Unavailable <= 0)
	}

	progress := d.Ready - d.Unavailable
	if accurate != nil {
		progress = *accurate
	}
	if progress < 0 {
		progress = 0
	}
	return Outcome{
		Progress: progress,
		Expected: minimum,
		Message:  d.Message,
		OK:       ok,
	}, nil
}

func (r *Rollout) statusStatefulSet(ctx context.Context, state *State) (Outcome, error) {
	sts, err := r.StatefulSet(ctx)
	if err != nil {
		return Outcome{}, err
	}
	s, err := NewStatefulSummary(sts)
	if err != nil {
		return Outcome{}, err
	}
	minimum := state.MinReplicas

	ok := s.UpdatedReplicas >= minimum &&
		s.UpdatedReplicas == s.Ready &&
		s.UpdateRevision == state.Hash
	message := ""
	if !ok {
		message = "Statefulset update in progress"
	}

	// Progress is optimistic: updatedReplicas increments as soon as the old
	// replica is replaced, before the new one is ready. readyReplicas is no
	// alternative, it sums old and new. Completion still waits for the
	// revision changeover, so this skews the progress number only.
	progress := s.UpdatedReplicas
	if progress < 0 {
		progress = 0
	}
	return Outcome{
		Progress: progress,
		Expected: minimum,
		Message:  message,
		OK:       ok,
	}, nil
}

func (r *Rollout) statusDaemonSet(ctx context.Context, state *State) (Outcome, error) {
	ds, err := r.DaemonSet(ctx)
	if err != nil {
		return Outcome{}, err
	}
	s, err := NewDaemonSummary(ds)
	if err != nil {
		return Outcome{}, err
	}
	minimum := state.MinReplicas

	ok := s.Desired >= minimum && s.Updated != nil && *s.Updated == s.Desired
	message := ""
	if !ok {
		message = "Daemonset update in progress"
	}

	progress := s.Ready
	if s.Updated != nil {
		progress = *s.Updated
	}
	if progress < 0 {
		progress = 0
	}
	return Outcome{
		Progress: progress,
		Expected: minimum,
		Message:  message,
		OK:       ok,
	}, nil
}
