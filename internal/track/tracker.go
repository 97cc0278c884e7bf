package track

import (
	"context"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/rollwatch/rollwatch/internal/model"
	"github.com/rollwatch/rollwatch/internal/rollout"
)

// Observer receives a progress snapshot for every poll and the terminal
// update, in order. Suitable for driving a progress indicator: Expected is
// the bar length, Progress the position, Message the status text.
type Observer interface {
	Observe(update model.RolloutUpdate)
}

// Config bounds one tracking session.
type Config struct {
	// Rounds is the maximum number of poll rounds before timing out.
	Rounds int
	// GracePeriod is slept once before polling begins, to let the API
	// server converge after the update was applied.
	GracePeriod time.Duration
	// ImageSizeMB overrides the image size guess in the wait estimate.
	ImageSizeMB *int32
}

// DefaultConfig polls 19 times with a one second pre-poll grace.
func DefaultConfig() Config {
	return Config{
		Rounds:      19,
		GracePeriod: time.Second,
	}
}

// Tracker drives one rollout to completion or timeout.
type Tracker struct {
	rollout   *rollout.Rollout
	config    Config
	observers []Observer
}

// New creates a tracker for one rollout session.
func New(r *rollout.Rollout, config Config, observers ...Observer) *Tracker {
	if config.Rounds <= 0 {
		config.Rounds = DefaultConfig().Rounds
	}
	return &Tracker{rollout: r, config: config, observers: observers}
}

// Track follows the rollout until it completes, errors, or exhausts the poll
// budget. It returns whether the rollout succeeded and the final tracking
// state, which Diagnose consumes when it did not.
func (t *Tracker) Track(ctx context.Context) (bool, *rollout.State, error) {
	logger := log.FromContext(ctx).WithValues(
		"kind", t.rollout.Kind, "namespace", t.rollout.Namespace, "name", t.rollout.Name)

	inf, err := t.rollout.Infer(ctx)
	if err != nil {
		return false, nil, err
	}
	selector, err := metav1.LabelSelectorAsSelector(inf.Selector)
	if err != nil {
		return false, nil, &rollout.MalformedInputError{Reason: "workload label selector", Err: err}
	}
	state := &rollout.State{
		MinReplicas: inf.MinReplicas,
		Selector:    selector,
	}

	// An already-settled workload needs no waiting. Errors here are expected
	// right after an update is applied and are not fatal.
	switch outcome, err := t.rollout.Status(ctx, state); {
	case err != nil:
		logger.Info("Ignoring status failure right after update", "error", err.Error())
	case outcome.OK:
		t.notify(outcome, model.PhaseSucceeded)
		return true, state, nil
	}

	if err := sleepContext(ctx, t.config.GracePeriod); err != nil {
		return false, state, err
	}

	if err := t.pinRevision(ctx, state); err != nil {
		return false, state, err
	}

	estimate := rollout.EstimateWaitTime(rollout.WaitParams{
		Strategy:            inf.Strategy,
		MinReplicas:         state.MinReplicas,
		ImageSizeMB:         t.config.ImageSizeMB,
		InitialDelaySeconds: inf.InitialDelaySeconds,
	})
	roundDelay := estimate / time.Duration(t.config.Rounds)
	logger.Info("Waiting for rollout",
		"estimate", estimate, "rounds", t.config.Rounds,
		"minReplicas", state.MinReplicas, "hash", state.Hash)

	for round := 1; round <= t.config.Rounds; round++ {
		if err := sleepContext(ctx, roundDelay); err != nil {
			return false, state, err
		}
		outcome, err := t.rollout.Status(ctx, state)
		if err != nil {
			// Unlike the pre-poll check, a failure after the grace period
			// indicates a real problem.
			return false, state, err
		}
		logger.V(1).Info("poll", "round", round,
			"progress", outcome.Progress, "expected", outcome.Expected, "ok", outcome.OK)
		if outcome.OK {
			t.notify(outcome, model.PhaseSucceeded)
			return true, state, nil
		}
		t.notify(outcome, model.PhaseProgressing)
	}

	t.notify(rollout.Outcome{Expected: state.MinReplicas}, model.PhaseTimedOut)
	return false, state, nil
}

// pinRevision identifies the revision being rolled to and narrows the state
// so later polls measure this rollout's children specifically. A concurrent
// second rollout can stale the pinned hash; acceptable for a single-shot
// invocation.
func (t *Tracker) pinRevision(ctx context.Context, state *rollout.State) error {
	logger := log.FromContext(ctx)

	switch t.rollout.Kind {
	case rollout.KindDeployment:
		rs, err := t.rollout.HighestVersionReplicaSet(ctx, state.Selector)
		if err != nil {
			return err
		}
		if rs == nil {
			return nil
		}
		summary, err := rollout.NewReplicaSetSummary(rs)
		if err != nil {
			return err
		}
		logger.V(1).Info("tracking replicaset", "hash", summary.Hash, "version", summary.Version)
		state.PinHash(summary.Hash)
		return state.NarrowSelector(summary.Hash)
	case rollout.KindStatefulSet:
		sts, err := t.rollout.StatefulSet(ctx)
		if err != nil {
			return err
		}
		summary, err := rollout.NewStatefulSummary(sts)
		if err != nil {
			return err
		}
		if summary.UpdateRevision != "" {
			logger.V(1).Info("tracking update revision", "revision", summary.UpdateRevision)
			state.PinHash(summary.UpdateRevision)
		}
		return nil
	default:
		// Daemonsets have no revision pinning step.
		return nil
	}
}

func (t *Tracker) notify(outcome rollout.Outcome, phase model.Phase) {
	update := model.RolloutUpdate{
		Name:      t.rollout.Name,
		Namespace: t.rollout.Namespace,
		Kind:      string(t.rollout.Kind),
		Phase:     phase,
		Progress:  outcome.Progress,
		Expected:  outcome.Expected,
		Message:   outcome.Message,
	}
	for _, observer := range t.observers {
		observer.Observe(update)
	}
}

// sleepContext sleeps for d unless the context is cancelled first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
