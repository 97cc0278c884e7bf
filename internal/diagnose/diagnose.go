// Package diagnose explains why a rollout did not complete by locating the
// responsible child objects and tailing logs from their non-ready containers.
// Its output is advisory: it never changes the tracking verdict.
package diagnose

import (
	"context"
	"fmt"
	"io"

	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/rollwatch/rollwatch/internal/rollout"
)

// Run inspects the children of a rollout that ended without success, using
// the selector and hash the tracking loop accumulated in state. The report
// is written to out.
func Run(ctx context.Context, r *rollout.Rollout, state *rollout.State, out io.Writer) error {
	switch r.Kind {
	case rollout.KindDeployment:
		return diagnoseDeployment(ctx, r, state, out)
	case rollout.KindStatefulSet, rollout.KindDaemonSet:
		// No replica set layer; inspect the pod set directly.
		pods, err := r.Pods(ctx, state.Selector)
		if err != nil {
			return err
		}
		return diagnosePods(ctx, r, pods, out)
	default:
		return fmt.Errorf("unsupported workload kind %q", r.Kind)
	}
}

func diagnoseDeployment(ctx context.Context, r *rollout.Rollout, state *rollout.State, out io.Writer) error {
	logger := log.FromContext(ctx)

	rs, err := r.ReplicaSet(ctx, state.Selector)
	if err != nil {
		return err
	}
	if rs == nil {
		logger.Info("No replicaset matched the tracked selector, nothing to diagnose",
			"selector", state.Selector.String())
		return nil
	}
	summary, err := rollout.NewReplicaSetSummary(rs)
	if err != nil {
		return err
	}
	if summary.Replicas == 0 {
		// An empty replica set has no pods worth reporting on.
		return nil
	}
	fmt.Fprintf(out, "ReplicaSet %s running %s with %d pods:\n",
		summary.Hash, summary.Version, summary.Replicas)

	pods, err := r.Pods(ctx, state.Selector)
	if err != nil {
		return err
	}
	return diagnosePods(ctx, r, pods, out)
}

func diagnosePods(ctx context.Context, r *rollout.Rollout, pods []corev1.Pod, out io.Writer) error {
	logger := log.FromContext(ctx)

	for i := range pods {
		pod := &pods[i]
		summary := rollout.NewPodSummary(pod)
		fmt.Fprintln(out, summary.String())

		if summary.Running >= summary.Containers {
			continue
		}
		container := rollout.MainContainerName(pod)
		logger.Info("Fetching logs from non-ready container",
			"pod", summary.Name, "container", container)
		logs, err := r.PodLogs(ctx, summary.Name, container)
		if err != nil {
			// A missing log stream must not block reporting on other pods.
			logger.Info("Failed to fetch logs", "pod", summary.Name, "error", err.Error())
			continue
		}
		fmt.Fprintf(out, "Last log lines from %s/%s:\n%s\n", summary.Name, container, logs)
	}
	return nil
}
