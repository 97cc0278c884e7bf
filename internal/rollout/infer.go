package rollout

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Inference is the snapshot of rollout parameters derived from the live
// workload object at tracking start. It is not re-derived mid-rollout; a
// rollout whose spec changes while being tracked keeps the initial view.
type Inference struct {
	// Selector finds the workload's child objects (replica sets, pods).
	Selector *metav1.LabelSelector
	// MinReplicas is the minimum replica count to wait for.
	MinReplicas int32
	// Strategy is the effective rolling-update config, when declared.
	Strategy *RolloutStrategy
	// InitialDelaySeconds is the longest readiness-probe delay across the
	// pod template's containers. Nil when no container declares a probe.
	InitialDelaySeconds *int32
}

// Infer reads the live workload and derives the tracking parameters.
// Mandatory fields (selector, a replica count signal) fail loudly when
// absent; defaulting them would mask an unsupported object shape.
func (r *Rollout) Infer(ctx context.Context) (Inference, error) {
	switch r.Kind {
	case KindDeployment:
		return r.inferDeployment(ctx)
	case KindStatefulSet:
		return r.inferStatefulSet(ctx)
	case KindDaemonSet:
		return r.inferDaemonSet(ctx)
	default:
		return Inference{}, fmt.Errorf("unsupported workload kind %q", r.Kind)
	}
}

func (r *Rollout) inferDeployment(ctx context.Context) (Inference, error) {
	d, err := r.Deployment(ctx)
	if err != nil {
		return Inference{}, err
	}
	if d.Spec.Selector == nil {
		return Inference{}, invariantErr("deployment %s has no selector", r.Name)
	}
	inf := Inference{
		Selector:            d.Spec.Selector,
		InitialDelaySeconds: maxReadinessDelay(&d.Spec.Template.Spec),
	}
	// Prefer the declared replica count; the status aggregate is a fallback
	// for specs that leave it implicit.
	switch {
	case d.Spec.Replicas != nil:
		inf.MinReplicas = *d.Spec.Replicas
	case d.Status.Replicas > 0:
		inf.MinReplicas = d.Status.Replicas
	default:
		return Inference{}, invariantErr("deployment %s has no replica count signal", r.Name)
	}
	if d.Spec.Strategy.RollingUpdate != nil {
		s := StrategyFromDeployment(d.Spec.Strategy.RollingUpdate)
		inf.Strategy = &s
	}
	return inf, nil
}

func (r *Rollout) inferStatefulSet(ctx context.Context) (Inference, error) {
	sts, err := r.StatefulSet(ctx)
	if err != nil {
		return Inference{}, err
	}
	if sts.Spec.Selector == nil {
		return Inference{}, invariantErr("statefulset %s has no selector", r.Name)
	}
	inf := Inference{
		Selector:            sts.Spec.Selector,
		InitialDelaySeconds: maxReadinessDelay(&sts.Spec.Template.Spec),
	}
	if sts.Spec.Replicas != nil {
		inf.MinReplicas = *sts.Spec.Replicas
	} else {
		inf.MinReplicas = sts.Status.Replicas
	}
	if sts.Spec.UpdateStrategy.RollingUpdate != nil {
		s := StrategyFromStatefulSet(sts.Spec.UpdateStrategy.RollingUpdate)
		inf.Strategy = &s
	}
	return inf, nil
}

func (r *Rollout) inferDaemonSet(ctx context.Context) (Inference, error) {
	ds, err := r.DaemonSet(ctx)
	if err != nil {
		return Inference{}, err
	}
	if ds.Spec.Selector == nil {
		return Inference{}, invariantErr("daemonset %s has no selector", r.Name)
	}
	inf := Inference{
		Selector:            ds.Spec.Selector,
		InitialDelaySeconds: maxReadinessDelay(&ds.Spec.Template.Spec),
		// Daemonsets have no replica field; the desired-scheduled count is
		// the target.
		MinReplicas: ds.Status.DesiredNumberScheduled,
	}
	if ds.Spec.UpdateStrategy.RollingUpdate != nil {
		s := StrategyFromDaemonSet(ds.Spec.UpdateStrategy.RollingUpdate)
		inf.Strategy = &s
	}
	return inf, nil
}

// maxReadinessDelay finds the longest readiness-probe initial delay across a
// pod spec's containers. Nil when no container declares a probe; the caller
// applies its own default.
func maxReadinessDelay(spec *corev1.PodSpec) *int32 {
	var maxDelay *int32
	for _, c := range spec.Containers {
		if c.ReadinessProbe == nil {
			continue
		}
		delay := c.ReadinessProbe.InitialDelaySeconds
		if maxDelay == nil || delay > *maxDelay {
			maxDelay = &delay
		}
	}
	return maxDelay
}
