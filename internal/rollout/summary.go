package rollout

import (
	"fmt"
	"strings"
	"time"

	"github.com/blang/semver/v4"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
)

// defaultContainerAnnotation names the container kubectl treats as the main
// one; pods and pod templates may both carry it.
const defaultContainerAnnotation = "kubectl.kubernetes.io/default-container"

// DeploySummary projects a Deployment's status into the fields the status
// evaluator needs.
type DeploySummary struct {
	Replicas    int32
	Unavailable int32
	Ready       int32
	// NewReplicasAvailable is derived from the Progressing condition's
	// reason field; the platform sets it once the new replica set is
	// fully available (kubernetes >= 1.15).
	NewReplicasAvailable bool
	// Message is the Progressing condition's human-readable text.
	Message string
}

// NewDeploySummary converts the native object, failing when the status block
// is absent. Absence indicates a malformed object, not an empty rollout.
func NewDeploySummary(d *appsv1.Deployment) (DeploySummary, error) {
	if d.Status.ObservedGeneration == 0 && d.Status.Replicas == 0 && d.Status.Conditions == nil {
		return DeploySummary{}, invariantErr("deployment %s has no status", d.Name)
	}
	s := DeploySummary{
		Ready:       d.Status.ReadyReplicas,
		Unavailable: d.Status.UnavailableReplicas,
		Replicas:    d.Status.Replicas,
	}
	for _, cond := range d.Status.Conditions {
		if cond.Type == appsv1.DeploymentProgressing {
			if cond.Reason != "" {
				s.Message = cond.Message
				if cond.Reason == "NewReplicaSetAvailable" {
					s.NewReplicasAvailable = true
				}
			}
			break
		}
	}
	return s, nil
}

// ReplicaSetSummary projects a ReplicaSet's status and revision identity.
type ReplicaSetSummary struct {
	// Hash is the pod-template-hash label identifying this revision.
	Hash     string
	Version  string
	Replicas int32
	Ready    int32
}

// NewReplicaSetSummary converts the native object. The pod-template-hash
// label is mandatory; the platform stamps it on every managed replica set.
func NewReplicaSetSummary(rs *appsv1.ReplicaSet) (ReplicaSetSummary, error) {
	hash, ok := rs.Labels[podTemplateHashLabel]
	if !ok {
		return ReplicaSetSummary{}, invariantErr("replicaset %s has no %s label", rs.Name, podTemplateHashLabel)
	}
	version := "unknown version"
	requested := templateDefaultContainer(&rs.Spec.Template)
	if main := extractContainer(rs.Spec.Template.Spec.Containers, requested); main != nil {
		version = shortVersion(imageTag(main.Image))
	}
	return ReplicaSetSummary{
		Hash:     hash,
		Version:  version,
		Replicas: rs.Status.Replicas,
		Ready:    rs.Status.ReadyReplicas,
	}, nil
}

// StatefulSummary projects a StatefulSet's status.
type StatefulSummary struct {
	Replicas        int32
	Ready           int32
	CurrentRevision string
	CurrentReplicas int32
	UpdateRevision  string
	UpdatedReplicas int32
}

// NewStatefulSummary converts the native object.
// Statefulset conditions carry no useful message; callers synthesize one.
func NewStatefulSummary(sts *appsv1.StatefulSet) (StatefulSummary, error) {
	if sts.Status.ObservedGeneration == 0 && sts.Status.Replicas == 0 && sts.Status.CurrentRevision == "" {
		return StatefulSummary{}, invariantErr("statefulset %s has no status", sts.Name)
	}
	return StatefulSummary{
		Replicas:        sts.Status.Replicas,
		Ready:           sts.Status.ReadyReplicas,
		CurrentRevision: sts.Status.CurrentRevision,
		CurrentReplicas: sts.Status.CurrentReplicas,
		UpdateRevision:  sts.Status.UpdateRevision,
		UpdatedReplicas: sts.Status.UpdatedReplicas,
	}, nil
}

// DaemonSummary projects a DaemonSet's status. Updated is a pointer because
// the platform omits updatedNumberScheduled until the first update pass.
type DaemonSummary struct {
	Ready   int32
	Desired int32
	Updated *int32
}

// NewDaemonSummary converts the native object.
func NewDaemonSummary(ds *appsv1.DaemonSet) (DaemonSummary, error) {
	if ds.Status.ObservedGeneration == 0 && ds.Status.DesiredNumberScheduled == 0 && ds.Status.CurrentNumberScheduled == 0 {
		return DaemonSummary{}, invariantErr("daemonset %s has no status", ds.Name)
	}
	s := DaemonSummary{
		Ready:   ds.Status.NumberReady,
		Desired: ds.Status.DesiredNumberScheduled,
	}
	if ds.Status.UpdatedNumberScheduled > 0 || ds.Status.DesiredNumberScheduled == 0 {
		updated := ds.Status.UpdatedNumberScheduled
		s.Updated = &updated
	}
	return s, nil
}

// PodSummary is the per-pod diagnosis projection.
type PodSummary struct {
	Name string
	// Age since the pod's creation timestamp.
	Age   time.Duration
	Phase string
	// Running counts ready containers; Containers is the declared total.
	Running    int32
	Containers int32
	// Restarts is the max restart count across containers.
	Restarts int32
	// Version is the tag seen on the main container's image, abbreviated
	// when it looks like a full commit hash.
	Version string
}

// NewPodSummary converts the native pod object.
func NewPodSummary(pod *corev1.Pod) PodSummary {
	s := PodSummary{
		Name:  pod.Name,
		Phase: string(pod.Status.Phase),
	}
	if !pod.CreationTimestamp.IsZero() {
		s.Age = time.Since(pod.CreationTimestamp.Time)
	}
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.Ready {
			s.Running++
		}
		s.Containers++
		if cs.RestartCount > s.Restarts {
			s.Restarts = cs.RestartCount
		}
	}
	if main := podDefaultContainer(pod); main != nil {
		s.Version = shortVersion(imageTag(main.Image))
	}
	return s
}

func (s PodSummary) String() string {
	return fmt.Sprintf("%s (%s, %s old): %d/%d ready, %d restarts, version %s",
		s.Name, s.Phase, FormatDuration(s.Age), s.Running, s.Containers, s.Restarts, s.Version)
}

// extractContainer picks the requested container by name, falling back to the
// first declared one.
func extractContainer(containers []corev1.Container, requested string) *corev1.Container {
	if len(containers) == 0 {
		return nil
	}
	if requested != "" {
		for i := range containers {
			if containers[i].Name == requested {
				return &containers[i]
			}
		}
	}
	return &containers[0]
}

// MainContainerName resolves the container diagnostics read logs from: the
// default-container annotation's target, else the first declared container.
func MainContainerName(pod *corev1.Pod) string {
	if c := podDefaultContainer(pod); c != nil {
		return c.Name
	}
	return ""
}

// podDefaultContainer resolves the main container of a pod via the kubectl
// default-container annotation.
func podDefaultContainer(pod *corev1.Pod) *corev1.Container {
	return extractContainer(pod.Spec.Containers, pod.Annotations[defaultContainerAnnotation])
}

// templateDefaultContainer reads the default-container annotation off a pod
// template's metadata.
func templateDefaultContainer(tpl *corev1.PodTemplateSpec) string {
	return tpl.Annotations[defaultContainerAnnotation]
}

// imageTag returns the portion of an image reference after the last colon.
func imageTag(image string) string {
	idx := strings.LastIndex(image, ":")
	if idx < 0 {
		return ""
	}
	return image[idx+1:]
}

// shortVersion abbreviates tags that are not semver and exactly 40 characters
// long (full git commit hashes) to their first 8 characters.
func shortVersion(ver string) string {
	if _, err := semver.Parse(ver); err != nil && len(ver) == 40 {
		return ver[:8]
	}
	return ver
}

// FormatDuration renders an age in the coarsest sensible unit.
func FormatDuration(d time.Duration) string {
	switch {
	case d >= 24*time.Hour:
		return fmt.Sprintf("%dd", int(d.Hours())/24)
	case d >= time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
}
