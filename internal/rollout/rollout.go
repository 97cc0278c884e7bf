package rollout

import (
	"context"
	"fmt"
	"strings"

	"github.com/blang/semver/v4"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/kubernetes"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

const (
	// versionLabelKey is the standard label identifying a workload revision.
	versionLabelKey = "app.kubernetes.io/version"
	// podTemplateHashLabel identifies the replica set a pod belongs to.
	podTemplateHashLabel = "pod-template-hash"
	// logTailLines bounds the log fetch for non-ready containers.
	logTailLines = 30
)

// Kind is the closed set of workload kinds this engine tracks.
type Kind string

const (
	KindDeployment  Kind = "Deployment"
	KindStatefulSet Kind = "StatefulSet"
	KindDaemonSet   Kind = "DaemonSet"
)

// ParseKind resolves a workload kind from its name or common alias.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "deployment", "deploy":
		return KindDeployment, nil
	case "statefulset", "sts":
		return KindStatefulSet, nil
	case "daemonset", "ds":
		return KindDaemonSet, nil
	default:
		return "", fmt.Errorf("unsupported workload kind %q (supported: deploy, sts, ds)", s)
	}
}

// Rollout identifies one workload whose rolling update is being tracked.
// It is read-only after construction; one Rollout serves one tracking session.
type Rollout struct {
	// Name of the workload object.
	Name string
	// Namespace of the workload.
	Namespace string
	// Kind selects the per-kind inference and status branch.
	Kind Kind
	// Client performs all object reads.
	Client client.Client
	// Clientset serves the pod log subresource, which the reading client
	// does not expose.
	Clientset kubernetes.Interface
}

// Deployment fetches the tracked deployment object.
func (r *Rollout) Deployment(ctx context.Context) (*appsv1.Deployment, error) {
	var d appsv1.Deployment
	if err := r.Client.Get(ctx, client.ObjectKey{Namespace: r.Namespace, Name: r.Name}, &d); err != nil {
		return nil, fmt.Errorf("getting deployment %s/%s: %w", r.Namespace, r.Name, err)
	}
	return &d, nil
}

// StatefulSet fetches the tracked statefulset object.
func (r *Rollout) StatefulSet(ctx context.Context) (*appsv1.StatefulSet, error) {
	var sts appsv1.StatefulSet
	if err := r.Client.Get(ctx, client.ObjectKey{Namespace: r.Namespace, Name: r.Name}, &sts); err != nil {
		return nil, fmt.Errorf("getting statefulset %s/%s: %w", r.Namespace, r.Name, err)
	}
	return &sts, nil
}

// DaemonSet fetches the tracked daemonset object.
func (r *Rollout) DaemonSet(ctx context.Context) (*appsv1.DaemonSet, error) {
	var ds appsv1.DaemonSet
	if err := r.Client.Get(ctx, client.ObjectKey{Namespace: r.Namespace, Name: r.Name}, &ds); err != nil {
		return nil, fmt.Errorf("getting daemonset %s/%s: %w", r.Namespace, r.Name, err)
	}
	return &ds, nil
}

// ReplicaSets lists the replica sets matching selector in the rollout's
// namespace.
func (r *Rollout) ReplicaSets(ctx context.Context, selector labels.Selector) ([]appsv1.ReplicaSet, error) {
	var list appsv1.ReplicaSetList
	err := r.Client.List(ctx, &list,
		client.InNamespace(r.Namespace),
		client.MatchingLabelsSelector{Selector: selector})
	if err != nil {
		return nil, fmt.Errorf("listing replicasets for %s/%s: %w", r.Namespace, r.Name, err)
	}
	return list.Items, nil
}

// ReplicaSet resolves the single replica set matching selector. A narrowed
// selector (label selector plus pod-template-hash) matches at most one set;
// more than one match means the hash pinning is broken.
func (r *Rollout) ReplicaSet(ctx context.Context, selector labels.Selector) (*appsv1.ReplicaSet, error) {
	sets, err := r.ReplicaSets(ctx, selector)
	if err != nil {
		return nil, err
	}
	switch len(sets) {
	case 0:
		return nil, nil
	case 1:
		return &sets[0], nil
	default:
		return nil, invariantErr("selector %q matched %d replicasets, expected one", selector, len(sets))
	}
}

// HighestVersionReplicaSet finds the leading replica set among those matching
// selector, ordered by the standard app.kubernetes.io/version label.
//
// This is flawed for rollbacks, where an older version's set may be the one
// being rolled to, but there is no more dedicated label to target.
func (r *Rollout) HighestVersionReplicaSet(ctx context.Context, selector labels.Selector) (*appsv1.ReplicaSet, error) {
	sets, err := r.ReplicaSets(ctx, selector)
	if err != nil {
		return nil, err
	}
	maxVersion := semver.Version{}
	var best *appsv1.ReplicaSet
	for i := range sets {
		v, err := versionLabel(&sets[i])
		if err != nil {
			return nil, err
		}
		if v.GT(maxVersion) {
			maxVersion = v
			best = &sets[i]
		}
	}
	return best, nil
}

// Pods lists the pods matching selector in the rollout's namespace.
func (r *Rollout) Pods(ctx context.Context, selector labels.Selector) ([]corev1.Pod, error) {
	var list corev1.PodList
	err := r.Client.List(ctx, &list,
		client.InNamespace(r.Namespace),
		client.MatchingLabelsSelector{Selector: selector})
	if err != nil {
		return nil, fmt.Errorf("listing pods for %s/%s: %w", r.Namespace, r.Name, err)
	}
	return list.Items, nil
}

// PodLogs tails the last lines from one container of a pod.
func (r *Rollout) PodLogs(ctx context.Context, podName, container string) (string, error) {
	tail := int64(logTailLines)
	req := r.Clientset.CoreV1().Pods(r.Namespace).GetLogs(podName, &corev1.PodLogOptions{
		Container: container,
		TailLines: &tail,
	})
	raw, err := req.DoRaw(ctx)
	if err != nil {
		return "", fmt.Errorf("fetching logs from %s/%s container %s: %w", r.Namespace, podName, container, err)
	}
	return string(raw), nil
}

// versionLabel parses the standard version label of an object as semver.
func versionLabel(obj client.Object) (semver.Version, error) {
	v, ok := obj.GetLabels()[versionLabelKey]
	if !ok {
		return semver.Version{}, &MalformedInputError{
			Reason: fmt.Sprintf("%s has no %s label", obj.GetName(), versionLabelKey),
		}
	}
	parsed, err := semver.Parse(v)
	if err != nil {
		return semver.Version{}, &MalformedInputError{
			Reason: fmt.Sprintf("non-semver %s label %q on %s", versionLabelKey, v, obj.GetName()),
			Err:    err,
		}
	}
	return parsed, nil
}
