package rollout

import (
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func newTestRollout(kind Kind, objs ...client.Object) *Rollout {
	return &Rollout{
		Name:      "app",
		Namespace: "prod",
		Kind:      kind,
		Client:    fake.NewClientBuilder().WithObjects(objs...).Build(),
	}
}

func testDeployment(ready, replicas, unavailable int32) *appsv1.Deployment {
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "app", Namespace: "prod"},
		Status: appsv1.DeploymentStatus{
			ObservedGeneration:  1,
			Replicas:            replicas,
			ReadyReplicas:       ready,
			UnavailableReplicas: unavailable,
		},
	}
}

func testReplicaSet(hash string, ready, replicas int32) *appsv1.ReplicaSet {
	return &appsv1.ReplicaSet{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "app-" + hash,
			Namespace: "prod",
			Labels:    map[string]string{"app": "app", podTemplateHashLabel: hash},
		},
		Spec: appsv1.ReplicaSetSpec{
			Template: corev1.PodTemplateSpec{
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{
						{Name: "app", Image: "registry.io/app:1.4.0"},
					},
				},
			},
		},
		Status: appsv1.ReplicaSetStatus{
			Replicas:      replicas,
			ReadyReplicas: ready,
		},
	}
}

func pinnedState(min int32, hash string) *State {
	state := &State{
		MinReplicas: min,
		Selector:    labels.SelectorFromSet(labels.Set{"app": "app"}),
	}
	state.PinHash(hash)
	Expect(state.NarrowSelector(hash)).To(Succeed())
	return state
}

var _ = Describe("Deployment status", func() {
	When("no revision hash is pinned yet", func() {
		state := func(min int32) *State {
			return &State{
				MinReplicas: min,
				Selector:    labels.SelectorFromSet(labels.Set{"app": "app"}),
			}
		}

		It("completes when all replicas are ready and none unavailable", func(ctx SpecContext) {
			r := newTestRollout(KindDeployment, testDeployment(5, 5, 0))

			out, err := r.Status(ctx, state(5))
			Expect(err).ToNot(HaveOccurred())
			Expect(out.OK).To(BeTrue())
			Expect(out.Progress).To(Equal(int32(5)))
			Expect(out.Expected).To(Equal(int32(5)))
		})

		It("stays in progress while pods are unavailable", func(ctx SpecContext) {
			r := newTestRollout(KindDeployment, testDeployment(4, 5, 1))

			out, err := r.Status(ctx, state(5))
			Expect(err).ToNot(HaveOccurred())
			Expect(out.OK).To(BeFalse())
			Expect(out.Progress).To(Equal(int32(3)))
		})

		It("completes when the platform reports the new replica set available", func(ctx SpecContext) {
			d := testDeployment(5, 5, 1)
			d.Status.Conditions = []appsv1.DeploymentCondition{
				{
					Type:    appsv1.DeploymentProgressing,
					Status:  corev1.ConditionTrue,
					Reason:  "NewReplicaSetAvailable",
					Message: "ReplicaSet \"app-7d9f\" has successfully progressed.",
				},
			}
			r := newTestRollout(KindDeployment, d)

			out, err := r.Status(ctx, state(5))
			Expect(err).ToNot(HaveOccurred())
			Expect(out.OK).To(BeTrue())
			Expect(out.Message).To(ContainSubstring("successfully progressed"))
		})

		It("does not complete below the minimum replica count", func(ctx SpecContext) {
			r := newTestRollout(KindDeployment, testDeployment(3, 3, 0))

			out, err := r.Status(ctx, state(5))
			Expect(err).ToNot(HaveOccurred())
			Expect(out.OK).To(BeFalse())
		})

		It("clamps negative progress to zero", func(ctx SpecContext) {
			r := newTestRollout(KindDeployment, testDeployment(1, 5, 4))

			out, err := r.Status(ctx, state(5))
			Expect(err).ToNot(HaveOccurred())
			Expect(out.Progress).To(Equal(int32(0)))
		})
	})

	When("a revision hash is pinned", func() {
		It("measures the pinned replica set only", func(ctx SpecContext) {
			r := newTestRollout(KindDeployment,
				testDeployment(6, 6, 0),
				testReplicaSet("new1", 3, 3),
			)

			out, err := r.Status(ctx, pinnedState(3, "new1"))
			Expect(err).ToNot(HaveOccurred())
			Expect(out.OK).To(BeTrue())
			Expect(out.Progress).To(Equal(int32(3)))
			Expect(out.Expected).To(Equal(int32(3)))
		})

		It("raises the minimum when the replica set was resized upward", func(ctx SpecContext) {
			r := newTestRollout(KindDeployment,
				testDeployment(6, 6, 0),
				testReplicaSet("new1", 3, 4),
			)

			out, err := r.Status(ctx, pinnedState(3, "new1"))
			Expect(err).ToNot(HaveOccurred())
			Expect(out.OK).To(BeFalse())
			Expect(out.Expected).To(Equal(int32(4)))
			Expect(out.Progress).To(Equal(int32(3)))
		})

		It("ignores replica sets of other revisions", func(ctx SpecContext) {
			r := newTestRollout(KindDeployment,
				testDeployment(4, 7, 3),
				testReplicaSet("old1", 4, 4),
				testReplicaSet("new1", 3, 3),
			)

			out, err := r.Status(ctx, pinnedState(3, "new1"))
			Expect(err).ToNot(HaveOccurred())
			Expect(out.OK).To(BeTrue())
			Expect(out.Progress).To(Equal(int32(3)))
		})

		It("falls back to aggregate counts when the replica set is gone", func(ctx SpecContext) {
			r := newTestRollout(KindDeployment, testDeployment(3, 3, 0))

			out, err := r.Status(ctx, pinnedState(3, "new1"))
			Expect(err).ToNot(HaveOccurred())
			Expect(out.OK).To(BeTrue())
			Expect(out.Progress).To(Equal(int32(3)))
		})
	})
})

var _ = Describe("StatefulSet status", func() {
	testStatefulSet := func(ready, updated int32, updateRevision string) *appsv1.StatefulSet {
		return &appsv1.StatefulSet{
			ObjectMeta: metav1.ObjectMeta{Name: "app", Namespace: "prod"},
			Status: appsv1.StatefulSetStatus{
				ObservedGeneration: 1,
				Replicas:           3,
				ReadyReplicas:      ready,
				UpdatedReplicas:    updated,
				CurrentRevision:    "app-rev1",
				UpdateRevision:     updateRevision,
			},
		}
	}

	state := func(min int32, hash string) *State {
		s := &State{MinReplicas: min, Selector: labels.Everything()}
		s.PinHash(hash)
		return s
	}

	It("completes once updated pods are ready and the revision changed over", func(ctx SpecContext) {
		r := newTestRollout(KindStatefulSet, testStatefulSet(3, 3, "app-rev2"))

		out, err := r.Status(ctx, state(3, "app-rev2"))
		Expect(err).ToNot(HaveOccurred())
		Expect(out.OK).To(BeTrue())
		Expect(out.Progress).To(Equal(int32(3)))
		Expect(out.Message).To(BeEmpty())
	})

	It("stays in progress until the pinned revision matches", func(ctx SpecContext) {
		r := newTestRollout(KindStatefulSet, testStatefulSet(3, 3, "app-rev3"))

		out, err := r.Status(ctx, state(3, "app-rev2"))
		Expect(err).ToNot(HaveOccurred())
		Expect(out.OK).To(BeFalse())
		Expect(out.Message).To(Equal("Statefulset update in progress"))
	})

	It("stays in progress while updated pods lag behind ready", func(ctx SpecContext) {
		r := newTestRollout(KindStatefulSet, testStatefulSet(3, 2, "app-rev2"))

		out, err := r.Status(ctx, state(3, "app-rev2"))
		Expect(err).ToNot(HaveOccurred())
		Expect(out.OK).To(BeFalse())
		Expect(out.Progress).To(Equal(int32(2)))
	})
})

var _ = Describe("DaemonSet status", func() {
	testDaemonSet := func(desired, current, updated, ready int32) *appsv1.DaemonSet {
		return &appsv1.DaemonSet{
			ObjectMeta: metav1.ObjectMeta{Name: "app", Namespace: "prod"},
			Status: appsv1.DaemonSetStatus{
				ObservedGeneration:     1,
				DesiredNumberScheduled: desired,
				CurrentNumberScheduled: current,
				UpdatedNumberScheduled: updated,
				NumberReady:            ready,
			},
		}
	}

	state := func(min int32) *State {
		return &State{MinReplicas: min, Selector: labels.Everything()}
	}

	It("completes when every desired node runs the updated pod", func(ctx SpecContext) {
		r := newTestRollout(KindDaemonSet, testDaemonSet(4, 4, 4, 4))

		out, err := r.Status(ctx, state(4))
		Expect(err).ToNot(HaveOccurred())
		Expect(out.OK).To(BeTrue())
		Expect(out.Progress).To(Equal(int32(4)))
		Expect(out.Expected).To(Equal(int32(4)))
	})

	It("stays in progress while nodes run the old pod", func(ctx SpecContext) {
		r := newTestRollout(KindDaemonSet, testDaemonSet(4, 4, 3, 3))

		out, err := r.Status(ctx, state(4))
		Expect(err).ToNot(HaveOccurred())
		Expect(out.OK).To(BeFalse())
		Expect(out.Progress).To(Equal(int32(3)))
		Expect(out.Message).To(Equal("Daemonset update in progress"))
	})

	It("reports the ready count before any update pass", func(ctx SpecContext) {
		r := newTestRollout(KindDaemonSet, testDaemonSet(4, 4, 0, 4))

		out, err := r.Status(ctx, state(4))
		Expect(err).ToNot(HaveOccurred())
		Expect(out.OK).To(BeFalse())
		Expect(out.Progress).To(Equal(int32(4)))
	})

	It("does not complete when fewer nodes are scheduled than required", func(ctx SpecContext) {
		r := newTestRollout(KindDaemonSet, testDaemonSet(3, 3, 3, 3))

		out, err := r.Status(ctx, state(4))
		Expect(err).ToNot(HaveOccurred())
		Expect(out.OK).To(BeFalse())
	})
})
