package rollout

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
)

// AvailabilityPolicy is the rollout analogue of intstr.IntOrString: either an
// absolute replica count or a percentage of the total ("25%").
type AvailabilityPolicy struct {
	percent   string
	count     int32
	isPercent bool
}

// Absolute returns a policy naming a fixed replica count.
func Absolute(count int32) AvailabilityPolicy {
	if count < 0 {
		count = 0
	}
	return AvailabilityPolicy{count: count}
}

// Percentage returns a policy naming a percentage of total replicas.
// The string keeps the platform's native digits+'%' shape.
func Percentage(percent string) AvailabilityPolicy {
	return AvailabilityPolicy{percent: percent, isPercent: true}
}

// PolicyFromIntOrString converts the platform's native hybrid field.
func PolicyFromIntOrString(v intstr.IntOrString) AvailabilityPolicy {
	if v.Type == intstr.String {
		return Percentage(v.StrVal)
	}
	return Absolute(v.IntVal)
}

// percentValue parses the digits before the '%'. The API server validates the
// field shape, so a parse failure cannot come from a live object.
func (p AvailabilityPolicy) percentValue() int32 {
	digits := strings.TrimSuffix(p.percent, "%")
	n, err := strconv.ParseInt(digits, 10, 32)
	if err != nil || n < 0 {
		panic(fmt.Sprintf("availability percentage %q is not a non-negative integer", p.percent))
	}
	return int32(n)
}

// ToReplicasCeil converts the policy into an absolute count relative to
// replicas, rounding percentages up (the maxSurge direction).
func (p AvailabilityPolicy) ToReplicasCeil(replicas int32) int32 {
	if !p.isPercent {
		return p.count
	}
	return int32(math.Ceil(float64(replicas) * float64(p.percentValue()) / 100.0))
}

// ToReplicasFloor converts the policy into an absolute count relative to
// replicas, rounding percentages down (the maxUnavailable direction).
func (p AvailabilityPolicy) ToReplicasFloor(replicas int32) int32 {
	if !p.isPercent {
		return p.count
	}
	return int32(math.Floor(float64(replicas) * float64(p.percentValue()) / 100.0))
}

// RolloutStrategy holds the rolling-update bounds of a workload.
// Absent fields fall back to the platform default of 25% for both.
type RolloutStrategy struct {
	// MaxUnavailable bounds how many replicas may be down during the update.
	MaxUnavailable *AvailabilityPolicy
	// MaxSurge bounds how many replicas may be created over the target count.
	MaxSurge *AvailabilityPolicy
}

// DefaultRolloutStrategy matches the platform defaults for
// Deployment.spec.strategy.rollingUpdate.
func DefaultRolloutStrategy() RolloutStrategy {
	unavailable := Percentage("25%")
	surge := Percentage("25%")
	return RolloutStrategy{MaxUnavailable: &unavailable, MaxSurge: &surge}
}

// StrategyFromDeployment converts the native deployment rolling-update config.
func StrategyFromDeployment(ru *appsv1.RollingUpdateDeployment) RolloutStrategy {
	var s RolloutStrategy
	if ru.MaxUnavailable != nil {
		p := PolicyFromIntOrString(*ru.MaxUnavailable)
		s.MaxUnavailable = &p
	}
	if ru.MaxSurge != nil {
		p := PolicyFromIntOrString(*ru.MaxSurge)
		s.MaxSurge = &p
	}
	return s
}

// StrategyFromStatefulSet converts the native statefulset rolling-update
// config. StatefulSets have no surge concept, so MaxSurge is fixed at zero.
func StrategyFromStatefulSet(ru *appsv1.RollingUpdateStatefulSetStrategy) RolloutStrategy {
	var s RolloutStrategy
	if ru.MaxUnavailable != nil {
		p := PolicyFromIntOrString(*ru.MaxUnavailable)
		s.MaxUnavailable = &p
	}
	surge := Absolute(0)
	s.MaxSurge = &surge
	return s
}

// StrategyFromDaemonSet converts the native daemonset rolling-update config.
func StrategyFromDaemonSet(ru *appsv1.RollingUpdateDaemonSet) RolloutStrategy {
	var s RolloutStrategy
	if ru.MaxUnavailable != nil {
		p := PolicyFromIntOrString(*ru.MaxUnavailable)
		s.MaxUnavailable = &p
	}
	if ru.MaxSurge != nil {
		p := PolicyFromIntOrString(*ru.MaxSurge)
		s.MaxSurge = &p
	}
	return s
}

// RolloutIterations estimates how many update cycles the platform needs to
// roll replicas over to a new revision, simulating the surge/unavailable
// trade-off in discrete steps. Each step retires old replicas down to the
// surge bound, retires up to maxUnavailable more, then admits replacements.
// It is an estimate of cycle count, not of wall-clock time.
func (s RolloutStrategy) RolloutIterations(replicas int32) int32 {
	var surge int32
	if s.MaxSurge != nil {
		surge = s.MaxSurge.ToReplicasCeil(replicas)
	} else {
		surge = int32(math.Ceil(float64(replicas) * 25.0 / 100.0))
	}
	var unavailable int32
	if s.MaxUnavailable != nil {
		unavailable = s.MaxUnavailable.ToReplicasFloor(replicas)
	} else {
		unavailable = int32(math.Floor(float64(replicas) * 25.0 / 100.0))
	}
	// A zero/zero configuration cannot make progress; the platform never
	// produces one, but clamp so the simulation terminates.
	if surge == 0 && unavailable == 0 {
		unavailable = 1
	}

	var newReplicas, iterations int32
	oldReplicas := replicas
	for newReplicas < replicas {
		// Retire old replicas down to the target if the surge overshot it.
		oldReplicas -= oldReplicas + newReplicas - replicas
		total := newReplicas + oldReplicas

		// The unavailable budget only applies while there is headroom for it.
		unavailableSafe := unavailable
		if total <= unavailable {
			unavailableSafe = 0
		}
		retired := unavailableSafe
		if retired > oldReplicas {
			retired = oldReplicas
		}
		oldReplicas -= retired

		// Admit replacements for the retired replicas plus the surge budget.
		newReplicas += unavailableSafe + surge
		iterations++
	}
	return iterations
}
