package rollout

import (
	"math"
	"time"
)

const (
	// defaultImageSizeMB is the image size guess when the caller has none.
	defaultImageSizeMB = 512
	// pullTimePerRefSecs is the estimated pull cost per reference image size.
	pullTimePerRefSecs = 90
	// minPullTimeSecs floors the pull estimate regardless of image size.
	minPullTimeSecs = 60
	// defaultInitialDelaySecs is the readiness delay guess when the pod
	// template declares no probes.
	defaultInitialDelaySecs = 30
	// delaySlackFactor pads the readiness delay; delay-based estimates
	// under-predict actual settle time.
	delaySlackFactor = 1.5
)

// WaitParams carries the information needed for a semi-accurate wait estimate.
type WaitParams struct {
	// Strategy determines analytically how many cycles the rollout needs.
	// Nil falls back to the platform default strategy.
	Strategy *RolloutStrategy
	// MinReplicas is the replica count being waited for.
	MinReplicas int32
	// ImageSizeMB scales the pull-time estimate. Nil guesses 512MB.
	ImageSizeMB *int32
	// InitialDelaySeconds is the readiness probe delay. Nil guesses 30s.
	InitialDelaySeconds *int32
}

// EstimateWaitTime guesses how long a rolling upgrade takes to settle.
// Per cycle it charges the padded readiness delay plus an image-pull estimate,
// then multiplies by the strategy's cycle count. This is a heuristic upper
// bound used to size the polling budget, never a correctness gate.
func EstimateWaitTime(wp WaitParams) time.Duration {
	size := int32(defaultImageSizeMB)
	if wp.ImageSizeMB != nil {
		size = *wp.ImageSizeMB
	}
	pullTime := int32(float64(size) * pullTimePerRefSecs / defaultImageSizeMB)
	if pullTime < minPullTimeSecs {
		pullTime = minPullTimeSecs
	}

	strategy := DefaultRolloutStrategy()
	if wp.Strategy != nil {
		strategy = *wp.Strategy
	}
	iterations := strategy.RolloutIterations(wp.MinReplicas)

	delaySecs := int32(defaultInitialDelaySecs)
	if wp.InitialDelaySeconds != nil {
		delaySecs = *wp.InitialDelaySeconds
	}
	settleTime := int32(math.Ceil(float64(delaySecs) * delaySlackFactor))

	return time.Duration(settleTime+pullTime) * time.Second * time.Duration(iterations)
}
