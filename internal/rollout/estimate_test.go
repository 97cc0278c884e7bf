package rollout

import (
	"testing"
	"time"
)

func TestEstimateWaitTimeDefaults(t *testing.T) {
	// Default strategy on 4 replicas needs 2 cycles; each charges the
	// padded 45s readiness guess plus the 90s pull guess.
	got := EstimateWaitTime(WaitParams{MinReplicas: 4})
	want := 270 * time.Second
	if got != want {
		t.Errorf("EstimateWaitTime = %v, want %v", got, want)
	}
}

func TestEstimateWaitTimePullFloor(t *testing.T) {
	small := int32(64)
	got := EstimateWaitTime(WaitParams{MinReplicas: 1, ImageSizeMB: &small})
	// 64MB scales far below the floor; pull stays at 60s.
	want := (45 + 60) * time.Second
	if got != want {
		t.Errorf("EstimateWaitTime = %v, want %v", got, want)
	}
}

func TestEstimateWaitTimeScalesWithImageSize(t *testing.T) {
	large := int32(1024)
	got := EstimateWaitTime(WaitParams{MinReplicas: 1, ImageSizeMB: &large})
	// A gigabyte image doubles the 512MB reference pull cost.
	want := (45 + 180) * time.Second
	if got != want {
		t.Errorf("EstimateWaitTime = %v, want %v", got, want)
	}
}

func TestEstimateWaitTimeReadinessDelay(t *testing.T) {
	delay := int32(60)
	got := EstimateWaitTime(WaitParams{MinReplicas: 1, InitialDelaySeconds: &delay})
	want := (90 + 90) * time.Second
	if got != want {
		t.Errorf("EstimateWaitTime = %v, want %v", got, want)
	}
}
