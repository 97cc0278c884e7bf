// Package metrics exposes rollout tracking progress as prometheus metrics,
// for invocations that run long enough to be scraped (CI runners, deploy
// jobs with a metrics sidecar).
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rollwatch/rollwatch/internal/model"
)

const (
	rolloutProgressMetricName = "rollwatch_rollout_progress"
	rolloutExpectedMetricName = "rollwatch_rollout_expected"
	rolloutPhaseMetricName    = "rollwatch_rollout_phase"
)

var (
	workloadLabels = []string{"namespace", "name", "kind"}

	rolloutProgressGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: rolloutProgressMetricName,
		Help: "Current ready/updated replica count of a tracked rollout",
	}, workloadLabels)

	rolloutExpectedGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: rolloutExpectedMetricName,
		Help: "Target replica count of a tracked rollout",
	}, workloadLabels)

	rolloutPhaseGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: rolloutPhaseMetricName,
		Help: "Tracked rollout phase (1 for the active phase)",
	}, append(workloadLabels, "phase"))
)

func init() {
	prometheus.MustRegister(rolloutProgressGauge, rolloutExpectedGauge, rolloutPhaseGauge)
}

// Recorder mirrors rollout updates into prometheus gauges. It implements
// the tracking loop's Observer interface.
type Recorder struct{}

func (Recorder) Observe(update model.RolloutUpdate) {
	labels := prometheus.Labels{
		"namespace": update.Namespace,
		"name":      update.Name,
		"kind":      update.Kind,
	}
	rolloutProgressGauge.With(labels).Set(float64(update.Progress))
	rolloutExpectedGauge.With(labels).Set(float64(update.Expected))

	rolloutPhaseGauge.DeletePartialMatch(labels)
	rolloutPhaseGauge.MustCurryWith(labels).WithLabelValues(string(update.Phase)).Set(1)
}

// Serve exposes /metrics on addr for the lifetime of the process.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		_ = server.ListenAndServe()
	}()
	return server
}
