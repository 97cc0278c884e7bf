package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rollwatch/rollwatch/internal/buildinfo"
	"github.com/rollwatch/rollwatch/internal/diagnose"
	"github.com/rollwatch/rollwatch/internal/hooks"
	"github.com/rollwatch/rollwatch/internal/hooks/pubsub"
	"github.com/rollwatch/rollwatch/internal/hooks/webhook"
	"github.com/rollwatch/rollwatch/internal/metrics"
	"github.com/rollwatch/rollwatch/internal/model"
	"github.com/rollwatch/rollwatch/internal/rollout"
	"github.com/rollwatch/rollwatch/internal/track"

	// Import all Kubernetes client auth plugins (e.g. Azure, GCP, OIDC, etc.)
	// to ensure that exec-entrypoint and run can make use of them.
	_ "k8s.io/client-go/plugin/pkg/client/auth"

	"k8s.io/client-go/kubernetes"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/tools/clientcmd"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

var setupLog = ctrl.Log.WithName("setup")

// config holds all command-line configuration
type config struct {
	workloads     string
	namespace     string
	rounds        int
	imageSizeMB   int
	webhookURL    string
	pubsubTopic   string
	clusterID     string
	environment   string
	metricsAddr   string
	skipDiagnosis bool
}

func main() {
	cfg, zapOpts := parseFlags()
	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&zapOpts)))

	refs := splitAndTrim(cfg.workloads)
	if len(refs) == 0 {
		setupLog.Error(nil, "no workloads given, use -workloads=ns/kind/name[,...]")
		os.Exit(2)
	}

	restConfig := ctrl.GetConfigOrDie()
	cl, err := client.New(restConfig, client.Options{Scheme: clientgoscheme.Scheme})
	if err != nil {
		setupLog.Error(err, "unable to create client")
		os.Exit(1)
	}
	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		setupLog.Error(err, "unable to create clientset")
		os.Exit(1)
	}

	defaultNamespace := contextNamespace()
	if cfg.namespace != "" {
		defaultNamespace = cfg.namespace
	}

	rollouts := make([]*rollout.Rollout, 0, len(refs))
	for _, ref := range refs {
		r, err := parseWorkloadRef(ref, defaultNamespace, cl, clientset)
		if err != nil {
			setupLog.Error(err, "invalid workload reference", "ref", ref)
			os.Exit(2)
		}
		rollouts = append(rollouts, r)
	}

	ctx := ctrl.SetupSignalHandler()
	trackerVersion := buildinfo.TrackerVersion()

	if cfg.metricsAddr != "" {
		metrics.Serve(cfg.metricsAddr)
		setupLog.Info("metrics endpoint started", "addr", cfg.metricsAddr)
	}

	updateChan := make(chan model.RolloutUpdate, 100)
	queueDone := startPublisherQueue(ctx, cfg, trackerVersion, updateChan)

	observers := []track.Observer{
		logObserver{},
		metrics.Recorder{},
		channelObserver{ch: updateChan},
	}

	failed := runSessions(ctx, cfg, rollouts, observers)

	close(updateChan)
	<-queueDone

	if failed {
		os.Exit(1)
	}
}

func parseFlags() (config, zap.Options) {
	var cfg config

	flag.StringVar(&cfg.workloads, "workloads", "",
		"Comma-separated list of workloads to track, each as [namespace/]kind/name "+
			"(e.g. 'monitoring/deploy/grafana,monitoring/sts/prometheus')")
	flag.StringVar(&cfg.namespace, "namespace", "",
		"Namespace for workload references that do not carry one. "+
			"Defaults to the kubeconfig context namespace.")
	flag.IntVar(&cfg.rounds, "rounds", track.DefaultConfig().Rounds,
		"Maximum number of poll rounds before a rollout is considered timed out")
	flag.IntVar(&cfg.imageSizeMB, "image-size-mb", 0,
		"Approximate image size used to estimate pull time (0 uses the built-in guess)")
	flag.StringVar(&cfg.webhookURL, "webhook-url", "",
		"Optional HTTP endpoint to publish rollout events to")
	flag.StringVar(&cfg.pubsubTopic, "pubsub-topic", os.Getenv("PUBSUB_TOPIC"),
		"Optional Google Cloud Pub/Sub topic path (projects/<project>/topics/<topic>)")
	flag.StringVar(&cfg.clusterID, "cluster-id", os.Getenv("CLUSTER_ID"),
		"Cluster identifier stamped on published events")
	flag.StringVar(&cfg.environment, "environment", "",
		"Environment name stamped on published events")
	flag.StringVar(&cfg.metricsAddr, "metrics-bind-address", "",
		"The address the metrics endpoint binds to. Leave empty to disable.")
	flag.BoolVar(&cfg.skipDiagnosis, "skip-diagnosis", false,
		"Do not inspect pods and tail logs when a rollout fails")

	opts := zap.Options{Development: true}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	return cfg, opts
}

// parseWorkloadRef resolves a [namespace/]kind/name reference.
func parseWorkloadRef(ref, defaultNamespace string, cl client.Client, clientset kubernetes.Interface) (*rollout.Rollout, error) {
	parts := strings.Split(ref, "/")
	var namespace, kindStr, name string
	switch len(parts) {
	case 3:
		namespace, kindStr, name = parts[0], parts[1], parts[2]
	case 2:
		namespace, kindStr, name = defaultNamespace, parts[0], parts[1]
	default:
		return nil, fmt.Errorf("workload reference %q is not [namespace/]kind/name", ref)
	}
	kind, err := rollout.ParseKind(kindStr)
	if err != nil {
		return nil, err
	}
	return &rollout.Rollout{
		Name:      name,
		Namespace: namespace,
		Kind:      kind,
		Client:    cl,
		Clientset: clientset,
	}, nil
}

func startPublisherQueue(ctx context.Context, cfg config, trackerVersion string, updateChan chan model.RolloutUpdate) <-chan struct{} {
	var publishers []hooks.EventPublisher

	if cfg.webhookURL != "" {
		publishers = append(publishers, webhook.NewHTTPPublisher(cfg.webhookURL, cfg.clusterID, cfg.environment, trackerVersion))
		setupLog.Info("Webhook publisher enabled", "endpoint", cfg.webhookURL)
	}

	if cfg.pubsubTopic != "" {
		if cfg.clusterID == "" {
			setupLog.Error(nil, "cluster-id is required when pubsub is enabled")
			os.Exit(1)
		}
		pubsubPublisher, err := pubsub.NewPubSubPublisher(ctx, cfg.pubsubTopic, cfg.clusterID, cfg.environment, trackerVersion)
		if err != nil {
			setupLog.Error(err, "unable to create Pub/Sub publisher",
				"hint", "Ensure valid credentials via Workload Identity, GOOGLE_APPLICATION_CREDENTIALS, or gcloud auth")
			os.Exit(1)
		}
		publishers = append(publishers, pubsubPublisher)
		setupLog.Info("Google Pub/Sub publisher enabled", "topic", cfg.pubsubTopic)
	}

	done := make(chan struct{})
	queue := hooks.NewEventPublisherQueue(updateChan, publishers)
	go func() {
		queue.Loop()
		close(done)
	}()
	return done
}

// runSessions tracks every workload in its own session. Sessions share no
// mutable state, so they run concurrently.
func runSessions(ctx context.Context, cfg config, rollouts []*rollout.Rollout, observers []track.Observer) bool {
	trackConfig := track.DefaultConfig()
	trackConfig.Rounds = cfg.rounds
	if cfg.imageSizeMB > 0 {
		size := int32(cfg.imageSizeMB)
		trackConfig.ImageSizeMB = &size
	}

	var wg sync.WaitGroup
	results := make([]bool, len(rollouts))
	for i, r := range rollouts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = runSession(ctx, cfg, r, trackConfig, observers)
		}()
	}
	wg.Wait()

	for _, ok := range results {
		if !ok {
			return true
		}
	}
	return false
}

func runSession(ctx context.Context, cfg config, r *rollout.Rollout, trackConfig track.Config, observers []track.Observer) bool {
	logger := ctrl.Log.WithValues("kind", r.Kind, "namespace", r.Namespace, "name", r.Name)

	tracker := track.New(r, trackConfig, observers...)
	ok, state, err := tracker.Track(ctx)
	if err != nil {
		logger.Error(err, "rollout tracking failed")
		for _, observer := range observers {
			observer.Observe(model.RolloutUpdate{
				Name:      r.Name,
				Namespace: r.Namespace,
				Kind:      string(r.Kind),
				Phase:     model.PhaseFailed,
				Message:   err.Error(),
			})
		}
		return false
	}
	if ok {
		logger.Info("rollout complete")
		return true
	}

	logger.Info("rollout timed out")
	if !cfg.skipDiagnosis && state != nil {
		if err := diagnose.Run(ctx, r, state, os.Stdout); err != nil {
			logger.Error(err, "diagnosis failed")
		}
	}
	return false
}

// contextNamespace reads the namespace of the current kubeconfig context.
func contextNamespace() string {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	kubeConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, &clientcmd.ConfigOverrides{})
	namespace, _, err := kubeConfig.Namespace()
	if err != nil || namespace == "" {
		return "default"
	}
	return namespace
}

// logObserver reports each progress snapshot through the process logger.
type logObserver struct{}

func (logObserver) Observe(update model.RolloutUpdate) {
	ctrl.Log.WithName("progress").Info("rollout progress",
		"namespace", update.Namespace,
		"name", update.Name,
		"kind", update.Kind,
		"phase", update.Phase,
		"progress", fmt.Sprintf("%d/%d", update.Progress, update.Expected),
		"message", update.Message,
	)
}

// channelObserver forwards snapshots to the publisher queue.
type channelObserver struct {
	ch chan<- model.RolloutUpdate
}

func (o channelObserver) Observe(update model.RolloutUpdate) {
	o.ch <- update
}

// splitAndTrim splits a comma-separated string and trims whitespace from each element
func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
