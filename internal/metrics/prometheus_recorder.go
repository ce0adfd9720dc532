package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "fwbuilder"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once              sync.Once
	registry          *prom.Registry
	commandDuration   *prom.HistogramVec
	commandResults    *prom.CounterVec
	buildDuration     prom.Histogram
	buildOutcome      *prom.CounterVec
	workers           prom.Gauge
	shellStartRetries prom.Counter
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{registry: reg}
	pr.once.Do(func() {
		pr.commandDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Duration of toolchain commands by stage",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"})
		pr.commandResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "command_results_total",
			Help:      "Toolchain command results by stage and outcome",
		}, []string{"stage", "result"})
		pr.buildDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Total build duration",
			Buckets:   prom.DefBuckets,
		})
		pr.buildOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"})
		pr.workers = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "workers",
			Help:      "Worker pool width of the last build",
		})
		pr.shellStartRetries = prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "shell_start_retries_total",
			Help:      "Retries spent launching persistent shells",
		})
		reg.MustRegister(pr.commandDuration, pr.commandResults, pr.buildDuration, pr.buildOutcome, pr.workers, pr.shellStartRetries)
	})
	return pr
}

// Registry returns the registry the metrics were registered with.
func (p *PrometheusRecorder) Registry() *prom.Registry { return p.registry }

func (p *PrometheusRecorder) ObserveCommandDuration(stage string, d time.Duration) {
	if p == nil || p.commandDuration == nil {
		return
	}
	p.commandDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncCommandResult(stage string, success bool) {
	if p == nil || p.commandResults == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.commandResults.WithLabelValues(stage, res).Inc()
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	if p == nil || p.buildDuration == nil {
		return
	}
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome BuildOutcome) {
	if p == nil || p.buildOutcome == nil {
		return
	}
	p.buildOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) SetWorkers(n int) {
	if p == nil || p.workers == nil {
		return
	}
	p.workers.Set(float64(n))
}

func (p *PrometheusRecorder) IncShellStartRetry() {
	if p == nil || p.shellStartRetries == nil {
		return
	}
	p.shellStartRetries.Inc()
}
