// Package metrics exposes flow execution counters and timings to Prometheus.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/avensk/floe/pkg/api"
)

// PrometheusObserver is an api.Observer that records flow and step events
// as Prometheus metrics. Combine it with other observers via
// api.NewCompositeObserver.
type PrometheusObserver struct {
	api.NoopObserver

	flowsStarted   *prometheus.CounterVec
	flowsCompleted *prometheus.CounterVec
	flowsFailed    *prometheus.CounterVec
	stepsFailed    *prometheus.CounterVec
	cacheHits      *prometheus.CounterVec
	stepDuration   *prometheus.HistogramVec
}

var _ api.Observer = (*PrometheusObserver)(nil)

// NewPrometheusObserver registers the flow metrics with reg and returns the
// observer. Passing prometheus.DefaultRegisterer wires into the default
// /metrics endpoint.
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	factory := promauto.With(reg)
	return &PrometheusObserver{
		flowsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "floe_flows_started_total",
			Help: "Number of flow executions started.",
		}, []string{"flow"}),
		flowsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "floe_flows_completed_total",
			Help: "Number of flow executions that completed, by final status.",
		}, []string{"flow", "status"}),
		flowsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "floe_flows_failed_total",
			Help: "Number of flow executions that failed.",
		}, []string{"flow"}),
		stepsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "floe_steps_failed_total",
			Help: "Number of step executions that failed.",
		}, []string{"flow", "node"}),
		cacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "floe_cache_hits_total",
			Help: "Number of flow executions served from the result cache.",
		}, []string{"flow"}),
		stepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "floe_step_duration_seconds",
			Help:    "Wall-clock duration of step executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"flow", "node"}),
	}
}

func (p *PrometheusObserver) OnFlowStarted(ctx context.Context, inst *api.FlowInstance) {
	p.flowsStarted.WithLabelValues(inst.FlowID).Inc()
}

func (p *PrometheusObserver) OnFlowCompleted(ctx context.Context, result *api.FlowResult) {
	p.flowsCompleted.WithLabelValues(result.FlowID, string(result.Status)).Inc()
}

func (p *PrometheusObserver) OnFlowFailed(ctx context.Context, inst *api.FlowInstance, err error) {
	p.flowsFailed.WithLabelValues(inst.FlowID).Inc()
}

func (p *PrometheusObserver) OnStepCompleted(ctx context.Context, inst *api.FlowInstance, nodeID string, d time.Duration) {
	p.stepDuration.WithLabelValues(inst.FlowID, nodeID).Observe(d.Seconds())
}

func (p *PrometheusObserver) OnStepFailed(ctx context.Context, inst *api.FlowInstance, nodeID string, err error) {
	p.stepsFailed.WithLabelValues(inst.FlowID, nodeID).Inc()
}

func (p *PrometheusObserver) OnCacheHit(ctx context.Context, flowID, key string) {
	p.cacheHits.WithLabelValues(flowID).Inc()
}
