package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/avensk/floe/pkg/api"
)

func TestPrometheusObserver_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := NewPrometheusObserver(reg)

	ctx := context.Background()
	inst := &api.FlowInstance{ID: "exec-1", FlowID: "signup"}

	obs.OnFlowStarted(ctx, inst)
	obs.OnFlowStarted(ctx, inst)
	obs.OnStepCompleted(ctx, inst, "check", 5*time.Millisecond)
	obs.OnStepFailed(ctx, inst, "charge", errors.New("declined"))
	obs.OnFlowCompleted(ctx, &api.FlowResult{FlowID: "signup", Status: api.StatusCompleted})
	obs.OnFlowFailed(ctx, inst, errors.New("declined"))
	obs.OnCacheHit(ctx, "signup", "key")

	require.Equal(t, 2.0, testutil.ToFloat64(obs.flowsStarted.WithLabelValues("signup")))
	require.Equal(t, 1.0, testutil.ToFloat64(obs.flowsCompleted.WithLabelValues("signup", "COMPLETED")))
	require.Equal(t, 1.0, testutil.ToFloat64(obs.flowsFailed.WithLabelValues("signup")))
	require.Equal(t, 1.0, testutil.ToFloat64(obs.stepsFailed.WithLabelValues("signup", "charge")))
	require.Equal(t, 1.0, testutil.ToFloat64(obs.cacheHits.WithLabelValues("signup")))
}

func TestPrometheusObserver_ComposesWithOtherObservers(t *testing.T) {
	reg := prometheus.NewRegistry()
	basic := &api.BasicMetrics{}
	obs := api.NewCompositeObserver(NewPrometheusObserver(reg), basic)

	ctx := context.Background()
	inst := &api.FlowInstance{ID: "exec-1", FlowID: "signup"}
	obs.OnFlowStarted(ctx, inst)

	require.Equal(t, int64(1), basic.Snapshot().FlowsStarted)
}
