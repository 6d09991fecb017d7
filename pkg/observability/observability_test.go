package observability_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/stageflow"
	"github.com/aretw0/stageflow/internal/logging"
	"github.com/aretw0/stageflow/pkg/decider"
	"github.com/aretw0/stageflow/pkg/domain"
	"github.com/aretw0/stageflow/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stages() []domain.Stage {
	return []domain.Stage{
		{ID: "s0", Type: domain.StageStart, PromptText: "Greet.", NextStages: []domain.NextStage{{TargetStageID: "s1"}}},
		{ID: "s1", PromptText: "Qualify.", NextStages: []domain.NextStage{{TargetStageID: "farewell"}}},
		{ID: "farewell", Type: domain.StageEnd, PromptText: "Bye."},
	}
}

func TestMetrics_Hooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	eng, err := stageflow.New("",
		stageflow.WithStages(stages()...),
		stageflow.WithDecider(decider.NewScripted(
			`{"response": "hi", "next_stage": "s1"}`,
			`{"response": "hm", "next_stage": "bogus"}`,
			`{"response": "hi", "next_stage": "s1"}`,
		)),
		stageflow.WithLifecycleHooks(metrics.Hooks()),
	)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = eng.Converse(ctx, "c1", "hello")
	require.NoError(t, err)
	_, err = eng.Converse(ctx, "c1", "whatever")
	require.NoError(t, err)

	_, err = eng.Converse(ctx, "c2", "hello")
	require.NoError(t, err)
	_, err = eng.Converse(ctx, "c2", "again")
	require.NoError(t, err, "script exhausted is an upstream failure, not an error")

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Transitions.WithLabelValues("s0", "s1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Rejections.WithLabelValues("s1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.UpstreamFailures.WithLabelValues("s1")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Turns.WithLabelValues(string(domain.StatusContinue))))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Turns.WithLabelValues(string(domain.StatusEnded))))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.ActiveStageVisits.WithLabelValues("farewell")))
	assert.Equal(t, 2, testutil.CollectAndCount(metrics.Turns), "one series per status")
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	metrics.Turns.WithLabelValues("CONTINUE").Inc()

	w := httptest.NewRecorder()
	observability.Handler(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `stageflow_turns_total{status="CONTINUE"} 1`)
}

func TestLogHooks(t *testing.T) {
	var buf bytes.Buffer
	hooks := observability.LogHooks(logging.NewWithFormat(&buf, slog.LevelDebug, logging.FormatText))
	ctx := context.Background()
	base := domain.EventBase{Timestamp: time.Now(), ConversationID: "c1"}

	hooks.OnStageEnter(ctx, &domain.StageEvent{EventBase: base, StageID: "s1", StageType: domain.StageNormal})
	hooks.OnTransitionRejected(ctx, &domain.DecisionEvent{EventBase: base, StageID: "s1", Proposed: "bogus", Accepted: "farewell"})
	hooks.OnUpstreamFailure(ctx, &domain.DecisionEvent{EventBase: base, StageID: "s1", Err: errors.New("timeout")})

	out := buf.String()
	assert.Equal(t, 3, strings.Count(out, "conversation_id=c1"))
	assert.Contains(t, out, "proposed=bogus")
	assert.Contains(t, out, "err=timeout")
}
