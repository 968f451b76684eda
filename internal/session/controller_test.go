package session

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/qps-ai/client/internal/metrics"
	"github.com/qps-ai/client/internal/models"
	"github.com/qps-ai/client/internal/solver"
	"github.com/qps-ai/client/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

type countingFeedback struct {
	cancels atomic.Int32
}

func (f *countingFeedback) Cancel() { f.cancels.Add(1) }

type controllerEnv struct {
	fake     *testutil.FakeService
	ctrl     *Controller
	metrics  *metrics.Metrics
	feedback *countingFeedback
}

func newControllerEnv(t *testing.T) *controllerEnv {
	t.Helper()

	fake := testutil.NewFakeService()
	client, err := solver.NewClient(solver.Config{
		BaseURL:        fake.URL(),
		RequestTimeout: 5 * time.Second,
		UploadTimeout:  5 * time.Second,
	})
	require.NoError(t, err)

	env := &controllerEnv{
		fake:     fake,
		metrics:  metrics.New(prometheus.NewRegistry()),
		feedback: &countingFeedback{},
	}
	env.ctrl = NewController(NewStore(), client,
		WithMetrics(env.metrics),
		WithFeedback(env.feedback),
	)

	t.Cleanup(func() {
		env.ctrl.Close()
		fake.Close()
	})
	return env
}

func doc(name string) *models.Document {
	return &models.Document{Name: name, ContentType: "application/pdf", Data: []byte("%PDF")}
}

func (e *controllerEnv) upload(t *testing.T, questions ...string) {
	t.Helper()
	e.fake.SetQuestions(questions...)
	require.NoError(t, e.ctrl.Upload(context.Background(), doc("paper.pdf")))
}

func (e *controllerEnv) pair(t *testing.T, index int) models.Pair {
	t.Helper()
	p, err := e.ctrl.Store().Pair(index)
	require.NoError(t, err)
	return p
}

func TestController_UploadThenSolveOne(t *testing.T) {
	env := newControllerEnv(t)
	env.upload(t, "Q-A", "Q-B", "Q-C")
	env.fake.SetAnswer("Q-B", "answer-B")

	snap := env.ctrl.Snapshot()
	assert.Equal(t, models.SessionStatusReady, snap.Status)
	assert.Equal(t, 3, snap.CountByStatus(models.PairStatusPending))

	require.NoError(t, env.ctrl.Solve(context.Background(), 1))

	snap = env.ctrl.Snapshot()
	assert.Equal(t, []models.Pair{
		{Question: "Q-A", Status: models.PairStatusPending},
		{Question: "Q-B", Answer: "answer-B", Status: models.PairStatusSolved},
		{Question: "Q-C", Status: models.PairStatusPending},
	}, snap.Pairs)
	assert.Equal(t, [][]string{{"Q-B"}}, env.fake.SolveRequests())
	assert.Equal(t, 1.0, promtest.ToFloat64(env.metrics.UploadOutcomes.WithLabelValues("ready")))
}

func TestController_SolveFailureThenRetry(t *testing.T) {
	env := newControllerEnv(t)
	env.upload(t, "Q-A", "Q-B")
	env.fake.FailSolve("Q-A", http.StatusTooManyRequests, "rate limited")

	err := env.ctrl.Solve(context.Background(), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, solver.ErrService)

	p := env.pair(t, 0)
	assert.Equal(t, models.PairStatusFailed, p.Status)
	assert.Contains(t, p.DisplayText(), "rate limited")
	assert.Equal(t, models.PairStatusPending, env.pair(t, 1).Status)

	env.fake.SetAnswer("Q-A", "fine now")
	require.NoError(t, env.ctrl.Solve(context.Background(), 0))

	p = env.pair(t, 0)
	assert.Equal(t, models.PairStatusSolved, p.Status)
	assert.Equal(t, "fine now", p.Answer)
}

func TestController_EmptyAnswerFailsPair(t *testing.T) {
	env := newControllerEnv(t)
	env.upload(t, "Q-A")
	env.fake.SetSolveBody(`{"answer":""}`)

	err := env.ctrl.Solve(context.Background(), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, solver.ErrProtocol)

	p := env.pair(t, 0)
	assert.Equal(t, models.PairStatusFailed, p.Status)
	assert.Equal(t, solver.SolveFailedMessage, p.Answer)
}

func TestController_UploadWithNoQuestions(t *testing.T) {
	env := newControllerEnv(t)
	env.upload(t)

	snap := env.ctrl.Snapshot()
	assert.Equal(t, models.SessionStatusReady, snap.Status)
	assert.Empty(t, snap.Pairs)
	assert.Empty(t, env.fake.SolveRequests())
}

func TestController_UploadFailure(t *testing.T) {
	tests := []struct {
		name        string
		detail      string
		wantMessage string
	}{
		{name: "with detail", detail: "Unsupported file type", wantMessage: "Unsupported file type"},
		{name: "without detail", wantMessage: solver.UploadFailedMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newControllerEnv(t)
			env.fake.FailUpload(http.StatusBadRequest, tt.detail)

			err := env.ctrl.Upload(context.Background(), doc("bad.docx"))
			assert.ErrorIs(t, err, solver.ErrUpload)

			snap := env.ctrl.Snapshot()
			assert.Equal(t, models.SessionStatusUploadFailed, snap.Status)
			assert.Equal(t, tt.wantMessage, snap.StatusMessage)
			assert.Empty(t, snap.Pairs)
		})
	}
}

func TestController_NewUploadReplacesPairs(t *testing.T) {
	env := newControllerEnv(t)
	env.upload(t, "old-1", "old-2")
	require.NoError(t, env.ctrl.Solve(context.Background(), 0))

	env.upload(t, "new-1")

	snap := env.ctrl.Snapshot()
	assert.Equal(t, []models.Pair{models.NewPair("new-1")}, snap.Pairs)
}

func TestController_SolveRejections(t *testing.T) {
	env := newControllerEnv(t)
	env.upload(t, "Q-A", "")

	gate := env.fake.BlockSolve("Q-A")
	require.NoError(t, env.ctrl.StartSolve(0))
	<-gate.Arrived

	assert.ErrorIs(t, env.ctrl.StartSolve(0), ErrSolveInProgress)
	assert.ErrorIs(t, env.ctrl.Solve(context.Background(), 1), ErrEmptyQuestion)
	assert.ErrorIs(t, env.ctrl.StartSolve(7), ErrIndexOutOfRange)

	gate.Release()
	require.Eventually(t, func() bool {
		return env.pair(t, 0).Status == models.PairStatusSolved
	}, waitFor, tick)

	assert.ErrorIs(t, env.ctrl.StartSolve(0), ErrAlreadySolved)
	assert.Len(t, env.fake.SolveRequests(), 1)
}

func TestController_ConcurrentSolvesOnDistinctPairs(t *testing.T) {
	env := newControllerEnv(t)
	env.upload(t, "Q-A", "Q-B")
	env.fake.SetAnswer("Q-A", "A")
	env.fake.SetAnswer("Q-B", "B")

	gateA := env.fake.BlockSolve("Q-A")
	gateB := env.fake.BlockSolve("Q-B")
	require.NoError(t, env.ctrl.StartSolve(0))
	require.NoError(t, env.ctrl.StartSolve(1))
	<-gateA.Arrived
	<-gateB.Arrived

	snap := env.ctrl.Snapshot()
	assert.Equal(t, 2, snap.CountByStatus(models.PairStatusSolving))
	assert.Equal(t, models.SolvingText, snap.Pairs[0].DisplayText())

	// B finishes first; A stays in flight.
	gateB.Release()
	require.Eventually(t, func() bool {
		return env.pair(t, 1).Status == models.PairStatusSolved
	}, waitFor, tick)
	assert.Equal(t, models.PairStatusSolving, env.pair(t, 0).Status)

	gateA.Release()
	require.Eventually(t, func() bool {
		return env.pair(t, 0).Status == models.PairStatusSolved
	}, waitFor, tick)
	assert.Equal(t, "A", env.pair(t, 0).Answer)
	assert.Equal(t, "B", env.pair(t, 1).Answer)
}

func TestController_LateSolveResultAfterResetIsDiscarded(t *testing.T) {
	env := newControllerEnv(t)
	env.upload(t, "Q-A")

	gate := env.fake.BlockSolve("Q-A")
	require.NoError(t, env.ctrl.StartSolve(0))
	<-gate.Arrived

	env.ctrl.Reset()
	env.upload(t, "Q-NEW")
	gate.Release()

	require.Eventually(t, func() bool {
		return promtest.ToFloat64(env.metrics.StaleResults.WithLabelValues("solve")) == 1
	}, waitFor, tick)
	assert.Equal(t, models.NewPair("Q-NEW"), env.pair(t, 0))
}

func TestController_LateUploadResultAfterResetIsDiscarded(t *testing.T) {
	env := newControllerEnv(t)
	env.fake.SetQuestions("stale")

	gate := env.fake.BlockUpload()
	_, err := env.ctrl.StartUpload(doc("paper.pdf"))
	require.NoError(t, err)
	<-gate.Arrived

	assert.Equal(t, models.SessionStatusUploading, env.ctrl.Snapshot().Status)
	_, err = env.ctrl.StartUpload(doc("other.pdf"))
	assert.ErrorIs(t, err, ErrUploadInProgress)

	env.ctrl.Reset()
	gate.Release()

	require.Eventually(t, func() bool {
		return promtest.ToFloat64(env.metrics.StaleResults.WithLabelValues("upload")) == 1
	}, waitFor, tick)
	snap := env.ctrl.Snapshot()
	assert.Equal(t, models.SessionStatusIdle, snap.Status)
	assert.Empty(t, snap.Pairs)
}

func TestController_FeedbackCancelledOnUploadAndReset(t *testing.T) {
	env := newControllerEnv(t)

	env.upload(t, "Q-A")
	assert.Equal(t, int32(1), env.feedback.cancels.Load())

	require.NoError(t, env.ctrl.Solve(context.Background(), 0))
	assert.Equal(t, int32(1), env.feedback.cancels.Load())

	env.ctrl.Reset()
	assert.Equal(t, int32(2), env.feedback.cancels.Load())
}

func TestController_CloseCancelsInFlightSolve(t *testing.T) {
	env := newControllerEnv(t)
	env.upload(t, "Q-A")

	gate := env.fake.BlockSolve("Q-A")
	require.NoError(t, env.ctrl.StartSolve(0))
	<-gate.Arrived

	env.ctrl.Close()

	p := env.pair(t, 0)
	assert.Equal(t, models.PairStatusFailed, p.Status)
	assert.Equal(t, solver.SolveFailedMessage, p.Answer)
}
