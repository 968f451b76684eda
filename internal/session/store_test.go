package session

import (
	"testing"

	"github.com/qps-ai/client/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readyStore(t *testing.T, questions ...string) (*Store, uint64) {
	t.Helper()
	s := NewStore()
	gen, err := s.BeginUpload("paper.pdf")
	require.NoError(t, err)
	require.NoError(t, s.CompleteUpload(gen, questions))
	return s, gen
}

func TestStore_NewIsIdleAndEmpty(t *testing.T) {
	s := NewStore()
	snap := s.Snapshot()

	assert.Equal(t, models.SessionStatusIdle, snap.Status)
	assert.Empty(t, snap.Pairs)
	assert.Equal(t, uint64(0), snap.Generation)
}

func TestStore_CompleteUploadBuildsPendingPairsInOrder(t *testing.T) {
	questions := []string{"q0", "q1", "q1", "", "q4"}
	s, _ := readyStore(t, questions...)
	snap := s.Snapshot()

	assert.Equal(t, models.SessionStatusReady, snap.Status)
	require.Len(t, snap.Pairs, len(questions))
	for i, q := range questions {
		assert.Equal(t, q, snap.Pairs[i].Question)
		assert.Equal(t, models.PairStatusPending, snap.Pairs[i].Status)
		assert.Empty(t, snap.Pairs[i].Answer)
	}
	assert.Equal(t, "Extracted 5 questions", snap.StatusMessage)
}

func TestStore_ZeroQuestionsIsReady(t *testing.T) {
	s, _ := readyStore(t)
	snap := s.Snapshot()

	assert.Equal(t, models.SessionStatusReady, snap.Status)
	assert.Empty(t, snap.Pairs)
	assert.Equal(t, "No questions found in paper.pdf", snap.StatusMessage)
}

func TestStore_BeginUploadClearsPairs(t *testing.T) {
	s, gen := readyStore(t, "a", "b")

	next, err := s.BeginUpload("second.pdf")
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.Greater(t, next, gen)
	assert.Equal(t, models.SessionStatusUploading, snap.Status)
	assert.Empty(t, snap.Pairs)
	assert.Equal(t, "Processing second.pdf...", snap.StatusMessage)
}

func TestStore_SecondUploadWhileUploadingRejected(t *testing.T) {
	s := NewStore()
	_, err := s.BeginUpload("a.pdf")
	require.NoError(t, err)

	_, err = s.BeginUpload("b.pdf")
	assert.ErrorIs(t, err, ErrUploadInProgress)
	assert.Equal(t, "a.pdf", s.Snapshot().DocumentName)
}

func TestStore_FailUploadLeavesPairsEmpty(t *testing.T) {
	s := NewStore()
	gen, err := s.BeginUpload("a.pdf")
	require.NoError(t, err)

	require.NoError(t, s.FailUpload(gen, "Upload failed"))

	snap := s.Snapshot()
	assert.Equal(t, models.SessionStatusUploadFailed, snap.Status)
	assert.Equal(t, "Upload failed", snap.StatusMessage)
	assert.Empty(t, snap.Pairs)

	_, err = s.BeginUpload("b.pdf")
	assert.NoError(t, err, "a failed upload must allow a new one")
}

func TestStore_UploadResultsForStaleGenerationRejected(t *testing.T) {
	s := NewStore()
	gen, err := s.BeginUpload("a.pdf")
	require.NoError(t, err)
	s.Reset()

	assert.ErrorIs(t, s.CompleteUpload(gen, []string{"q"}), ErrStaleGeneration)
	assert.ErrorIs(t, s.FailUpload(gen, "x"), ErrStaleGeneration)

	snap := s.Snapshot()
	assert.Equal(t, models.SessionStatusIdle, snap.Status)
	assert.Empty(t, snap.Pairs)
}

func TestStore_BeginSolve(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(s *Store)
		index   int
		wantErr error
	}{
		{name: "pending pair", index: 1},
		{name: "negative index", index: -1, wantErr: ErrIndexOutOfRange},
		{name: "past the end", index: 3, wantErr: ErrIndexOutOfRange},
		{
			name:    "already solving",
			setup:   func(s *Store) { s.BeginSolve(1) },
			index:   1,
			wantErr: ErrSolveInProgress,
		},
		{
			name: "already solved",
			setup: func(s *Store) {
				tk, _ := s.BeginSolve(1)
				s.CompleteSolve(tk, "done")
			},
			index:   1,
			wantErr: ErrAlreadySolved,
		},
		{
			name: "failed pair is retriable",
			setup: func(s *Store) {
				tk, _ := s.BeginSolve(1)
				s.FailSolve(tk, "rate limited")
			},
			index: 1,
		},
		{name: "empty question", index: 2, wantErr: ErrEmptyQuestion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, gen := readyStore(t, "q0", "q1", "")
			if tt.setup != nil {
				tt.setup(s)
			}

			tk, err := s.BeginSolve(tt.index)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, Ticket{Generation: gen, Index: tt.index, Question: "q1"}, tk)

			p, err := s.Pair(tt.index)
			require.NoError(t, err)
			assert.Equal(t, models.PairStatusSolving, p.Status)
			assert.Empty(t, p.Answer)
		})
	}
}

func TestStore_SolveOnlyTouchesItsPair(t *testing.T) {
	s, _ := readyStore(t, "q0", "q1", "q2")
	before := s.Snapshot()

	tk, err := s.BeginSolve(1)
	require.NoError(t, err)
	require.NoError(t, s.CompleteSolve(tk, "answer-B"))

	after := s.Snapshot()
	assert.Equal(t, before.Pairs[0], after.Pairs[0])
	assert.Equal(t, before.Pairs[2], after.Pairs[2])
	assert.Equal(t, models.Pair{Question: "q1", Answer: "answer-B", Status: models.PairStatusSolved}, after.Pairs[1])
}

func TestStore_FailSolveStoresMessageInAnswerSlot(t *testing.T) {
	s, _ := readyStore(t, "q0")

	tk, err := s.BeginSolve(0)
	require.NoError(t, err)
	require.NoError(t, s.FailSolve(tk, "rate limited"))

	p, err := s.Pair(0)
	require.NoError(t, err)
	assert.Equal(t, models.PairStatusFailed, p.Status)
	assert.Equal(t, "rate limited", p.Answer)
	assert.Contains(t, p.DisplayText(), "rate limited")
}

func TestStore_FinishSolveGuards(t *testing.T) {
	s, _ := readyStore(t, "q0", "q1")

	tk, err := s.BeginSolve(0)
	require.NoError(t, err)

	notSolving := Ticket{Generation: tk.Generation, Index: 1, Question: "q1"}
	assert.ErrorIs(t, s.CompleteSolve(notSolving, "x"), ErrNotSolving)

	outOfRange := Ticket{Generation: tk.Generation, Index: 9}
	assert.ErrorIs(t, s.FailSolve(outOfRange, "x"), ErrIndexOutOfRange)

	require.NoError(t, s.CompleteSolve(tk, "a"))
	assert.ErrorIs(t, s.CompleteSolve(tk, "again"), ErrNotSolving)
}

func TestStore_SolveResultAfterNewUploadIsStale(t *testing.T) {
	s, _ := readyStore(t, "old-q0")

	tk, err := s.BeginSolve(0)
	require.NoError(t, err)

	gen, err := s.BeginUpload("new.pdf")
	require.NoError(t, err)
	require.NoError(t, s.CompleteUpload(gen, []string{"new-q0"}))

	assert.ErrorIs(t, s.CompleteSolve(tk, "old answer"), ErrStaleGeneration)

	p, err := s.Pair(0)
	require.NoError(t, err)
	assert.Equal(t, models.NewPair("new-q0"), p)
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	s, _ := readyStore(t, "q0")

	snap := s.Snapshot()
	snap.Pairs[0].Answer = "mutated"

	p, err := s.Pair(0)
	require.NoError(t, err)
	assert.Empty(t, p.Answer)
}

func TestStore_SubscribeSignalsChanges(t *testing.T) {
	s := NewStore()
	ch, unsubscribe := s.Subscribe()

	gen, err := s.BeginUpload("a.pdf")
	require.NoError(t, err)
	require.NoError(t, s.CompleteUpload(gen, []string{"q"}))

	// Two changes coalesce into one pending signal.
	select {
	case <-ch:
	default:
		t.Fatal("expected a change signal")
	}
	select {
	case <-ch:
		t.Fatal("signals should coalesce")
	default:
	}

	unsubscribe()
	s.Reset()
	select {
	case <-ch:
		t.Fatal("unsubscribed channel received a signal")
	default:
	}
}

func TestStore_TouchSignalsWithoutChange(t *testing.T) {
	s := NewStore()
	ch, unsubscribe := s.Subscribe()
	defer unsubscribe()

	before := s.Snapshot()
	s.Touch()

	select {
	case <-ch:
	default:
		t.Fatal("expected a change signal")
	}
	assert.Equal(t, before, s.Snapshot())
}
