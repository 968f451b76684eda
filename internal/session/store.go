package session

import (
	"fmt"
	"sync"

	"github.com/qps-ai/client/internal/models"
)

// Ticket identifies one solve request: the pair it targets and the session
// generation it was started in.
type Ticket struct {
	Generation uint64
	Index      int
	Question   string
}

// Store is the single source of truth for the session. Every method is one
// atomic transition scoped to the header or a single pair.
type Store struct {
	mu           sync.RWMutex
	generation   uint64
	status       models.SessionStatus
	message      string
	documentName string
	pairs        []models.Pair
	subs         map[int]chan struct{}
	nextSub      int
}

// NewStore creates an empty idle session.
func NewStore() *Store {
	return &Store{
		status: models.SessionStatusIdle,
		pairs:  make([]models.Pair, 0),
		subs:   make(map[int]chan struct{}),
	}
}

// BeginUpload starts a new generation: status uploading, pairs cleared.
func (s *Store) BeginUpload(documentName string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == models.SessionStatusUploading {
		return 0, ErrUploadInProgress
	}

	s.generation++
	s.status = models.SessionStatusUploading
	s.documentName = documentName
	s.message = fmt.Sprintf("Processing %s...", documentName)
	s.pairs = make([]models.Pair, 0)
	s.notifyLocked()
	return s.generation, nil
}

// CompleteUpload marks the session ready with one pending pair per question,
// in the given order. Zero questions is a valid, empty result.
func (s *Store) CompleteUpload(generation uint64, questions []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if generation != s.generation || s.status != models.SessionStatusUploading {
		return ErrStaleGeneration
	}

	pairs := make([]models.Pair, len(questions))
	for i, q := range questions {
		pairs[i] = models.NewPair(q)
	}

	s.status = models.SessionStatusReady
	s.pairs = pairs
	switch len(questions) {
	case 0:
		s.message = fmt.Sprintf("No questions found in %s", s.documentName)
	case 1:
		s.message = "Extracted 1 question"
	default:
		s.message = fmt.Sprintf("Extracted %d questions", len(questions))
	}
	s.notifyLocked()
	return nil
}

// FailUpload marks the upload failed. Pairs stay empty.
func (s *Store) FailUpload(generation uint64, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if generation != s.generation || s.status != models.SessionStatusUploading {
		return ErrStaleGeneration
	}

	s.status = models.SessionStatusUploadFailed
	s.message = message
	s.pairs = make([]models.Pair, 0)
	s.notifyLocked()
	return nil
}

// BeginSolve moves a pending or failed pair to solving and returns the
// ticket the result must be reported with.
func (s *Store) BeginSolve(index int) (Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.pairs) {
		return Ticket{}, ErrIndexOutOfRange
	}

	p := &s.pairs[index]
	switch p.Status {
	case models.PairStatusSolving:
		return Ticket{}, ErrSolveInProgress
	case models.PairStatusSolved:
		return Ticket{}, ErrAlreadySolved
	}
	if p.Question == "" {
		return Ticket{}, ErrEmptyQuestion
	}

	p.Status = models.PairStatusSolving
	p.Answer = ""
	s.notifyLocked()
	return Ticket{Generation: s.generation, Index: index, Question: p.Question}, nil
}

// CompleteSolve stores the answer for the ticket's pair.
func (s *Store) CompleteSolve(t Ticket, answer string) error {
	return s.finishSolve(t, models.PairStatusSolved, answer)
}

// FailSolve stores the error message in the ticket's answer slot.
func (s *Store) FailSolve(t Ticket, message string) error {
	return s.finishSolve(t, models.PairStatusFailed, message)
}

func (s *Store) finishSolve(t Ticket, status models.PairStatus, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.Generation != s.generation {
		return ErrStaleGeneration
	}
	if t.Index < 0 || t.Index >= len(s.pairs) {
		return ErrIndexOutOfRange
	}

	p := &s.pairs[t.Index]
	if p.Status != models.PairStatusSolving {
		return ErrNotSolving
	}

	p.Status = status
	p.Answer = text
	s.notifyLocked()
	return nil
}

// Reset discards the session and starts a new, idle generation. Results of
// requests started before the reset are rejected as stale.
func (s *Store) Reset() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.status = models.SessionStatusIdle
	s.message = ""
	s.documentName = ""
	s.pairs = make([]models.Pair, 0)
	s.notifyLocked()
	return s.generation
}

// Snapshot returns a copy of the session.
func (s *Store) Snapshot() models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pairs := make([]models.Pair, len(s.pairs))
	copy(pairs, s.pairs)
	return models.Session{
		Generation:    s.generation,
		Status:        s.status,
		StatusMessage: s.message,
		DocumentName:  s.documentName,
		Pairs:         pairs,
	}
}

// Pair returns a copy of the pair at index.
func (s *Store) Pair(index int) (models.Pair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if index < 0 || index >= len(s.pairs) {
		return models.Pair{}, ErrIndexOutOfRange
	}
	return s.pairs[index], nil
}

// Len returns the number of pairs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pairs)
}

// Generation returns the current generation.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Touch signals subscribers without changing the session. Used for state
// rendered alongside the session, such as the copied indicator.
func (s *Store) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifyLocked()
}

// Subscribe returns a channel that receives a signal after every change.
// Signals coalesce: a slow reader sees at most one pending signal and
// should re-read the Snapshot. Call the returned func to unsubscribe.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) notifyLocked() {
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
