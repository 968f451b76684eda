package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/qps-ai/client/internal/metrics"
	"github.com/qps-ai/client/internal/models"
	"github.com/qps-ai/client/internal/solver"
	"github.com/rs/zerolog"
)

// Solver is the collaborator client the controller drives.
type Solver interface {
	ExtractQuestions(ctx context.Context, doc *models.Document) ([]string, error)
	SolveQuestion(ctx context.Context, question string) (string, error)
}

// Feedback is transient UI state that must not outlive a session, such as
// the clipboard "copied" indicator.
type Feedback interface {
	Cancel()
}

// Controller runs the upload and per-question solve workflows against the
// Store. It never retries on its own; a failed upload is retried by a new
// upload and a failed pair by a new solve on the same index.
type Controller struct {
	store    *Store
	solver   Solver
	feedback Feedback
	metrics  *metrics.Metrics
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ControllerOption customizes a Controller.
type ControllerOption func(*Controller)

// WithFeedback registers feedback state cleared on every new upload or reset.
func WithFeedback(f Feedback) ControllerOption {
	return func(c *Controller) { c.feedback = f }
}

// WithMetrics records workflow metrics on m.
func WithMetrics(m *metrics.Metrics) ControllerOption {
	return func(c *Controller) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) ControllerOption {
	return func(c *Controller) { c.log = l }
}

// NewController creates a controller over store.
func NewController(store *Store, s Solver, opts ...ControllerOption) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		store:  store,
		solver: s,
		log:    zerolog.Nop(),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns a copy of the current session.
func (c *Controller) Snapshot() models.Session {
	return c.store.Snapshot()
}

// Generation returns the current session generation.
func (c *Controller) Generation() uint64 {
	return c.store.Generation()
}

// Store returns the underlying store.
func (c *Controller) Store() *Store {
	return c.store
}

// Upload runs the upload workflow to completion. It returns the collaborator
// error when extraction failed (the session is then upload_failed), and
// ErrStaleGeneration when the session was reset while the request was in
// flight.
func (c *Controller) Upload(ctx context.Context, doc *models.Document) error {
	gen, err := c.beginUpload(doc)
	if err != nil {
		return err
	}
	return c.runUpload(ctx, gen, doc)
}

// StartUpload begins the upload workflow and finishes it in the background.
// It returns the generation the upload belongs to.
func (c *Controller) StartUpload(doc *models.Document) (uint64, error) {
	gen, err := c.beginUpload(doc)
	if err != nil {
		return 0, err
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				c.log.Error().Uint64("generation", gen).Interface("panic", r).Msg("upload panicked")
				c.store.FailUpload(gen, solver.UploadFailedMessage)
			}
		}()
		c.runUpload(c.ctx, gen, doc)
	}()
	return gen, nil
}

func (c *Controller) beginUpload(doc *models.Document) (uint64, error) {
	gen, err := c.store.BeginUpload(doc.Name)
	if err != nil {
		return 0, err
	}
	if c.feedback != nil {
		c.feedback.Cancel()
	}
	c.log.Info().
		Uint64("generation", gen).
		Str("document", doc.Name).
		Int64("size", doc.Size).
		Msg("upload started")
	return gen, nil
}

func (c *Controller) runUpload(ctx context.Context, gen uint64, doc *models.Document) error {
	log := c.log.With().Uint64("generation", gen).Str("document", doc.Name).Logger()

	questions, err := c.solver.ExtractQuestions(ctx, doc)
	if err != nil {
		msg := solver.UserMessage(err, solver.UploadFailedMessage)
		if ferr := c.store.FailUpload(gen, msg); ferr != nil {
			return c.discard(log, "upload", ferr)
		}
		c.metrics.UploadFinished(string(models.SessionStatusUploadFailed))
		log.Warn().Err(err).Msg("upload failed")
		return err
	}

	if err := c.store.CompleteUpload(gen, questions); err != nil {
		return c.discard(log, "upload", err)
	}
	c.metrics.UploadFinished(string(models.SessionStatusReady))
	log.Info().Int("questions", len(questions)).Msg("upload complete")
	return nil
}

// Solve runs the solve workflow for the pair at index to completion. Only
// pending and failed pairs may be solved; solving a failed pair is a retry.
// It returns the collaborator error when solving failed (the pair is then
// failed).
func (c *Controller) Solve(ctx context.Context, index int) error {
	t, err := c.beginSolve(index)
	if err != nil {
		return err
	}
	return c.runSolve(ctx, t)
}

// StartSolve begins the solve workflow for index and finishes it in the
// background. Distinct indices may be solved concurrently.
func (c *Controller) StartSolve(index int) error {
	t, err := c.beginSolve(index)
	if err != nil {
		return err
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				c.log.Error().Uint64("generation", t.Generation).Int("index", t.Index).Interface("panic", r).Msg("solve panicked")
				c.store.FailSolve(t, solver.SolveFailedMessage)
			}
		}()
		c.runSolve(c.ctx, t)
	}()
	return nil
}

func (c *Controller) beginSolve(index int) (Ticket, error) {
	t, err := c.store.BeginSolve(index)
	if err != nil {
		return Ticket{}, fmt.Errorf("solve question %d: %w", index, err)
	}
	c.metrics.PairTransition(string(models.PairStatusSolving))
	c.log.Debug().Uint64("generation", t.Generation).Int("index", index).Msg("solve started")
	return t, nil
}

func (c *Controller) runSolve(ctx context.Context, t Ticket) error {
	log := c.log.With().Uint64("generation", t.Generation).Int("index", t.Index).Logger()

	answer, err := c.solver.SolveQuestion(ctx, t.Question)
	if err != nil {
		msg := solver.UserMessage(err, solver.SolveFailedMessage)
		if ferr := c.store.FailSolve(t, msg); ferr != nil {
			return c.discard(log, "solve", ferr)
		}
		c.metrics.PairTransition(string(models.PairStatusFailed))
		log.Warn().Err(err).Msg("solve failed")
		return err
	}

	if err := c.store.CompleteSolve(t, answer); err != nil {
		return c.discard(log, "solve", err)
	}
	c.metrics.PairTransition(string(models.PairStatusSolved))
	log.Info().Msg("solve complete")
	return nil
}

// discard drops a result the store refused. Stale generations are expected
// after a reset and are not reported as failures.
func (c *Controller) discard(log zerolog.Logger, op string, err error) error {
	if errors.Is(err, ErrStaleGeneration) {
		c.metrics.StaleResult(op)
		log.Debug().Str("op", op).Msg("discarding result for stale session")
		return err
	}
	log.Error().Err(err).Str("op", op).Msg("store rejected result")
	return err
}

// Reset discards the session. In-flight requests are not cancelled; their
// results are dropped when they arrive.
func (c *Controller) Reset() {
	gen := c.store.Reset()
	if c.feedback != nil {
		c.feedback.Cancel()
	}
	c.log.Info().Uint64("generation", gen).Msg("session reset")
}

// Close cancels background requests and waits for them to return.
func (c *Controller) Close() {
	c.cancel()
	c.wg.Wait()
}
