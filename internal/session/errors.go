package session

import "errors"

var (
	// ErrUploadInProgress rejects a second upload while one is in flight.
	ErrUploadInProgress = errors.New("an upload is already in progress")
	// ErrStaleGeneration means the session moved on while a request was in
	// flight; its result was discarded.
	ErrStaleGeneration = errors.New("session generation is stale")
	// ErrIndexOutOfRange means no pair exists at the index.
	ErrIndexOutOfRange = errors.New("question index out of range")
	// ErrSolveInProgress rejects a second solve for a pair that is solving.
	ErrSolveInProgress = errors.New("question is already being solved")
	// ErrAlreadySolved rejects a solve for a pair that already has an answer.
	ErrAlreadySolved = errors.New("question is already solved")
	// ErrNotSolving rejects a completion for a pair with no solve in flight.
	ErrNotSolving = errors.New("question is not being solved")
	// ErrEmptyQuestion rejects solving a question with no text.
	ErrEmptyQuestion = errors.New("question text is empty")
)
