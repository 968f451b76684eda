package models

// SessionStatus represents the upload-level status of a session.
type SessionStatus string

const (
	SessionStatusIdle         SessionStatus = "idle"
	SessionStatusUploading    SessionStatus = "uploading"
	SessionStatusReady        SessionStatus = "ready"
	SessionStatusUploadFailed SessionStatus = "upload_failed"
)

// PairStatus represents the solve status of a single question.
type PairStatus string

const (
	PairStatusPending PairStatus = "pending"
	PairStatusSolving PairStatus = "solving"
	PairStatusSolved  PairStatus = "solved"
	PairStatusFailed  PairStatus = "failed"
)

// Placeholder texts shown for pairs that have no answer to display yet.
const (
	SolvingText      = "Thinking..."
	FailedTextPrefix = "Error: "
)

// Pair is one extracted question together with its answer and status.
// For failed pairs Answer holds the error message.
type Pair struct {
	Question string     `json:"question" msgpack:"question"`
	Answer   string     `json:"answer" msgpack:"answer"`
	Status   PairStatus `json:"status" msgpack:"status"`
}

// NewPair creates a pending pair for an extracted question.
func NewPair(question string) Pair {
	return Pair{
		Question: question,
		Status:   PairStatusPending,
	}
}

// DisplayText returns the text a presentation layer shows in the answer slot.
func (p Pair) DisplayText() string {
	switch p.Status {
	case PairStatusSolving:
		return SolvingText
	case PairStatusFailed:
		return FailedTextPrefix + p.Answer
	default:
		return p.Answer
	}
}

// Solvable reports whether a solve may be started for the pair.
// Failed pairs are solvable again as a manual retry.
func (p Pair) Solvable() bool {
	return p.Status == PairStatusPending || p.Status == PairStatusFailed
}

// Session is a point-in-time copy of the session state.
type Session struct {
	Generation    uint64        `json:"generation" msgpack:"generation"`
	Status        SessionStatus `json:"status" msgpack:"status"`
	StatusMessage string        `json:"statusMessage,omitempty" msgpack:"statusMessage,omitempty"`
	DocumentName  string        `json:"documentName,omitempty" msgpack:"documentName,omitempty"`
	Pairs         []Pair        `json:"pairs" msgpack:"pairs"`
}

// CountByStatus returns how many pairs are in the given status.
func (s *Session) CountByStatus(status PairStatus) int {
	n := 0
	for _, p := range s.Pairs {
		if p.Status == status {
			n++
		}
	}
	return n
}
