// Package clipboard copies answers to the system clipboard and tracks the
// transient "copied" indicator for the pair that was copied last.
package clipboard

import (
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// ResetAfter is how long the copied indicator stays on one pair.
const ResetAfter = 2000 * time.Millisecond

// Writer writes text to a clipboard.
type Writer interface {
	WriteAll(text string) error
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(text string) error

func (f WriterFunc) WriteAll(text string) error { return f(text) }

// System is the OS clipboard.
var System Writer = WriterFunc(clipboard.WriteAll)

// Notifier holds the index of the pair most recently copied and clears it
// after ResetAfter.
type Notifier struct {
	mu       sync.Mutex
	deliver  sync.Mutex
	clock    clockwork.Clock
	writer   Writer
	log      zerolog.Logger
	onChange func(index int, active bool)

	active bool
	index  int
	seq    uint64
	timer  clockwork.Timer
}

// Option customizes a Notifier.
type Option func(*Notifier)

// WithClock replaces the real clock, for tests.
func WithClock(c clockwork.Clock) Option {
	return func(n *Notifier) { n.clock = c }
}

// WithWriter replaces the system clipboard.
func WithWriter(w Writer) Option {
	return func(n *Notifier) { n.writer = w }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(n *Notifier) { n.log = l }
}

// WithObserver registers fn to be called whenever the active index changes.
// Calls are serialized and carry the state current at delivery, so the last
// call always matches Active. fn may call Active.
func WithObserver(fn func(index int, active bool)) Option {
	return func(n *Notifier) { n.onChange = fn }
}

// NewNotifier creates a notifier writing to the system clipboard.
func NewNotifier(opts ...Option) *Notifier {
	n := &Notifier{
		clock:  clockwork.NewRealClock(),
		writer: System,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify copies text and marks index as copied. A pending clear from an
// earlier call is cancelled; the indicator clears ResetAfter from now.
// Clipboard failures are logged and otherwise ignored.
func (n *Notifier) Notify(index int, text string) {
	if err := n.writer.WriteAll(text); err != nil {
		n.log.Debug().Err(err).Int("index", index).Msg("clipboard write failed")
	}

	n.mu.Lock()
	n.stopLocked()
	n.seq++
	seq := n.seq
	n.active = true
	n.index = index
	n.timer = n.clock.AfterFunc(ResetAfter, func() { n.expire(seq) })
	n.mu.Unlock()

	n.changed()
}

// Active returns the copied pair index, if any.
func (n *Notifier) Active() (int, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.active {
		return -1, false
	}
	return n.index, true
}

// Cancel clears the indicator immediately and stops the pending timer.
func (n *Notifier) Cancel() {
	n.mu.Lock()
	n.stopLocked()
	n.seq++
	wasActive := n.active
	n.active = false
	n.mu.Unlock()

	if wasActive {
		n.changed()
	}
}

func (n *Notifier) expire(seq uint64) {
	n.mu.Lock()
	// A newer Notify or Cancel owns the indicator now.
	if seq != n.seq || !n.active {
		n.mu.Unlock()
		return
	}
	n.active = false
	n.timer = nil
	n.mu.Unlock()

	n.changed()
}

func (n *Notifier) stopLocked() {
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
}

func (n *Notifier) changed() {
	if n.onChange == nil {
		return
	}
	n.deliver.Lock()
	defer n.deliver.Unlock()

	n.mu.Lock()
	index, active := n.index, n.active
	n.mu.Unlock()
	n.onChange(index, active)
}
