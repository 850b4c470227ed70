package application

import (
	"log/slog"
	"sync"

	"github.com/example/agenda/internal/booking"
	"github.com/example/agenda/internal/persistence"
)

// Notifier forwards booking tables written by sibling contexts. It watches a
// single key and holds at most one registration on the change signal.
type Notifier struct {
	signal  persistence.ChangeSignal
	key     string
	deliver func(booking.Table)
	logger  *slog.Logger

	mu     sync.Mutex
	cancel func()
}

// NewNotifier returns a disarmed notifier that hands decoded tables for key
// to deliver.
func NewNotifier(signal persistence.ChangeSignal, key string, deliver func(booking.Table), logger *slog.Logger) *Notifier {
	return &Notifier{
		signal:  signal,
		key:     key,
		deliver: deliver,
		logger:  defaultLogger(logger).With("service", "Notifier", "key", key),
	}
}

// Arm starts listening. Arming an armed notifier does nothing.
func (n *Notifier) Arm() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cancel != nil {
		return
	}
	n.cancel = n.signal.OnChange(n.key, n.handle)
}

// Disarm stops listening. Disarming a disarmed notifier does nothing.
func (n *Notifier) Disarm() {
	n.mu.Lock()
	cancel := n.cancel
	n.cancel = nil
	n.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Armed reports whether the notifier is listening.
func (n *Notifier) Armed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cancel != nil
}

// handle ignores other keys and cleared values. A value that does not decode
// is logged and dropped; local state is never cleared.
func (n *Notifier) handle(change persistence.Change) {
	if change.Key != n.key || !change.Present {
		return
	}
	table, err := persistence.Decode(change.Value)
	if err != nil {
		n.logger.Warn("ignoring unreadable booking table from sibling context",
			"origin", change.Origin,
			"error", err,
			"error_kind", ErrorKind(err),
		)
		return
	}
	n.logger.Debug("booking table changed in sibling context", "origin", change.Origin, "bookings", table.Count())
	n.deliver(table)
}
