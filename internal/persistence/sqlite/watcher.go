package sqlite

import (
	"context"
	"time"
)

// watcher polls the change log on its own goroutine.
type watcher struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (w *watcher) stop() {
	w.cancel()
	<-w.done
}

// ensureWatching starts the poller if it is not running. The log position is
// captured before returning so that no later change is missed.
func (m *Medium) ensureWatching() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.watcher != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := m.resetPosition(ctx); err != nil {
		cancel()
		return err
	}

	w := &watcher{cancel: cancel, done: make(chan struct{})}
	m.watcher = w
	go m.watch(ctx, w)
	return nil
}

// stopWatching cancels the poller without waiting for it, so it may be
// called from a change handler running on the poller goroutine.
func (m *Medium) stopWatching() {
	m.mu.Lock()
	w := m.watcher
	m.watcher = nil
	m.mu.Unlock()

	if w != nil {
		w.cancel()
	}
}

func (m *Medium) resetPosition(ctx context.Context) error {
	m.pollMu.Lock()
	defer m.pollMu.Unlock()

	var last int64
	if err := m.db.GetContext(ctx, &last, `SELECT COALESCE(MAX(revision), 0) FROM kv_changes`); err != nil {
		return mapError(err)
	}
	m.lastSeen = last
	return nil
}

func (m *Medium) watch(ctx context.Context, w *watcher) {
	defer close(w.done)

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Poll(ctx); err != nil && ctx.Err() == nil {
				m.logger.Warn("failed to poll change log", "error", err)
			}
		}
	}
}
