package redis

import (
	"context"
	"encoding/json"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/example/agenda/internal/persistence"
)

type subscription struct {
	pubsub   *goredis.PubSub
	done     chan struct{}
	stopOnce sync.Once
}

func (s *subscription) stop() {
	s.stopOnce.Do(func() {
		_ = s.pubsub.Close()
	})
}

// ensureSubscribed opens the change subscription if needed. It returns once
// the server has confirmed it, so later publishes are not missed.
func (m *Medium) ensureSubscribed() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.sub != nil {
		return nil
	}

	ctx := context.Background()
	pubsub := m.client.Subscribe(ctx, m.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return mapError(err)
	}

	sub := &subscription{pubsub: pubsub, done: make(chan struct{})}
	m.sub = sub
	go m.receive(sub)
	return nil
}

// unsubscribe closes the subscription without waiting for its goroutine.
func (m *Medium) unsubscribe() {
	m.mu.Lock()
	sub := m.sub
	m.sub = nil
	m.mu.Unlock()

	if sub != nil {
		sub.stop()
	}
}

func (m *Medium) receive(sub *subscription) {
	defer close(sub.done)

	for msg := range sub.pubsub.Channel() {
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			m.logger.Warn("failed to decode change message", "channel", msg.Channel, "error", err)
			continue
		}
		if env.Origin == m.id {
			continue
		}
		m.listeners.Dispatch(persistence.Change{
			Key:     env.Key,
			Value:   env.Value,
			Present: env.Present,
			Origin:  env.Origin,
		})
	}
}
