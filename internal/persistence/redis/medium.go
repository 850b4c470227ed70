// Package redis implements a storage scope on a Redis server. Values are plain
// string keys and every write is published on a change channel shared by all
// contexts opened with the same channel prefix.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/example/agenda/internal/persistence"
)

// DefaultChannelPrefix namespaces the change channel.
const DefaultChannelPrefix = "agenda"

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int

	// ChannelPrefix selects the change channel, "<prefix>:changes".
	ChannelPrefix string

	// MaxValueBytes rejects larger values with ErrQuotaExceeded. Zero
	// disables the check.
	MaxValueBytes int
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("redis: address cannot be empty")
	}
	if c.DB < 0 {
		return fmt.Errorf("redis: DB cannot be negative")
	}
	if c.MaxValueBytes < 0 {
		return fmt.Errorf("redis: MaxValueBytes cannot be negative")
	}
	return nil
}

func (c Config) channel() string {
	prefix := c.ChannelPrefix
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return prefix + ":changes"
}

// envelope is the payload published for every change.
type envelope struct {
	Origin  string `json:"origin"`
	Key     string `json:"key"`
	Value   string `json:"value,omitempty"`
	Present bool   `json:"present"`
}

// Medium is one context's handle on a Redis storage scope. It implements
// persistence.Backend.
type Medium struct {
	client     *goredis.Client
	ownsClient bool
	cfg        Config
	channel    string
	id         string
	logger     *slog.Logger

	listeners persistence.Listeners

	mu     sync.Mutex
	sub    *subscription
	closed bool
}

var _ persistence.Backend = (*Medium)(nil)

// Option configures a Medium.
type Option func(*Medium)

// WithLogger sets the logger used for subscription failures.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Medium) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// Open connects to the server described by cfg and returns a new context.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Medium, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	m := NewFromClient(client, cfg, opts...)
	m.ownsClient = true
	return m, nil
}

// NewFromClient returns a context using an existing client. Closing the
// context leaves the client open.
func NewFromClient(client *goredis.Client, cfg Config, opts ...Option) *Medium {
	m := &Medium{
		client:  client,
		cfg:     cfg,
		channel: cfg.channel(),
		id:      uuid.NewString(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "redis.Medium", "origin", m.id)
	return m
}

// ID returns the context's origin identifier.
func (m *Medium) ID() string {
	return m.id
}

// Get returns the value stored under key.
func (m *Medium) Get(ctx context.Context, key string) (string, bool, error) {
	if m.isClosed() {
		return "", false, persistence.ErrClosed
	}
	value, err := m.client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, mapError(err)
	}
	return value, true, nil
}

// Set stores value under key and publishes the change in the same
// transaction.
func (m *Medium) Set(ctx context.Context, key, value string) error {
	if m.isClosed() {
		return persistence.ErrClosed
	}
	if m.cfg.MaxValueBytes > 0 && len(value) > m.cfg.MaxValueBytes {
		return fmt.Errorf("redis: value for %q is %d bytes, limit %d: %w", key, len(value), m.cfg.MaxValueBytes, persistence.ErrQuotaExceeded)
	}
	payload, err := m.encode(key, value, true)
	if err != nil {
		return err
	}
	_, err = m.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, key, value, 0)
		pipe.Publish(ctx, m.channel, payload)
		return nil
	})
	return mapError(err)
}

// Delete removes key and publishes an absent value.
func (m *Medium) Delete(ctx context.Context, key string) error {
	if m.isClosed() {
		return persistence.ErrClosed
	}
	payload, err := m.encode(key, "", false)
	if err != nil {
		return err
	}
	_, err = m.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.Publish(ctx, m.channel, payload)
		return nil
	})
	return mapError(err)
}

// Emit publishes change without touching stored values.
func (m *Medium) Emit(ctx context.Context, change persistence.Change) error {
	if m.isClosed() {
		return persistence.ErrClosed
	}
	payload, err := m.encode(change.Key, change.Value, change.Present)
	if err != nil {
		return err
	}
	return mapError(m.client.Publish(ctx, m.channel, payload).Err())
}

func (m *Medium) encode(key, value string, present bool) ([]byte, error) {
	payload, err := json.Marshal(envelope{Origin: m.id, Key: key, Value: value, Present: present})
	if err != nil {
		return nil, fmt.Errorf("redis: encode change for %q: %w", key, err)
	}
	return payload, nil
}

// OnChange registers handler for changes to key published by sibling
// contexts. The subscription is opened with the first handler and closed
// with the last.
func (m *Medium) OnChange(key string, handler persistence.ChangeHandler) func() {
	cancel := m.listeners.Add(key, handler)
	if err := m.ensureSubscribed(); err != nil {
		m.logger.Error("failed to subscribe to change channel", "channel", m.channel, "error", err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			if m.listeners.Len() == 0 {
				m.unsubscribe()
			}
		})
	}
}

// Close ends the subscription and, when the context opened the client,
// closes it. It must not be called from a change handler.
func (m *Medium) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	sub := m.sub
	m.sub = nil
	m.mu.Unlock()

	if sub != nil {
		sub.stop()
		<-sub.done
	}
	if m.ownsClient {
		return m.client.Close()
	}
	return nil
}

func (m *Medium) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// mapError translates client failures into persistence sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, goredis.ErrClosed) {
		return fmt.Errorf("%w: %v", persistence.ErrClosed, err)
	}
	if strings.HasPrefix(err.Error(), "OOM") {
		return fmt.Errorf("%w: %v", persistence.ErrQuotaExceeded, err)
	}
	return err
}
