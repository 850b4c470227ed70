// Package memory provides an in-process storage scope whose contexts behave
// like sibling browser tabs sharing one origin's storage.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/example/agenda/internal/persistence"
)

// Scope is one storage origin. Values are shared by every context opened on
// it and changes are broadcast to every context except the writer.
type Scope struct {
	mu       sync.RWMutex
	values   map[string]string
	quota    int
	contexts map[string]*Context
}

// Option configures a Scope.
type Option func(*Scope)

// WithQuota limits the total size of keys and values in bytes. Zero means
// unlimited.
func WithQuota(bytes int) Option {
	return func(s *Scope) {
		if bytes > 0 {
			s.quota = bytes
		}
	}
}

// NewScope returns an empty scope.
func NewScope(opts ...Option) *Scope {
	s := &Scope{
		values:   make(map[string]string),
		contexts: make(map[string]*Context),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open creates a new context on the scope.
func (s *Scope) Open() *Context {
	c := &Context{
		scope:      s,
		id:         uuid.NewString(),
		dispatcher: persistence.NewDispatcher(),
	}
	s.mu.Lock()
	s.contexts[c.id] = c
	s.mu.Unlock()
	return c
}

// SetQuota changes the quota at runtime. Zero removes the limit.
func (s *Scope) SetQuota(bytes int) {
	s.mu.Lock()
	if bytes < 0 {
		bytes = 0
	}
	s.quota = bytes
	s.mu.Unlock()
}

// Raw returns the stored value without going through a context.
func (s *Scope) Raw(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	return value, ok
}

func (s *Scope) sizeWithLocked(key, value string) int {
	total := 0
	for k, v := range s.values {
		if k == key {
			continue
		}
		total += len(k) + len(v)
	}
	return total + len(key) + len(value)
}

// broadcastLocked queues change on every context other than origin. Queuing
// under the scope lock keeps every context's event order identical to the
// order of writes.
func (s *Scope) broadcastLocked(origin string, change persistence.Change) {
	for id, c := range s.contexts {
		if id == origin {
			continue
		}
		c.deliver(change)
	}
}

// Context is one context's handle on a Scope. It implements
// persistence.Backend.
type Context struct {
	scope      *Scope
	id         string
	dispatcher *persistence.Dispatcher
	listeners  persistence.Listeners

	mu     sync.Mutex
	closed bool
}

var _ persistence.Backend = (*Context)(nil)

// ID returns the context's origin identifier.
func (c *Context) ID() string {
	return c.id
}

// Get returns the value stored under key.
func (c *Context) Get(ctx context.Context, key string) (string, bool, error) {
	if c.isClosed() {
		return "", false, persistence.ErrClosed
	}
	value, ok := c.scope.Raw(key)
	return value, ok, nil
}

// Set stores value under key and notifies sibling contexts.
func (c *Context) Set(ctx context.Context, key, value string) error {
	if c.isClosed() {
		return persistence.ErrClosed
	}

	s := c.scope
	s.mu.Lock()
	if s.quota > 0 {
		if size := s.sizeWithLocked(key, value); size > s.quota {
			s.mu.Unlock()
			return fmt.Errorf("memory: setting %q needs %d bytes of %d: %w", key, size, s.quota, persistence.ErrQuotaExceeded)
		}
	}
	s.values[key] = value
	s.broadcastLocked(c.id, persistence.Change{Key: key, Value: value, Present: true, Origin: c.id})
	s.mu.Unlock()
	return nil
}

// Delete removes key and notifies sibling contexts with an absent value.
func (c *Context) Delete(ctx context.Context, key string) error {
	if c.isClosed() {
		return persistence.ErrClosed
	}

	s := c.scope
	s.mu.Lock()
	delete(s.values, key)
	s.broadcastLocked(c.id, persistence.Change{Key: key, Origin: c.id})
	s.mu.Unlock()
	return nil
}

// Emit broadcasts change to sibling contexts without touching stored values.
func (c *Context) Emit(ctx context.Context, change persistence.Change) error {
	if c.isClosed() {
		return persistence.ErrClosed
	}
	change.Origin = c.id
	c.scope.mu.Lock()
	c.scope.broadcastLocked(c.id, change)
	c.scope.mu.Unlock()
	return nil
}

// OnChange registers handler for changes to key made by other contexts.
func (c *Context) OnChange(key string, handler persistence.ChangeHandler) func() {
	return c.listeners.Add(key, handler)
}

// Sync blocks until every change queued for this context so far has been
// handed to its handlers.
func (c *Context) Sync() {
	c.dispatcher.Sync()
}

// Close detaches the context from its scope. Pending changes are dropped.
func (c *Context) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.scope.mu.Lock()
	delete(c.scope.contexts, c.id)
	c.scope.mu.Unlock()

	c.dispatcher.Stop()
	return nil
}

func (c *Context) deliver(change persistence.Change) {
	c.dispatcher.Enqueue(func() {
		c.listeners.Dispatch(change)
	})
}

func (c *Context) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
