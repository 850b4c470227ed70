package persistence

import "context"

// Medium is a synchronous string-keyed key-value store shared by every
// context of one storage scope.
type Medium interface {
	// Get returns the value stored under key. ok is false when the key is
	// absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set stores value under key and broadcasts the change to sibling
	// contexts. The writing context is never notified.
	Set(ctx context.Context, key, value string) error
	// Delete clears key and broadcasts a change without a value.
	Delete(ctx context.Context, key string) error
}

// Change describes a value that changed in another context.
type Change struct {
	Key     string
	Value   string
	Present bool
	Origin  string
}

// ChangeHandler receives changes for one key.
type ChangeHandler func(Change)

// ChangeSignal carries "value changed under key" events between the
// contexts of a storage scope.
type ChangeSignal interface {
	// Emit broadcasts change to every sibling context. The origin is always
	// the emitting context.
	Emit(ctx context.Context, change Change) error
	// OnChange registers handler for changes to key made by sibling
	// contexts. Handlers run on a dispatch goroutine in arrival order. The
	// returned cancel function is safe to call more than once.
	OnChange(key string, handler ChangeHandler) (cancel func())
}

// Backend is one context's handle on a storage scope.
type Backend interface {
	Medium
	ChangeSignal
	// ID identifies the context as the origin of its changes.
	ID() string
	Close() error
}
