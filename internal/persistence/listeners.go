package persistence

import (
	"sort"
	"sync"
)

// Listeners is a registry of change handlers keyed by storage key.
type Listeners struct {
	mu       sync.RWMutex
	next     uint64
	handlers map[string]map[uint64]ChangeHandler
}

// Add registers handler for key and returns a function that removes it.
func (l *Listeners) Add(key string, handler ChangeHandler) (cancel func()) {
	l.mu.Lock()
	if l.handlers == nil {
		l.handlers = make(map[string]map[uint64]ChangeHandler)
	}
	l.next++
	id := l.next
	byKey, ok := l.handlers[key]
	if !ok {
		byKey = make(map[uint64]ChangeHandler)
		l.handlers[key] = byKey
	}
	byKey[id] = handler
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if byKey, ok := l.handlers[key]; ok {
				delete(byKey, id)
				if len(byKey) == 0 {
					delete(l.handlers, key)
				}
			}
		})
	}
}

// Len returns the number of registered handlers.
func (l *Listeners) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := 0
	for _, byKey := range l.handlers {
		total += len(byKey)
	}
	return total
}

// Dispatch invokes every handler registered for change.Key in registration
// order.
func (l *Listeners) Dispatch(change Change) {
	l.mu.RLock()
	byKey := l.handlers[change.Key]
	ids := make([]uint64, 0, len(byKey))
	for id := range byKey {
		ids = append(ids, id)
	}
	handlers := make([]ChangeHandler, 0, len(ids))
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		handlers = append(handlers, byKey[id])
	}
	l.mu.RUnlock()

	for _, handler := range handlers {
		handler(change)
	}
}

// Dispatcher runs queued functions one at a time on its own goroutine, in
// the order they were enqueued.
type Dispatcher struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	done    chan struct{}
	stopped bool
}

// NewDispatcher starts a dispatcher goroutine.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

// Enqueue schedules fn. It never blocks. Functions enqueued after Stop are
// dropped.
func (d *Dispatcher) Enqueue(fn func()) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Sync blocks until every function enqueued before the call has run. It
// returns immediately on a stopped dispatcher.
func (d *Dispatcher) Sync() {
	reached := make(chan struct{})
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, func() { close(reached) })
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}

	select {
	case <-reached:
	case <-d.done:
	}
}

// Stop discards pending functions and terminates the goroutine.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.queue = nil
	d.mu.Unlock()
	close(d.done)
}

func (d *Dispatcher) run() {
	for {
		select {
		case <-d.done:
			return
		case <-d.wake:
		}

		for {
			d.mu.Lock()
			if d.stopped || len(d.queue) == 0 {
				d.mu.Unlock()
				break
			}
			fn := d.queue[0]
			d.queue[0] = nil
			d.queue = d.queue[1:]
			d.mu.Unlock()
			fn()
		}
	}
}
