package sync_

import "sync"

// Event is a flag that goroutines can wait on. The zero value is unset.
type Event struct {
	mu    sync.Mutex
	ch    chan struct{}
	value bool
}

// Set ensures the Event is set, releasing every waiter. Returns true if the state was changed.
func (e *Event) Set() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.value {
		return false
	}
	e.value = true
	close(e.channel())
	return true
}

// Clear ensures the Event is unset. Channels already returned by Wait stay closed; later calls to Wait get a new
// channel. Returns true if the state was changed.
func (e *Event) Clear() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.value {
		return false
	}
	e.value = false
	e.ch = nil
	return true
}

// Wait returns a channel that is closed once the Event is set, which may already have happened.
func (e *Event) Wait() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.channel()
}

func (e *Event) channel() chan struct{} {
	if e.ch == nil {
		e.ch = make(chan struct{})
	}
	return e.ch
}
