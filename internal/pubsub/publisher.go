// Package pubsub delivers messages from one sender to many independent receivers.
package pubsub

import (
	"errors"
	"sync"
)

var (
	ErrPublisherClosed = errors.New("publisher closed")
)

type Receiver[T any] interface {
	Receive() <-chan T
}

type Closer interface {
	Close()
}

type ReceiverCloser[T any] interface {
	Receiver[T]
	Closer
}

// A Publisher fans out every message to every current subscriber. Send never blocks: each subscriber has its own
// unbounded queue, so a slow receiver delays only itself.
type Publisher[T any] interface {
	// Send queues msg for all subscribers, returning false if the publisher is closed.
	Send(msg T) bool
	Subscribe() (ReceiverCloser[T], error)
	// SubscribeFiltered is like Subscribe, but only messages for which f returns true are queued.
	SubscribeFiltered(f func(T) bool) (ReceiverCloser[T], error)
	// Close stops accepting messages. Subscribers still receive everything queued before Close, after which their
	// channels are closed.
	Close()
}

type publisher[T any] struct {
	mu          sync.Mutex
	subscribers map[*subscriber[T]]struct{}
	closed      bool
}

func NewPublisher[T any]() Publisher[T] {
	return &publisher[T]{
		subscribers: make(map[*subscriber[T]]struct{}),
	}
}

func (p *publisher[T]) Send(msg T) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	for s := range p.subscribers {
		s.push(msg)
	}
	return true
}

func (p *publisher[T]) Subscribe() (ReceiverCloser[T], error) {
	return p.SubscribeFiltered(nil)
}

func (p *publisher[T]) SubscribeFiltered(f func(T) bool) (ReceiverCloser[T], error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPublisherClosed
	}
	s := newSubscriber[T](f, p.unsubscribe)
	p.subscribers[s] = struct{}{}
	go s.run()
	return s, nil
}

func (p *publisher[T]) unsubscribe(s *subscriber[T]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.subscribers, s)
}

// Close is idempotent.
func (p *publisher[T]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for s := range p.subscribers {
		s.drain()
	}
	p.subscribers = nil
}

type subscriber[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []T
	filter   func(T) bool
	out      chan T
	done     chan struct{}
	closed   bool
	draining bool
	detach   func(*subscriber[T])
}

func newSubscriber[T any](filter func(T) bool, detach func(*subscriber[T])) *subscriber[T] {
	s := &subscriber[T]{
		filter: filter,
		out:    make(chan T),
		done:   make(chan struct{}),
		detach: detach,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *subscriber[T]) Receive() <-chan T {
	return s.out
}

// Close discards anything still queued and closes the receive channel. Idempotent.
func (s *subscriber[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	s.cond.Broadcast()
	s.mu.Unlock()
	s.detach(s)
}

func (s *subscriber[T]) push(msg T) {
	if s.filter != nil && !s.filter(msg) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.draining {
		return
	}
	s.queue = append(s.queue, msg)
	s.cond.Signal()
}

// drain marks the subscriber as finished once its queue is empty.
func (s *subscriber[T]) drain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draining = true
	s.cond.Broadcast()
}

func (s *subscriber[T]) run() {
	defer close(s.out)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.draining && !s.closed {
			s.cond.Wait()
		}
		if s.closed || len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		var zero T
		msg := s.queue[0]
		s.queue[0] = zero
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- msg:
		case <-s.done:
			return
		}
	}
}
