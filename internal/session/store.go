package session

import (
	"sync"
)

// SubscriberBuffer is the channel capacity given to each Subscribe caller.
const SubscriberBuffer = 64

// observer is a synchronous change callback.
type observer struct {
	fn func(State)
}

// subscriber holds a buffered channel for one polling consumer.
type subscriber struct {
	ch   chan State
	once sync.Once
}

// Store is the single mutable cell holding the current State. Only the state
// machine writes to it; everyone else reads snapshots or registers for change
// notifications. All methods are safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	state     State
	observers []*observer
	subs      map[*subscriber]struct{}
}

// NewStore creates a Store holding initial.
func NewStore(initial State) *Store {
	return &Store{
		state: initial,
		subs:  make(map[*subscriber]struct{}),
	}
}

// Get returns the current state.
func (s *Store) Get() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Set replaces the current state and notifies every observer and subscriber.
// Observers run synchronously on the caller's goroutine in registration
// order, after the new state is visible through Get.
func (s *Store) Set(next State) {
	s.mu.Lock()
	s.state = next
	observers := make([]*observer, len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	for _, o := range observers {
		o.fn(next)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for sub := range s.subs {
		select {
		case sub.ch <- next:
		default:
			// Slow consumer; Get always returns the latest state.
		}
	}
}

// Observe registers fn to be called with every new state. The returned
// function removes the registration and may be called more than once.
func (s *Store) Observe(fn func(State)) (cancel func()) {
	o := &observer{fn: fn}
	s.mu.Lock()
	s.observers = append(s.observers, o)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, cur := range s.observers {
			if cur == o {
				s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

// Subscribe returns a channel receiving every new state and an unsubscribe
// function that closes it. States are dropped for a subscriber whose buffer
// is full.
func (s *Store) Subscribe() (<-chan State, func()) {
	sub := &subscriber{ch: make(chan State, SubscriberBuffer)}
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	unsubscribe := func() {
		sub.once.Do(func() {
			s.mu.Lock()
			delete(s.subs, sub)
			s.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, unsubscribe
}

// Len returns the number of observers and subscribers.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.observers) + len(s.subs)
}
