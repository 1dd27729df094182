package audio

import "sync"

// Subscription is the cancellation token returned by every observer
// registration. Cancel is idempotent; after it returns the listener is
// never invoked again.
type Subscription interface {
	Cancel()
}

// signal is the observer registry backing all change notifications.
// Listeners fire in registration order, matching the order mutations
// occurred, and are called without the registry lock held so a listener
// may subscribe or cancel from within its own callback.
type signal[T any] struct {
	mu     sync.Mutex
	nextID int
	subs   []*subscriber[T]
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

func (s *signal[T]) subscribe(fn func(T)) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	sub := &subscriber[T]{id: s.nextID, fn: fn}
	s.subs = append(s.subs, sub)
	return &cancelToken[T]{signal: s, id: sub.id}
}

func (s *signal[T]) emit(value T) {
	s.mu.Lock()
	snapshot := make([]*subscriber[T], len(s.subs))
	copy(snapshot, s.subs)
	s.mu.Unlock()

	for _, sub := range snapshot {
		// A listener cancelled between snapshot and call must not fire.
		if s.contains(sub.id) {
			sub.fn(value)
		}
	}
}

func (s *signal[T]) contains(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.id == id {
			return true
		}
	}
	return false
}

func (s *signal[T]) cancel(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return
		}
	}
}

type cancelToken[T any] struct {
	signal *signal[T]
	id     int
}

func (t *cancelToken[T]) Cancel() {
	t.signal.cancel(t.id)
}
