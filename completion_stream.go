package loginbridge

import (
	"sync"
)

// CompletionStream is a multi-subscriber login-completion stream that
// identity service implementations can embed.
//
// Publish snapshots the subscribers and invokes them without holding the
// lock, so a handler may cancel its own subscription (or any other) while
// running.
type CompletionStream struct {
	mu       sync.Mutex
	nextID   uint64
	handlers []streamEntry
}

type streamEntry struct {
	id      uint64
	handler CompletionHandler
}

type streamSubscription struct {
	stream *CompletionStream
	id     uint64
	once   sync.Once
}

func (s *streamSubscription) Cancel() {
	s.once.Do(func() {
		s.stream.remove(s.id)
	})
}

// Subscribe registers handler and returns its cancellation handle.
func (s *CompletionStream) Subscribe(handler CompletionHandler) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	if handler != nil {
		s.handlers = append(s.handlers, streamEntry{id: id, handler: handler})
	}

	return &streamSubscription{stream: s, id: id}
}

// Publish delivers c to every current subscriber and reports how many were
// invoked.
func (s *CompletionStream) Publish(c Completion) int {
	s.mu.Lock()
	snapshot := make([]CompletionHandler, 0, len(s.handlers))
	for _, e := range s.handlers {
		snapshot = append(snapshot, e.handler)
	}
	s.mu.Unlock()

	for _, h := range snapshot {
		h(c)
	}
	return len(snapshot)
}

// Len reports the number of live subscriptions.
func (s *CompletionStream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}

// Clear drops every subscription.
func (s *CompletionStream) Clear() {
	s.mu.Lock()
	s.handlers = nil
	s.mu.Unlock()
}

func (s *CompletionStream) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.handlers {
		if e.id == id {
			s.handlers = append(s.handlers[:i:i], s.handlers[i+1:]...)
			return
		}
	}
}
