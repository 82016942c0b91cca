// Package memory provides a scriptable in-process identity service.
//
// Results are configured per local user index and published asynchronously,
// after an optional delay, on the service's completion stream. In manual mode
// nothing is published until Complete is called.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/loginbridge"
)

// ErrNoResult is the completion error used when no result is scripted for a
// user index and no default result is set.
const ErrNoResult = "NoResultConfigured"

// Result is the completion to publish for a user index.
type Result struct {
	Success bool
	UserID  string
	Error   string
}

// Call records one Login invocation.
type Call struct {
	UserIndex   int
	Credentials loginbridge.Credentials
}

type Option func(*Service)

// WithDelay delays every automatic completion by d.
func WithDelay(d time.Duration) Option {
	return func(s *Service) {
		s.delay = d
	}
}

// WithManualCompletion disables automatic completions; tests drive the
// stream with Complete.
func WithManualCompletion() Option {
	return func(s *Service) {
		s.manual = true
	}
}

// WithDefaultResult sets the result used for unscripted user indexes.
func WithDefaultResult(r Result) Option {
	return func(s *Service) {
		s.fallback = &r
	}
}

// Service implements loginbridge.IdentityService in memory.
type Service struct {
	stream loginbridge.CompletionStream

	delay  time.Duration
	manual bool

	mu       sync.Mutex
	results  map[int]Result
	fallback *Result
	userIDs  map[int]string
	calls    []Call
	loginErr error

	wg sync.WaitGroup
}

func New(opts ...Option) *Service {
	s := &Service{
		results: make(map[int]Result),
		userIDs: make(map[int]string),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// SetResult scripts the completion for userIndex.
func (s *Service) SetResult(userIndex int, r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[userIndex] = r
}

// SetUserID binds userIndex to id, as an existing backend session would.
func (s *Service) SetUserID(userIndex int, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" {
		delete(s.userIDs, userIndex)
		return
	}
	s.userIDs[userIndex] = id
}

// FailNextLogin makes the next Login call return err synchronously.
func (s *Service) FailNextLogin(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginErr = err
}

func (s *Service) Login(_ context.Context, userIndex int, creds loginbridge.Credentials) error {
	s.mu.Lock()
	s.calls = append(s.calls, Call{UserIndex: userIndex, Credentials: creds})
	if err := s.loginErr; err != nil {
		s.loginErr = nil
		s.mu.Unlock()
		return err
	}
	if s.manual {
		s.mu.Unlock()
		return nil
	}

	r, ok := s.results[userIndex]
	if !ok {
		if s.fallback != nil {
			r = *s.fallback
		} else {
			r = Result{Error: ErrNoResult}
		}
	}
	if r.Success && r.UserID != "" {
		s.userIDs[userIndex] = r.UserID
	}
	delay := s.delay
	s.mu.Unlock()

	done := loginbridge.Completion{
		UserIndex: userIndex,
		Success:   r.Success,
		UserID:    r.UserID,
		Error:     r.Error,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if delay > 0 {
			time.Sleep(delay)
		}
		s.stream.Publish(done)
	}()

	return nil
}

func (s *Service) OnLoginComplete(handler loginbridge.CompletionHandler) loginbridge.Subscription {
	return s.stream.Subscribe(handler)
}

func (s *Service) UserID(userIndex int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userIDs[userIndex]
}

// Complete publishes c to the current subscribers and returns how many were
// invoked. A successful completion also binds c.UserID to the slot.
func (s *Service) Complete(c loginbridge.Completion) int {
	if c.Success && c.UserID != "" {
		s.SetUserID(c.UserIndex, c.UserID)
	}
	return s.stream.Publish(c)
}

// Calls returns a copy of every recorded Login call.
func (s *Service) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Subscribers reports the live completion subscriptions.
func (s *Service) Subscribers() int {
	return s.stream.Len()
}

// Wait blocks until every automatic completion has been published.
func (s *Service) Wait() {
	s.wg.Wait()
}
