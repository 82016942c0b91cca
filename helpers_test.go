package loginbridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// fakeService is a manually driven IdentityService.
type fakeService struct {
	stream CompletionStream

	mu       sync.Mutex
	calls    []Credentials
	indexes  []int
	userIDs  map[int]string
	loginErr error
	onLogin  func(userIndex int, creds Credentials)
}

func newFakeService() *fakeService {
	return &fakeService{userIDs: make(map[int]string)}
}

func (s *fakeService) Login(_ context.Context, userIndex int, creds Credentials) error {
	s.mu.Lock()
	s.calls = append(s.calls, creds)
	s.indexes = append(s.indexes, userIndex)
	err := s.loginErr
	s.loginErr = nil
	hook := s.onLogin
	s.mu.Unlock()

	if err != nil {
		return err
	}
	if hook != nil {
		hook(userIndex, creds)
	}
	return nil
}

func (s *fakeService) OnLoginComplete(h CompletionHandler) Subscription {
	return s.stream.Subscribe(h)
}

func (s *fakeService) UserID(userIndex int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userIDs[userIndex]
}

func (s *fakeService) setUserID(userIndex int, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userIDs[userIndex] = id
}

func (s *fakeService) failNextLogin(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginErr = err
}

func (s *fakeService) complete(c Completion) int {
	return s.stream.Publish(c)
}

func (s *fakeService) lastCredentials() Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		return Credentials{}
	}
	return s.calls[len(s.calls)-1]
}

func (s *fakeService) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// outcomeRecorder collects (success, message) pairs.
type outcomeRecorder struct {
	mu  sync.Mutex
	got []LoginOutcome
	ch  chan LoginOutcome
}

func newOutcomeRecorder() *outcomeRecorder {
	return &outcomeRecorder{ch: make(chan LoginOutcome, 16)}
}

func (r *outcomeRecorder) OnLoginComplete(success bool, message string) {
	r.record(LoginOutcome{Success: success, Message: message})
}

func (r *outcomeRecorder) record(out LoginOutcome) {
	r.mu.Lock()
	r.got = append(r.got, out)
	r.mu.Unlock()
	r.ch <- out
}

func (r *outcomeRecorder) all() []LoginOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]LoginOutcome, len(r.got))
	copy(out, r.got)
	return out
}

func (r *outcomeRecorder) wait(t *testing.T) LoginOutcome {
	t.Helper()
	select {
	case out := <-r.ch:
		return out
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for login outcome")
		return LoginOutcome{}
	}
}

type testHarness struct {
	coordinator *Coordinator
	facade      *Facade
	service     *fakeService
	registry    *Registry
}

type harnessOption func(*Builder)

func withConfig(mutate func(*Config)) harnessOption {
	return func(b *Builder) {
		mutate(&b.config)
	}
}

func withLogger(logger *zap.Logger) harnessOption {
	return func(b *Builder) {
		b.WithLogger(logger)
	}
}

func withSink(sink AuditSink) harnessOption {
	return func(b *Builder) {
		b.config.Audit.Enabled = true
		b.WithAuditSink(sink)
	}
}

// newHarness builds, initializes and attaches a facade. Attempt ids are
// "att-1", "att-2", ...
func newHarness(t *testing.T, opts ...harnessOption) *testHarness {
	t.Helper()

	svc := newFakeService()
	reg := NewRegistry()
	reg.Register(DefaultBackendName, svc)

	var seq atomic.Int64
	b := New().
		WithRegistry(reg).
		WithLogger(zaptest.NewLogger(t))
	b.newAttemptID = func() string {
		return fmt.Sprintf("att-%d", seq.Add(1))
	}
	for _, opt := range opts {
		opt(b)
	}

	c, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	c.Initialize()
	t.Cleanup(c.Close)

	f := NewFacade(c)
	c.AttachFacade(f)

	return &testHarness{coordinator: c, facade: f, service: svc, registry: reg}
}
