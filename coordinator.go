package loginbridge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
	"weak"

	"go.uber.org/zap"
)

const (
	successMessagePrefix         = "Login Complete Without Errors, User id = "
	alreadyLoggedInMessagePrefix = "Already logged in, User id = "
)

// Coordinator owns the single outstanding login attempt against the
// configured identity service and turns its completion into one LoginOutcome
// delivered to the attached Facade.
//
// Construct it with Builder.Build, call Initialize once the application is
// ready and Close at shutdown. All methods are safe for concurrent use;
// completions may arrive on any goroutine.
type Coordinator struct {
	config       Config
	registry     ServiceRegistry
	logger       *zap.Logger
	metrics      *Metrics
	auditSink    AuditSink
	audit        *auditDispatcher
	credentials  credentialBuilder
	alreadyIn    map[string]struct{}
	newAttemptID func() string
	now          func() time.Time

	initOnce    sync.Once
	initialized atomic.Bool
	closed      atomic.Bool

	mu      sync.Mutex
	facade  weak.Pointer[Facade]
	pending *attempt
}

// attempt is the state of one in-flight login. sub and timer are written
// under Coordinator.mu before the identity service is called.
type attempt struct {
	id        string
	req       LoginRequest
	backend   string
	service   IdentityService
	sub       Subscription
	timer     *time.Timer
	startedAt time.Time
}

// Initialize marks the coordinator ready and starts the audit dispatcher.
// Only the first call has an effect.
func (c *Coordinator) Initialize() {
	c.initOnce.Do(func() {
		if c.closed.Load() {
			return
		}
		c.audit = newAuditDispatcher(c.config.Audit, c.auditSink)
		c.initialized.Store(true)
		c.logger.Debug("login coordinator initialized",
			zap.String("backend", c.config.Backend.Name),
			zap.Duration("attempt_timeout", c.config.Login.AttemptTimeout),
		)
	})
}

// AttachFacade makes f the target of future outcomes, replacing any previous
// facade. The coordinator keeps only a weak reference; a nil f detaches.
func (c *Coordinator) AttachFacade(f *Facade) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if f == nil {
		c.facade = weak.Pointer[Facade]{}
		return
	}
	c.facade = weak.Make(f)
}

// DetachFacade clears the target if, and only if, f is the attached facade.
func (c *Coordinator) DetachFacade(f *Facade) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if f == nil || c.facade.Value() != f {
		return false
	}
	c.facade = weak.Pointer[Facade]{}
	return true
}

func (c *Coordinator) liveFacade() *Facade {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.facade.Value()
}

// Login starts an attempt for the local user slot userIndex and returns
// without waiting for the backend. The outcome is only observable through
// the attached facade.
//
// A non-nil error means no attempt was started and nothing will be
// broadcast. Backend failures are never returned here; they are delivered to
// observers as failed outcomes.
func (c *Coordinator) Login(ctx context.Context, userIndex int, method LoginMethod) error {
	if ctx == nil {
		ctx = context.Background()
	}

	req := LoginRequest{UserIndex: userIndex, Method: method.Normalize()}
	backend := c.config.Backend.Name
	log := c.logger.With(
		zap.Int("user_index", req.UserIndex),
		zap.String("method", string(req.Method)),
		zap.String("backend", backend),
	)

	if c.closed.Load() {
		log.Warn("login issued after close")
		return ErrClosed
	}
	if !c.initialized.Load() {
		log.Warn("login issued before initialize")
		return ErrNotInitialized
	}

	if c.liveFacade() == nil {
		c.metrics.Inc(MetricLoginNoFacade)
		c.emitRejected(ctx, req, backend, ErrNoFacade)
		log.Warn("login issued with no facade attached")
		return ErrNoFacade
	}

	service, ok := c.registry.Identity(backend)
	if !ok {
		c.metrics.Inc(MetricLoginServiceUnavailable)
		c.emitRejected(ctx, req, backend, ErrServiceUnavailable)
		log.Warn("identity service unavailable, login skipped")
		return ErrServiceUnavailable
	}

	att := &attempt{
		id:        c.newAttemptID(),
		req:       req,
		backend:   backend,
		service:   service,
		startedAt: c.now(),
	}
	log = log.With(zap.String("attempt_id", att.id))

	c.mu.Lock()
	if c.pending != nil {
		pendingID := c.pending.id
		c.mu.Unlock()

		c.metrics.Inc(MetricLoginInFlightRejected)
		c.emitRejected(ctx, req, backend, ErrLoginInFlight)
		log.Warn("login rejected, another attempt is pending", zap.String("pending_attempt_id", pendingID))
		return ErrLoginInFlight
	}
	c.pending = att
	c.mu.Unlock()

	c.metrics.Inc(MetricLoginStarted)
	c.emit(ctx, AuditEvent{
		EventType: AuditLoginStarted,
		AttemptID: att.id,
		Backend:   backend,
		UserIndex: req.UserIndex,
		Method:    string(req.Method),
	})

	// Subscribe outside the lock: the service may publish on another
	// goroutine that is already waiting for it.
	sub := service.OnLoginComplete(func(done Completion) {
		c.complete(att.id, done)
	})

	c.mu.Lock()
	armed := c.pending == att
	if armed {
		att.sub = sub
		if timeout := c.config.Login.AttemptTimeout; timeout > 0 {
			att.timer = time.AfterFunc(timeout, func() {
				c.expire(att.id)
			})
		}
	}
	c.mu.Unlock()

	if !armed {
		// Cancelled or closed between reservation and subscription.
		sub.Cancel()
		return nil
	}

	log.Debug("login attempt started")

	creds := c.credentials.build(req.Method)
	if err := service.Login(ctx, req.UserIndex, creds); err != nil {
		c.metrics.Inc(MetricLoginBackendError)
		log.Warn("identity service rejected login call", zap.Error(err))
		if got := c.take(att.id); got != nil {
			c.finish(got, c.failed(got, err.Error(), OutcomeFailed))
		}
	}

	return nil
}

// Cancel resolves the pending attempt, if any, as cancelled and broadcasts
// that outcome. It reports whether an attempt was pending.
func (c *Coordinator) Cancel() bool {
	c.mu.Lock()
	att := c.pending
	c.mu.Unlock()
	if att == nil {
		return false
	}

	got := c.take(att.id)
	if got == nil {
		return false
	}
	c.finish(got, c.failed(got, ErrLoginCancelled.Error(), OutcomeCancelled))
	return true
}

// Pending returns the in-flight request, if any.
func (c *Coordinator) Pending() (LoginRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil {
		return LoginRequest{}, false
	}
	return c.pending.req, true
}

// Close cancels any pending attempt, stops the audit dispatcher and makes
// later logins fail with ErrClosed. It is idempotent.
func (c *Coordinator) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	// Block a racing Initialize, or wait for one in progress.
	c.initOnce.Do(func() {})

	c.Cancel()
	c.audit.Close()
	c.logger.Debug("login coordinator closed")
}

// Metrics returns the coordinator's counters.
func (c *Coordinator) Metrics() *Metrics {
	return c.metrics
}

// MetricsSnapshot implements the metrics source used by exporters.
func (c *Coordinator) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// AuditDropped reports audit events dropped by dispatcher backpressure.
func (c *Coordinator) AuditDropped() uint64 {
	if !c.initialized.Load() {
		return 0
	}
	return c.audit.Dropped()
}

// complete is the one-shot completion handler registered for attempt id.
func (c *Coordinator) complete(id string, done Completion) {
	c.mu.Lock()
	att := c.pending
	switch {
	case att == nil || att.id != id:
		c.mu.Unlock()
		c.metrics.Inc(MetricStaleCompletion)
		c.logger.Debug("stale login completion dropped",
			zap.String("attempt_id", id),
			zap.Int("user_index", done.UserIndex),
		)
		return
	case done.UserIndex != att.req.UserIndex:
		// Another local user's attempt on a shared backend; keep waiting.
		c.mu.Unlock()
		c.logger.Debug("login completion for another user index ignored",
			zap.String("attempt_id", id),
			zap.Int("user_index", att.req.UserIndex),
			zap.Int("completion_user_index", done.UserIndex),
		)
		return
	}
	c.clearPendingLocked(att)
	c.mu.Unlock()

	if att.sub != nil {
		att.sub.Cancel()
	}
	c.finish(att, c.classify(att, done))
}

// expire resolves attempt id when its timeout fires.
func (c *Coordinator) expire(id string) {
	att := c.take(id)
	if att == nil {
		return
	}
	c.logger.Warn("login attempt timed out",
		zap.String("attempt_id", att.id),
		zap.Int("user_index", att.req.UserIndex),
		zap.Duration("timeout", c.config.Login.AttemptTimeout),
	)
	c.finish(att, c.failed(att, ErrLoginTimedOut.Error(), OutcomeTimedOut))
}

// take removes attempt id from pending, cancels its subscription and stops
// its timer. It returns nil when id is no longer pending.
func (c *Coordinator) take(id string) *attempt {
	c.mu.Lock()
	att := c.pending
	if att == nil || att.id != id {
		c.mu.Unlock()
		return nil
	}
	c.clearPendingLocked(att)
	c.mu.Unlock()

	if att.sub != nil {
		att.sub.Cancel()
	}
	return att
}

func (c *Coordinator) clearPendingLocked(att *attempt) {
	c.pending = nil
	if att.timer != nil {
		att.timer.Stop()
	}
}

func (c *Coordinator) classify(att *attempt, done Completion) LoginOutcome {
	out := c.newOutcome(att)

	switch {
	case done.Success:
		out.Success = true
		out.Kind = OutcomeSucceeded
		out.UserID = c.resolveUserID(att, done)
		out.Message = successMessagePrefix + out.UserID
	case c.isAlreadyLoggedIn(done.Error):
		out.Success = true
		out.Kind = OutcomeAlreadyAuthenticated
		out.UserID = c.resolveUserID(att, done)
		out.Message = alreadyLoggedInMessagePrefix + out.UserID
	default:
		out.Kind = OutcomeFailed
		out.Message = done.Error
	}

	return out
}

func (c *Coordinator) failed(att *attempt, message string, kind OutcomeKind) LoginOutcome {
	out := c.newOutcome(att)
	out.Kind = kind
	out.Message = message
	return out
}

func (c *Coordinator) newOutcome(att *attempt) LoginOutcome {
	return LoginOutcome{
		AttemptID: att.id,
		UserIndex: att.req.UserIndex,
		Method:    att.req.Method,
		StartedAt: att.startedAt,
	}
}

// resolveUserID prefers the service's view of the slot over the id carried
// by the completion.
func (c *Coordinator) resolveUserID(att *attempt, done Completion) string {
	if id := att.service.UserID(att.req.UserIndex); id != "" {
		return id
	}
	return done.UserID
}

func (c *Coordinator) isAlreadyLoggedIn(errText string) bool {
	if errText == "" {
		return false
	}
	_, ok := c.alreadyIn[errText]
	return ok
}

// finish records and broadcasts out. It runs exactly once per attempt.
func (c *Coordinator) finish(att *attempt, out LoginOutcome) {
	out.CompletedAt = c.now()

	switch out.Kind {
	case OutcomeSucceeded:
		c.metrics.Inc(MetricLoginSucceeded)
	case OutcomeAlreadyAuthenticated:
		c.metrics.Inc(MetricLoginAlreadyAuthenticated)
	case OutcomeFailed:
		c.metrics.Inc(MetricLoginFailed)
	case OutcomeTimedOut:
		c.metrics.Inc(MetricLoginTimedOut)
	case OutcomeCancelled:
		c.metrics.Inc(MetricLoginCancelled)
	}
	c.metrics.Observe(MetricLoginLatency, out.Duration())

	event := AuditEvent{
		EventType: AuditLoginCompleted,
		AttemptID: att.id,
		Backend:   att.backend,
		UserIndex: att.req.UserIndex,
		Method:    string(att.req.Method),
		UserID:    out.UserID,
		Outcome:   out.Kind.String(),
		Success:   out.Success,
	}
	if !out.Success {
		event.Error = out.Message
	}
	c.emit(context.Background(), event)

	log := c.logger.With(
		zap.String("attempt_id", att.id),
		zap.Int("user_index", att.req.UserIndex),
		zap.String("outcome", out.Kind.String()),
	)

	f := c.liveFacade()
	if f == nil {
		c.metrics.Inc(MetricOutcomeDropped)
		log.Warn("login outcome dropped, no facade attached")
		return
	}
	if !f.publish(out) {
		c.metrics.Inc(MetricOutcomeDropped)
		log.Debug("login outcome dropped, facade closed")
		return
	}
	log.Debug("login attempt completed", zap.Bool("success", out.Success))
}

func (c *Coordinator) emit(ctx context.Context, event AuditEvent) {
	if !c.initialized.Load() {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = c.now()
	}
	c.audit.Emit(ctx, event)
}

func (c *Coordinator) emitRejected(ctx context.Context, req LoginRequest, backend string, err error) {
	c.emit(ctx, AuditEvent{
		EventType: AuditLoginRejected,
		Backend:   backend,
		UserIndex: req.UserIndex,
		Method:    string(req.Method),
		Error:     err.Error(),
	})
}
