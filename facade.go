package loginbridge

import (
	"context"
	"fmt"
	"sync"
	"weak"

	"go.uber.org/zap"
)

// Observer receives the (success, message) pair of every completed attempt.
type Observer interface {
	OnLoginComplete(success bool, message string)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(success bool, message string)

func (f ObserverFunc) OnLoginComplete(success bool, message string) {
	f(success, message)
}

// ObserverID identifies a subscription on a Facade.
type ObserverID uint64

type observerEntry struct {
	id       ObserverID
	observer Observer
	outcome  func(LoginOutcome)
}

// Facade is the stable login surface handed to UI or session code. It
// forwards Login to its Coordinator and re-broadcasts every outcome to its
// observers, synchronously and in registration order.
//
// A Facade does not keep its Coordinator alive, and the Coordinator does not
// keep the Facade alive.
type Facade struct {
	coordinator weak.Pointer[Coordinator]
	logger      *zap.Logger
	metrics     *Metrics

	mu        sync.Mutex
	nextID    ObserverID
	observers []observerEntry
	closed    bool
}

// NewFacade returns a facade bound to c. Call c.AttachFacade to make it the
// coordinator's notification target.
func NewFacade(c *Coordinator) *Facade {
	f := &Facade{logger: zap.NewNop()}
	if c != nil {
		f.coordinator = weak.Make(c)
		f.logger = c.logger.Named("facade")
		f.metrics = c.metrics
	}
	return f
}

// Login delegates to the coordinator without buffering.
func (f *Facade) Login(ctx context.Context, userIndex int, method LoginMethod) error {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return ErrFacadeClosed
	}

	c := f.coordinator.Value()
	if c == nil {
		f.logger.Warn("login issued on a facade whose coordinator is gone",
			zap.Int("user_index", userIndex),
		)
		return ErrCoordinatorGone
	}
	return c.Login(ctx, userIndex, method)
}

// Subscribe registers o and returns its id. A nil observer is ignored and
// yields id 0.
func (f *Facade) Subscribe(o Observer) ObserverID {
	if o == nil {
		return 0
	}
	return f.add(observerEntry{observer: o})
}

// SubscribeOutcome registers fn to receive the full LoginOutcome.
func (f *Facade) SubscribeOutcome(fn func(LoginOutcome)) ObserverID {
	if fn == nil {
		return 0
	}
	return f.add(observerEntry{outcome: fn})
}

func (f *Facade) add(e observerEntry) ObserverID {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0
	}
	f.nextID++
	e.id = f.nextID
	f.observers = append(f.observers, e)
	return e.id
}

// Unsubscribe removes the observer id and reports whether it was present.
func (f *Facade) Unsubscribe(id ObserverID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, e := range f.observers {
		if e.id == id {
			f.observers = append(f.observers[:i:i], f.observers[i+1:]...)
			return true
		}
	}
	return false
}

// Observers reports the number of registered observers.
func (f *Facade) Observers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.observers)
}

// Close drops every observer and detaches the facade from its coordinator.
// Outcomes arriving afterwards are dropped.
func (f *Facade) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.observers = nil
	f.mu.Unlock()

	if c := f.coordinator.Value(); c != nil {
		c.DetachFacade(f)
	}
}

// publish broadcasts out to a snapshot of the observers. It returns false
// when the facade is closed.
func (f *Facade) publish(out LoginOutcome) bool {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return false
	}
	snapshot := make([]observerEntry, len(f.observers))
	copy(snapshot, f.observers)
	f.mu.Unlock()

	for _, e := range snapshot {
		f.invoke(e, out)
	}
	return true
}

func (f *Facade) invoke(e observerEntry, out LoginOutcome) {
	defer func() {
		if r := recover(); r != nil {
			f.metrics.Inc(MetricObserverPanic)
			f.logger.Error("login observer panicked",
				zap.Uint64("observer_id", uint64(e.id)),
				zap.String("attempt_id", out.AttemptID),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()

	if e.outcome != nil {
		e.outcome(out)
		return
	}
	e.observer.OnLoginComplete(out.Success, out.Message)
}
