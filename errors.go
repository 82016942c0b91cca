package loginbridge

import "errors"

var (
	// ErrNotInitialized is returned by Login before Initialize has run.
	ErrNotInitialized = errors.New("coordinator not initialized")
	// ErrClosed is returned by Login after Close.
	ErrClosed = errors.New("coordinator closed")
	// ErrServiceUnavailable is returned when the configured identity backend
	// cannot be resolved. No observer is notified.
	ErrServiceUnavailable = errors.New("identity service unavailable")
	// ErrNoFacade is returned when a login is issued with no live facade attached.
	ErrNoFacade = errors.New("no login facade attached")
	// ErrLoginInFlight is returned when a login is issued while another
	// attempt is still pending.
	ErrLoginInFlight = errors.New("login attempt already in flight")
	// ErrCoordinatorGone is returned by a facade whose coordinator is no
	// longer reachable.
	ErrCoordinatorGone = errors.New("login coordinator released")
	// ErrFacadeClosed is returned by a closed facade.
	ErrFacadeClosed = errors.New("login facade closed")
	// ErrLoginTimedOut is the outcome message of an attempt that exceeded
	// Config.Login.AttemptTimeout.
	ErrLoginTimedOut = errors.New("login attempt timed out")
	// ErrLoginCancelled is the outcome message of a cancelled attempt.
	ErrLoginCancelled = errors.New("login attempt cancelled")
	// ErrBuilderUsed is returned by a second Build on the same Builder.
	ErrBuilderUsed = errors.New("builder already used")
	// ErrNilRegistry is returned by Build when no ServiceRegistry was set.
	ErrNilRegistry = errors.New("nil service registry")
)
