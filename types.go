package loginbridge

import (
	"strings"
	"time"
)

// LoginMethod names the credential scheme used for a login attempt.
//
// The set is open: unrecognized values are accepted and fall back to the
// developer credential pair.
type LoginMethod string

const (
	// MethodDefault selects the local developer credential pair.
	MethodDefault LoginMethod = "default"
	// MethodDeveloper is the developer-tool scheme; it uses the developer pair.
	MethodDeveloper LoginMethod = "developer"
	// MethodPassword is the password-equivalent scheme; it uses the developer pair.
	MethodPassword LoginMethod = "password"
	// MethodPersistentAuth is the persistent-token scheme; it uses the developer pair.
	MethodPersistentAuth LoginMethod = "persistentauth"
	// MethodWeb selects the account-portal credential pair.
	MethodWeb LoginMethod = "web"
	// MethodPersistentWeb selects the account-portal credential pair and asks
	// the backend to keep the portal session.
	MethodPersistentWeb LoginMethod = "persistent-web"

	// Legacy spellings of the portal methods still sent by older clients.
	methodLegacyWeb           LoginMethod = "weblogin"
	methodLegacyPersistentWeb LoginMethod = "persistweblogin"
)

// Normalize trims the method and maps the empty value to MethodDefault.
func (m LoginMethod) Normalize() LoginMethod {
	v := LoginMethod(strings.TrimSpace(string(m)))
	if v == "" {
		return MethodDefault
	}
	return v
}

// LoginRequest is the input of one login attempt. It is never persisted.
type LoginRequest struct {
	UserIndex int
	Method    LoginMethod
}

// Credentials are handed to the identity service for one attempt.
type Credentials struct {
	Type  string
	ID    string
	Token string
}

// Completion is the raw result an IdentityService publishes on its
// login-completion stream.
type Completion struct {
	UserIndex int
	Success   bool
	UserID    string
	Error     string
}

// OutcomeKind classifies how an attempt resolved.
type OutcomeKind int

const (
	// OutcomeSucceeded means the backend accepted the credentials.
	OutcomeSucceeded OutcomeKind = iota
	// OutcomeAlreadyAuthenticated means the backend reported an existing
	// session, which counts as success.
	OutcomeAlreadyAuthenticated
	// OutcomeFailed means the backend reported an error.
	OutcomeFailed
	// OutcomeTimedOut means no completion arrived before the attempt timeout.
	OutcomeTimedOut
	// OutcomeCancelled means the attempt was cancelled locally.
	OutcomeCancelled
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeAlreadyAuthenticated:
		return "already_authenticated"
	case OutcomeFailed:
		return "failed"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// LoginOutcome is the normalized result of one attempt. Observers receive
// Success and Message; the remaining fields are context for rich observers.
type LoginOutcome struct {
	Success bool
	Message string

	Kind        OutcomeKind
	AttemptID   string
	UserIndex   int
	Method      LoginMethod
	UserID      string
	StartedAt   time.Time
	CompletedAt time.Time
}

// Duration returns how long the attempt was outstanding.
func (o LoginOutcome) Duration() time.Duration {
	if o.StartedAt.IsZero() || o.CompletedAt.IsZero() {
		return 0
	}
	return o.CompletedAt.Sub(o.StartedAt)
}
