// Package loginbridge bridges an asynchronous, callback-based identity
// backend to any number of login observers.
//
// A [Coordinator] owns at most one in-flight login attempt. It resolves the
// configured [IdentityService] from a [ServiceRegistry], registers a one-shot
// completion handler tied to that attempt, and normalizes the completion into
// a [LoginOutcome]. A [Facade] is the stable surface handed to UI or session
// code: it forwards Login to the coordinator and re-broadcasts each outcome to
// its observers exactly once.
//
// # Ownership
//
// The application root builds the coordinator with [Builder], calls
// Initialize, attaches a facade and calls Close at shutdown. Neither the
// coordinator nor the facade keeps the other alive; a completion that
// arrives after its facade was released or closed is dropped.
//
// # Single flight
//
// A second Login while an attempt is pending returns [ErrLoginInFlight].
// Attempts resolve on completion, on Config.Login.AttemptTimeout, or through
// Cancel; after any of these the coordinator accepts a new Login.
//
// # Errors
//
// Login returns an error only for local conditions (not initialized, closed,
// no facade, backend unresolvable, attempt pending). Errors reported by the
// backend are never returned: they reach observers as failed outcomes with
// the backend's text verbatim, except "already logged in" which is reported
// as success.
package loginbridge
