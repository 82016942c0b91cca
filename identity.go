package loginbridge

import (
	"context"
	"strings"
	"sync"
)

// DefaultBackendName is the registry name the coordinator resolves unless
// Config.Backend.Name says otherwise.
const DefaultBackendName = "EOS"

// CompletionHandler receives one login completion from an identity service.
type CompletionHandler func(Completion)

// Subscription is a handle on a registered CompletionHandler.
// Cancel is idempotent and safe to call from inside the handler.
type Subscription interface {
	Cancel()
}

// IdentityService is the external backend that verifies credentials.
//
// Login starts an attempt and returns without waiting for it. The result is
// published later, on any goroutine, to handlers registered through
// OnLoginComplete. UserID resolves the user currently bound to a local user
// slot, or "" when none is.
type IdentityService interface {
	Login(ctx context.Context, userIndex int, creds Credentials) error
	OnLoginComplete(handler CompletionHandler) Subscription
	UserID(userIndex int) string
}

// ServiceRegistry resolves identity services by backend name.
type ServiceRegistry interface {
	Identity(name string) (IdentityService, bool)
}

// Registry is a concurrency-safe ServiceRegistry.
type Registry struct {
	mu       sync.RWMutex
	services map[string]IdentityService
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{services: make(map[string]IdentityService)}
}

// Register binds name to svc, replacing any previous binding. A nil svc
// removes the binding.
func (r *Registry) Register(name string, svc IdentityService) {
	key := registryKey(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if svc == nil {
		delete(r.services, key)
		return
	}
	r.services[key] = svc
}

// Unregister removes the binding for name.
func (r *Registry) Unregister(name string) {
	r.Register(name, nil)
}

// Identity implements ServiceRegistry. Names are matched case-insensitively.
func (r *Registry) Identity(name string) (IdentityService, bool) {
	if r == nil {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	svc, ok := r.services[registryKey(name)]
	return svc, ok && svc != nil
}

func registryKey(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
