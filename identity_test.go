package loginbridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryResolvesCaseInsensitively(t *testing.T) {
	reg := NewRegistry()
	svc := newFakeService()
	reg.Register("eos", svc)

	got, ok := reg.Identity(" EOS ")
	require.True(t, ok)
	assert.Same(t, svc, got)

	_, ok = reg.Identity("other")
	assert.False(t, ok)
}

func TestRegistryReplaceAndUnregister(t *testing.T) {
	reg := NewRegistry()
	first, second := newFakeService(), newFakeService()

	reg.Register(DefaultBackendName, first)
	reg.Register(DefaultBackendName, second)
	got, ok := reg.Identity(DefaultBackendName)
	require.True(t, ok)
	assert.Same(t, second, got)

	reg.Unregister(DefaultBackendName)
	_, ok = reg.Identity(DefaultBackendName)
	assert.False(t, ok)

	reg.Register(DefaultBackendName, second)
	reg.Register(DefaultBackendName, nil)
	_, ok = reg.Identity(DefaultBackendName)
	assert.False(t, ok)
}

func TestNilRegistryResolvesNothing(t *testing.T) {
	var reg *Registry
	_, ok := reg.Identity(DefaultBackendName)
	assert.False(t, ok)
}

func TestBackendUnregisteredBetweenLogins(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.facade.Login(t.Context(), 0, MethodDefault))
	h.service.complete(Completion{UserIndex: 0, Success: true})

	h.registry.Unregister(DefaultBackendName)
	assert.ErrorIs(t, h.facade.Login(t.Context(), 0, MethodDefault), ErrServiceUnavailable)
	assert.Equal(t, 1, h.service.callCount())
}
