package loginbridge

import "strings"

// credentialBuilder maps a login method onto the configured placeholder pairs.
type credentialBuilder struct {
	developer CredentialPair
	portal    CredentialPair
	portalSet map[LoginMethod]struct{}
}

func newCredentialBuilder(cfg CredentialsConfig) credentialBuilder {
	set := map[LoginMethod]struct{}{
		MethodWeb:                 {},
		MethodPersistentWeb:       {},
		methodLegacyWeb:           {},
		methodLegacyPersistentWeb: {},
	}
	for _, m := range cfg.PortalMethods {
		set[LoginMethod(strings.TrimSpace(m))] = struct{}{}
	}

	return credentialBuilder{
		developer: cfg.Developer,
		portal:    cfg.Portal,
		portalSet: set,
	}
}

// usesPortal reports whether method selects the account-portal pair.
func (b credentialBuilder) usesPortal(method LoginMethod) bool {
	_, ok := b.portalSet[method.Normalize()]
	return ok
}

// build returns the credentials for method. Unknown methods get the
// developer pair; Type always carries the normalized method verbatim.
func (b credentialBuilder) build(method LoginMethod) Credentials {
	method = method.Normalize()
	pair := b.developer
	if b.usesPortal(method) {
		pair = b.portal
	}

	return Credentials{
		Type:  string(method),
		ID:    pair.ID,
		Token: pair.Token,
	}
}
