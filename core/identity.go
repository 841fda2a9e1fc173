package core

import "context"

type (
	// Identity is the authenticated principal as reported by the identity
	// provider. It carries no authorization data; the profile record does.
	Identity struct {
		UID      string
		Email    string
		Name     string
		PhotoURL string
	}

	// IdentityClaims are the provider-trusted claims attached to an
	// identity's token. They change slower than the profile record: a claim
	// set on the provider becomes visible only in freshly issued tokens.
	IdentityClaims struct {
		Admin bool
	}

	// IdentityProvider is the hosted identity service the portal trusts for
	// authentication. Change events report the signed-in identity, or nil
	// when signed out.
	IdentityProvider interface {
		// OnChange subscribes to identity change events. The returned
		// function unsubscribes; no callback fires after it returns.
		OnChange(fn func(*Identity)) (unsubscribe func())
		// Claims returns the claims visible on the identity's current token.
		// With forceRefresh a fresh token is issued first, making recently
		// attached claims visible.
		Claims(ctx context.Context, uid string, forceRefresh bool) (IdentityClaims, error)
		SignOut(ctx context.Context, uid string) error
	}
)
