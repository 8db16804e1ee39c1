package auth

import (
	"context"
	"fmt"
	"slices"

	"github.com/coreos/go-oidc/v3/oidc"

	"ktu-bizconnect/internal/saleerrors"
)

// IDTokenVerifier is satisfied by *oidc.IDTokenVerifier.
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)
}

// OIDCVerifier accepts access tokens from the university identity provider (Keycloak) that
// carry the admin realm role.
type OIDCVerifier struct {
	verifier IDTokenVerifier
}

type keycloakClaims struct {
	Sub               string `json:"sub"`
	PreferredUsername string `json:"preferred_username"`
	RealmAccess       struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

func NewOIDCVerifier(ctx context.Context, issuer, clientID string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("create OIDC provider: %w", err)
	}
	v := provider.Verifier(&oidc.Config{ClientID: clientID})
	return NewOIDCVerifierFrom(v), nil
}

func NewOIDCVerifierFrom(v IDTokenVerifier) *OIDCVerifier {
	return &OIDCVerifier{verifier: v}
}

func (o *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*Principal, error) {
	idToken, err := o.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, saleerrors.ErrInvalidToken
	}

	var claims keycloakClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, saleerrors.ErrInvalidToken
	}
	if !slices.Contains(claims.RealmAccess.Roles, RoleAdmin) {
		return nil, saleerrors.ErrForbidden
	}

	subject := claims.PreferredUsername
	if subject == "" {
		subject = claims.Sub
	}
	return &Principal{
		Subject:   subject,
		Method:    "oidc",
		ExpiresAt: idToken.Expiry,
	}, nil
}
