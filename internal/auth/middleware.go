package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"ktu-bizconnect/internal/logger"
	"ktu-bizconnect/internal/models"
	"ktu-bizconnect/internal/saleerrors"
	"ktu-bizconnect/internal/utils"
)

// Authenticator owns admin login and the bearer-token check on /api/admin routes.
type Authenticator struct {
	Tokens      *TokenIssuer
	Account     AdminAccount
	OIDC        *OIDCVerifier  // nil when no identity provider is configured
	Revocations RevocationList // nil disables logout
	Logger      *logger.Logger
}

func (a *Authenticator) Login(ctx context.Context, username, password string) (*models.LoginResponse, error) {
	if err := a.Account.Check(username, password); err != nil {
		a.Logger.LogSecurity("LOGIN_FAILED", fmt.Sprintf("username=%q", username))
		return nil, err
	}

	token, claims, err := a.Tokens.Issue(username)
	if err != nil {
		return nil, err
	}

	a.Logger.LogSecurity("LOGIN", fmt.Sprintf("admin %s signed in", username))
	return &models.LoginResponse{Token: token, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Logout revokes the caller's own token. Identity-provider tokens are left to the provider.
func (a *Authenticator) Logout(ctx context.Context, p *Principal) error {
	if p == nil {
		return saleerrors.ErrMissingToken
	}
	if p.TokenID == "" || a.Revocations == nil {
		return nil
	}
	if err := a.Revocations.Revoke(ctx, p.TokenID, p.ExpiresAt); err != nil {
		return err
	}
	a.Logger.LogSecurity("LOGOUT", fmt.Sprintf("admin %s signed out", p.Subject))
	return nil
}

// Authenticate resolves a raw bearer token to an admin principal.
func (a *Authenticator) Authenticate(ctx context.Context, rawToken string) (*Principal, error) {
	if a.OIDC != nil && !looksLikeLocalToken(rawToken) {
		return a.OIDC.Verify(ctx, rawToken)
	}

	claims, err := a.Tokens.Parse(rawToken)
	if err != nil {
		return nil, err
	}

	if a.Revocations != nil {
		revoked, err := a.Revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return nil, saleerrors.ErrInvalidToken
		}
	}

	return &Principal{
		Subject:   claims.Subject,
		Method:    "password",
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// RequireAdmin rejects requests without a valid admin bearer token and stores the principal
// in the request context.
func (a *Authenticator) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawToken, err := ExtractTokenFromRequest(r)
		if err != nil {
			utils.WriteError(w, http.StatusUnauthorized, saleerrors.Message(err), "UNAUTHORIZED", "")
			return
		}

		principal, err := a.Authenticate(r.Context(), rawToken)
		if err != nil {
			if !errors.Is(err, saleerrors.ErrUnauthorized) {
				a.Logger.Error("AUTH", fmt.Sprintf("token check failed: %v", err))
				utils.WriteError(w, http.StatusInternalServerError, "could not verify token", "INTERNAL", "")
				return
			}
			a.Logger.LogSecurity("REJECTED", fmt.Sprintf("%s %s: %s", r.Method, r.URL.Path, saleerrors.Message(err)))
			utils.WriteError(w, http.StatusUnauthorized, saleerrors.Message(err), "UNAUTHORIZED", "")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}
