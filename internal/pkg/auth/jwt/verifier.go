package jwt

import (
	"hubchat/internal/app/identity"
	"hubchat/internal/pkg/errs"
	"hubchat/internal/pkg/logx"
)

// Verifier implements identity.Verifier against HS256-signed identity tokens.
// Any defect in the token (missing, malformed, expired, bad signature, unknown
// role, empty subject) yields errs.ErrUnauthorized; the caller refuses the
// connection with no retry.
type Verifier struct {
	secretKey string
}

// NewVerifier returns a Verifier bound to the shared signing secret.
func NewVerifier(secretKey string) *Verifier {
	return &Verifier{secretKey: secretKey}
}

// Verify validates the bearer token and extracts the connection identity.
func (v *Verifier) Verify(token string) (identity.Identity, error) {
	if token == "" {
		return identity.Identity{}, errs.NewError(errs.ErrUnauthorized)
	}

	payload, err := ParseToken(token, v.secretKey)
	if err != nil {
		logx.Warn("Identity token rejected", "error", err.Error())
		return identity.Identity{}, errs.NewError(errs.ErrUnauthorized)
	}

	role, err := identity.ParseRole(payload.Role)
	if err != nil {
		logx.Warn("Identity token carries unknown role", "role", payload.Role)
		return identity.Identity{}, errs.NewError(errs.ErrUnauthorized)
	}

	if payload.Subject == "" {
		logx.Warn("Identity token missing subject claim")
		return identity.Identity{}, errs.NewError(errs.ErrUnauthorized)
	}

	return identity.Identity{
		SubjectID:   payload.Subject,
		Role:        role,
		DisplayName: payload.DisplayName,
	}, nil
}
