package jwt

import (
	"errors"
	"testing"
	"time"

	"hubchat/internal/app/identity"
	"hubchat/internal/pkg/errs"
)

const testSecret = "test-secret-key"

func expectUnauthorized(t *testing.T, err error) {
	t.Helper()
	var customErr *errs.CustomError
	if !errors.As(err, &customErr) || customErr.Code != errs.ErrUnauthorized {
		t.Fatalf("got %v, want error code %d", err, errs.ErrUnauthorized)
	}
}

func TestGenerateAndVerifyToken(t *testing.T) {
	id := identity.Identity{SubjectID: "user-a", Role: identity.RoleSpoke, DisplayName: "User A"}

	token, err := GenerateToken(id, testSecret, IdentityExpiration)
	if err != nil {
		t.Fatal(err)
	}

	got, err := NewVerifier(testSecret).Verify(token)
	if err != nil {
		t.Fatal(err)
	}
	if got != id {
		t.Fatalf("verified identity = %+v, want %+v", got, id)
	}
}

func TestVerifyRejectsEmptyToken(t *testing.T) {
	_, err := NewVerifier(testSecret).Verify("")
	expectUnauthorized(t, err)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	id := identity.Identity{SubjectID: "user-a", Role: identity.RoleSpoke}
	token, err := GenerateToken(id, "a different secret", IdentityExpiration)
	if err != nil {
		t.Fatal(err)
	}

	_, err = NewVerifier(testSecret).Verify(token)
	expectUnauthorized(t, err)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	id := identity.Identity{SubjectID: "user-a", Role: identity.RoleSpoke}
	token, err := GenerateToken(id, testSecret, -time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	_, err = NewVerifier(testSecret).Verify(token)
	expectUnauthorized(t, err)
}

func TestVerifyRejectsUnknownRole(t *testing.T) {
	id := identity.Identity{SubjectID: "user-a", Role: identity.Role("ADMIN")}
	token, err := GenerateToken(id, testSecret, IdentityExpiration)
	if err != nil {
		t.Fatal(err)
	}

	_, err = NewVerifier(testSecret).Verify(token)
	expectUnauthorized(t, err)
}

func TestVerifyRejectsEmptySubject(t *testing.T) {
	id := identity.Identity{SubjectID: "", Role: identity.RoleSpoke}
	token, err := GenerateToken(id, testSecret, IdentityExpiration)
	if err != nil {
		t.Fatal(err)
	}

	_, err = NewVerifier(testSecret).Verify(token)
	expectUnauthorized(t, err)
}

func TestParseTokenClaims(t *testing.T) {
	id := identity.Identity{SubjectID: "user-a", Role: identity.RoleHub, DisplayName: "Operator"}
	token, err := GenerateToken(id, testSecret, IdentityExpiration)
	if err != nil {
		t.Fatal(err)
	}

	payload, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatal(err)
	}
	if payload.Subject != "user-a" || payload.Role != "HUB" || payload.DisplayName != "Operator" {
		t.Fatalf("unexpected claims: %+v", payload)
	}
	if payload.Issuer != TokenIssuer {
		t.Fatalf("issuer = %q, want %q", payload.Issuer, TokenIssuer)
	}
}
