package jwt

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"hubchat/internal/app/identity"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{name: "authorization header", header: "Bearer abc123", want: "abc123"},
		{name: "malformed header", header: "abc123", want: ""},
		{name: "wrong scheme", header: "Basic abc123", want: ""},
		{name: "query parameter fallback", query: "abc123", want: "abc123"},
		{name: "header wins over query", header: "Bearer fromheader", query: "fromquery", want: "fromheader"},
		{name: "absent", want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/?token="+tc.query, nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			if got := BearerToken(r); got != tc.want {
				t.Fatalf("BearerToken() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRequireIdentity(t *testing.T) {
	id := identity.Identity{SubjectID: "user-a", Role: identity.RoleSpoke, DisplayName: "User A"}
	token, err := GenerateToken(id, testSecret, IdentityExpiration)
	if err != nil {
		t.Fatal(err)
	}

	var seen identity.Identity
	handler := RequireIdentity(NewVerifier(testSecret))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatal("identity missing from request context")
		}
		seen = got
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if seen != id {
		t.Fatalf("context identity = %+v, want %+v", seen, id)
	}
}

func TestRequireIdentityRejectsMissingToken(t *testing.T) {
	handler := RequireIdentity(NewVerifier(testSecret))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler reached without a valid token")
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}
