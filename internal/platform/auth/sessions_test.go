package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSessionManagerIssueAndParse(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	manager, err := NewSessionManager("test-secret",
		WithSessionTTL(2*time.Hour),
		WithSessionIssuer("rupeeplan-test"),
		WithSessionClock(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("NewSessionManager returned error: %v", err)
	}

	token, expiresAt, err := manager.Issue("usr_123", "Priya@Example.com", []string{"Admin", ""})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if !expiresAt.Equal(now.Add(2 * time.Hour)) {
		t.Fatalf("unexpected expiry %s", expiresAt)
	}

	identity, err := manager.Parse(token)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if identity.UID != "usr_123" {
		t.Fatalf("unexpected uid %s", identity.UID)
	}
	if identity.Email != "priya@example.com" {
		t.Fatalf("expected lowercased email, got %s", identity.Email)
	}
	if !identity.HasRole(RoleAdmin) {
		t.Fatalf("expected admin role, got %v", identity.Roles)
	}
}

func TestSessionManagerDefaultsRoleToUser(t *testing.T) {
	manager, err := NewSessionManager("test-secret")
	if err != nil {
		t.Fatalf("NewSessionManager returned error: %v", err)
	}

	token, _, err := manager.Issue("usr_1", "a@b.co", nil)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	identity, err := manager.Parse(token)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(identity.Roles) != 1 || identity.Roles[0] != RoleUser {
		t.Fatalf("expected fallback user role, got %v", identity.Roles)
	}
}

func TestSessionManagerRejectsExpiredToken(t *testing.T) {
	past := time.Now().Add(-10 * 24 * time.Hour)
	manager, err := NewSessionManager("test-secret", WithSessionClock(func() time.Time { return past }))
	if err != nil {
		t.Fatalf("NewSessionManager returned error: %v", err)
	}

	token, _, err := manager.Issue("usr_1", "a@b.co", nil)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if _, err := manager.Parse(token); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected expired error, got %v", err)
	}
}

func TestSessionManagerRejectsForeignSignature(t *testing.T) {
	issuing, err := NewSessionManager("secret-one")
	if err != nil {
		t.Fatalf("NewSessionManager returned error: %v", err)
	}
	verifying, err := NewSessionManager("secret-two")
	if err != nil {
		t.Fatalf("NewSessionManager returned error: %v", err)
	}

	token, _, err := issuing.Issue("usr_1", "a@b.co", nil)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if _, err := verifying.Parse(token); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
}

func TestSessionManagerRejectsIssuerMismatch(t *testing.T) {
	issuing, err := NewSessionManager("shared-secret", WithSessionIssuer("someone-else"))
	if err != nil {
		t.Fatalf("NewSessionManager returned error: %v", err)
	}
	verifying, err := NewSessionManager("shared-secret")
	if err != nil {
		t.Fatalf("NewSessionManager returned error: %v", err)
	}

	token, _, err := issuing.Issue("usr_1", "a@b.co", nil)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if _, err := verifying.Parse(token); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected issuer mismatch rejection, got %v", err)
	}
}

func TestRequireSessionAllowsValidToken(t *testing.T) {
	manager, err := NewSessionManager("test-secret")
	if err != nil {
		t.Fatalf("NewSessionManager returned error: %v", err)
	}
	token, _, err := manager.Issue("usr_123", "user@example.com", []string{RoleAdmin})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	handlerCalled := false
	handler := manager.RequireSession(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true

		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("expected identity in context")
		}
		if identity.UID != "usr_123" {
			t.Fatalf("unexpected uid: %s", identity.UID)
		}
		if identity.Email != "user@example.com" {
			t.Fatalf("unexpected email: %s", identity.Email)
		}

		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if !handlerCalled {
		t.Fatalf("expected handler to be called")
	}
}

func TestRequireSessionRejectsMissingHeader(t *testing.T) {
	manager, err := NewSessionManager("test-secret")
	if err != nil {
		t.Fatalf("NewSessionManager returned error: %v", err)
	}

	handler := manager.RequireSession(RoleUser)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not execute without a token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	if body["error"] != "unauthenticated" {
		t.Fatalf("expected unauthenticated error, got %v", body["error"])
	}
}

func TestRequireSessionRejectsInsufficientRole(t *testing.T) {
	manager, err := NewSessionManager("test-secret")
	if err != nil {
		t.Fatalf("NewSessionManager returned error: %v", err)
	}
	token, _, err := manager.Issue("usr_123", "user@example.com", []string{RoleUser})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	handler := manager.RequireSession(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not execute for insufficient role")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	if body["error"] != "insufficient_role" {
		t.Fatalf("expected insufficient_role error, got %v", body["error"])
	}
}

func TestRequireSessionRejectsExpiredToken(t *testing.T) {
	past := time.Now().Add(-10 * 24 * time.Hour)
	manager, err := NewSessionManager("test-secret", WithSessionClock(func() time.Time { return past }))
	if err != nil {
		t.Fatalf("NewSessionManager returned error: %v", err)
	}
	token, _, err := manager.Issue("usr_123", "user@example.com", nil)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	handler := manager.RequireSession(RoleUser)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not execute on expired token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	if body["error"] != "token_expired" {
		t.Fatalf("expected token_expired error, got %v", body["error"])
	}
}

func TestOptionalSessionPassesAnonymousRequests(t *testing.T) {
	manager, err := NewSessionManager("test-secret")
	if err != nil {
		t.Fatalf("NewSessionManager returned error: %v", err)
	}

	handler := manager.OptionalSession()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); ok {
			t.Fatalf("expected no identity for anonymous request")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
}

func TestOptionalSessionRejectsBadToken(t *testing.T) {
	manager, err := NewSessionManager("test-secret")
	if err != nil {
		t.Fatalf("NewSessionManager returned error: %v", err)
	}

	handler := manager.OptionalSession()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not execute with a bad token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}
