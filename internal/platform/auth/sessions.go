package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
)

const (
	defaultSessionTTL    = 168 * time.Hour
	defaultSessionIssuer = "rupeeplan-api"
)

var (
	// ErrSessionExpired signals that the presented session token has expired.
	ErrSessionExpired = errors.New("auth: session token expired")
	// ErrSessionInvalid signals that the presented session token failed verification.
	ErrSessionInvalid = errors.New("auth: session token invalid")
)

// sessionClaims carries the account details embedded in issued tokens.
type sessionClaims struct {
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// SessionManager issues and verifies the HS256 bearer tokens backing
// first-party account sessions.
type SessionManager struct {
	secret []byte
	ttl    time.Duration
	issuer string
	clock  func() time.Time
}

// SessionOption customises SessionManager behaviour.
type SessionOption func(*SessionManager)

// WithSessionTTL overrides the issued token lifetime.
func WithSessionTTL(ttl time.Duration) SessionOption {
	return func(m *SessionManager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithSessionIssuer overrides the iss claim on issued tokens.
func WithSessionIssuer(issuer string) SessionOption {
	return func(m *SessionManager) {
		issuer = strings.TrimSpace(issuer)
		if issuer != "" {
			m.issuer = issuer
		}
	}
}

// WithSessionClock injects the time source used for iat/exp claims.
func WithSessionClock(clock func() time.Time) SessionOption {
	return func(m *SessionManager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// NewSessionManager constructs a manager signing with the provided secret.
func NewSessionManager(secret string, opts ...SessionOption) (*SessionManager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: session secret is required")
	}

	m := &SessionManager{
		secret: []byte(secret),
		ttl:    defaultSessionTTL,
		issuer: defaultSessionIssuer,
		clock:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// TTL returns the configured token lifetime.
func (m *SessionManager) TTL() time.Duration {
	return m.ttl
}

// Issue mints a signed token for the account and returns it with its expiry.
func (m *SessionManager) Issue(userID, email string, roles []string) (string, time.Time, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", time.Time{}, errors.New("auth: user id is required")
	}

	normalized := make([]string, 0, len(roles))
	for _, role := range roles {
		if role := normaliseRole(role); role != "" {
			normalized = append(normalized, role)
		}
	}
	if len(normalized) == 0 {
		normalized = []string{RoleUser}
	}

	now := m.clock().UTC()
	expiresAt := now.Add(m.ttl)
	claims := sessionClaims{
		Email: strings.ToLower(strings.TrimSpace(email)),
		Roles: normalized,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign session token: %w", err)
	}
	return token, expiresAt, nil
}

// Parse verifies the token signature and expiry and returns the identity it names.
func (m *SessionManager) Parse(tokenStr string) (*Identity, error) {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return nil, fmt.Errorf("%w: empty token", ErrSessionInvalid)
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &sessionClaims{}
	if _, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrSessionInvalid, err)
	}

	if m.issuer != "" && claims.Issuer != m.issuer {
		return nil, fmt.Errorf("%w: issuer mismatch", ErrSessionInvalid)
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return nil, fmt.Errorf("%w: subject missing", ErrSessionInvalid)
	}

	roles := claims.Roles
	if len(roles) == 0 {
		roles = []string{RoleUser}
	}
	return &Identity{UID: subject, Email: claims.Email, Roles: roles}, nil
}

// RequireSession verifies the Authorization bearer token and ensures allowed roles.
func (m *SessionManager) RequireSession(allowedRoles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedRoles))
	for _, role := range allowedRoles {
		role = normaliseRole(role)
		if role == "" {
			continue
		}
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
				return
			}
			if m == nil {
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "authorization service unavailable")
				return
			}

			identity, err := m.Parse(tokenStr)
			if err != nil {
				respondSessionError(w, err)
				return
			}

			if len(allowed) > 0 && !hasAllowedRole(identity.Roles, allowed) {
				respondAuthError(w, http.StatusUnauthorized, "insufficient_role", "identity does not have required role")
				return
			}

			ctx := WithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalSession attaches an identity when a bearer token is present. Requests
// without a token pass through anonymously; a token that fails verification is
// still rejected so a caller never proceeds with stale credentials.
func (m *SessionManager) OptionalSession() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			if m == nil {
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "authorization service unavailable")
				return
			}

			identity, err := m.Parse(tokenStr)
			if err != nil {
				respondSessionError(w, err)
				return
			}

			ctx := WithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func respondSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSessionExpired):
		respondAuthError(w, http.StatusUnauthorized, "token_expired", "session token expired")
	default:
		respondAuthError(w, http.StatusUnauthorized, "invalid_token", "session token invalid")
	}
}

func hasAllowedRole(identityRoles []string, allowed map[string]struct{}) bool {
	for _, role := range identityRoles {
		if _, ok := allowed[normaliseRole(role)]; ok {
			return true
		}
	}
	return false
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", false
	}

	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}

	return token, true
}

func respondAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   code,
		"message": message,
		"status":  status,
	})
}
