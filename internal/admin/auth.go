// Package admin implements the authenticated control plane over the realm:
// credential checking, sessions, bans, the audit log, the action layer and
// the admin event bus.
package admin

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/relaymesh/conduit/internal/config"
	"golang.org/x/crypto/bcrypt"
)

// Role is the authorization tier carried by JWT claims and sessions.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleViewer Role = "viewer"
)

// SessionCookieName is the cookie checked as the last authentication step.
const SessionCookieName = "admin_session"

var (
	ErrNoCredentials      = errors.New("no credentials presented")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMethodDisabled     = errors.New("auth method disabled")
	ErrSessionExpired     = errors.New("session expired")
)

// AuthResult reports the outcome of one credential check.
type AuthResult struct {
	Valid  bool
	UserID string
	Role   Role
	Method string
	Err    error
}

func denied(method string, err error) AuthResult {
	return AuthResult{Method: method, Err: err}
}

// AuthManager validates admin credentials with any enabled subset of the
// three methods: apiKey, jwt, basic.
type AuthManager struct {
	methods       map[string]bool
	apiKey        string
	jwtSecret     []byte
	jwtExpiresIn  time.Duration
	basicUser     string
	basicPassword string
	sessions      *SessionManager
}

// NewAuthManager builds the manager from configuration. sessions may be nil
// when cookie auth is not wanted.
func NewAuthManager(cfg config.AdminAuthConfig, sessions *SessionManager) *AuthManager {
	methods := make(map[string]bool, len(cfg.Methods))
	for _, m := range cfg.Methods {
		methods[m] = true
	}
	expires := cfg.JWTExpiresIn
	if expires <= 0 {
		expires = 24 * time.Hour
	}
	return &AuthManager{
		methods:       methods,
		apiKey:        cfg.APIKey,
		jwtSecret:     []byte(cfg.JWTSecret),
		jwtExpiresIn:  expires,
		basicUser:     cfg.BasicUser,
		basicPassword: cfg.BasicPassword,
		sessions:      sessions,
	}
}

// MethodEnabled reports whether a method is configured.
func (m *AuthManager) MethodEnabled(method string) bool {
	return m.methods[method]
}

// ValidateAPIKey checks the shared admin key in constant time.
func (m *AuthManager) ValidateAPIKey(key string) AuthResult {
	if !m.methods["apiKey"] {
		return denied("apiKey", ErrMethodDisabled)
	}
	if m.apiKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(m.apiKey)) != 1 {
		return denied("apiKey", ErrInvalidCredentials)
	}
	return AuthResult{Valid: true, UserID: "api-key", Role: RoleAdmin, Method: "apiKey"}
}

// IssueJWT mints an HS256 token with sub, role and exp claims.
func (m *AuthManager) IssueJWT(userID string, role Role) (string, error) {
	if len(m.jwtSecret) == 0 {
		return "", fmt.Errorf("jwt secret not configured")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": string(role),
		"iat":  now.Unix(),
		"exp":  now.Add(m.jwtExpiresIn).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.jwtSecret)
}

// ValidateJWT verifies signature, expiry and the role claim.
func (m *AuthManager) ValidateJWT(tokenString string) AuthResult {
	if !m.methods["jwt"] {
		return denied("jwt", ErrMethodDisabled)
	}
	if len(m.jwtSecret) == 0 {
		return denied("jwt", ErrInvalidCredentials)
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return denied("jwt", ErrInvalidCredentials)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return denied("jwt", ErrInvalidCredentials)
	}
	sub, _ := claims["sub"].(string)
	roleStr, _ := claims["role"].(string)
	role := Role(roleStr)
	if role != RoleAdmin && role != RoleViewer {
		return denied("jwt", ErrInvalidCredentials)
	}
	return AuthResult{Valid: true, UserID: sub, Role: role, Method: "jwt"}
}

// ValidateBasic checks a base64 "user:pass" pair. The stored password may
// be a bcrypt hash or, as a last resort, plaintext compared in constant
// time.
func (m *AuthManager) ValidateBasic(encoded string) AuthResult {
	if !m.methods["basic"] {
		return denied("basic", ErrMethodDisabled)
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return denied("basic", ErrInvalidCredentials)
	}
	user, pass, found := strings.Cut(string(raw), ":")
	if !found || m.basicUser == "" {
		return denied("basic", ErrInvalidCredentials)
	}
	if subtle.ConstantTimeCompare([]byte(user), []byte(m.basicUser)) != 1 {
		return denied("basic", ErrInvalidCredentials)
	}
	if !m.checkPassword(pass) {
		return denied("basic", ErrInvalidCredentials)
	}
	return AuthResult{Valid: true, UserID: m.basicUser, Role: RoleAdmin, Method: "basic"}
}

func (m *AuthManager) checkPassword(pass string) bool {
	stored := m.basicPassword
	if stored == "" {
		return false
	}
	if strings.HasPrefix(stored, "$2a$") || strings.HasPrefix(stored, "$2b$") || strings.HasPrefix(stored, "$2y$") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(pass)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(pass), []byte(stored)) == 1
}

// AuthenticateRequest tries each credential channel in a fixed order:
// Bearer as JWT, Bearer as Basic, X-API-Key, then the session cookie.
func (m *AuthManager) AuthenticateRequest(headers http.Header) AuthResult {
	authz := strings.TrimSpace(headers.Get("Authorization"))
	switch {
	case strings.HasPrefix(authz, "Bearer "):
		token := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
		if res := m.ValidateJWT(token); res.Valid {
			return res
		}
		if res := m.ValidateBasic(token); res.Valid {
			return res
		}
	case strings.HasPrefix(authz, "Basic "):
		if res := m.ValidateBasic(strings.TrimSpace(strings.TrimPrefix(authz, "Basic "))); res.Valid {
			return res
		}
	}

	if key := strings.TrimSpace(headers.Get("X-API-Key")); key != "" {
		if res := m.ValidateAPIKey(key); res.Valid {
			return res
		}
	}

	if m.sessions != nil {
		req := http.Request{Header: headers}
		if cookie, err := req.Cookie(SessionCookieName); err == nil {
			if res := m.sessions.Validate(cookie.Value); res.Valid {
				return res
			}
		}
	}

	return denied("", ErrNoCredentials)
}
