package dispatch

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Authenticator validates system.auth credentials and mints session
// tokens. A shared secret from configuration gates authentication; the
// minted token is a signed JWT whose expiry is reported back to the
// client as expiresAt.
type Authenticator struct {
	required   bool
	token      string
	sessionTTL time.Duration
	signingKey []byte
}

// Session is the outcome of a successful authentication.
type Session struct {
	// Token is a signed JWT the client may present to other surfaces.
	Token string
	// ExpiresAt is the session expiry in Unix milliseconds.
	ExpiresAt int64
}

// NewAuthenticator builds an Authenticator. When required is false every
// Verify succeeds. The signing key is derived from the shared secret.
func NewAuthenticator(required bool, token string, sessionTTL time.Duration) *Authenticator {
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	key := sha256.Sum256([]byte("session:" + token))
	return &Authenticator{
		required:   required,
		token:      token,
		sessionTTL: sessionTTL,
		signingKey: key[:],
	}
}

// Required reports whether unauthenticated connections are gated.
func (a *Authenticator) Required() bool { return a.required }

// Verify checks a system.auth payload and mints a session on success.
func (a *Authenticator) Verify(connID string, data map[string]any) (*Session, error) {
	if a.required {
		presented, _ := data["token"].(string)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(a.token)) != 1 {
			return nil, fmt.Errorf("invalid auth token")
		}
	}

	expires := time.Now().Add(a.sessionTTL)
	claims := jwt.RegisteredClaims{
		Subject:   connID,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.signingKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	return &Session{
		Token:     signed,
		ExpiresAt: expires.UnixMilli(),
	}, nil
}

// ValidateSession parses and verifies a previously minted session token,
// returning the connection ID it was issued to.
func (a *Authenticator) ValidateSession(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.signingKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid session token: %w", err)
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		return "", fmt.Errorf("invalid session token")
	}
	return claims.Subject, nil
}
