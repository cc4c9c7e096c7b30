package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

var (
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenExpired = errors.New("token expired")
)

// Claims is the signed token payload.
type Claims struct {
	UID       string `json:"uid"`
	Role      string `json:"role"`
	ExpiresAt int64  `json:"exp"`
}

// TokenAuth mints and verifies bearer tokens: a base64url JSON payload signed
// with HMAC-SHA256. An empty secret disables auth entirely; every verification
// fails, so protected routes stay closed rather than open.
type TokenAuth struct {
	secret   []byte
	lifetime time.Duration
}

func NewTokenAuth(secret string, lifetime time.Duration) *TokenAuth {
	return &TokenAuth{secret: []byte(secret), lifetime: lifetime}
}

// Enabled reports whether a signing secret is configured.
func (t *TokenAuth) Enabled() bool {
	return len(t.secret) > 0
}

// Mint issues a token for the given subject, expiring after the configured
// lifetime.
func (t *TokenAuth) Mint(uid, role string, now time.Time) (string, time.Time) {
	exp := now.Add(t.lifetime)
	payload, _ := json.Marshal(Claims{UID: uid, Role: role, ExpiresAt: exp.Unix()})
	body := base64.RawURLEncoding.EncodeToString(payload)
	return body + "." + t.sign(body), exp
}

// Verify checks the signature and expiry and returns the claims.
func (t *TokenAuth) Verify(token string, now time.Time) (Claims, error) {
	if !t.Enabled() {
		return Claims{}, ErrTokenInvalid
	}
	body, sig, ok := strings.Cut(token, ".")
	if !ok {
		return Claims{}, ErrTokenInvalid
	}
	if !hmac.Equal([]byte(t.sign(body)), []byte(sig)) {
		return Claims{}, ErrTokenInvalid
	}
	payload, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return Claims{}, ErrTokenInvalid
	}
	var c Claims
	if err := json.Unmarshal(payload, &c); err != nil {
		return Claims{}, ErrTokenInvalid
	}
	if now.Unix() >= c.ExpiresAt {
		return Claims{}, ErrTokenExpired
	}
	return c, nil
}

func (t *TokenAuth) sign(body string) string {
	mac := hmac.New(sha256.New, t.secret)
	mac.Write([]byte(body))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

type claimsKey struct{}

// ClaimsFrom returns the verified claims stored by RequireRole.
func ClaimsFrom(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(Claims)
	return c, ok
}

// RequireRole returns middleware that admits only bearers whose token carries
// one of the given roles.
func (t *TokenAuth) RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || token == "" {
				WriteError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			claims, err := t.Verify(token, time.Now())
			if err != nil {
				WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			allowed := false
			for _, role := range roles {
				if claims.Role == role {
					allowed = true
					break
				}
			}
			if !allowed {
				WriteError(w, http.StatusForbidden, "insufficient role")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
