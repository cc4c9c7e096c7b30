package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	auth := NewTokenAuth("test-secret", 8*time.Hour)
	now := time.Now()

	token, exp := auth.Mint("u-1", "admin", now)
	if got, want := exp.Sub(now), 8*time.Hour; got != want {
		t.Errorf("expiry = %v after mint, want %v", got, want)
	}

	claims, err := auth.Verify(token, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.UID != "u-1" || claims.Role != "admin" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestTokenExpiry(t *testing.T) {
	auth := NewTokenAuth("test-secret", time.Hour)
	now := time.Now()

	token, _ := auth.Mint("u-1", "viewer", now)
	if _, err := auth.Verify(token, now.Add(2*time.Hour)); err != ErrTokenExpired {
		t.Errorf("Verify() after expiry error = %v, want ErrTokenExpired", err)
	}
}

func TestTokenTamperRejected(t *testing.T) {
	auth := NewTokenAuth("test-secret", time.Hour)
	now := time.Now()
	token, _ := auth.Mint("u-1", "viewer", now)

	tests := []struct {
		name  string
		token string
	}{
		{"flipped_payload_byte", "x" + token[1:]},
		{"truncated_signature", token[:len(token)-2]},
		{"no_separator", strings.ReplaceAll(token, ".", "")},
		{"wrong_key", func() string {
			other, _ := NewTokenAuth("other-secret", time.Hour).Mint("u-1", "admin", now)
			return other
		}()},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := auth.Verify(tt.token, now); err != ErrTokenInvalid {
				t.Errorf("Verify(%q) error = %v, want ErrTokenInvalid", tt.token, err)
			}
		})
	}
}

func TestTokenDisabledWithoutSecret(t *testing.T) {
	auth := NewTokenAuth("", time.Hour)
	if auth.Enabled() {
		t.Error("Enabled() = true with empty secret")
	}
	token, _ := auth.Mint("u-1", "admin", time.Now())
	if _, err := auth.Verify(token, time.Now()); err == nil {
		t.Error("Verify() accepted a token with no secret configured")
	}
}

func TestRequireRole(t *testing.T) {
	auth := NewTokenAuth("test-secret", time.Hour)
	now := time.Now()

	handler := auth.RequireRole("admin", "operator")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFrom(r.Context())
		if !ok {
			t.Error("claims missing from request context")
		}
		w.Write([]byte(claims.UID))
	}))

	adminToken, _ := auth.Mint("u-admin", "admin", now)
	viewerToken, _ := auth.Mint("u-viewer", "viewer", now)

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{"admin_allowed", "Bearer " + adminToken, http.StatusOK},
		{"viewer_forbidden", "Bearer " + viewerToken, http.StatusForbidden},
		{"missing_header", "", http.StatusUnauthorized},
		{"not_bearer", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"garbage_token", "Bearer junk", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/anchors", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
