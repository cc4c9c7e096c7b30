package api

import (
	"errors"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/snarg/rtls-engine/internal/database"
)

type AuthHandler struct {
	db    *database.DB
	token *TokenAuth
}

func NewAuthHandler(db *database.DB, token *TokenAuth) *AuthHandler {
	return &AuthHandler{db: db, token: token}
}

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssueToken exchanges username/password for a bearer token. Unknown users
// and bad passwords get the same answer.
func (h *AuthHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	if !h.token.Enabled() {
		WriteError(w, http.StatusServiceUnavailable, "auth not configured")
		return
	}

	var req tokenRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		WriteError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	user, err := h.db.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			WriteError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		WriteError(w, http.StatusInternalServerError, "failed to look up user")
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		WriteError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, exp := h.token.Mint(user.UID, user.Role, time.Now())
	WriteJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		TokenType: "bearer",
		Role:      user.Role,
		ExpiresAt: exp.UTC(),
	})
}
