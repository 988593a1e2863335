package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/example/checkout-service/internal/auth"
	"github.com/google/uuid"
)

// AuthHandlers issues the session tokens that identify carts and
// checkout sessions: anonymous guest tokens for shoppers and a
// credentialed login for the admin role.
type AuthHandlers struct {
	jwtService        *auth.JWTService
	adminEmail        string
	adminPasswordHash string
}

func NewAuthHandlers(jwtService *auth.JWTService, adminEmail, adminPasswordHash string) *AuthHandlers {
	return &AuthHandlers{
		jwtService:        jwtService,
		adminEmail:        adminEmail,
		adminPasswordHash: adminPasswordHash,
	}
}

type tokenResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Guest issues a token with a fresh user id so anonymous shoppers get a
// stable cart key across requests.
func (h *AuthHandlers) Guest(w http.ResponseWriter, r *http.Request) {
	userID := "guest-" + uuid.New().String()

	token, expiresAt, err := h.jwtService.GenerateToken(userID, "", auth.RoleShopper)
	if err != nil {
		respondAPIError(w, http.StatusInternalServerError, "failed to issue token", "")
		return
	}

	setTokenCookie(w, token, expiresAt)
	respondJSON(w, http.StatusCreated, tokenResponse{
		Token:     token,
		UserID:    userID,
		Role:      auth.RoleShopper,
		ExpiresAt: expiresAt,
	})
}

// Login authenticates the admin against the credential provisioned in
// the environment.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondAPIError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if h.adminEmail == "" || h.adminPasswordHash == "" {
		respondAPIError(w, http.StatusServiceUnavailable, "admin login is not configured", "")
		return
	}
	if req.Email != h.adminEmail || !auth.CheckPassword(req.Password, h.adminPasswordHash) {
		respondAPIError(w, http.StatusUnauthorized, "invalid credentials", "")
		return
	}

	token, expiresAt, err := h.jwtService.GenerateToken("admin", req.Email, auth.RoleAdmin)
	if err != nil {
		respondAPIError(w, http.StatusInternalServerError, "failed to issue token", "")
		return
	}

	setTokenCookie(w, token, expiresAt)
	respondJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		UserID:    "admin",
		Role:      auth.RoleAdmin,
		ExpiresAt: expiresAt,
	})
}

// Logout clears the session cookie. The cart persisted under the
// guest id is abandoned with the token.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     "access_token",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	w.WriteHeader(http.StatusNoContent)
}

func setTokenCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     "access_token",
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
