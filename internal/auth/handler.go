package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/velstore/accounts-api/internal/httputil"
	"github.com/velstore/accounts-api/internal/logging"
	"github.com/velstore/accounts-api/internal/user"
)

// RateLimiter is the slice of the Redis limiter the handlers use.
// Limiter failures never block a request.
type RateLimiter interface {
	CheckIPRateLimitWithPurpose(ctx context.Context, ip, purpose string) (bool, error)
	RecordIPRequestWithPurpose(ctx context.Context, ip, purpose string) error
	CheckEmailCooldown(ctx context.Context, email string) (bool, error)
	SetEmailCooldown(ctx context.Context, email string) error
}

// Handler contains HTTP handlers for the account endpoints
type Handler struct {
	service      *Service
	tokens       TokenService
	rateLimiter  RateLimiter
	logger       *logging.Logger
	isProduction bool
	cookieName   string
	sessionTTL   time.Duration
}

func NewHandler(
	service *Service,
	tokens TokenService,
	rateLimiter RateLimiter,
	logger *logging.Logger,
	isProduction bool,
	cookieName string,
	sessionTTL time.Duration,
) *Handler {
	return &Handler{
		service:      service,
		tokens:       tokens,
		rateLimiter:  rateLimiter,
		logger:       logger,
		isProduction: isProduction,
		cookieName:   cookieName,
		sessionTTL:   sessionTTL,
	}
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	// Avatar is the inline image payload (base64 or data URL)
	Avatar string `json:"avatar"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ForgotPasswordRequest represents the password reset request
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest represents the password reset confirmation
type ResetPasswordRequest struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// UpdatePasswordRequest represents the password change request
type UpdatePasswordRequest struct {
	OldPassword     string `json:"oldPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// UpdateProfileRequest represents the profile update request
type UpdateProfileRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	// Avatar, when non-empty, replaces the stored image
	Avatar string `json:"avatar"`
}

// SessionResponse is returned whenever a fresh session is issued
type SessionResponse struct {
	Success bool       `json:"success"`
	Token   string     `json:"token"`
	User    *user.User `json:"user"`
}

// MessageResponse is a success body carrying only a message
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Register handles user registration
// @Summary      Register a new user
// @Description  Create an account with name, email, password and an inline avatar image; issues a session on success.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body RegisterRequest true "Registration details"
// @Success      201 {object} SessionResponse
// @Failure      400 {object} httputil.ErrorResponse "Validation error or duplicate email"
// @Failure      500 {object} httputil.ErrorResponse "Image upload or internal error"
// @Router       /register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if h.rateLimited(w, r, "register") {
		return
	}

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid registration request body", "error", err.Error())
		httputil.RespondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	newUser, err := h.service.Register(r.Context(), req.Name, req.Email, req.Password, req.Avatar)
	if err != nil {
		logger.Warn("registration failed", "email", req.Email, "error", err.Error())
		httputil.RespondNormalizedError(w, err)
		return
	}

	logger.Info("user registered successfully", "user_id", newUser.ID)
	h.respondWithSession(w, r, newUser, http.StatusCreated)
}

// Login handles user login
// @Summary      User login
// @Description  Authenticate and receive a session token as an HTTP-only cookie plus the response body.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body LoginRequest true "Login credentials"
// @Success      200 {object} SessionResponse
// @Failure      400 {object} httputil.ErrorResponse "Missing credentials"
// @Failure      401 {object} httputil.ErrorResponse "Invalid credentials"
// @Router       /login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if h.rateLimited(w, r, "login") {
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid login request body", "error", err.Error())
		httputil.RespondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	existing, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		logger.Warn("login failed", "email", req.Email)
		httputil.RespondNormalizedError(w, err)
		return
	}

	logger.Info("user logged in successfully", "user_id", existing.ID)
	h.respondWithSession(w, r, existing, http.StatusOK)
}

// Logout handles user logout
// @Summary      User logout
// @Description  Clears the session cookie. Sessions are stateless, so this always succeeds.
// @Tags         auth
// @Produce      json
// @Success      200 {object} MessageResponse
// @Router       /logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	ClearSessionCookie(w, h.cookieName, h.isProduction)

	logging.GetLoggerFromContext(r.Context()).Info("user logged out")
	httputil.RespondJSON(w, MessageResponse{Success: true, Message: "Logged Out"}, http.StatusOK)
}

// ForgotPassword handles password reset requests
// @Summary      Request password reset
// @Description  Email a single-use reset link to the account's address.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body ForgotPasswordRequest true "Email address"
// @Success      200 {object} MessageResponse
// @Failure      404 {object} httputil.ErrorResponse "Unknown email"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Failure      500 {object} httputil.ErrorResponse "Email delivery failure"
// @Router       /password/forgot [post]
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if h.rateLimited(w, r, "forgot") {
		return
	}

	var req ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid forgot password request body", "error", err.Error())
		httputil.RespondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	onCooldown, err := h.rateLimiter.CheckEmailCooldown(r.Context(), req.Email)
	if err != nil {
		logger.Error("failed to check email cooldown", "error", err.Error())
		// Continue despite error
	} else if onCooldown {
		logger.Warn("email on cooldown", "email", req.Email)
		httputil.RespondError(w, "please wait before requesting another reset", http.StatusTooManyRequests)
		return
	}

	recipient, err := h.service.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		logger.Warn("forgot password failed", "email", req.Email, "error", err.Error())
		httputil.RespondNormalizedError(w, err)
		return
	}

	if err := h.rateLimiter.SetEmailCooldown(r.Context(), recipient); err != nil {
		logger.Error("failed to set email cooldown", "error", err.Error())
	}

	logger.Info("password reset email sent", "email", recipient)
	httputil.RespondJSON(w, MessageResponse{
		Success: true,
		Message: fmt.Sprintf("Email sent to %s successfully", recipient),
	}, http.StatusOK)
}

// ResetPassword handles password reset with token
// @Summary      Reset password
// @Description  Consume the emailed reset token and set a new password; issues a fresh session.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        token   path string true "Reset token"
// @Param        request body ResetPasswordRequest true "New password and confirmation"
// @Success      200 {object} SessionResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid or expired token, or mismatched confirmation"
// @Router       /password/reset/{token} [put]
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid reset password request body", "error", err.Error())
		httputil.RespondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	token := chi.URLParam(r, "token")
	existing, err := h.service.ResetPassword(r.Context(), token, req.Password, req.ConfirmPassword)
	if err != nil {
		logger.Warn("password reset failed", "error", err.Error())
		httputil.RespondNormalizedError(w, err)
		return
	}

	logger.Info("password reset successfully", "user_id", existing.ID)
	h.respondWithSession(w, r, existing, http.StatusOK)
}

// Me returns the authenticated caller's own record
// @Summary      Get own profile
// @Tags         account
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} map[string]any
// @Failure      401 {object} httputil.ErrorResponse
// @Router       /me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondError(w, "Please login to access this resource", http.StatusUnauthorized)
		return
	}

	existing, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		httputil.RespondNormalizedError(w, err)
		return
	}

	httputil.RespondJSON(w, map[string]any{
		"success": true,
		"user":    existing,
	}, http.StatusOK)
}

// UpdatePassword rotates the caller's password
// @Summary      Update own password
// @Tags         account
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body UpdatePasswordRequest true "Old and new passwords"
// @Success      200 {object} SessionResponse
// @Failure      400 {object} httputil.ErrorResponse "Wrong old password or mismatched confirmation"
// @Router       /password/update [put]
func (h *Handler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondError(w, "Please login to access this resource", http.StatusUnauthorized)
		return
	}

	var req UpdatePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid update password request body", "error", err.Error())
		httputil.RespondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	existing, err := h.service.UpdatePassword(r.Context(), userID, req.OldPassword, req.NewPassword, req.ConfirmPassword)
	if err != nil {
		logger.Warn("password update failed", "user_id", userID, "error", err.Error())
		httputil.RespondNormalizedError(w, err)
		return
	}

	logger.Info("password updated successfully", "user_id", userID)
	h.respondWithSession(w, r, existing, http.StatusOK)
}

// UpdateProfile updates the caller's name, email and optionally avatar
// @Summary      Update own profile
// @Tags         account
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body UpdateProfileRequest true "Profile fields"
// @Success      200 {object} MessageResponse
// @Failure      400 {object} httputil.ErrorResponse
// @Router       /me/update [put]
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondError(w, "Please login to access this resource", http.StatusUnauthorized)
		return
	}

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid update profile request body", "error", err.Error())
		httputil.RespondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.UpdateProfile(r.Context(), userID, req.Name, req.Email, req.Avatar); err != nil {
		logger.Warn("profile update failed", "user_id", userID, "error", err.Error())
		httputil.RespondNormalizedError(w, err)
		return
	}

	logger.Info("profile updated successfully", "user_id", userID)
	httputil.RespondJSON(w, MessageResponse{Success: true, Message: "Profile updated successfully"}, http.StatusOK)
}

// respondWithSession issues a fresh signed session token, sets it as an
// HTTP-only cookie and echoes it with the user in the body.
func (h *Handler) respondWithSession(w http.ResponseWriter, r *http.Request, u *user.User, status int) {
	token, err := h.tokens.CreateToken(u.ID, u.Email, u.Role, h.sessionTTL)
	if err != nil {
		logging.GetLoggerFromContext(r.Context()).Error("failed to create session token", "error", err.Error())
		httputil.RespondNormalizedError(w, err)
		return
	}

	SetSessionCookie(w, h.cookieName, token, h.isProduction, h.sessionTTL)
	httputil.RespondJSON(w, SessionResponse{Success: true, Token: token, User: u}, status)
}

// rateLimited applies the per-IP limit for the given purpose and reports
// whether the request was rejected.
func (h *Handler) rateLimited(w http.ResponseWriter, r *http.Request, purpose string) bool {
	logger := logging.GetLoggerFromContext(r.Context())
	ip := getClientIP(r)

	exceeded, err := h.rateLimiter.CheckIPRateLimitWithPurpose(r.Context(), ip, purpose)
	if err != nil {
		logger.Error("failed to check IP rate limit", "error", err.Error())
		// Continue despite error to avoid blocking legitimate requests
	} else if exceeded {
		logger.Warn("IP rate limit exceeded", "ip", ip, "purpose", purpose)
		httputil.RespondError(w, "too many requests, please try again later", http.StatusTooManyRequests)
		return true
	}

	if err := h.rateLimiter.RecordIPRequestWithPurpose(r.Context(), ip, purpose); err != nil {
		logger.Error("failed to record IP request", "error", err.Error())
	}

	return false
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		// X-Forwarded-For can contain multiple IPs, take the first one
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	xri := r.Header.Get("X-Real-IP")
	if xri != "" {
		return strings.TrimSpace(xri)
	}

	ip := r.RemoteAddr
	// RemoteAddr format is "IP:port", extract just the IP
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
