package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"

	"github.com/redmonkez12/go-auth-service/internal/httputil"
	"github.com/redmonkez12/go-auth-service/internal/logging"
	"github.com/redmonkez12/go-auth-service/internal/user"
)

const maxRequestBodyBytes = 1 << 20

// Handler contains HTTP handlers for authentication endpoints
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Name     string `json:"name"`
	LastName string `json:"lastName"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *RegisterRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Email = strings.TrimSpace(r.Email)

	return validation.ValidateStruct(r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 60)),
		validation.Field(&r.LastName, validation.Required, validation.Length(1, 60)),
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(4, 60)),
	)
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *LoginRequest) Validate() error {
	r.Email = strings.TrimSpace(r.Email)

	return validation.ValidateStruct(r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(1, 256)),
	)
}

// RequestPasswordEmailRequest asks for a password reset link
type RequestPasswordEmailRequest struct {
	Email string `json:"email"`
}

func (r *RequestPasswordEmailRequest) Validate() error {
	r.Email = strings.TrimSpace(r.Email)

	return validation.ValidateStruct(r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

// ResetPasswordRequest represents the password reset confirmation
type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (r *ResetPasswordRequest) Validate() error {
	r.Token = strings.TrimSpace(r.Token)

	return validation.ValidateStruct(r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(4, 60)),
	)
}

// Register handles user registration
// @Summary      Register a new user
// @Description  Create an unverified account. A confirmation email is sent to the address.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body RegisterRequest true "Registration data"
// @Success      201 {object} user.User
// @Failure      400 {object} httputil.ErrorResponse "Validation error or email already exists"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req RegisterRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	newUser, err := h.service.Register(r.Context(), RegisterInput{
		Name:     req.Name,
		LastName: req.LastName,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		respondServiceError(w, logger, "registration failed", err)
		return
	}

	httputil.RespondJSON(w, newUser, http.StatusCreated)
}

// Login handles user login
// @Summary      User login
// @Description  Authenticate a verified user and receive a session token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body LoginRequest true "Login credentials"
// @Success      200 {object} LoginResult
// @Failure      400 {object} httputil.ErrorResponse "Invalid request body"
// @Failure      401 {object} httputil.ErrorResponse "Invalid credentials or email not verified"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondServiceError(w, logger, "login failed", err)
		return
	}

	logger.Info("user logged in successfully")

	httputil.RespondJSON(w, result, http.StatusOK)
}

// Validate returns the caller's own account
// @Summary      Validate session token
// @Description  Return the user the bearer token belongs to
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} user.User
// @Failure      401 {object} httputil.ErrorResponse "Unauthorized"
// @Router       /auth/validate [get]
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondErrorWithCode(w, "unauthorized", httputil.CodeUnauthorized, http.StatusUnauthorized)
		return
	}

	u, err := h.service.FindUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.RespondErrorWithCode(w, "unauthorized", httputil.CodeUnauthorized, http.StatusUnauthorized)
			return
		}
		respondServiceError(w, logger, "validate failed", err)
		return
	}

	httputil.RespondJSON(w, u, http.StatusOK)
}

// VerifyEmail handles email verification
// @Summary      Verify email address
// @Description  Verify a user's email address using the token sent by email. Repeating the call is harmless.
// @Tags         auth
// @Produce      json
// @Param        token query string true "Verification token"
// @Success      200 {object} Result
// @Failure      400 {object} httputil.ErrorResponse "Missing, invalid or expired token"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /auth/verify [get]
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		logger.Warn("email verification failed: token missing")
		httputil.RespondErrorWithCode(w, "verification token required", httputil.CodeTokenRequired, http.StatusBadRequest)
		return
	}

	result, err := h.service.VerifyEmail(r.Context(), token)
	if err != nil {
		respondServiceError(w, logger, "email verification failed", err)
		return
	}

	httputil.RespondJSON(w, result, http.StatusOK)
}

// RequestPasswordEmail handles password reset requests
// @Summary      Request password reset
// @Description  Send a password reset link to a verified account. The response never reveals whether the account exists.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body RequestPasswordEmailRequest true "Email address"
// @Success      200 {object} Result
// @Failure      400 {object} httputil.ErrorResponse "Invalid request body"
// @Router       /auth/requestPasswordEmail [post]
func (h *Handler) RequestPasswordEmail(w http.ResponseWriter, r *http.Request) {
	var req RequestPasswordEmailRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	httputil.RespondJSON(w, h.service.RequestPasswordReset(r.Context(), req.Email), http.StatusOK)
}

// ResetPassword handles password reset with token
// @Summary      Reset password
// @Description  Set a new password using a reset token. Each token works once.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body ResetPasswordRequest true "Reset token and new password"
// @Success      200 {object} Result
// @Failure      400 {object} httputil.ErrorResponse "Invalid, expired or already used token"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /auth/resetPassword [post]
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req ResetPasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.service.ResetPassword(r.Context(), req.Token, req.NewPassword)
	if err != nil {
		respondServiceError(w, logger, "password reset failed", err)
		return
	}

	httputil.RespondJSON(w, result, http.StatusOK)
}

// FindUser returns a user by ID
// @Summary      Get user
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "User ID (UUID)"
// @Success      200 {object} user.User
// @Failure      400 {object} httputil.ErrorResponse "Invalid user ID"
// @Failure      401 {object} httputil.ErrorResponse "Unauthorized"
// @Failure      403 {object} httputil.ErrorResponse "Forbidden"
// @Failure      404 {object} httputil.ErrorResponse "User not found"
// @Router       /auth/user/{id} [get]
func (h *Handler) FindUser(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	id, ok := parseUserIDParam(w, r)
	if !ok {
		return
	}

	u, err := h.service.FindUser(r.Context(), id)
	if err != nil {
		respondServiceError(w, logger, "find user failed", err)
		return
	}

	httputil.RespondJSON(w, u, http.StatusOK)
}

// DeleteUser soft-deletes a user
// @Summary      Delete user
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "User ID (UUID)"
// @Success      200 {object} Result
// @Failure      400 {object} httputil.ErrorResponse "Invalid user ID"
// @Failure      401 {object} httputil.ErrorResponse "Unauthorized"
// @Failure      403 {object} httputil.ErrorResponse "Forbidden"
// @Failure      404 {object} httputil.ErrorResponse "User not found"
// @Router       /auth/user/{id} [delete]
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	id, ok := parseUserIDParam(w, r)
	if !ok {
		return
	}

	result, err := h.service.DeleteUser(r.Context(), id)
	if err != nil {
		respondServiceError(w, logger, "delete user failed", err)
		return
	}

	httputil.RespondJSON(w, result, http.StatusOK)
}

// GetAccessLogs lists granted access events
// @Summary      List access logs
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200 {array} AccessLogEntry
// @Failure      401 {object} httputil.ErrorResponse "Unauthorized"
// @Failure      403 {object} httputil.ErrorResponse "Forbidden"
// @Router       /auth/access/logs [get]
func (h *Handler) GetAccessLogs(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	entries, err := h.service.GetAccessLogs(r.Context())
	if err != nil {
		respondServiceError(w, logger, "list access logs failed", err)
		return
	}

	httputil.RespondJSON(w, entries, http.StatusOK)
}

// AllowAccess records an access grant for a user
// @Summary      Allow access
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "User ID (UUID)"
// @Success      200 {object} Result
// @Failure      400 {object} httputil.ErrorResponse "Invalid user ID"
// @Failure      401 {object} httputil.ErrorResponse "Unauthorized"
// @Failure      403 {object} httputil.ErrorResponse "Forbidden"
// @Failure      404 {object} httputil.ErrorResponse "User not found"
// @Router       /auth/access/allow/{id} [post]
func (h *Handler) AllowAccess(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	id, ok := parseUserIDParam(w, r)
	if !ok {
		return
	}

	result, err := h.service.AllowAccess(r.Context(), id)
	if err != nil {
		respondServiceError(w, logger, "allow access failed", err)
		return
	}

	httputil.RespondJSON(w, result, http.StatusOK)
}

type validatable interface {
	Validate() error
}

// decodeAndValidate reads a JSON body into req and validates it.
// On failure it writes the 400 response and returns false.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, req validatable) bool {
	logger := logging.GetLoggerFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		logger.Warn("invalid request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return false
	}

	if err := req.Validate(); err != nil {
		var fieldErrs validation.Errors
		if errors.As(err, &fieldErrs) {
			httputil.RespondValidationError(w, fieldErrs)
			return false
		}
		logger.Error("request validation failed", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request", httputil.CodeValidationFailed, http.StatusBadRequest)
		return false
	}

	return true
}

func parseUserIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.RespondErrorWithCode(w, "invalid user id", httputil.CodeInvalidUserID, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// respondServiceError maps service errors to status codes.
// Unknown errors are logged in full and reported as a bare 500.
func respondServiceError(w http.ResponseWriter, logger *logging.Logger, msg string, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		logger.Warn(msg, "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid input", httputil.CodeValidationFailed, http.StatusBadRequest)
	case errors.Is(err, ErrDuplicateEmail):
		logger.Warn(msg + ": email already exists")
		httputil.RespondErrorWithCode(w, "email already exists", httputil.CodeEmailAlreadyExists, http.StatusBadRequest)
	case errors.Is(err, ErrInvalidCredentials):
		logger.Warn(msg + ": invalid credentials")
		httputil.RespondErrorWithCode(w, "invalid email or password", httputil.CodeInvalidCredentials, http.StatusUnauthorized)
	case errors.Is(err, ErrEmailNotVerified):
		logger.Warn(msg + ": email not verified")
		httputil.RespondErrorWithCode(w, "email not verified, please check your inbox", httputil.CodeEmailNotVerified, http.StatusUnauthorized)
	case errors.Is(err, ErrTokenAlreadyUsed):
		logger.Warn(msg + ": token already used")
		httputil.RespondErrorWithCode(w, "token has already been used", httputil.CodeTokenAlreadyUsed, http.StatusBadRequest)
	case errors.Is(err, ErrExpiredToken):
		logger.Warn(msg + ": token expired")
		httputil.RespondErrorWithCode(w, "token has expired", httputil.CodeTokenExpired, http.StatusBadRequest)
	case errors.Is(err, ErrInvalidToken):
		logger.Warn(msg+": invalid token", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid token", httputil.CodeInvalidToken, http.StatusBadRequest)
	case errors.Is(err, ErrNotFound):
		logger.Warn(msg + ": not found")
		httputil.RespondErrorWithCode(w, "user not found", httputil.CodeNotFound, http.StatusNotFound)
	default:
		logger.Error(msg+": internal error", "error", err.Error())
		httputil.RespondErrorWithCode(w, "internal server error", httputil.CodeInternalError, http.StatusInternalServerError)
	}
}

// RegisterRoutes mounts the auth endpoints on r.
// Admin routes require the ADMIN role; /validate only requires a verified user.
func (h *Handler) RegisterRoutes(r chi.Router, guard *Middleware) {
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.Get("/verify", h.VerifyEmail)
	r.Post("/requestPasswordEmail", h.RequestPasswordEmail)
	r.Post("/resetPassword", h.ResetPassword)

	r.With(guard.RequireAuth()).Get("/validate", h.Validate)

	r.Group(func(r chi.Router) {
		r.Use(guard.RequireAuth(user.RoleAdmin))
		r.Get("/user/{id}", h.FindUser)
		r.Delete("/user/{id}", h.DeleteUser)
		r.Get("/access/logs", h.GetAccessLogs)
		r.Post("/access/allow/{id}", h.AllowAccess)
	})
}
