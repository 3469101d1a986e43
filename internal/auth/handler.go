package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"catapis/internal/httputil"
	"catapis/internal/logging"
	"catapis/internal/user"
)

// Handler contains HTTP handlers for authentication endpoints
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserResponse represents a user in API responses
type UserResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	IsActive bool   `json:"isActive"`
}

// AuthResponse is the envelope both register and login resolve to
type AuthResponse struct {
	User        UserResponse `json:"user"`
	AccessToken string       `json:"accessToken"`
}

// Register handles user registration
// @Summary      Register a new user
// @Description  Create a new account and receive an access token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body RegisterRequest true "Registration credentials"
// @Success      201 {object} AuthResponse
// @Failure      400 {object} httputil.ErrorResponse "Validation error or email already registered"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid registration request body", "error", err.Error())
		httputil.RespondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	result, err := h.service.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, user.ErrDuplicateEmail) {
			logger.Warn("registration failed: email already registered")
			httputil.RespondError(w, "email already registered", http.StatusBadRequest)
			return
		}
		if isValidationError(err) {
			logger.Warn("registration failed: validation error", "error", err.Error())
			httputil.RespondValidationError(w, []string{err.Error()})
			return
		}
		logger.Error("registration failed: internal error", "error", err.Error())
		httputil.RespondError(w, "could not register", http.StatusInternalServerError)
		return
	}

	logger.Info("user registered successfully", "user_id", result.User.ID)

	httputil.RespondJSON(w, toAuthResponse(result), http.StatusCreated)
}

// Login handles user login
// @Summary      User login
// @Description  Authenticate and receive an access token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body LoginRequest true "Login credentials"
// @Success      200 {object} AuthResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid request body"
// @Failure      401 {object} httputil.ErrorResponse "Invalid credentials"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid login request body", "error", err.Error())
		httputil.RespondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			logger.Warn("login failed: invalid credentials", "email", req.Email)
			httputil.RespondError(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		logger.Error("login failed: internal error", "error", err.Error())
		httputil.RespondError(w, "could not process login", http.StatusInternalServerError)
		return
	}

	logger.Info("user logged in", "user_id", result.User.ID)

	httputil.RespondJSON(w, toAuthResponse(result), http.StatusOK)
}

func toAuthResponse(result *Result) AuthResponse {
	return AuthResponse{
		User: UserResponse{
			ID:       result.User.ID.String(),
			Email:    result.User.Email,
			IsActive: result.User.IsActive,
		},
		AccessToken: result.AccessToken,
	}
}

func isValidationError(err error) bool {
	return errors.Is(err, ErrEmailRequired) ||
		errors.Is(err, ErrPasswordRequired) ||
		errors.Is(err, ErrPasswordTooShort) ||
		errors.Is(err, ErrPasswordTooLong) ||
		errors.Is(err, ErrInvalidEmailFormat)
}
