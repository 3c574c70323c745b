package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/sugarchat/internal/auth"
)

const guestCookie = "guest_session"

// APIHandlers provides the account endpoints.
type APIHandlers struct {
	authService *auth.Service
	log         *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(authService *auth.Service, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		authService: authService,
		log:         logger,
	}
}

// RegisterRequest is the registration request body. Color is optional.
type RegisterRequest struct {
	Nick     string `json:"nick" binding:"required"`
	Password string `json:"password" binding:"required"`
	Color    string `json:"color"`
}

// LoginRequest is the login request body.
type LoginRequest struct {
	Nick     string `json:"nick" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse carries a relay token.
type AuthResponse struct {
	Token string `json:"token"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Register handles buddy registration.
// POST /api/register
func (h *APIHandlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid register request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	token, err := h.authService.Register(c.Request.Context(), req.Nick, req.Password, req.Color)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrBuddyExists):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "nick already taken"})
		return
	case errors.Is(err, auth.ErrInvalidNick), errors.Is(err, auth.ErrInvalidPassword), errors.Is(err, auth.ErrInvalidColor):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	default:
		h.log.Error().Err(err).Str("nick", req.Nick).Msg("failed to register buddy")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("nick", req.Nick).Msg("buddy registered")
	c.JSON(http.StatusCreated, AuthResponse{Token: token})
}

// Login handles buddy login.
// POST /api/login
func (h *APIHandlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid login request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	token, err := h.authService.Login(c.Request.Context(), req.Nick, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
			return
		}
		h.log.Error().Err(err).Str("nick", req.Nick).Msg("failed to login buddy")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("nick", req.Nick).Msg("buddy logged in")
	c.JSON(http.StatusOK, AuthResponse{Token: token})
}

// GuestLogin creates a guest buddy and returns a token.
// POST /api/guest
func (h *APIHandlers) GuestLogin(c *gin.Context) {
	token, sessionID, err := h.authService.CreateGuest(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to create guest buddy")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.SetCookie(guestCookie, sessionID, 3600*24*7, "/", "", false, true)

	h.log.Info().Str("session_id", sessionID).Msg("guest buddy created")
	c.JSON(http.StatusOK, AuthResponse{Token: token})
}
