package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/FIipFIop/perp-prediction/internal/credits"
	"github.com/FIipFIop/perp-prediction/internal/shared/server/middleware"
	"github.com/FIipFIop/perp-prediction/internal/shared/server/respond"
	"github.com/FIipFIop/perp-prediction/internal/shared/telemetry"
)

// Handler exposes /auth endpoints over a Provider.
type Handler struct {
	Provider Provider
	Sessions *SessionVerifier
	Credits  *credits.Service
}

// NewHandler constructs a Handler. creditSvc may be nil.
func NewHandler(provider Provider, sessions *SessionVerifier, creditSvc *credits.Service) *Handler {
	return &Handler{Provider: provider, Sessions: sessions, Credits: creditSvc}
}

// RegisterRoutes attaches auth routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/auth/signup", h.signup)
	rg.POST("/auth/login", h.login)
	rg.POST("/auth/logout", middleware.RequireUser(), h.logout)
	rg.GET("/auth/user", middleware.RequireUser(), h.user)
}

type signupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	FullName string `json:"fullName"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Invalid(c, err, "Email and password are required")
		return
	}
	session, err := h.Provider.SignUp(c.Request.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		h.writeError(c, err)
		return
	}
	telemetry.Info("auth.signup", map[string]any{"user_id": session.User.ID, "provider": h.Provider.Name()})
	respond.JSON(c, http.StatusCreated, gin.H{
		"session":              session,
		"confirmationRequired": session.AccessToken == "",
	})
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Invalid(c, err, "Email and password are required")
		return
	}
	session, err := h.Provider.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	telemetry.Info("auth.login", map[string]any{"user_id": session.User.ID, "provider": h.Provider.Name()})
	respond.OK(c, gin.H{"session": session})
}

func (h *Handler) logout(c *gin.Context) {
	token := middleware.SessionTokenFromContext(c)
	ctx := c.Request.Context()
	if err := h.Provider.Logout(ctx, token); err != nil && !errors.Is(err, ErrUnauthorized) {
		h.writeError(c, err)
		return
	}
	if h.Sessions != nil {
		if err := h.Sessions.Revoke(ctx, token); err != nil {
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to end session", nil)
			return
		}
	}
	respond.OK(c, gin.H{"success": true})
}

func (h *Handler) user(c *gin.Context) {
	ctx := c.Request.Context()
	profile, err := h.Provider.User(ctx, middleware.SessionTokenFromContext(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	resp := gin.H{"user": profile}
	if h.Credits != nil {
		if b, err := h.Credits.Balance(ctx, profile.ID); err == nil {
			resp["credits"] = b.Credits
		}
	}
	respond.OK(c, resp)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var upstream *UpstreamError
	switch {
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", strings.TrimPrefix(err.Error(), ErrInvalidInput.Error()+": "), nil)
	case errors.Is(err, ErrInvalidCredentials):
		respond.Error(c, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password", nil)
	case errors.Is(err, ErrEmailTaken):
		respond.Error(c, http.StatusConflict, "email_taken", "Email already registered", nil)
	case errors.Is(err, ErrUnauthorized):
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "Login required", nil)
	case errors.As(err, &upstream):
		respond.ErrorWithMessage(c, http.StatusBadGateway, "auth_upstream_error", "Authentication service unavailable", upstream.Message)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "authentication failed", nil)
	}
}
