package credits

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/FIipFIop/perp-prediction/internal/shared/server/middleware"
	"github.com/FIipFIop/perp-prediction/internal/shared/server/respond"
)

// Handler exposes the caller's balance.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches credit routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/credits", middleware.RequireUser(), h.get)
}

func (h *Handler) get(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	b, err := h.Svc.Balance(c.Request.Context(), userID)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load credits", nil)
		return
	}
	respond.OK(c, gin.H{"credits": b.Credits, "updatedAt": b.UpdatedAt})
}
