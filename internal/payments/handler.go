package payments

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/FIipFIop/perp-prediction/internal/indexer/helius"
	"github.com/FIipFIop/perp-prediction/internal/shared/server/middleware"
	"github.com/FIipFIop/perp-prediction/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the payment service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches payment routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, mw ...gin.HandlerFunc) {
	g := rg.Group("/payment", append([]gin.HandlerFunc{middleware.RequireUser()}, mw...)...)
	g.GET("/config", h.config)
	g.POST("/init", h.initPayment)
	g.POST("/verify", h.verifyPayment)
	g.GET("/history", h.history)
}

type initRequest struct {
	SenderAddress string `json:"senderAddress" binding:"required"`
	Credits       int    `json:"credits" binding:"required,min=1,max=1000"`
}

type verifyRequest struct {
	PaymentID string `json:"paymentId" binding:"required"`
}

type paymentResponse struct {
	Payment
	ExpectedLamports decimal.Decimal `json:"expectedLamports"`
}

func toResponse(p Payment) paymentResponse {
	return paymentResponse{Payment: p, ExpectedLamports: SOLToLamports(p.ExpectedAmount)}
}

func (h *Handler) config(c *gin.Context) {
	respond.OK(c, gin.H{
		"configured":      h.Svc.Configured(),
		"receiverAddress": h.Svc.Receiver,
		"costPerCredit":   h.Svc.CostPerCredit,
		"expirySeconds":   int(ExpiryWindow.Seconds()),
	})
}

func (h *Handler) initPayment(c *gin.Context) {
	var req initRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Invalid(c, err, "senderAddress and credits between 1 and 1000 are required")
		return
	}
	p, err := h.Svc.Init(c.Request.Context(), InitRequest{
		UserID:        middleware.UserIDFromContext(c),
		SenderAddress: req.SenderAddress,
		Credits:       req.Credits,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Set("paymentId", p.ID)
	respond.JSON(c, http.StatusCreated, toResponse(p))
}

func (h *Handler) verifyPayment(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Invalid(c, err, "paymentId is required")
		return
	}
	p, err := h.Svc.Verify(c.Request.Context(), middleware.UserIDFromContext(c), req.PaymentID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	respond.OK(c, toResponse(p))
}

func (h *Handler) history(c *gin.Context) {
	items, err := h.Svc.List(c.Request.Context(), middleware.UserIDFromContext(c), 20)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list payments", nil)
		return
	}
	respond.OK(c, gin.H{"items": items})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var balance *BalanceError
	var upstream *helius.StatusError
	switch {
	case errors.As(err, &balance):
		respond.ErrorWithMessage(c, http.StatusBadRequest, "insufficient_balance", "Insufficient balance",
			"Wallet holds "+balance.Have.String()+" SOL but "+balance.Need.String()+" SOL is required. Top up the wallet or buy fewer credits.")
	case errors.Is(err, ErrInvalidAddress):
		respond.Error(c, http.StatusBadRequest, "validation_error", "Invalid wallet address", nil)
	case errors.Is(err, ErrInvalidInput):
		respond.ErrorWithMessage(c, http.StatusBadRequest, "validation_error", "Invalid payment request", "credits must be between 1 and 1000 and the sender must differ from the receiver")
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "Payment not found", nil)
	case errors.Is(err, ErrNotConfigured), errors.Is(err, helius.ErrNotConfigured):
		respond.Error(c, http.StatusInternalServerError, "configuration_error", "Payments not configured", nil)
	case errors.As(err, &upstream):
		status := upstream.StatusCode
		if status < 400 || status > 599 {
			status = http.StatusInternalServerError
		}
		respond.ErrorWithMessage(c, status, "upstream_error", "Blockchain indexer request failed", upstream.Body)
	default:
		respond.ErrorWithMessage(c, http.StatusInternalServerError, "internal_error", "Payment processing failed", err.Error())
	}
}
