package analyses

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/FIipFIop/perp-prediction/internal/credits"
	"github.com/FIipFIop/perp-prediction/internal/llm"
	"github.com/FIipFIop/perp-prediction/internal/shared/metrics"
	"github.com/FIipFIop/perp-prediction/internal/shared/server/middleware"
	"github.com/FIipFIop/perp-prediction/internal/shared/server/respond"
	"github.com/FIipFIop/perp-prediction/internal/shared/telemetry"
	"github.com/FIipFIop/perp-prediction/internal/telegram"
)

const maxUploadSize = 10 << 20 // 10MB

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/webp": true,
}

// Handler wires HTTP handlers to the analyses service.
type Handler struct {
	Svc         *Service
	BotToken    string
	RequireAuth bool
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, botToken string, requireAuth bool) *Handler {
	return &Handler{Svc: svc, BotToken: botToken, RequireAuth: requireAuth}
}

// RegisterRoutes attaches analysis routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, analyzeMiddleware ...gin.HandlerFunc) {
	rg.POST("/analyze", append(analyzeMiddleware, h.analyze)...)
	rg.GET("/health", h.health)
	rg.GET("/analyses", middleware.RequireUser(), h.listAnalyses)
	rg.GET("/analyses/:id", middleware.RequireUser(), h.getAnalysis)
}

type analyzeResponse struct {
	AnalysisResult
	Source           Source `json:"source"`
	AnalysisID       string `json:"analysisId,omitempty"`
	CreditsRemaining *int   `json:"creditsRemaining,omitempty"`
}

func (h *Handler) analyze(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if h.RequireAuth && userID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "Login required", nil)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize+(1<<20))
	fileHeader, err := c.FormFile("chart")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respond.Error(c, http.StatusRequestEntityTooLarge, "validation_error", "Chart image exceeds 10MB", nil)
			return
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "No chart image provided", nil)
		return
	}
	if fileHeader.Size > maxUploadSize {
		respond.Error(c, http.StatusRequestEntityTooLarge, "validation_error", "Chart image exceeds 10MB", nil)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "No chart image provided", nil)
		return
	}
	defer file.Close()
	image, err := io.ReadAll(io.LimitReader(file, maxUploadSize+1))
	if err != nil || len(image) == 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "No chart image provided", nil)
		return
	}

	mimeType := imageType(fileHeader.Header.Get("Content-Type"), image)
	if !allowedImageTypes[mimeType] {
		respond.ErrorWithMessage(c, http.StatusBadRequest, "validation_error", "No chart image provided", "Supported formats: JPEG, PNG, WEBP")
		return
	}

	timeframe := strings.TrimSpace(c.PostForm("timeframe"))
	if timeframe == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "Timeframe is required", nil)
		return
	}
	if !h.Svc.Configured() {
		respond.Error(c, http.StatusInternalServerError, "configuration_error", "API key not configured", nil)
		return
	}

	tgUser := h.verifyOrigin(c)

	out, err := h.Svc.Analyze(c.Request.Context(), AnalyzeRequest{
		UserID:    userID,
		Image:     image,
		MimeType:  mimeType,
		FileName:  fileHeader.Filename,
		Timeframe: timeframe,
		Telegram:  tgUser,
	})
	if err != nil {
		h.writeAnalyzeError(c, err)
		return
	}
	if out.AnalysisID != "" {
		c.Set("analysisId", out.AnalysisID)
	}

	respond.OK(c, analyzeResponse{
		AnalysisResult:   out.Result,
		Source:           out.Source,
		AnalysisID:       out.AnalysisID,
		CreditsRemaining: out.CreditsRemaining,
	})
}

// verifyOrigin checks the optional Telegram initData field. Unverified payloads are
// logged and the request continues anonymously.
func (h *Handler) verifyOrigin(c *gin.Context) *telegram.WebAppUser {
	initData := c.PostForm("initData")
	if initData == "" {
		return nil
	}
	identity, ok := telegram.ValidateInitData(initData, h.BotToken)
	if !ok {
		metrics.InitDataRejected.Inc()
		telemetry.Warn("telegram.initdata.unverified", map[string]any{
			"request_id":     c.GetString("requestId"),
			"bot_configured": h.BotToken != "",
		})
		return nil
	}
	if identity.User == nil {
		return nil
	}
	middleware.SetTelegramID(c, identity.User.ID)
	telemetry.Info("telegram.initdata.verified", map[string]any{
		"telegram_id": identity.User.ID,
		"name":        identity.User.DisplayName(),
	})
	return identity.User
}

func (h *Handler) writeAnalyzeError(c *gin.Context, err error) {
	if upstream, ok := IsUpstream(err); ok {
		respond.Error(c, upstream.HTTPStatus(), "upstream_error", "Failed to analyze chart", nil)
		return
	}
	switch {
	case errors.Is(err, ErrNotConfigured):
		respond.Error(c, http.StatusInternalServerError, "configuration_error", "API key not configured", nil)
	case errors.Is(err, credits.ErrInsufficientCredits):
		respond.ErrorWithMessage(c, http.StatusPaymentRequired, "insufficient_credits", "Insufficient credits", "Purchase credits to run another analysis")
	case errors.Is(err, llm.ErrEmptyResponse):
		respond.Error(c, http.StatusInternalServerError, "upstream_error", "No response from AI", nil)
	default:
		respond.ErrorWithMessage(c, http.StatusInternalServerError, "internal_error", "Failed to analyze chart", err.Error())
	}
}

func (h *Handler) health(c *gin.Context) {
	respond.OK(c, gin.H{
		"status":        "ok",
		"apiConfigured": h.Svc.Configured(),
	})
}

func (h *Handler) getAnalysis(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	analysis, err := h.Svc.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch analysis", nil)
		}
		return
	}
	respond.OK(c, analysis)
}

func (h *Handler) listAnalyses(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	if offset < 0 {
		offset = 0
	}

	analyses, err := h.Svc.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list analyses", nil)
		return
	}
	respond.OK(c, gin.H{"items": analyses, "limit": limit, "offset": offset})
}

// imageType prefers the declared part type and sniffs the bytes when it is missing or generic.
func imageType(declared string, data []byte) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return http.DetectContentType(data)
}
