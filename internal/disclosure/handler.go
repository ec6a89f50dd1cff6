package disclosure

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"carbon-scribe/ghg-disclosure-backend/internal/emissions"
)

// Handler handles HTTP requests for disclosure operations
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new disclosure handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers disclosure routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	disclosures := router.Group("/disclosures")
	{
		disclosures.POST("/build", h.build)
		disclosures.POST("/export", h.export)
		disclosures.POST("/generate", h.generate)
		disclosures.POST("/activities", h.importActivities)
		disclosures.GET("/factors/resolve", h.resolveFactor)
	}
}

// =====================================================
// Build Endpoints
// =====================================================

// build handles POST /api/v1/disclosures/build
func (h *Handler) build(c *gin.Context) {
	var req BuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	report, err := h.service.Build(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, "Failed to build disclosure", err)
		return
	}

	if c.Query("format") == string(FormatXHTML) {
		c.Data(http.StatusOK, "application/xhtml+xml; charset=utf-8", report.Document.Bytes())
		return
	}
	c.JSON(http.StatusOK, report.Summary(req.IncludeDocument))
}

// export handles POST /api/v1/disclosures/export?format=xlsx|pdf|csv|xhtml
func (h *Handler) export(c *gin.Context) {
	var req BuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}
	format := ExportFormat(c.DefaultQuery("format", string(FormatXLSX)))

	report, err := h.service.Build(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, "Failed to build disclosure", err)
		return
	}

	data, contentType, err := h.service.Export(report, format)
	if err != nil {
		h.respondError(c, "Failed to export disclosure", err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename=disclosure-"+report.ID.String()+"."+string(format))
	c.Header("X-Report-Fingerprint", report.Fingerprint)
	c.Data(http.StatusOK, contentType, data)
}

// generate handles POST /api/v1/disclosures/generate
func (h *Handler) generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	gen, err := h.service.GenerateForPeriod(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, "Failed to generate disclosure", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status":       gen.Status,
		"status_trail": gen.StatusTrail,
		"document_uri": gen.DocumentURI,
		"workbook_uri": gen.WorkbookURI,
		"summary_uri":  gen.SummaryURI,
		"report":       gen.Report.Summary(false),
	})
}

// =====================================================
// Activity and Factor Endpoints
// =====================================================

// importActivities handles POST /api/v1/disclosures/activities
func (h *Handler) importActivities(c *gin.Context) {
	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	if err := h.service.ImportActivities(c.Request.Context(), &req); err != nil {
		h.respondError(c, "Failed to import activities", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"imported": len(req.Records)})
}

// resolveFactor handles GET /api/v1/disclosures/factors/resolve
func (h *Handler) resolveFactor(c *gin.Context) {
	scope, err := emissions.NormalizeScope(c.Query("scope"))
	if err != nil {
		h.respondError(c, "Invalid scope", err)
		return
	}

	year := time.Now().Year()
	if raw := c.Query("year"); raw != "" {
		if year, err = strconv.Atoi(raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid year"})
			return
		}
	}

	record := emissions.ActivityRecord{
		Scope:        scope,
		Category:     c.Query("category"),
		ActivityType: c.Query("activity_type"),
		Unit:         c.Query("unit"),
		CountryCode:  c.Query("country"),
		Year:         year,
		Quantity:     decimal.Zero,
	}
	if record.Category == "" || record.ActivityType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "category and activity_type are required"})
		return
	}

	res, err := h.service.ResolveFactor(c.Request.Context(), record)
	if err != nil {
		h.respondError(c, "Failed to resolve factor", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"factor":      res.Factor,
		"matched_key": res.MatchedKey,
		"match_level": res.Level,
		"outlier":     res.Outlier,
		"sector":      res.Sector,
		"tried":       res.Tried,
	})
}

// =====================================================
// Helper Methods
// =====================================================

// bindError reports a malformed body. A scope the decoder rejects carries
// its own code and is reported like any other validation failure.
func (h *Handler) bindError(c *gin.Context, err error) {
	if IsValidationFailure(err) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "code": ErrorCode(err)})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// respondError maps pipeline failures to 422, rejected input to 400 and
// everything else to 500
func (h *Handler) respondError(c *gin.Context, message string, err error) {
	switch {
	case IsValidationFailure(err):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "code": ErrorCode(err)})
	case errors.Is(err, ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": ErrorCode(err)})
	default:
		h.logger.Error(message, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": message})
	}
}
