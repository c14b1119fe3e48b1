package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sdq-screen/internal/domain"
	"sdq-screen/internal/service"
)

const defaultSearchResults = 5

// ReviewHandler expone el tablero y el flujo de revision profesional.
type ReviewHandler struct {
	logger  *zap.Logger
	reviews *service.ReviewService
}

func NewReviewHandler(logger *zap.Logger, reviews *service.ReviewService) *ReviewHandler {
	return &ReviewHandler{logger: logger, reviews: reviews}
}

// List maneja GET /reviews?status=.
func (h *ReviewHandler) List(c *gin.Context) {
	var status domain.AggregateStatus
	if raw := c.Query("status"); raw != "" {
		parsed, ok := domain.ParseAggregateStatus(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		status = parsed
	}
	items, err := h.reviews.List(c.Request.Context(), status)
	if err != nil {
		writeError(c, h.logger, "list reviews", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reviews": items})
}

// Record maneja GET /reviews/:subject_id.
func (h *ReviewHandler) Record(c *gin.Context) {
	view, err := h.reviews.Record(c.Request.Context(), c.Param("subject_id"))
	if err != nil {
		writeError(c, h.logger, "get review", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Compare maneja GET /reviews/:subject_id/questions/:index.
func (h *ReviewHandler) Compare(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid question index"})
		return
	}
	cmp, err := h.reviews.Compare(c.Request.Context(), c.Param("subject_id"), idx)
	if err != nil {
		writeError(c, h.logger, "compare", err)
		return
	}
	c.JSON(http.StatusOK, cmp)
}

// Search maneja GET /reviews/:subject_id/search?q=&k=.
func (h *ReviewHandler) Search(c *gin.Context) {
	k := defaultSearchResults
	if raw := c.Query("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid k"})
			return
		}
		k = n
	}
	hits, err := h.reviews.Search(c.Request.Context(), c.Param("subject_id"), c.Query("q"), k)
	if err != nil {
		writeError(c, h.logger, "search transcripts", err)
		return
	}
	if hits == nil {
		hits = []domain.TranscriptEmbedding{}
	}
	c.JSON(http.StatusOK, gin.H{"results": hits})
}

// Begin maneja POST /reviews/:subject_id/begin.
func (h *ReviewHandler) Begin(c *gin.Context) {
	rec, err := h.reviews.Begin(c.Request.Context(), c.Param("subject_id"))
	if err != nil {
		writeError(c, h.logger, "begin review", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": rec})
}

// EditDraft maneja PUT /reviews/:subject_id/draft.
func (h *ReviewHandler) EditDraft(c *gin.Context) {
	var req struct {
		Draft string `json:"draft"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "edit draft", err)
		return
	}
	rec, err := h.reviews.EditDraft(c.Request.Context(), c.Param("subject_id"), req.Draft)
	if err != nil {
		writeError(c, h.logger, "edit draft", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": rec})
}

// Submit maneja POST /reviews/:subject_id/submit. Sin summary se publica el borrador.
func (h *ReviewHandler) Submit(c *gin.Context) {
	reviewerID, ok := callerID(c)
	if !ok {
		return
	}
	var req struct {
		Summary string `json:"summary"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, h.logger, "submit review", err)
			return
		}
	}
	rec, err := h.reviews.Finalize(c.Request.Context(), c.Param("subject_id"), reviewerID, req.Summary)
	if err != nil {
		writeError(c, h.logger, "submit review", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": rec})
}
