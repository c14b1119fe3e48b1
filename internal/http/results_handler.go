package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sdq-screen/internal/service"
)

// ResultsHandler muestra al respondente sus puntajes y el resumen publicado.
type ResultsHandler struct {
	logger  *zap.Logger
	reviews *service.ReviewService
}

func NewResultsHandler(logger *zap.Logger, reviews *service.ReviewService) *ResultsHandler {
	return &ResultsHandler{logger: logger, reviews: reviews}
}

// Get maneja GET /results/:subject_id.
func (h *ResultsHandler) Get(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	res, err := h.reviews.Results(c.Request.Context(), c.Param("subject_id"), userID)
	if err != nil {
		writeError(c, h.logger, "get results", err)
		return
	}
	c.JSON(http.StatusOK, res)
}
