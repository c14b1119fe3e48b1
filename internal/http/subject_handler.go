package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sdq-screen/internal/domain"
	"sdq-screen/internal/service"
)

// SubjectHandler expone el registro de sujetos y la resolucion de codigos.
type SubjectHandler struct {
	logger     *zap.Logger
	subjects   *service.SubjectService
	aggregator *service.Aggregator
}

func NewSubjectHandler(logger *zap.Logger, subjects *service.SubjectService, aggregator *service.Aggregator) *SubjectHandler {
	return &SubjectHandler{logger: logger, subjects: subjects, aggregator: aggregator}
}

// Register maneja POST /subjects.
func (h *SubjectHandler) Register(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	var req struct {
		Name   string `json:"name" binding:"required"`
		Age    int    `json:"age" binding:"required"`
		Gender string `json:"gender"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "register subject", err)
		return
	}

	subject, err := h.subjects.Register(c.Request.Context(), service.RegisterSubjectInput{
		Name:      req.Name,
		Age:       req.Age,
		Gender:    req.Gender,
		CreatedBy: userID,
	})
	if err != nil {
		writeError(c, h.logger, "register subject", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"subject": subject, "eligible_roles": h.aggregator.Policy().EligibleRoles(subject.Age)})
}

// LookupByCode maneja GET /subjects/code/:code.
func (h *SubjectHandler) LookupByCode(c *gin.Context) {
	subject, err := h.subjects.LookupByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSubject) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown sharing code"})
			return
		}
		writeError(c, h.logger, "lookup subject", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"subject": gin.H{
			"id":   subject.ID,
			"name": subject.Name,
			"age":  subject.Age,
		},
		"eligible_roles": h.aggregator.Policy().EligibleRoles(subject.Age),
	})
}
