package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"sdq-screen/internal/domain"
	"sdq-screen/internal/sdq"
	"sdq-screen/internal/service"
)

// SessionHandler expone el protocolo de una sesion de respondente.
type SessionHandler struct {
	logger   *zap.Logger
	sessions *service.SessionService
	subjects *service.SubjectService
}

func NewSessionHandler(logger *zap.Logger, sessions *service.SessionService, subjects *service.SubjectService) *SessionHandler {
	return &SessionHandler{logger: logger, sessions: sessions, subjects: subjects}
}

// Start maneja POST /sessions. Acepta subject_id o sharing_code.
func (h *SessionHandler) Start(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	var req struct {
		SubjectID   string `json:"subject_id"`
		SharingCode string `json:"sharing_code"`
		Role        string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "start session", err)
		return
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		writeError(c, h.logger, "start session", err)
		return
	}

	subjectID := strings.TrimSpace(req.SubjectID)
	if subjectID == "" {
		if strings.TrimSpace(req.SharingCode) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "subject_id or sharing_code is required"})
			return
		}
		subject, err := h.subjects.LookupByCode(c.Request.Context(), req.SharingCode)
		if err != nil {
			writeError(c, h.logger, "start session", err)
			return
		}
		subjectID = subject.ID
	}

	view, err := h.sessions.Start(c.Request.Context(), service.StartInput{
		SubjectID:    subjectID,
		Role:         role,
		RespondentID: userID,
	})
	if err != nil {
		writeError(c, h.logger, "start session", err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// Get maneja GET /sessions/:id.
func (h *SessionHandler) Get(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	view, err := h.sessions.Get(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		writeError(c, h.logger, "get session", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Respond maneja POST /sessions/:id/respond.
func (h *SessionHandler) Respond(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	var req struct {
		QuestionIndex *int   `json:"question_index" binding:"required"`
		FreeText      string `json:"free_text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "respond", err)
		return
	}

	res, err := h.sessions.Respond(c.Request.Context(), service.RespondInput{
		SessionID:     c.Param("id"),
		RespondentID:  userID,
		QuestionIndex: *req.QuestionIndex,
		FreeText:      req.FreeText,
	})
	if err != nil {
		writeError(c, h.logger, "respond", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Confirm maneja POST /sessions/:id/confirm. override_option acepta la
// etiqueta ("Certainly True") o el valor, como numero JSON o como texto.
func (h *SessionHandler) Confirm(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	var req struct {
		QuestionIndex  *int            `json:"question_index" binding:"required"`
		Accept         bool            `json:"accept"`
		OverrideOption json.RawMessage `json:"override_option"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "confirm", err)
		return
	}

	input := service.ConfirmInput{
		SessionID:     c.Param("id"),
		RespondentID:  userID,
		QuestionIndex: *req.QuestionIndex,
		Accept:        req.Accept,
	}
	if !req.Accept {
		opt, err := parseOverride(req.OverrideOption)
		if err != nil {
			writeError(c, h.logger, "confirm", err)
			return
		}
		input.Override = opt
	}

	res, err := h.sessions.Confirm(c.Request.Context(), input)
	if err != nil {
		writeError(c, h.logger, "confirm", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Submit maneja POST /sessions/:id/submit.
func (h *SessionHandler) Submit(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	res, err := h.sessions.Submit(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		writeError(c, h.logger, "submit session", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// parseOverride devuelve nil si no hay override (ausente, null o texto vacio).
func parseOverride(raw json.RawMessage) (*sdq.Option, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	v := gjson.ParseBytes(raw)
	var (
		opt sdq.Option
		err error
	)
	switch v.Type {
	case gjson.Null:
		return nil, nil
	case gjson.String:
		if strings.TrimSpace(v.Str) == "" {
			return nil, nil
		}
		opt, err = sdq.ParseOption(v.Str)
	case gjson.Number:
		opt, err = sdq.ParseOption(v.Raw)
	default:
		err = fmt.Errorf("%w: %s", sdq.ErrInvalidOption, v.Raw)
	}
	if err != nil {
		return nil, err
	}
	return &opt, nil
}
