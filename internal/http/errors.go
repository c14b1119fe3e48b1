package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sdq-screen/internal/domain"
	"sdq-screen/internal/service"
)

// writeError traduce los errores del protocolo a respuestas HTTP.
func writeError(c *gin.Context, logger *zap.Logger, op string, err error) {
	var (
		dup    *domain.DuplicateSessionError
		unint  *domain.UnintelligibleError
		status int
		body   = gin.H{"error": err.Error()}
	)
	switch {
	case errors.As(err, &dup):
		status = http.StatusConflict
		body["code"] = "duplicate_session"
		if dup.SessionID != "" {
			body["session_id"] = dup.SessionID
		}
	case errors.Is(err, domain.ErrDuplicateSession):
		status = http.StatusConflict
		body["code"] = "duplicate_session"
	case errors.As(err, &unint):
		status = http.StatusUnprocessableEntity
		body["code"] = "unintelligible"
		body["message"] = unint.Message
	case errors.Is(err, domain.ErrAdapterUnintelligible):
		status = http.StatusUnprocessableEntity
		body["code"] = "unintelligible"
	case errors.Is(err, domain.ErrAdapterTimeout):
		status = http.StatusServiceUnavailable
		body["code"] = "adapter_timeout"
		body["error"] = domain.ErrAdapterTimeout.Error()
	case errors.Is(err, service.ErrSelfReportIneligible):
		status = http.StatusUnprocessableEntity
		body["code"] = "self_report_ineligible"
	case errors.Is(err, service.ErrRateLimited):
		status = http.StatusTooManyRequests
		body["error"] = "too many requests"
	case errors.Is(err, domain.ErrState):
		status = http.StatusConflict
		body["code"] = "invalid_state"
	case errors.Is(err, domain.ErrNotComplete):
		status = http.StatusConflict
		body["code"] = "not_complete"
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrReviewNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidSubject):
		status = http.StatusBadRequest
		body["code"] = "invalid_subject"
	case errors.Is(err, domain.ErrIndexOutOfRange),
		errors.Is(err, domain.ErrInvalidOption),
		errors.Is(err, domain.ErrInvalidRole),
		errors.Is(err, domain.ErrReviewerRequired):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrWeakPassword):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrUserExists):
		status = http.StatusConflict
		body["error"] = "email already registered"
	case errors.Is(err, service.ErrInvalidCredentials):
		status = http.StatusUnauthorized
		body["error"] = "invalid credentials"
	case errors.Is(err, service.ErrJWTInvalid),
		errors.Is(err, service.ErrJWTExpired):
		status = http.StatusUnauthorized
		body["error"] = "invalid token"
	case errors.Is(err, service.ErrSearchUnavailable):
		status = http.StatusNotImplemented
	default:
		logger.Error(op+" failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not " + op})
		return
	}
	if status >= http.StatusInternalServerError {
		logger.Warn(op+" failed", zap.Error(err))
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, logger *zap.Logger, op string, err error) {
	logger.Warn("invalid "+op+" request", zap.Error(err))
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
}
