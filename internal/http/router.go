package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sdq-screen/internal/domain"
	"sdq-screen/internal/service"
)

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(
	logger *zap.Logger,
	jwtSvc *service.JWTService,
	userH *UserHandler,
	subjectH *SubjectHandler,
	sessionH *SessionHandler,
	reviewH *ReviewHandler,
	resultsH *ResultsHandler,
) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := gin.New()

	// Middlewares basicos: logging, recovery y JSON content-type.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), jsonContentTypeMiddleware())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })

	users := r.Group("/users")
	users.POST("", userH.CreateUser)

	auth := r.Group("/auth")
	auth.POST("/login", userH.Login)
	auth.POST("/refresh", userH.RefreshToken)
	auth.POST("/logout", userH.Logout)

	authed := r.Group("", JWTAuthMiddleware(jwtSvc))

	subjects := authed.Group("/subjects")
	subjects.POST("", subjectH.Register)
	subjects.GET("/code/:code", subjectH.LookupByCode)

	sessions := authed.Group("/sessions")
	sessions.POST("", sessionH.Start)
	sessions.GET("/:id", sessionH.Get)
	sessions.POST("/:id/respond", sessionH.Respond)
	sessions.POST("/:id/confirm", sessionH.Confirm)
	sessions.POST("/:id/submit", sessionH.Submit)

	authed.GET("/results/:subject_id", resultsH.Get)

	reviews := authed.Group("/reviews", RequireAccountRole(domain.AccountReviewer))
	reviews.GET("", reviewH.List)
	reviews.GET("/:subject_id", reviewH.Record)
	reviews.GET("/:subject_id/questions/:index", reviewH.Compare)
	reviews.GET("/:subject_id/search", reviewH.Search)
	reviews.POST("/:subject_id/begin", reviewH.Begin)
	reviews.PUT("/:subject_id/draft", reviewH.EditDraft)
	reviews.POST("/:subject_id/submit", reviewH.Submit)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		}
		if claims, ok := GetAuthClaims(c); ok {
			fields = append(fields, zap.String("user_id", claims.UserID))
		}
		logger.Info("request", fields...)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
