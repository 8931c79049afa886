package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"health-chat/internal/metrics"
)

// Pinger verifica la disponibilidad del almacenamiento.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewRouter configura el router de Gin con middlewares y rutas base.
func NewRouter(
	logger *zap.Logger,
	exporter *metrics.Exporter,
	storage Pinger,
	conversationH *ConversationHandler,
	quickActionH *QuickActionHandler,
	userH *UserHandler,
) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging, metricas, recovery y JSON content-type.
	// Recovery va despues de metricas para que un panic se cuente como 500.
	r.Use(zapLoggerMiddleware(logger))
	if exporter != nil {
		r.Use(metricsMiddleware(exporter))
	}
	r.Use(gin.Recovery())
	if exporter != nil {
		r.GET("/metrics", gin.WrapH(exporter.Handler()))
	}
	r.GET("/healthz", healthHandler(storage))

	api := r.Group("")
	api.Use(jsonContentTypeMiddleware())

	conversations := api.Group("/conversations")
	conversations.POST("", conversationH.CreateConversation)
	conversations.GET("/:id", conversationH.GetConversation)
	conversations.GET("/:id/messages", conversationH.ListMessages)
	conversations.POST("/:id/messages", conversationH.PostMessage)

	api.GET("/quick-actions", quickActionH.ListQuickActions)
	api.POST("/quick-actions", quickActionH.QuickAction)

	if userH != nil {
		api.POST("/users", userH.CreateUser)
		api.GET("/users/:id", userH.GetUser)
	}

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// metricsMiddleware registra cada peticion usando la ruta declarada como label.
func metricsMiddleware(exporter *metrics.Exporter) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		exporter.RequestStarted()
		defer func() {
			exporter.RequestFinished(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
		}()
		c.Next()
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}

func healthHandler(storage Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if storage != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := storage.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
