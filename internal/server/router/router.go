package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/pantry/internal/metrics"
	"github.com/mamadbah2/pantry/internal/server/handlers"
)

const requestIDHeader = "X-Request-ID"

// Dependencies groups what the router mounts. Webhook is optional.
type Dependencies struct {
	API     *handlers.APIHandler
	Webhook *handlers.WebhookHandler
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// New wires the Gin engine with required routes and middlewares.
func New(deps Dependencies) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestIDMiddleware())
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware())
	}
	r.Use(zapLoggerMiddleware(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	api := r.Group("/api/v1")
	{
		api.POST("/goods-issues", deps.API.SubmitGoodsIssue)
		api.POST("/cook", deps.API.SubmitCook)

		api.GET("/products", deps.API.ListProducts)
		api.GET("/products/:id", deps.API.GetProduct)

		api.GET("/recipes", deps.API.ListRecipes)
		api.GET("/recipes/:id", deps.API.GetRecipe)
		api.GET("/recipes/:id/preview", deps.API.PreviewCook)

		api.GET("/issues", deps.API.ListIssues)
		api.GET("/issues/:id", deps.API.GetIssue)
	}

	if deps.Webhook != nil {
		r.GET("/webhook", deps.Webhook.Verify)
		r.POST("/webhook", deps.Webhook.Receive)
		r.POST("/send-message", deps.Webhook.SendMessage)
	}

	logger.Info("router initialized", zap.Bool("webhook", deps.Webhook != nil))
	return r
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(handlers.RequestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", c.GetString(handlers.RequestIDKey)))
	}
}
