package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gymtalk/handlers"
	"gymtalk/middleware"
	"gymtalk/websocket"
)

type Options struct {
	JWTSecret     string
	InternalToken string
	CORSOrigins   []string
	RateLimit     *middleware.IPRateLimiter
	Metrics       http.Handler
}

func SetupRouter(h *handlers.Handler, ws *websocket.Manager, opts Options, log *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(log))

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(opts.CORSOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = opts.CORSOrigins
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"time":     time.Now().Unix(),
			"channels": ws.GetConnectedUsers(),
			"ws":       "WebSocket available at /ws",
		})
	})

	metricsHandler := opts.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	router.GET("/metrics", gin.WrapH(metricsHandler))

	router.GET("/ws", gin.WrapF(websocket.WebSocketHandler(ws)))

	protected := router.Group("/api")
	protected.Use(middleware.JWTAuthMiddleware(opts.JWTSecret))

	send := []gin.HandlerFunc{h.SendMessage}
	if opts.RateLimit != nil {
		send = append([]gin.HandlerFunc{opts.RateLimit.Middleware()}, send...)
	}
	protected.POST("/messages", send...)
	protected.GET("/messages/conversation/:counterpartId", h.GetConversation)
	protected.POST("/messages/read", h.MarkAsRead)

	protected.GET("/threads", h.GetThreads)
	protected.POST("/threads", h.CreateThread)

	if opts.InternalToken != "" {
		router.POST("/internal/events", handlers.InternalToken(opts.InternalToken), h.IngestEvent)
	}

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Endpoint not found",
				"path":  c.Request.URL.Path,
			})
			return
		}
		c.Status(http.StatusNotFound)
	})

	return router
}
