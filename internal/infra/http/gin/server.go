package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"kindbossing/internal/infra/config"
	"kindbossing/internal/infra/obs"
)

type Handlers struct {
	Chat           ChatHTTP
	Matching       MatchingHTTP
	Blocks         BlocksHTTP
	Notifications  NotificationsHTTP
	Attachments    AttachmentsHTTP
	Realtime       http.Handler
	AuthMiddleware gin.HandlerFunc
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewHandler(cfg, obsMW, health, h),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// NewHandler serves the websocket endpoint beside the gin engine and
// everything else through it.
func NewHandler(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) http.Handler {
	router := NewRouter(cfg, obsMW, health, h)
	if h.Realtime == nil {
		return router
	}
	mux := http.NewServeMux()
	mux.Handle("/ws", h.Realtime)
	mux.Handle("/", router)
	return mux
}

func NewRouter(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *gin.Engine {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: corsOrigins(cfg.CORSOrigins),
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "Idempotency-Key"},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			"X-Request-ID",
		},
		MaxAge: 12 * time.Hour,
	}))
	if h.AuthMiddleware != nil {
		router.Use(h.AuthMiddleware)
	}

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)
	router.GET("/metrics", gin.WrapH(obs.MetricsHandler()))

	api := router.Group("/api/v1")
	if h.Chat != nil {
		conv := api.Group("/conversations")
		conv.GET("", h.Chat.ListConversations)
		conv.POST("", h.Chat.OpenConversation)
		conv.GET("/:id", h.Chat.GetConversation)
		conv.GET("/:id/messages", h.Chat.ListMessages)
		conv.POST("/:id/messages", h.Chat.SendMessage)
		conv.POST("/:id/read", h.Chat.MarkRead)
		if h.Attachments != nil {
			conv.POST("/:id/attachments", h.Attachments.Upload)
		}
	}
	if h.Blocks != nil {
		api.GET("/blocks/:user_id", h.Blocks.Status)
		api.POST("/blocks", h.Blocks.Block)
		api.DELETE("/blocks/:user_id", h.Blocks.Unblock)
	}
	if h.Matching != nil {
		api.GET("/jobs/:id/candidates", h.Matching.Candidates)
		api.POST("/applications/:id/approve", h.Matching.Approve)
		api.POST("/applications/:id/skip", h.Matching.Skip)
	}
	if h.Notifications != nil {
		api.GET("/notifications", h.Notifications.List)
		api.POST("/notifications/:id/read", h.Notifications.MarkRead)
	}
	return router
}

func corsOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
