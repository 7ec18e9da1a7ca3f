package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"kisaanconnect/internal/infra/config"
	"kisaanconnect/internal/infra/obs"
)

type Handlers struct {
	Auth           AuthHTTP
	Chat           ChatHTTP
	Crops          CropHTTP
	Help           HelpHTTP
	Market         MarketHTTP
	Directory      DirectoryHTTP
	AuthMiddleware gin.HandlerFunc
	RateLimit      gin.HandlerFunc
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewRouter(cfg, obsMW, health, h),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func NewRouter(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *gin.Engine {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.AccessLog())
	router.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	if h.AuthMiddleware != nil {
		router.Use(h.AuthMiddleware)
	}
	limited := h.RateLimit
	if limited == nil {
		limited = func(c *gin.Context) { c.Next() }
	}

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)
	registerStatic(router, cfg.StaticDir, cfg.UploadsDir)

	api := router.Group("/api")
	api.GET("/health", health.Status)
	if h.Auth != nil {
		authGroup := api.Group("/auth", limited)
		authGroup.POST("/register", h.Auth.Register)
		authGroup.POST("/login", h.Auth.Login)
		authGroup.POST("/logout", h.Auth.Logout)
		authGroup.POST("/forgot-password", h.Auth.ForgotPassword)
		authGroup.POST("/reset-password", h.Auth.ResetPassword)
		api.GET("/me", h.Auth.Me)
		api.PUT("/me", h.Auth.UpdateMe)
		api.POST("/user/push-token", h.Auth.PushToken)
	}
	if h.Chat != nil {
		chats := api.Group("/chats")
		chats.GET("", h.Chat.List)
		chats.POST("/start", h.Chat.Start)
		chats.GET("/:chatId/messages", h.Chat.History)
		chats.POST("/:chatId/messages", h.Chat.Send)
		router.GET("/ws", h.Chat.Socket)
	}
	if h.Crops != nil {
		crops := api.Group("/crops")
		crops.GET("", h.Crops.Catalog)
		crops.GET("/suggestions", h.Crops.Suggestions)
		crops.GET("/mine", h.Crops.Mine)
		crops.GET("/:id", h.Crops.Get)
		crops.POST("", h.Crops.Create)
		crops.PUT("/:id", h.Crops.Update)
		crops.DELETE("/:id", h.Crops.Delete)
		api.GET("/image/default", h.Crops.DefaultImage)
	}
	if h.Help != nil {
		help := api.Group("/help")
		help.POST("/tickets", limited, h.Help.Create)
		help.GET("/tickets", h.Help.List)
		help.GET("/tickets/:id", h.Help.Get)
		help.PATCH("/tickets/:id", h.Help.Update)
		help.POST("/tickets/:id/responses", h.Help.Respond)
		help.GET("/stats", h.Help.Stats)
	}
	if h.Market != nil {
		api.GET("/market-prices", h.Market.Prices)
	}
	if h.Directory != nil {
		api.GET("/farmers", h.Directory.Farmers)
		api.GET("/farmers/:id", h.Directory.Farmer)
		api.GET("/dashboard/stats", h.Directory.Dashboard)
	}
	return router
}

// corsConfig echoes any origin when none are configured so the session
// cookie still works for local clients.
func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "Idempotency-Key", obs.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Type", obs.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
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
