package main

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/simulive/backend/config"
	"github.com/simulive/backend/internal/auth"
	"github.com/simulive/backend/internal/avatars"
	"github.com/simulive/backend/internal/chat"
	"github.com/simulive/backend/internal/middleware"
	"github.com/simulive/backend/internal/realtime"
	"github.com/simulive/backend/internal/webinars"
	"github.com/simulive/backend/pkg/response"
)

type routerDeps struct {
	cfg      *config.Config
	logger   *zap.Logger
	policy   middleware.OriginPolicy
	jwt      *auth.JWTService
	socket   *realtime.Server
	webinars *webinars.Handler
	chat     *chat.Handler
	avatars  *avatars.Handler
}

// apiPrefixes never fall through to the SPA.
var apiPrefixes = []string{"/socket", "/webinars", "/realtime", "/metrics", "/health"}

func newRouter(d routerDeps) *gin.Engine {
	if d.cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(ginzap.RecoveryWithZap(d.logger, true))
	router.Use(middleware.Logger(d.logger, "/socket/poll", "/metrics", "/health"))
	router.Use(middleware.CORS(d.policy))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Socket transports
	d.socket.Register(router.Group("/socket"))

	// Webinar API. A host token is optional; a bad one is rejected.
	api := router.Group("/webinars/:id")
	api.Use(middleware.OptionalJWT(d.jwt))
	{
		api.GET("", d.webinars.Get)
		api.GET("/viewers", d.webinars.Viewers)
		api.POST("/messages", d.chat.Send)
		api.GET("/messages", d.chat.History)
		api.GET("/avatar-messages", d.avatars.List)
	}
	router.GET("/realtime/rooms", d.webinars.Rooms)

	if d.cfg.Production() {
		router.NoRoute(spaHandler(d.cfg.Server.StaticDir))
	}
	return router
}

// spaHandler serves files from dir and index.html for any other non-API GET.
func spaHandler(dir string) gin.HandlerFunc {
	index := filepath.Join(dir, "index.html")
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			response.NotFound(c, "not found")
			return
		}
		for _, prefix := range apiPrefixes {
			if path == prefix || strings.HasPrefix(path, prefix+"/") {
				response.NotFound(c, "not found")
				return
			}
		}
		file := filepath.Join(dir, filepath.Clean("/"+path))
		if info, err := os.Stat(file); err == nil && !info.IsDir() {
			c.File(file)
			return
		}
		c.File(index)
	}
}
