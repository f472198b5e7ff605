package handler

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"librarylog/internal/auth"
	"librarylog/internal/httpmiddleware"
	"librarylog/internal/metrics"
)

// RouterConfig carries what NewRouter needs beyond the handler itself.
type RouterConfig struct {
	AllowOrigins       []string
	ViewToken          string
	RequireDeviceToken bool
	RateLimitPerMin    int
	Production         bool
	Location           *time.Location
	Metrics            *metrics.Metrics
	Logger             *zap.Logger
}

// NewRouter wires the middleware chain and routes.
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	r := gin.New()
	r.Use(
		httpmiddleware.RequestID(),
		httpmiddleware.Logger(logger),
		httpmiddleware.Recovery(logger),
		cors.New(corsConfig(cfg.AllowOrigins)),
		httpmiddleware.SecurityHeaders(cfg.Production),
	)
	r.SetHTMLTemplate(Templates(loc))

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))

	perMin := cfg.RateLimitPerMin
	if perMin <= 0 {
		perMin = 120
	}
	limiter := httpmiddleware.NewRateLimiter(perMin, perMin)

	kiosk := r.Group("", limiter.Middleware(), auth.DeviceAuth(h.issuer, cfg.RequireDeviceToken))
	kiosk.POST("/signin", h.SignIn)
	kiosk.POST("/signout", h.SignOut)
	kiosk.POST("/v1/kiosk/toggle", h.KioskToggle)

	r.POST("/library_action", limiter.Middleware(), h.LibraryAction)
	r.GET("/set_max_capacity", h.MaxCapacity)
	r.POST("/set_max_capacity", h.MaxCapacity)

	gated := r.Group("", auth.ViewToken(cfg.ViewToken))
	gated.GET("/library_view", h.LibraryView)
	gated.GET("/library_view/export", h.Export)
	gated.GET("/v1/logs", h.Logs)
	gated.GET("/library/events", h.Events)
	gated.POST("/v1/devices/register", h.RegisterDevice)

	r.POST("/v1/devices/refresh", limiter.Middleware(), h.RefreshDevice)

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "Last-Event-ID", httpmiddleware.RequestIDHeader},
		ExposeHeaders: []string{httpmiddleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
