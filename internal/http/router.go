package http

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RouterConfig wires handlers into the router. Nil handlers leave their
// routes unregistered.
type RouterConfig struct {
	Auth         *AuthHandler
	Users        *UserHandler
	Reservations *ReservationHandler
	Availability *AvailabilityHandler
	Live         *LiveHandler
	Sessions     SessionValidator
	CORSOrigins  []string
	Logger       *slog.Logger
	Now          func() time.Time
}

// NewRouter builds the gin engine serving every endpoint listed in the
// package documentation.
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := defaultLogger(cfg.Logger)
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(logger))
	if len(cfg.CORSOrigins) > 0 {
		router.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	}
	router.Use(ResolveSession(cfg.Sessions, logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": now().UTC().Format(time.RFC3339),
		})
	})

	authed := RequireSession(logger)

	if cfg.Auth != nil {
		router.POST("/register", cfg.Auth.Register)
		router.POST("/sessions", cfg.Auth.CreateSession)
		router.DELETE("/sessions/current", authed, cfg.Auth.DeleteCurrentSession)
	}

	if cfg.Availability != nil {
		router.GET("/resources", cfg.Availability.Resources)
		router.GET("/availability", cfg.Availability.List)
		router.GET("/search", cfg.Availability.Search)
	}
	if cfg.Live != nil {
		router.GET("/availability/live", cfg.Live.Serve)
	}

	if cfg.Reservations != nil {
		reservations := router.Group("/reservations")
		reservations.GET("/recent", cfg.Reservations.Recent)
		reservations.GET("/mine", authed, cfg.Reservations.Mine)
		reservations.POST("", authed, cfg.Reservations.Book)
		reservations.POST("/:id/edit", authed, cfg.Reservations.Edit)
		reservations.DELETE("/:id", authed, cfg.Reservations.Cancel)
	}

	if cfg.Users != nil {
		users := router.Group("/users")
		users.GET("", cfg.Users.List)
		users.GET("/:identity", cfg.Users.Get)
		users.GET("/:identity/reservations", cfg.Users.Reservations)
		users.PUT("/:identity/description", authed, cfg.Users.UpdateDescription)
	}

	return router
}

func corsConfig(origins []string) cors.Config {
	config := cors.DefaultConfig()
	if slices.Contains(origins, "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
		config.AllowCredentials = true
	}
	config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", requestIDHeader}
	config.ExposeHeaders = []string{requestIDHeader}
	return config
}
