package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ServerConfig struct {
	APIAccessKey string
	CORSOrigins  []string
	CoverDir     string
	Version      string
}

// NewServer creates a new HTTP server with all routes configured
func NewServer(handler *Handler, cfg ServerConfig) *gin.Engine {
	// Set Gin mode (can be controlled via GIN_MODE environment variable)
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// Middleware
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/health", "/metrics"},
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	r.Use(gin.Recovery())
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))

	setupRoutes(r, handler, cfg)

	return r
}

func corsConfig(origins []string) cors.Config {
	config := cors.DefaultConfig()
	if len(origins) > 0 {
		config.AllowOrigins = origins
	} else {
		config.AllowAllOrigins = true
	}
	config.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Key"}
	config.MaxAge = 12 * time.Hour
	return config
}

// setupRoutes configures all the application routes
func setupRoutes(r *gin.Engine, handler *Handler, cfg ServerConfig) {
	// Reading
	r.GET("/stories/today", handler.GetToday)
	r.GET("/stories/:date", handler.GetStory)
	r.GET("/archive", handler.GetArchive)
	r.GET("/archive.xml", handler.GetArchiveFeed)
	if cfg.CoverDir != "" {
		r.Static("/covers", cfg.CoverDir)
	}

	// Health and status endpoints
	r.GET("/health", handler.GetHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Writing, authenticated per request with an identity token
	r.POST("/api/contributions", handler.Submit)
	r.POST("/api/validate", handler.Validate)

	// Admin endpoints (conditionally enabled with authentication)
	if cfg.APIAccessKey != "" {
		admin := r.Group("/api/admin")
		admin.Use(authMiddleware(cfg.APIAccessKey))
		{
			admin.DELETE("/stories/:date/contributions/:id", handler.APIDeleteContribution)
			admin.POST("/tasks/:type", handler.APITriggerTask)
		}
		slog.Info("Admin endpoints enabled with authentication")
	} else {
		slog.Info("Admin endpoints disabled (API_ACCESS_KEY not set)")
	}

	// Root endpoint with basic information
	r.GET("/", func(c *gin.Context) {
		endpoints := map[string]string{
			"today":      "/stories/today",
			"story":      "/stories/<YYYY-MM-DD>",
			"archive":    "/archive",
			"feed":       "/archive.xml",
			"contribute": "/api/contributions (POST, requires Authorization: Bearer <id token>)",
			"validate":   "/api/validate (POST)",
			"health":     "/health",
		}

		if cfg.APIAccessKey != "" {
			endpoints["delete"] = "/api/admin/stories/<date>/contributions/<id> (DELETE, requires X-API-Key header)"
			endpoints["tasks"] = "/api/admin/tasks/<type>?date=<date> (POST, requires X-API-Key header)"
		}

		c.JSON(http.StatusOK, gin.H{
			"service":     "Scripta",
			"version":     cfg.Version,
			"description": "Daily collective storytelling, one story per day",
			"endpoints":   endpoints,
			"admin_status": map[string]interface{}{
				"enabled":       cfg.APIAccessKey != "",
				"auth_required": cfg.APIAccessKey != "",
				"header":        "X-API-Key",
			},
		})
	})

	// Favicon handler (return 204 to avoid 404s)
	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
}

// authMiddleware creates authentication middleware for admin endpoints
func authMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedKey := c.GetHeader("X-API-Key")

		if providedKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				providedKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if providedKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error": gin.H{
					"kind":    "unauthenticated",
					"message": "Provide API key in X-API-Key header or Authorization: Bearer <key>",
				},
			})
			return
		}

		if providedKey != apiAccessKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error": gin.H{
					"kind":    "unauthenticated",
					"message": "The provided API key is not valid",
				},
			})
			return
		}

		c.Next()
	}
}
