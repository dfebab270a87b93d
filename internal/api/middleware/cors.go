package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/debugbridge/internal/domain/auth"
	"github.com/GriffinCanCode/debugbridge/internal/infrastructure/tracing"
)

// CORSConfig defines CORS configuration options.
type CORSConfig struct {
	AllowOrigins     []string      `envconfig:"ORIGINS" default:"*"`
	AllowMethods     []string      `envconfig:"METHODS" default:"GET,POST,OPTIONS"`
	AllowCredentials bool          `envconfig:"CREDENTIALS" default:"false"`
	MaxAge           time.Duration `envconfig:"MAX_AGE" default:"12h"`
	AllowHeaders     []string      `ignored:"true"`
}

// DefaultCORSConfig returns the CORS configuration for a local debug port.
// Credentials stay off: callers authenticate with a header, not cookies.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Content-Length",
			"Accept-Encoding",
			"Accept",
			"Origin",
			"Cache-Control",
			"X-Requested-With",
			auth.HeaderName,
			tracing.TraceHeader,
			tracing.SpanHeader,
		},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
}

// CORS creates a CORS middleware with the provided configuration.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	if len(cfg.AllowHeaders) == 0 {
		cfg.AllowHeaders = DefaultCORSConfig().AllowHeaders
	}
	return cors.New(cors.Config{
		AllowOrigins:     cfg.AllowOrigins,
		AllowMethods:     cfg.AllowMethods,
		AllowHeaders:     cfg.AllowHeaders,
		ExposeHeaders:    []string{tracing.TraceHeader, tracing.SpanHeader},
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	})
}
