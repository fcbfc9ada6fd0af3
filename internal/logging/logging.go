package logging

import (
	"io"
	"os"
	"time"

	"github.com/aimerfeng/ReviewLink/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup initializes the global logger based on configuration
func Setup(cfg *config.LoggingConfig, env string) {
	SetupTo(cfg, env, os.Stdout)
}

// SetupTo initializes the global logger writing to out
func SetupTo(cfg *config.LoggingConfig, env string, out io.Writer) {
	// Set log level
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	zerolog.TimeFieldFormat = time.RFC3339Nano

	// Configure output based on format and environment
	var output io.Writer
	if cfg.Format == "json" || env == "production" {
		output = out
	} else {
		// Pretty console output for development
		output = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
			NoColor:    out != os.Stdout && out != os.Stderr,
		}
	}

	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Str("service", "reviewlink").
		Logger()
}

// NewLogger creates a new logger with additional context
func NewLogger(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

// RequestLogger is a Gin middleware for structured request logging
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		requestID := c.GetString("request_id")

		event := log.Info()
		if c.Writer.Status() >= 500 {
			event = log.Error()
		} else if c.Writer.Status() >= 400 {
			event = log.Warn()
		}

		event.
			Str("request_id", requestID).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", raw).
			Int("status", c.Writer.Status()).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Int("body_size", c.Writer.Size()).
			Msg("HTTP request")
	}
}

// LogConversationStep logs a WhatsApp conversation transition.
// The contact number is masked so full phone numbers never reach the logs.
func LogConversationStep(contact, from, to string) {
	log.Info().
		Str("contact", MaskContact(contact)).
		Str("from_step", from).
		Str("to_step", to).
		Msg("Conversation step")
}

// LogReviewRecorded logs a newly stored review
func LogReviewRecorded(reviewID int64, contact, product string) {
	log.Info().
		Int64("review_id", reviewID).
		Str("contact", MaskContact(contact)).
		Str("product", SanitizeForLog(product, 64)).
		Msg("Review recorded")
}

// LogError logs an error with context
func LogError(err error, requestID, component, operation string) {
	log.Error().
		Err(err).
		Str("request_id", requestID).
		Str("component", component).
		Str("operation", operation).
		Msg("Error occurred")
}

// SanitizeForLog truncates free text before it is logged
func SanitizeForLog(data string, maxLen int) string {
	if len(data) > maxLen {
		return data[:maxLen] + "...[truncated]"
	}
	return data
}

// MaskContact keeps only the last four characters of a contact number
func MaskContact(contact string) string {
	const keep = 4
	if len(contact) <= keep {
		return contact
	}
	masked := make([]byte, len(contact))
	for i := range masked {
		if i < len(contact)-keep {
			masked[i] = '*'
		} else {
			masked[i] = contact[i]
		}
	}
	return string(masked)
}
