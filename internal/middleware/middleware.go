package middleware

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	apierrors "github.com/aimerfeng/ReviewLink/internal/errors"
	"github.com/aimerfeng/ReviewLink/internal/logging"
	"github.com/aimerfeng/ReviewLink/internal/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	twilioclient "github.com/twilio/twilio-go/client"
)

// Context keys
const (
	ContextKeyRequestID     = "request_id"
	ContextKeyCorrelationID = "correlation_id"
)

// TwilioSignatureHeader carries the HMAC Twilio computes over the webhook request
const TwilioSignatureHeader = "X-Twilio-Signature"

// RequestID adds a unique request ID to each request
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(ContextKeyRequestID, requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// CorrelationID adds a correlation ID for tracing a request across services.
// It is taken from upstream when present and otherwise falls back to the request ID.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = c.GetString(ContextKeyRequestID)
			if correlationID == "" {
				correlationID = uuid.New().String()
			}
		}
		c.Set(ContextKeyCorrelationID, correlationID)
		c.Header("X-Correlation-ID", correlationID)
		c.Next()
	}
}

// GetRequestIDFromContext extracts the request ID from the gin context
func GetRequestIDFromContext(c *gin.Context) string {
	return c.GetString(ContextKeyRequestID)
}

// GetCorrelationIDFromContext extracts the correlation ID from the gin context
func GetCorrelationIDFromContext(c *gin.Context) string {
	return c.GetString(ContextKeyCorrelationID)
}

// CORS configures CORS headers for the review list frontends
func CORS(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowed := false
		for _, o := range allowedOrigins {
			if o == origin || o == "*" {
				allowed = true
				break
			}
		}

		if allowed && origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "*")
			c.Header("Access-Control-Expose-Headers", "X-Request-ID, X-Correlation-ID")
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Max-Age", "43200") // 12 hours
			c.Header("Vary", "Origin")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// TwilioSignature rejects webhook requests whose X-Twilio-Signature does
// not match authToken. publicURL is the URL configured in the Twilio
// console; when empty it is rebuilt from the request, which only works
// when no proxy rewrites the host or scheme.
func TwilioSignature(authToken, publicURL string) gin.HandlerFunc {
	validator := twilioclient.NewRequestValidator(authToken)
	return func(c *gin.Context) {
		if err := c.Request.ParseForm(); err != nil {
			respondWithError(c, apierrors.NewInvalidRequestError("Malformed form body"))
			c.Abort()
			return
		}

		params := make(map[string]string, len(c.Request.PostForm))
		for k, v := range c.Request.PostForm {
			if len(v) > 0 {
				params[k] = v[0]
			}
		}

		url := publicURL
		if url == "" {
			url = requestURL(c)
		}

		if !validator.Validate(url, params, c.GetHeader(TwilioSignatureHeader)) {
			logging.LogError(fmt.Errorf("signature mismatch for %s", url),
				GetRequestIDFromContext(c), "middleware", "twilio_signature")
			respondWithError(c, apierrors.ErrInvalidSignatureError)
			c.Abort()
			return
		}

		c.Next()
	}
}

// ContactLimiter decides whether a contact may send another message
type ContactLimiter interface {
	Allow(ctx context.Context, contact string) (*ratelimit.Result, error)
}

// ContactRateLimit throttles webhook messages per sender (the From field).
// Requests without a sender are passed on for the handler to reject.
func ContactRateLimit(limiter ContactLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		contact := c.PostForm("From")
		if contact == "" {
			c.Next()
			return
		}

		result, err := limiter.Allow(c.Request.Context(), contact)
		if err != nil {
			logging.LogError(err, GetRequestIDFromContext(c), "middleware", "rate_limit")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))

		if !result.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
			logger := logging.NewLogger("middleware")
			logger.Warn().
				Str("request_id", GetRequestIDFromContext(c)).
				Str("contact", logging.MaskContact(contact)).
				Dur("retry_after", result.RetryAfter).
				Msg("Webhook rate limit exceeded")
			respondWithError(c, apierrors.ErrRateLimitedError)
			c.Abort()
			return
		}

		c.Next()
	}
}

func requestURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if fwd := c.GetHeader("X-Forwarded-Proto"); fwd != "" {
		scheme = strings.ToLower(strings.TrimSpace(strings.Split(fwd, ",")[0]))
	}
	return scheme + "://" + c.Request.Host + c.Request.URL.RequestURI()
}

// respondWithError sends a standardized error response
func respondWithError(c *gin.Context, err *apierrors.APIError) {
	response := apierrors.NewErrorResponse(
		err,
		GetRequestIDFromContext(c),
		GetCorrelationIDFromContext(c),
		c.Request.URL.Path,
		c.Request.Method,
	)
	c.JSON(response.Error.HTTPStatus, response)
}
