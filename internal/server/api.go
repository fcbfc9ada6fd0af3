package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aimerfeng/ReviewLink/internal/config"
	"github.com/aimerfeng/ReviewLink/internal/conversation"
	apierrors "github.com/aimerfeng/ReviewLink/internal/errors"
	"github.com/aimerfeng/ReviewLink/internal/logging"
	"github.com/aimerfeng/ReviewLink/internal/middleware"
	"github.com/aimerfeng/ReviewLink/internal/models"
	"github.com/aimerfeng/ReviewLink/internal/monitoring"
	"github.com/gin-gonic/gin"
	"github.com/twilio/twilio-go/twiml"
)

// ReviewLister lists stored reviews, newest first
type ReviewLister interface {
	List(ctx context.Context) ([]models.Review, error)
}

// MessageHandler answers one inbound WhatsApp message
type MessageHandler interface {
	Handle(ctx context.Context, contact, body string) (string, error)
}

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	Health(ctx context.Context) error
}

// APIServer represents the review collector API server
type APIServer struct {
	config       *config.Config
	router       *gin.Engine
	reviews      ReviewLister
	conversation MessageHandler
	checks       map[string]HealthChecker
	limiter      middleware.ContactLimiter
}

// Option customizes an APIServer
type Option func(*APIServer)

// WithContactLimiter throttles the WhatsApp webhook per sender
func WithContactLimiter(l middleware.ContactLimiter) Option {
	return func(s *APIServer) {
		s.limiter = l
	}
}

// NewAPIServer creates a new API server instance
func NewAPIServer(cfg *config.Config, reviews ReviewLister, convo MessageHandler, checks map[string]HealthChecker, opts ...Option) *APIServer {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	router.Use(monitoring.MetricsMiddleware())
	router.Use(logging.RequestLogger())

	srv := &APIServer{
		config:       cfg,
		router:       router,
		reviews:      reviews,
		conversation: convo,
		checks:       checks,
	}
	for _, opt := range opts {
		opt(srv)
	}

	srv.setupRoutes()
	return srv
}

// Router returns the gin router
func (s *APIServer) Router() http.Handler {
	return s.router
}

// setupRoutes configures all API routes
func (s *APIServer) setupRoutes() {
	s.router.GET("/health", s.healthCheck)

	s.router.GET("/api/reviews", s.handleListReviews)

	webhook := s.router.Group("/webhook")
	if s.config.Twilio.AuthToken != "" {
		webhook.Use(middleware.TwilioSignature(s.config.Twilio.AuthToken, s.config.Twilio.WebhookURL))
	}
	if s.limiter != nil {
		webhook.Use(middleware.ContactRateLimit(s.limiter))
	}
	{
		webhook.POST("/whatsapp", s.handleWhatsAppWebhook)
	}
}

// healthCheck pings every registered dependency
func (s *APIServer) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := gin.H{}
	for name, check := range s.checks {
		if err := check.Health(ctx); err != nil {
			status = http.StatusServiceUnavailable
			deps[name] = err.Error()
			continue
		}
		deps[name] = "ok"
	}

	health := "healthy"
	if status != http.StatusOK {
		health = "unhealthy"
	}
	c.JSON(status, gin.H{
		"status":       health,
		"service":      "api",
		"dependencies": deps,
	})
}

// handleListReviews returns all reviews as a JSON array, newest first
func (s *APIServer) handleListReviews(c *gin.Context) {
	reviews, err := s.reviews.List(c.Request.Context())
	if err != nil {
		logging.LogError(err, middleware.GetRequestIDFromContext(c), "server", "list_reviews")
		respondError(c, apierrors.ErrDatabaseErrorError)
		return
	}
	if reviews == nil {
		reviews = []models.Review{}
	}

	c.JSON(http.StatusOK, reviews)
}

// handleWhatsAppWebhook answers a Twilio WhatsApp message with TwiML
func (s *APIServer) handleWhatsAppWebhook(c *gin.Context) {
	from := c.PostForm("From")
	body := c.PostForm("Body")

	reply, err := s.conversation.Handle(c.Request.Context(), from, body)
	if err != nil {
		if errors.Is(err, conversation.ErrMissingSender) {
			respondError(c, apierrors.ErrMissingSenderError)
			return
		}
		logging.LogError(err, middleware.GetRequestIDFromContext(c), "server", "whatsapp_webhook")
		respondError(c, apierrors.ErrSessionStoreError)
		return
	}

	respondTwiML(c, reply)
}

// respondTwiML writes a single-message TwiML response
func respondTwiML(c *gin.Context, text string) {
	doc, err := twiml.Messages([]twiml.Element{
		&twiml.MessagingMessage{Body: text},
	})
	if err != nil {
		logging.LogError(err, middleware.GetRequestIDFromContext(c), "server", "twiml")
		respondError(c, apierrors.ErrInternalServerError)
		return
	}
	c.Data(http.StatusOK, "application/xml", []byte(doc))
}

// respondError sends a standardized error response
func respondError(c *gin.Context, err *apierrors.APIError) {
	response := apierrors.NewErrorResponse(
		err,
		middleware.GetRequestIDFromContext(c),
		middleware.GetCorrelationIDFromContext(c),
		c.Request.URL.Path,
		c.Request.Method,
	)
	c.JSON(response.Error.HTTPStatus, response)
}
