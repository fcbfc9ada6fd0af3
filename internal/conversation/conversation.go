// Package conversation drives the three-question WhatsApp flow that
// collects a product review: product, then name, then the review itself.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aimerfeng/ReviewLink/internal/logging"
	"github.com/aimerfeng/ReviewLink/internal/models"
	"github.com/aimerfeng/ReviewLink/internal/monitoring"
	"github.com/aimerfeng/ReviewLink/internal/review"
	"github.com/aimerfeng/ReviewLink/internal/session"
	"github.com/rs/zerolog"
)

// Replies sent back to the contact
const (
	ReplyGreeting      = "Hello 👋 Which product is this review for?"
	ReplyReset         = "Session reset. Which product is this review for?"
	ReplyAskName       = "What's your name?"
	ReplyAskReviewFmt  = "Please send your review for %s."
	ReplyThanksFmt     = "Thanks %s, your review for %s has been recorded."
	ReplyNotUnderstood = "Sorry, I didn't understand. Which product is this review for?"
)

// stepStart labels messages that open a new conversation
const stepStart = "start"

// ErrMissingSender is returned when the inbound message has no sender
var ErrMissingSender = errors.New("missing sender")

// ReviewRecorder stores a finished review
type ReviewRecorder interface {
	Create(ctx context.Context, in models.NewReview) (*models.Review, error)
}

// Finisher stores a finished review and deletes the contact's session
// atomically
type Finisher interface {
	CreateAndClear(ctx context.Context, in models.NewReview) (*models.Review, error)
}

// Service handles inbound messages against the session store
type Service struct {
	sessions session.Store
	reviews  ReviewRecorder
	finisher Finisher
	log      zerolog.Logger
}

// Option customizes a Service
type Option func(*Service)

// WithFinisher completes conversations through f. Use it when sessions and
// reviews share a database.
func WithFinisher(f Finisher) Option {
	return func(s *Service) {
		s.finisher = f
	}
}

// NewService creates a conversation service
func NewService(sessions session.Store, reviews ReviewRecorder, opts ...Option) *Service {
	s := &Service{
		sessions: sessions,
		reviews:  reviews,
		log:      logging.NewLogger("conversation"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsResetCommand reports whether body asks to restart the conversation
func IsResetCommand(body string) bool {
	switch strings.ToLower(strings.TrimSpace(body)) {
	case "restart", "reset":
		return true
	}
	return false
}

// Handle processes one message from contact and returns the reply text
func (s *Service) Handle(ctx context.Context, contact, body string) (string, error) {
	if contact == "" {
		return "", ErrMissingSender
	}
	body = strings.TrimSpace(body)

	// The contact may restart at any time
	if IsResetCommand(body) {
		if err := s.sessions.Delete(ctx, contact); err != nil {
			return "", err
		}
		monitoring.RecordWebhookMessage("reset")
		monitoring.RecordSessionReset()
		logging.LogConversationStep(contact, "any", string(models.StepAskProduct))
		return ReplyReset, nil
	}

	st, err := s.sessions.Get(ctx, contact)
	if errors.Is(err, session.ErrNotFound) {
		st = &models.SessionState{ContactNumber: contact, Step: models.StepAskProduct}
		if err := s.sessions.Save(ctx, st); err != nil {
			return "", err
		}
		monitoring.RecordWebhookMessage(stepStart)
		logging.LogConversationStep(contact, stepStart, string(models.StepAskProduct))
		return ReplyGreeting, nil
	}
	if err != nil {
		return "", err
	}

	monitoring.RecordWebhookMessage(string(st.Step))

	switch st.Step {
	case models.StepAskProduct:
		st.TempProduct = &body
		return s.advance(ctx, st, models.StepAskName, ReplyAskName)

	case models.StepAskName:
		st.TempName = &body
		return s.advance(ctx, st, models.StepAskReview, fmt.Sprintf(ReplyAskReviewFmt, productOrDefault(st.TempProduct)))

	case models.StepAskReview:
		return s.finish(ctx, st, body)
	}

	// Unknown step: start over
	s.log.Warn().
		Str("contact", logging.MaskContact(contact)).
		Str("step", string(st.Step)).
		Msg("Unknown conversation step, resetting")
	st.TempProduct = nil
	st.TempName = nil
	monitoring.RecordSessionReset()
	return s.advance(ctx, st, models.StepAskProduct, ReplyNotUnderstood)
}

func (s *Service) advance(ctx context.Context, st *models.SessionState, next models.SessionStep, reply string) (string, error) {
	from := st.Step
	st.Step = next
	if err := s.sessions.Save(ctx, st); err != nil {
		return "", err
	}
	logging.LogConversationStep(st.ContactNumber, string(from), string(next))
	return reply, nil
}

func (s *Service) finish(ctx context.Context, st *models.SessionState, body string) (string, error) {
	// Media-only messages arrive with an empty body; ask again
	if body == "" {
		return fmt.Sprintf(ReplyAskReviewFmt, productOrDefault(st.TempProduct)), nil
	}

	in := models.NewReview{
		ContactNumber: st.ContactNumber,
		UserName:      deref(st.TempName),
		ProductName:   deref(st.TempProduct),
		ProductReview: body,
	}

	r, err := s.record(ctx, st, in)
	if err != nil {
		return "", err
	}
	logging.LogConversationStep(st.ContactNumber, string(models.StepAskReview), "done")

	return fmt.Sprintf(ReplyThanksFmt, r.UserName, r.ProductName), nil
}

// record stores the review and ends the session. Without a Finisher the
// session is deleted first, so a review is never stored while its session
// survives to record it again.
func (s *Service) record(ctx context.Context, st *models.SessionState, in models.NewReview) (*models.Review, error) {
	if s.finisher != nil {
		return s.finisher.CreateAndClear(ctx, in)
	}

	if err := s.sessions.Delete(ctx, st.ContactNumber); err != nil {
		return nil, err
	}

	r, err := s.reviews.Create(ctx, in)
	if err != nil {
		if serr := s.sessions.Save(ctx, st); serr != nil {
			s.log.Error().Err(serr).
				Str("contact", logging.MaskContact(st.ContactNumber)).
				Msg("Failed to restore session after review was not recorded")
		}
		return nil, err
	}
	return r, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func productOrDefault(s *string) string {
	if p := strings.TrimSpace(deref(s)); p != "" {
		return p
	}
	return review.DefaultProductName
}
