// Package session persists in-progress WhatsApp conversations, one per
// contact number.
package session

import (
	"context"
	"errors"

	"github.com/aimerfeng/ReviewLink/internal/models"
)

// ErrNotFound is returned by Get when the contact has no open conversation
var ErrNotFound = errors.New("session not found")

// Store loads and saves conversation state
type Store interface {
	Get(ctx context.Context, contact string) (*models.SessionState, error)
	Save(ctx context.Context, s *models.SessionState) error
	Delete(ctx context.Context, contact string) error
}
