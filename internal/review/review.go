package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aimerfeng/ReviewLink/internal/logging"
	"github.com/aimerfeng/ReviewLink/internal/models"
	"github.com/aimerfeng/ReviewLink/internal/monitoring"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Defaults applied when a conversation ends without a name or product
const (
	DefaultUserName    = "Anonymous"
	DefaultProductName = "Unknown"
)

// Service errors
var (
	ErrEmptyReview = errors.New("review text is required")
)

// Service stores and lists product reviews
type Service struct {
	db *pgxpool.Pool
}

// NewService creates a new review service
func NewService(db *pgxpool.Pool) *Service {
	return &Service{db: db}
}

// List returns every review, newest first
func (s *Service) List(ctx context.Context) ([]models.Review, error) {
	start := time.Now()
	defer func() { monitoring.RecordDBQuery("reviews_list", time.Since(start)) }()

	rows, err := s.db.Query(ctx, `
		SELECT id, COALESCE(contact_number, ''), COALESCE(user_name, ''),
		       COALESCE(product_name, ''), COALESCE(product_review, ''), created_at
		FROM reviews
		ORDER BY created_at DESC NULLS LAST, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviews: %w", err)
	}
	defer rows.Close()

	reviews := []models.Review{}
	for rows.Next() {
		var r models.Review
		if err := rows.Scan(&r.ID, &r.ContactNumber, &r.UserName, &r.ProductName, &r.ProductReview, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reviews: %w", err)
	}

	return reviews, nil
}

// Create records a review and returns it with its generated ID and timestamp
func (s *Service) Create(ctx context.Context, in models.NewReview) (*models.Review, error) {
	in = Normalize(in)
	if in.ProductReview == "" {
		return nil, ErrEmptyReview
	}

	r, err := insert(ctx, s.db, in)
	if err != nil {
		return nil, err
	}

	monitoring.RecordReviewRecorded()
	logging.LogReviewRecorded(r.ID, r.ContactNumber, r.ProductName)

	return r, nil
}

// CreateAndClear records a review and deletes the contact's session in one
// transaction. Either both happen or neither does.
func (s *Service) CreateAndClear(ctx context.Context, in models.NewReview) (*models.Review, error) {
	in = Normalize(in)
	if in.ProductReview == "" {
		return nil, ErrEmptyReview
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	r, err := insert(ctx, tx, in)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM sessions WHERE contact_number = $1`, in.ContactNumber); err != nil {
		return nil, fmt.Errorf("failed to clear session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit review: %w", err)
	}

	monitoring.RecordReviewRecorded()
	logging.LogReviewRecorded(r.ID, r.ContactNumber, r.ProductName)

	return r, nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insert(ctx context.Context, q queryRower, in models.NewReview) (*models.Review, error) {
	start := time.Now()
	defer func() { monitoring.RecordDBQuery("reviews_insert", time.Since(start)) }()

	r := &models.Review{
		ContactNumber: in.ContactNumber,
		UserName:      in.UserName,
		ProductName:   in.ProductName,
		ProductReview: in.ProductReview,
	}
	err := q.QueryRow(ctx, `
		INSERT INTO reviews (contact_number, user_name, product_name, product_review)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, in.ContactNumber, in.UserName, in.ProductName, in.ProductReview).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert review: %w", err)
	}
	return r, nil
}

// Normalize trims the input and fills in the default name and product
func Normalize(in models.NewReview) models.NewReview {
	in.ContactNumber = strings.TrimSpace(in.ContactNumber)
	in.UserName = strings.TrimSpace(in.UserName)
	in.ProductName = strings.TrimSpace(in.ProductName)
	in.ProductReview = strings.TrimSpace(in.ProductReview)
	if in.UserName == "" {
		in.UserName = DefaultUserName
	}
	if in.ProductName == "" {
		in.ProductName = DefaultProductName
	}
	return in
}
