package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aimerfeng/ReviewLink/internal/models"
	"github.com/aimerfeng/ReviewLink/internal/monitoring"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps sessions in the sessions table
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed session store
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get returns the session for contact or ErrNotFound
func (s *PostgresStore) Get(ctx context.Context, contact string) (*models.SessionState, error) {
	start := time.Now()
	defer func() { monitoring.RecordDBQuery("sessions_get", time.Since(start)) }()

	var st models.SessionState
	err := s.db.QueryRow(ctx, `
		SELECT contact_number, step, temp_product, temp_name, updated_at
		FROM sessions
		WHERE contact_number = $1
	`, contact).Scan(&st.ContactNumber, &st.Step, &st.TempProduct, &st.TempName, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &st, nil
}

// Save inserts or replaces the session and refreshes UpdatedAt
func (s *PostgresStore) Save(ctx context.Context, st *models.SessionState) error {
	start := time.Now()
	defer func() { monitoring.RecordDBQuery("sessions_upsert", time.Since(start)) }()

	err := s.db.QueryRow(ctx, `
		INSERT INTO sessions (contact_number, step, temp_product, temp_name, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (contact_number) DO UPDATE
		SET step = EXCLUDED.step,
		    temp_product = EXCLUDED.temp_product,
		    temp_name = EXCLUDED.temp_name,
		    updated_at = now()
		RETURNING updated_at
	`, st.ContactNumber, st.Step, st.TempProduct, st.TempName).Scan(&st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Delete removes the session; deleting a missing session is not an error
func (s *PostgresStore) Delete(ctx context.Context, contact string) error {
	start := time.Now()
	defer func() { monitoring.RecordDBQuery("sessions_delete", time.Since(start)) }()

	if _, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE contact_number = $1`, contact); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
