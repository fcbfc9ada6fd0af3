package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aimerfeng/ReviewLink/internal/models"
	"github.com/aimerfeng/ReviewLink/internal/review"
	"github.com/aimerfeng/ReviewLink/internal/session"
	"pgregory.net/rapid"
)

// memoryStore is an in-memory session.Store for tests
type memoryStore struct {
	mu       sync.Mutex
	sessions map[string]models.SessionState
	failSave   error
	failDelete error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{sessions: make(map[string]models.SessionState)}
}

func (m *memoryStore) Get(_ context.Context, contact string) (*models.SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[contact]
	if !ok {
		return nil, session.ErrNotFound
	}
	return &st, nil
}

func (m *memoryStore) Save(_ context.Context, st *models.SessionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave != nil {
		return m.failSave
	}
	st.UpdatedAt = time.Now()
	m.sessions[st.ContactNumber] = *st
	return nil
}

func (m *memoryStore) Delete(_ context.Context, contact string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDelete != nil {
		return m.failDelete
	}
	delete(m.sessions, contact)
	return nil
}

// memoryReviews records created reviews, applying the same defaults as review.Service
type memoryReviews struct {
	mu      sync.Mutex
	created []models.Review
	err     error
}

func (m *memoryReviews) Create(_ context.Context, in models.NewReview) (*models.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	in = review.Normalize(in)
	now := time.Now()
	r := models.Review{
		ID:            int64(len(m.created) + 1),
		ContactNumber: in.ContactNumber,
		UserName:      in.UserName,
		ProductName:   in.ProductName,
		ProductReview: in.ProductReview,
		CreatedAt:     &now,
	}
	m.created = append(m.created, r)
	return &r, nil
}

// sharedFinisher stores the review and drops the session together, the way
// review.Service.CreateAndClear does inside a transaction
type sharedFinisher struct {
	store   *memoryStore
	reviews *memoryReviews
	calls   int
}

func (f *sharedFinisher) CreateAndClear(ctx context.Context, in models.NewReview) (*models.Review, error) {
	f.calls++
	r, err := f.reviews.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	f.store.mu.Lock()
	delete(f.store.sessions, in.ContactNumber)
	f.store.mu.Unlock()
	return r, nil
}

const contact = "whatsapp:+14155550123"

func send(t *testing.T, svc *Service, body string) string {
	t.Helper()
	reply, err := svc.Handle(context.Background(), contact, body)
	if err != nil {
		t.Fatalf("Handle(%q) failed: %v", body, err)
	}
	return reply
}

func TestHandle_FullFlow(t *testing.T) {
	store := newMemoryStore()
	reviews := &memoryReviews{}
	svc := NewService(store, reviews)

	if got := send(t, svc, "hi"); got != ReplyGreeting {
		t.Errorf("Expected greeting, got %q", got)
	}
	if got := send(t, svc, "  Kettle "); got != ReplyAskName {
		t.Errorf("Expected name question, got %q", got)
	}
	if got := send(t, svc, "Alice"); got != "Please send your review for Kettle." {
		t.Errorf("Unexpected review prompt: %q", got)
	}
	if got := send(t, svc, "Boils fast"); got != "Thanks Alice, your review for Kettle has been recorded." {
		t.Errorf("Unexpected thanks: %q", got)
	}

	if len(reviews.created) != 1 {
		t.Fatalf("Expected one review, got %d", len(reviews.created))
	}
	r := reviews.created[0]
	if r.ContactNumber != contact || r.UserName != "Alice" || r.ProductName != "Kettle" || r.ProductReview != "Boils fast" {
		t.Errorf("Unexpected review: %+v", r)
	}

	if _, err := store.Get(context.Background(), contact); !errors.Is(err, session.ErrNotFound) {
		t.Error("Expected session to be cleared after recording the review")
	}

	// The next message starts a fresh conversation
	if got := send(t, svc, "again"); got != ReplyGreeting {
		t.Errorf("Expected greeting for new conversation, got %q", got)
	}
}

func TestHandle_EmptyAnswersUseDefaults(t *testing.T) {
	reviews := &memoryReviews{}
	svc := NewService(newMemoryStore(), reviews)

	send(t, svc, "hi")
	send(t, svc, "")
	if got := send(t, svc, ""); got != "Please send your review for Unknown." {
		t.Errorf("Unexpected prompt: %q", got)
	}
	if got := send(t, svc, "Fine"); got != "Thanks Anonymous, your review for Unknown has been recorded." {
		t.Errorf("Unexpected thanks: %q", got)
	}
}

func TestHandle_EmptyReviewAsksAgain(t *testing.T) {
	reviews := &memoryReviews{}
	svc := NewService(newMemoryStore(), reviews)

	send(t, svc, "hi")
	send(t, svc, "Kettle")
	send(t, svc, "Alice")
	if got := send(t, svc, "   "); got != "Please send your review for Kettle." {
		t.Errorf("Expected the review prompt again, got %q", got)
	}
	if len(reviews.created) != 0 {
		t.Fatalf("Expected no review for an empty body, got %d", len(reviews.created))
	}
}

func TestHandle_ResetAtAnyStep(t *testing.T) {
	for _, cmd := range []string{"reset", "RESTART", "  Reset  "} {
		t.Run(cmd, func(t *testing.T) {
			store := newMemoryStore()
			svc := NewService(store, &memoryReviews{})

			send(t, svc, "hi")
			send(t, svc, "Kettle")
			if got := send(t, svc, cmd); got != ReplyReset {
				t.Errorf("Expected reset reply, got %q", got)
			}
			if _, err := store.Get(context.Background(), contact); !errors.Is(err, session.ErrNotFound) {
				t.Error("Expected session to be deleted on reset")
			}
		})
	}
}

func TestHandle_UnknownStepResets(t *testing.T) {
	store := newMemoryStore()
	product, name := "Kettle", "Alice"
	store.sessions[contact] = models.SessionState{
		ContactNumber: contact,
		Step:          "ask_colour",
		TempProduct:   &product,
		TempName:      &name,
	}
	svc := NewService(store, &memoryReviews{})

	if got := send(t, svc, "blue"); got != ReplyNotUnderstood {
		t.Errorf("Expected not-understood reply, got %q", got)
	}
	st, err := store.Get(context.Background(), contact)
	if err != nil {
		t.Fatalf("Expected session to survive reset: %v", err)
	}
	if st.Step != models.StepAskProduct || st.TempProduct != nil || st.TempName != nil {
		t.Errorf("Expected cleared session at ask_product, got %+v", st)
	}
}

func TestHandle_SessionDeleteFailureRecordsNothing(t *testing.T) {
	store := newMemoryStore()
	reviews := &memoryReviews{}
	svc := NewService(store, reviews)

	send(t, svc, "hi")
	send(t, svc, "Kettle")
	send(t, svc, "Alice")

	store.failDelete = fmt.Errorf("connection reset")
	for _, body := range []string{"Great", "Great again"} {
		if _, err := svc.Handle(context.Background(), contact, body); err == nil {
			t.Fatalf("Expected error for %q while the session cannot be cleared", body)
		}
	}
	if len(reviews.created) != 0 {
		t.Fatalf("Expected no reviews while the session survives, got %d", len(reviews.created))
	}

	st, err := store.Get(context.Background(), contact)
	if err != nil {
		t.Fatalf("Expected session to survive: %v", err)
	}
	if st.Step != models.StepAskReview {
		t.Errorf("Expected step %q, got %q", models.StepAskReview, st.Step)
	}

	store.failDelete = nil
	send(t, svc, "Great")
	send(t, svc, "hi")
	if len(reviews.created) != 1 {
		t.Fatalf("Expected exactly one review, got %d", len(reviews.created))
	}
}

func TestHandle_ReviewFailureRestoresSession(t *testing.T) {
	store := newMemoryStore()
	reviews := &memoryReviews{}
	svc := NewService(store, reviews)

	send(t, svc, "hi")
	send(t, svc, "Kettle")
	send(t, svc, "Alice")

	reviews.err = fmt.Errorf("insert failed")
	if _, err := svc.Handle(context.Background(), contact, "Great"); err == nil {
		t.Fatal("Expected review error to propagate")
	}

	st, err := store.Get(context.Background(), contact)
	if err != nil {
		t.Fatalf("Expected session to be restored: %v", err)
	}
	if st.Step != models.StepAskReview || st.TempProduct == nil || *st.TempProduct != "Kettle" {
		t.Errorf("Unexpected restored session: %+v", st)
	}

	reviews.err = nil
	if got := send(t, svc, "Great"); got != "Thanks Alice, your review for Kettle has been recorded." {
		t.Errorf("Unexpected thanks after retry: %q", got)
	}
}

func TestHandle_UsesFinisher(t *testing.T) {
	store := newMemoryStore()
	reviews := &memoryReviews{}
	fin := &sharedFinisher{store: store, reviews: reviews}
	svc := NewService(store, reviews, WithFinisher(fin))

	send(t, svc, "hi")
	send(t, svc, "Kettle")
	send(t, svc, "Alice")

	// Delete is never reached when a finisher is set
	store.failDelete = fmt.Errorf("not used")
	send(t, svc, "Great")

	if fin.calls != 1 || len(reviews.created) != 1 {
		t.Fatalf("Expected one finisher call and one review, got %d and %d", fin.calls, len(reviews.created))
	}
	if _, err := store.Get(context.Background(), contact); !errors.Is(err, session.ErrNotFound) {
		t.Error("Expected finisher to clear the session")
	}
}

func TestHandle_MissingSender(t *testing.T) {
	svc := NewService(newMemoryStore(), &memoryReviews{})
	if _, err := svc.Handle(context.Background(), "", "hi"); !errors.Is(err, ErrMissingSender) {
		t.Fatalf("Expected ErrMissingSender, got %v", err)
	}
}

func TestHandle_StoreErrorPropagates(t *testing.T) {
	store := newMemoryStore()
	store.failSave = fmt.Errorf("disk on fire")
	svc := NewService(store, &memoryReviews{})

	if _, err := svc.Handle(context.Background(), contact, "hi"); err == nil {
		t.Fatal("Expected store error to propagate")
	}
}

// TestProperty_Flow_RecordsExactlyWhatWasSent checks that for any product,
// name and non-blank review the stored review matches the trimmed answers.
func TestProperty_Flow_RecordsExactlyWhatWasSent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		product := rapid.StringMatching(`[A-Za-z0-9][A-Za-z0-9 ]{0,20}`).Draw(rt, "product")
		name := rapid.StringMatching(`[A-Za-z][A-Za-z ]{0,20}`).Draw(rt, "name")
		text := rapid.StringMatching(`[A-Za-z0-9!.][A-Za-z0-9 !.]{0,60}`).Draw(rt, "text")
		if IsResetCommand(product) || IsResetCommand(name) || IsResetCommand(text) {
			rt.Skip("reset command")
		}

		reviews := &memoryReviews{}
		svc := NewService(newMemoryStore(), reviews)
		ctx := context.Background()
		for _, body := range []string{"hi", product, name, text} {
			if _, err := svc.Handle(ctx, contact, body); err != nil {
				rt.Fatalf("Handle failed: %v", err)
			}
		}

		if len(reviews.created) != 1 {
			rt.Fatalf("PROPERTY VIOLATION: expected one review, got %d", len(reviews.created))
		}
		r := reviews.created[0]
		if r.ProductName != strings.TrimSpace(product) || r.UserName != strings.TrimSpace(name) || r.ProductReview != strings.TrimSpace(text) {
			rt.Fatalf("PROPERTY VIOLATION: stored %+v for %q/%q/%q", r, product, name, text)
		}
	})
}
