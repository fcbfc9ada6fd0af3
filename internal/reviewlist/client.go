package reviewlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrFetchFailed matches every FetchError with errors.Is
var ErrFetchFailed = errors.New("fetch failed")

// FetchError describes a failed fetch: a transport error, a non-2xx
// status or a body that is not a JSON array of reviews.
type FetchError struct {
	Status int // 0 when no response was received
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch reviews: status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("fetch reviews: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is reports FetchError as ErrFetchFailed
func (e *FetchError) Is(target error) bool { return target == ErrFetchFailed }

// Fetcher retrieves the full current review set
type Fetcher interface {
	FetchReviews(ctx context.Context) ([]Review, error)
}

// HTTPFetcher reads reviews from the collector's GET /api/reviews endpoint
type HTTPFetcher struct {
	url    string
	client *http.Client
}

// NewHTTPFetcher creates a fetcher for url with the given per-request timeout
func NewHTTPFetcher(url string, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// FetchReviews issues one GET and decodes the array in server order
func (f *HTTPFetcher) FetchReviews(ctx context.Context) ([]Review, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{Status: resp.StatusCode, Err: errors.New(resp.Status)}
	}

	var reviews []Review
	if err := json.NewDecoder(resp.Body).Decode(&reviews); err != nil {
		return nil, &FetchError{Status: resp.StatusCode, Err: fmt.Errorf("decode body: %w", err)}
	}
	// A literal null body is not a list
	if reviews == nil {
		return nil, &FetchError{Status: resp.StatusCode, Err: errors.New("decode body: not an array")}
	}
	return reviews, nil
}
