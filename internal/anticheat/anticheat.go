package anticheat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

// Result is what the external photo verifier returns. A reward path that is
// photo-gated only proceeds when Passed is true; warnings surface to the
// reviewer, they do not block.
type Result struct {
	Passed   bool     `json:"passed"`
	Warnings []string `json:"warnings"`
	Errors   []string `json:"errors"`
}

// Verifier sits upstream of reward settlement.
type Verifier interface {
	Verify(ctx context.Context, photoURL string, claimedAt time.Time) (*Result, error)
}

// HTTPVerifier calls the external anti-cheat service.
type HTTPVerifier struct {
	baseURL string
	client  *http.Client
}

func NewHTTPVerifier() (*HTTPVerifier, error) {
	baseURL := os.Getenv("ANTICHEAT_URL")
	if baseURL == "" {
		return nil, fmt.Errorf("ANTICHEAT_URL environment variable is not set")
	}
	return &HTTPVerifier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (v *HTTPVerifier) Verify(ctx context.Context, photoURL string, claimedAt time.Time) (*Result, error) {
	payload, err := json.Marshal(map[string]string{
		"photo_url":  photoURL,
		"claimed_at": claimedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/verify", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("anticheat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("anticheat service returned %d", resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode anticheat response: %w", err)
	}
	return &result, nil
}

// AllowAll is the development fallback when no verifier is configured.
type AllowAll struct{}

func (AllowAll) Verify(ctx context.Context, photoURL string, claimedAt time.Time) (*Result, error) {
	return &Result{Passed: true}, nil
}
