package vapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Call is the vendor's call object, both as listed and as the fetched
// artifact for a finished call.
type Call struct {
	ID        string     `json:"id"`
	Status    string     `json:"status"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`

	Transcript   string  `json:"transcript,omitempty"`
	Summary      string  `json:"summary,omitempty"`
	RecordingURL string  `json:"recordingUrl,omitempty"`
	EndedReason  string  `json:"endedReason,omitempty"`
	Cost         float64 `json:"cost,omitempty"`

	Analysis *CallAnalysis  `json:"analysis,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CallAnalysis is the vendor's post-call analysis bundle.
type CallAnalysis struct {
	Summary        string         `json:"summary,omitempty"`
	StructuredData map[string]any `json:"structuredData,omitempty"`
}

// CreateCallRequest starts a vendor-side web call for an intake session.
// Metadata travels with every webhook event for the call and is how the
// ingestion path recovers project and user ownership.
type CreateCallRequest struct {
	AssistantID string         `json:"assistantId,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

var (
	// ErrNotConfigured means the vendor API key is missing. This is fatal
	// for the specific request that needed the vendor API, never a silent
	// empty result.
	ErrNotConfigured = errors.New("vapi: api key not configured")

	// ErrCallNotFound covers a 404 from the vendor, including the window
	// where a just-ended call's artifact is not yet available.
	ErrCallNotFound = errors.New("vapi: call not found")
)

// VendorError is a non-2xx vendor response other than not-found.
type VendorError struct {
	StatusCode int
	Body       string
}

func (e *VendorError) Error() string {
	return fmt.Sprintf("vapi: vendor returned %d: %s", e.StatusCode, e.Body)
}

// Client talks to the vendor REST API with bearer auth.
// No vendor HTTP calls outside this adapter.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "https://api.vapi.ai"
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

// GetCall fetches one call's artifact.
func (c *Client) GetCall(ctx context.Context, callID string) (Call, error) {
	if callID == "" {
		return Call{}, errors.New("vapi: call id required")
	}
	var out Call
	if err := c.doJSON(ctx, http.MethodGet, "/call/"+url.PathEscape(callID), nil, &out); err != nil {
		return Call{}, err
	}
	return out, nil
}

// ListCalls returns the vendor's most recent calls, newest first.
func (c *Client) ListCalls(ctx context.Context, limit int) ([]Call, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []Call
	path := "/call?limit=" + strconv.Itoa(limit)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateCall starts a new vendor call.
func (c *Client) CreateCall(ctx context.Context, req CreateCallRequest) (Call, error) {
	var out Call
	if err := c.doJSON(ctx, http.MethodPost, "/call", req, &out); err != nil {
		return Call{}, err
	}
	return out, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	if c.apiKey == "" {
		return ErrNotConfigured
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = strings.NewReader(string(b))
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("vapi: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrCallNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Bounded read; vendor error bodies are small.
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &VendorError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
