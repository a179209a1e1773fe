package bulk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	labdojo "github.com/labdojo/labdojo-go"
)

// HTTPBackend submits the whole request as one call to the bulk
// endpoint and replays the per-item outcomes it returns. Targets the
// backend omits from its response are reported as failures rather
// than silently dropped, so completed+failed always reaches total.
type HTTPBackend struct {
	baseURL    string
	httpClient *http.Client
}

var _ Backend = (*HTTPBackend)(nil)

// HTTPOption configures the HTTPBackend.
type HTTPOption func(*HTTPBackend)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(b *HTTPBackend) { b.httpClient = c }
}

// NewHTTPBackend creates a bulk backend for the given management
// base URL.
func NewHTTPBackend(baseURL string, opts ...HTTPOption) *HTTPBackend {
	b := &HTTPBackend{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// itemResult is one per-target outcome in the bulk response body.
type itemResult struct {
	UserID  string `json:"user_id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type bulkResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    struct {
		Results []itemResult `json:"results"`
	} `json:"data"`
}

func (b *HTTPBackend) Submit(ctx context.Context, req labdojo.BulkRequest, report func(ItemOutcome)) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/users/bulk", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("bulk endpoint returned status %d", resp.StatusCode)
	}

	var parsed bulkResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !parsed.Success {
		if parsed.Message != "" {
			return fmt.Errorf("bulk request rejected: %s", parsed.Message)
		}
		return errors.New("bulk request rejected")
	}

	reported := make(map[string]bool, len(parsed.Data.Results))
	for _, item := range parsed.Data.Results {
		reported[item.UserID] = true
		if item.Success {
			report(ItemOutcome{UserID: item.UserID})
		} else {
			msg := item.Error
			if msg == "" {
				msg = "operation failed"
			}
			report(ItemOutcome{UserID: item.UserID, Err: errors.New(msg)})
		}
	}
	for _, id := range req.UserIDs {
		if !reported[id] {
			report(ItemOutcome{UserID: id, Err: errors.New("no result returned for user")})
		}
	}
	return nil
}
