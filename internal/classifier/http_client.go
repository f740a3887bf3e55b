package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spec-kit/tweet-triage/internal/config"
	"github.com/spec-kit/tweet-triage/internal/domain"
	apperrors "github.com/spec-kit/tweet-triage/pkg/util/errorutil"
)

// HTTPClient calls the classification boundary over HTTP:
// POST {url} with {ticket_id, author, content}, expecting
// {sentiment, category, priority, urgency_score}.
type HTTPClient struct {
	url    string
	client *http.Client
}

// NewHTTPClient builds an adapter against the configured classifier URL.
func NewHTTPClient(cfg config.ClassifierConfig) *HTTPClient {
	return &HTTPClient{
		url:    cfg.URL,
		client: &http.Client{Timeout: cfg.Timeout()},
	}
}

type classifyResponse struct {
	Sentiment    domain.Sentiment      `json:"sentiment"`
	Category     domain.Category       `json:"category"`
	Priority     domain.TicketPriority `json:"priority"`
	UrgencyScore float64               `json:"urgency_score"`
}

// Classify performs one classification round trip. Transport failures and
// 5xx responses are reported as ClassificationUnavailable so the worker
// retries them; a malformed 2xx body is not retryable.
func (c *HTTPClient) Classify(ctx context.Context, snapshot Snapshot) (domain.Classification, error) {
	if c.url == "" {
		return domain.Classification{}, apperrors.NewClassificationUnavailable(fmt.Errorf("classifier URL not configured"))
	}

	body, err := json.Marshal(snapshot)
	if err != nil {
		return domain.Classification{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return domain.Classification{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.Classification{}, apperrors.NewClassificationUnavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return domain.Classification{}, apperrors.NewClassificationUnavailable(fmt.Errorf("classifier returned %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Classification{}, fmt.Errorf("classifier rejected request with %d", resp.StatusCode)
	}

	var parsed classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return domain.Classification{}, fmt.Errorf("decode classifier response: %w", err)
	}

	return domain.Classification{
		Sentiment:    parsed.Sentiment,
		Category:     parsed.Category,
		Priority:     parsed.Priority,
		UrgencyScore: parsed.UrgencyScore,
	}, nil
}
