package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rvaughn/predfeed/internal/model"
)

// DefaultRestURL is the CLOB REST endpoint.
const DefaultRestURL = "https://clob.polymarket.com"

// Client is a minimal CLOB REST client, only what the stream layer
// needs: resolving a market (condition id) to its outcome token ids and
// tick size before subscribing.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a CLOB REST client. An empty baseURL uses
// DefaultRestURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultRestURL
	}
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// marketResponse is the CLOB GET /markets/{condition_id} shape, reduced
// to the fields the resolver consumes.
type marketResponse struct {
	ConditionID     string  `json:"condition_id"`
	Question        string  `json:"question"`
	Active          bool    `json:"active"`
	Closed          bool    `json:"closed"`
	MinimumTickSize float64 `json:"minimum_tick_size"`
	Tokens          []struct {
		TokenID string `json:"token_id"`
		Outcome string `json:"outcome"`
	} `json:"tokens"`
}

// FetchMarket resolves one market by condition id.
func (c *Client) FetchMarket(ctx context.Context, id string) (model.Market, error) {
	url := c.baseURL + "/markets/" + id

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.Market{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.Market{}, fmt.Errorf("fetch market %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Market{}, fmt.Errorf("fetch market %s: status %d", id, resp.StatusCode)
	}

	var wire marketResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return model.Market{}, fmt.Errorf("decode market %s: %w", id, err)
	}
	if wire.ConditionID == "" {
		return model.Market{}, fmt.Errorf("market %s: missing condition_id", id)
	}

	m := model.Market{
		ID:       wire.ConditionID,
		Question: wire.Question,
		TickSize: wire.MinimumTickSize,
		Active:   wire.Active && !wire.Closed,
	}
	for _, t := range wire.Tokens {
		if t.TokenID == "" {
			continue
		}
		m.TokenIDs = append(m.TokenIDs, t.TokenID)
		m.Outcomes = append(m.Outcomes, t.Outcome)
	}
	if len(m.TokenIDs) == 0 {
		return model.Market{}, fmt.Errorf("market %s: no outcome tokens", id)
	}

	c.logger.Debug("market resolved",
		"market", m.ID,
		"tokens", len(m.TokenIDs),
		"tick_size", m.TickSize,
	)
	return m, nil
}
