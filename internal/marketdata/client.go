// Package marketdata fetches third-party reference prices for display
// alongside the engine's own quotes. Reference prices never feed the AMM or
// the order book.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/paddockmarkets/paddock/internal/domain"
)

// Client is the REST client for an external prediction-market price API.
// It implements domain.MarketDataSource.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a reference-price client. baseURL is the API root;
// apiKey may be empty for unauthenticated endpoints.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiPrice is the wire shape of one reference price.
type apiPrice struct {
	Participant string  `json:"participant"`
	Price       float64 `json:"price"` // dollars in [0, 1]
	VolumeUSD   float64 `json:"volume_usd"`
	UpdatedAt   string  `json:"updated_at"` // RFC 3339
}

// ReferencePrices fetches the latest display prices for the given
// participants. Participants unknown to the provider are silently absent
// from the result.
func (c *Client) ReferencePrices(ctx context.Context, participants []string) ([]domain.ReferencePrice, error) {
	if len(participants) == 0 {
		return nil, nil
	}

	params := url.Values{}
	params.Set("participants", strings.Join(participants, ","))
	path := "/v1/prices?" + params.Encode()

	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("marketdata: get prices: %w", err)
	}

	var raw []apiPrice
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("marketdata: decode prices: %w", err)
	}

	now := time.Now().UTC()
	prices := make([]domain.ReferencePrice, 0, len(raw))
	for _, p := range raw {
		fetchedAt := now
		if ts, err := time.Parse(time.RFC3339, p.UpdatedAt); err == nil {
			fetchedAt = ts
		}
		prices = append(prices, domain.ReferencePrice{
			Participant: p.Participant,
			PriceMicros: domain.ToMicros(p.Price),
			VolumeUSD:   p.VolumeUSD,
			FetchedAt:   fetchedAt,
		})
	}

	return prices, nil
}

// doGet sends a GET request to the price API.
func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(body)
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, msg)
	}

	return body, nil
}
