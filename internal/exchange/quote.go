package exchange

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"slotbot-go/internal/metrics"
	"slotbot-go/internal/slot"
)

const (
	defaultQuoteBaseURL = "https://clob.polymarket.com"
	defaultQuoteTimeout = 5 * time.Second
)

// QuoteClient fetches one-shot buy prices from the CLOB price endpoint.
type QuoteClient struct {
	log     zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewQuoteClient constructs a client with a fixed per-request timeout.
func NewQuoteClient(log zerolog.Logger, baseURL string, timeout time.Duration) *QuoteClient {
	if baseURL == "" {
		baseURL = defaultQuoteBaseURL
	}
	if timeout <= 0 {
		timeout = defaultQuoteTimeout
	}
	return &QuoteClient{
		log:     log,
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// Price returns the buy price for assetID, or 0 when the quote is unavailable.
func (c *QuoteClient) Price(ctx context.Context, assetID string, side slot.Side) float64 {
	px, err := c.fetch(ctx, assetID)
	if err != nil {
		metrics.QuoteFailures.Inc()
		c.log.Warn().Err(err).Str("asset_id", shortID(assetID)).Str("side", string(side)).Msg("price fetch failed")
		return 0
	}
	return px
}

func (c *QuoteClient) fetch(ctx context.Context, assetID string) (float64, error) {
	if assetID == "" {
		return 0, fmt.Errorf("empty asset id")
	}
	q := url.Values{}
	q.Set("token_id", assetID)
	q.Set("side", "BUY")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/price?"+q.Encode(), nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("price status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return 0, err
	}
	return parsePrice(body)
}

// parsePrice accepts {"price": "0.52"}, {"price": 0.52} or a bare number.
func parsePrice(body []byte) (float64, error) {
	if !gjson.ValidBytes(body) {
		return 0, fmt.Errorf("invalid price body")
	}
	root := gjson.ParseBytes(body)
	var v gjson.Result
	switch root.Type {
	case gjson.Number:
		v = root
	case gjson.JSON:
		v = root.Get("price")
	}
	switch v.Type {
	case gjson.Number:
		return v.Float(), nil
	case gjson.String:
		px, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return 0, fmt.Errorf("non-numeric price %q", v.Str)
		}
		return px, nil
	default:
		return 0, fmt.Errorf("price missing")
	}
}

func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12] + "…"
}
