package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/bootarou/xympay-sub000/internal/domain"
	"github.com/bootarou/xympay-sub000/pkg/config"
)

// CoinCapClient looks up crypto/fiat rates from the CoinCap assets API.
type CoinCapClient struct {
	baseURL    string
	httpClient *http.Client
	config     *config.ExchangeConfig
	logger     zerolog.Logger
}

type coinCapAsset struct {
	ID       string `json:"id"`
	Symbol   string `json:"symbol"`
	PriceUSD string `json:"priceUsd"`
}

func NewCoinCapClient(cfg *config.ExchangeConfig, logger zerolog.Logger) *CoinCapClient {
	return &CoinCapClient{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: 10,
			},
		},
		config: cfg,
		logger: logger.With().Str("component", "coincap_client").Logger(),
	}
}

func (c *CoinCapClient) ID() string {
	return "coincap"
}

func (c *CoinCapClient) SupportedCurrencies() []string {
	return []string{"XYM"}
}

func (c *CoinCapClient) GetRate(ctx context.Context, crypto, fiat string) (domain.RateQuote, error) {
	if fiat != "USD" {
		return domain.RateQuote{}, fmt.Errorf("coincap quotes USD only, got %s", fiat)
	}
	return c.getRateWithRetry(ctx, crypto, 0)
}

func (c *CoinCapClient) getRateWithRetry(ctx context.Context, crypto string, attempt int) (domain.RateQuote, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return domain.RateQuote{}, fmt.Errorf("invalid base URL: %w", err)
	}
	// The API version lives in the configured base URL, only the asset
	// route is appended here.
	u = u.JoinPath("assets", c.mapCryptoToCoinCapID(crypto))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return domain.RateQuote{}, fmt.Errorf("creating request failed: %w", err)
	}
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if shouldRetry(err) && attempt < c.config.MaxRetries {
			backoff := calculateBackoff(attempt, c.config.RetryBackoffBase)
			c.logger.Info().
				Err(err).
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Msg("Rate request failed, retrying after backoff")
			time.Sleep(backoff)
			return c.getRateWithRetry(ctx, crypto, attempt+1)
		}
		return domain.RateQuote{}, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if shouldRetryStatusCode(resp.StatusCode) && attempt < c.config.MaxRetries {
			backoff := calculateBackoff(attempt, c.config.RetryBackoffBase)
			c.logger.Warn().
				Int("status_code", resp.StatusCode).
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Msg("Received non-200 status, retrying after backoff")
			time.Sleep(backoff)
			return c.getRateWithRetry(ctx, crypto, attempt+1)
		}
		body, _ := io.ReadAll(resp.Body)
		return domain.RateQuote{}, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.RateQuote{}, fmt.Errorf("reading response body failed: %w", err)
	}

	return c.parseResponse(body, crypto)
}

func (c *CoinCapClient) parseResponse(body []byte, crypto string) (domain.RateQuote, error) {
	var response struct {
		Data      coinCapAsset `json:"data"`
		Timestamp int64        `json:"timestamp"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return domain.RateQuote{}, fmt.Errorf("parsing JSON response failed: %w", err)
	}
	if response.Data.PriceUSD == "" {
		return domain.RateQuote{}, fmt.Errorf("empty price in response for %s", crypto)
	}

	capturedAt := time.Now()
	if response.Timestamp > 0 {
		capturedAt = time.Unix(response.Timestamp/1000, 0)
	}

	return domain.RateQuote{
		CryptoCurrency: crypto,
		FiatCurrency:   "USD",
		Rate:           response.Data.PriceUSD,
		Provider:       c.ID(),
		CapturedAt:     capturedAt,
	}, nil
}

func (c *CoinCapClient) mapCryptoToCoinCapID(crypto string) string {
	mapping := map[string]string{
		"XYM": "symbol",
		"XEM": "nem",
		"BTC": "bitcoin",
		"ETH": "ethereum",
	}
	if id, exists := mapping[crypto]; exists {
		return id
	}
	return crypto
}

func shouldRetry(err error) bool {
	if err, ok := err.(interface{ Timeout() bool }); ok && err.Timeout() {
		return true
	}
	if err, ok := err.(interface{ Temporary() bool }); ok && err.Temporary() {
		return true
	}
	return false
}

func shouldRetryStatusCode(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusInternalServerError ||
		statusCode == http.StatusBadGateway ||
		statusCode == http.StatusServiceUnavailable ||
		statusCode == http.StatusGatewayTimeout
}

func calculateBackoff(attempt, base int) time.Duration {
	if base <= 0 {
		base = 2
	}
	backoff := time.Duration(base) * time.Second
	for i := 0; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}
