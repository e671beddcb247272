package domain

import "time"

// RateQuote is one crypto/fiat exchange rate observation from a provider.
type RateQuote struct {
	CryptoCurrency string    `json:"crypto_currency"`
	FiatCurrency   string    `json:"fiat_currency"`
	Rate           string    `json:"rate"`
	Provider       string    `json:"provider"`
	CapturedAt     time.Time `json:"captured_at"`
}

// FiatSnapshot is the set of fiat fields written onto a payment during
// confirmation. Best effort: a nil snapshot leaves the fields empty.
type FiatSnapshot struct {
	Rate       string    `json:"rate"`
	Currency   string    `json:"currency"`
	Amount     string    `json:"amount"`
	Provider   string    `json:"provider"`
	CapturedAt time.Time `json:"captured_at"`
}
