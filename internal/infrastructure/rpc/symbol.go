package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/bootarou/xympay-sub000/internal/domain"
	"github.com/bootarou/xympay-sub000/pkg/config"
)

// transferTransactionType is the Symbol transaction type for transfers.
const transferTransactionType = 16724

// SymbolClient reads confirmed transfer transactions from Symbol REST nodes.
// It holds no node state: the target node is a parameter of every call, so a
// node that degraded mid-session is bypassed on the very next attempt.
type SymbolClient struct {
	xymMosaicID     string
	epochAdjustment int64
	httpClient      *http.Client
	logger          zerolog.Logger
}

func NewSymbolClient(cfg config.NetworkConfig, logger zerolog.Logger) *SymbolClient {
	return &SymbolClient{
		xymMosaicID:     cfg.XYMMosaicID,
		epochAdjustment: cfg.EpochAdjustment,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger.With().Str("component", "symbol_client").Logger(),
	}
}

// ConfirmedTransfers fetches the most recent page of confirmed transfer
// transactions addressed to recipient from the given node, newest first.
// The per-call deadline comes from the node descriptor.
func (c *SymbolClient) ConfirmedTransfers(ctx context.Context, node domain.NodeDescriptor, recipient string, pageSize int) ([]domain.ConfirmedTransfer, error) {
	reqCtx, cancel := context.WithTimeout(ctx, node.Timeout)
	defer cancel()

	endpoint := fmt.Sprintf(
		"%s/transactions/confirmed?recipientAddress=%s&type=%d&pageSize=%d&pageNumber=1&order=desc",
		node.URL, url.QueryEscape(recipient), transferTransactionType, pageSize,
	)

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch confirmed transactions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.logger.Error().
			Str("node", node.Name).
			Int("status_code", resp.StatusCode).
			Str("response_body", string(body)).
			Msg("Symbol REST request failed")
		return nil, fmt.Errorf("node %s returned status %s", node.Name, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var page domain.ConfirmedTransactionsPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to parse transactions page: %w", err)
	}

	transfers := make([]domain.ConfirmedTransfer, 0, len(page.Data))
	for _, envelope := range page.Data {
		transfer, ok := c.convertEnvelope(envelope, recipient)
		if !ok {
			continue
		}
		transfers = append(transfers, transfer)
	}

	c.logger.Debug().
		Str("node", node.Name).
		Str("recipient", recipient).
		Int("transfer_count", len(transfers)).
		Msg("Fetched confirmed transfers")

	return transfers, nil
}

// ProbeHealth checks a node's REST health endpoint within the node timeout.
func (c *SymbolClient) ProbeHealth(ctx context.Context, node domain.NodeDescriptor) error {
	reqCtx, cancel := context.WithTimeout(ctx, node.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, node.URL+"/node/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health probe failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("node %s health returned status %s", node.Name, resp.Status)
	}

	var health domain.NodeHealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("failed to parse health response: %w", err)
	}
	if health.Status.APINode != "up" || health.Status.DB != "up" {
		return fmt.Errorf("node %s reports apiNode=%s db=%s", node.Name, health.Status.APINode, health.Status.DB)
	}

	return nil
}

// convertEnvelope maps one REST transaction envelope onto the domain
// transfer. Envelopes that are not transfers, carry no XYM, or have garbage
// numeric fields are skipped, not errors.
func (c *SymbolClient) convertEnvelope(envelope domain.TransactionEnvelope, recipient string) (domain.ConfirmedTransfer, bool) {
	tx := envelope.Transaction
	if tx.Type != transferTransactionType {
		return domain.ConfirmedTransfer{}, false
	}

	var amount uint64
	for _, mosaic := range tx.Mosaics {
		if mosaic.ID != c.xymMosaicID {
			continue
		}
		value, err := strconv.ParseUint(mosaic.Amount, 10, 64)
		if err != nil {
			c.logger.Warn().
				Str("hash", envelope.Meta.Hash).
				Str("amount", mosaic.Amount).
				Msg("Skipping transfer with unparsable mosaic amount")
			return domain.ConfirmedTransfer{}, false
		}
		amount += value
	}

	chainMillis, err := strconv.ParseInt(envelope.Meta.Timestamp, 10, 64)
	if err != nil {
		c.logger.Warn().
			Str("hash", envelope.Meta.Hash).
			Str("timestamp", envelope.Meta.Timestamp).
			Msg("Skipping transfer with unparsable timestamp")
		return domain.ConfirmedTransfer{}, false
	}

	height, err := strconv.ParseUint(envelope.Meta.Height, 10, 64)
	if err != nil {
		height = 0
	}

	return domain.ConfirmedTransfer{
		Hash: envelope.Meta.Hash,
		// The page was filtered by recipientAddress server-side; the REST
		// payload carries the hex form, the queried base32 form is kept so
		// callers compare like with like.
		RecipientAddress: recipient,
		SenderPublicKey:  tx.SignerPublicKey,
		AmountMicroXYM:   amount,
		Message:          DecodeMessage(tx.Message),
		Timestamp:        c.chainTimeToWallTime(chainMillis),
		Height:           height,
	}, true
}

func (c *SymbolClient) chainTimeToWallTime(chainMillis int64) time.Time {
	return time.Unix(c.epochAdjustment, 0).Add(time.Duration(chainMillis) * time.Millisecond).UTC()
}
