package domain

import "time"

// ConfirmedTransfer is a confirmed transfer transaction as seen by the
// matcher. Fetched fresh on every scan and never persisted on its own; it
// exists only to be matched against a pending payment or discarded.
type ConfirmedTransfer struct {
	Hash             string    `json:"hash"`
	RecipientAddress string    `json:"recipient_address"`
	SenderPublicKey  string    `json:"sender_public_key"`
	SenderAddress    string    `json:"sender_address"`
	AmountMicroXYM   uint64    `json:"amount_micro_xym"`
	Message          string    `json:"message"`
	Timestamp        time.Time `json:"timestamp"`
	Height           uint64    `json:"height"`
}

// Symbol REST wire types for GET /transactions/confirmed.

type ConfirmedTransactionsPage struct {
	Data       []TransactionEnvelope `json:"data"`
	Pagination Pagination            `json:"pagination"`
}

type Pagination struct {
	PageNumber int `json:"pageNumber"`
	PageSize   int `json:"pageSize"`
}

type TransactionEnvelope struct {
	ID          string          `json:"id"`
	Meta        TransactionMeta `json:"meta"`
	Transaction TransferBody    `json:"transaction"`
}

type TransactionMeta struct {
	Height    string `json:"height"`
	Hash      string `json:"hash"`
	Timestamp string `json:"timestamp"`
	Index     int    `json:"index"`
}

type TransferBody struct {
	Type             int      `json:"type"`
	SignerPublicKey  string   `json:"signerPublicKey"`
	RecipientAddress string   `json:"recipientAddress"`
	Message          string   `json:"message,omitempty"`
	Mosaics          []Mosaic `json:"mosaics"`
}

type Mosaic struct {
	ID     string `json:"id"`
	Amount string `json:"amount"`
}

// NodeHealthResponse is the Symbol REST GET /node/health payload.
type NodeHealthResponse struct {
	Status struct {
		APINode string `json:"apiNode"`
		DB      string `json:"db"`
	} `json:"status"`
}
