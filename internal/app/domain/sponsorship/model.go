// Package sponsorship holds the request, response and outcome types of the
// sponsorship pipeline.
package sponsorship

import "time"

// Status of one sponsorship attempt. A record starts pending and is patched
// exactly once to success or failed.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Request is the caller-supplied payload, immutable once received.
type Request struct {
	TransactionBytes string `json:"transaction_bytes"`
	SenderAddress    string `json:"sender_address"`
}

// Receipt is the successful response: the co-signed transaction and what the
// sponsor has left.
type Receipt struct {
	SignedBytes             string `json:"signed_bytes"`
	SponsorSignature        string `json:"sponsor_signature"`
	SponsorAddress          string `json:"sponsor_address"`
	SponsorRemainingBalance uint64 `json:"sponsor_remaining_balance"`
}

// Record is one outcome entry. Seq orders records for the persistence sweep;
// it increases monotonically and survives ring eviction.
type Record struct {
	ID        string    `json:"id"`
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Sender    string    `json:"sender"`
	TxDigest  string    `json:"tx_digest,omitempty"`
	FeeCost   uint64    `json:"fee_cost"`
	Status    Status    `json:"status"`
	CallerIP  string    `json:"caller_ip,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// SenderCount is one entry of the top-senders aggregate.
type SenderCount struct {
	Sender string `json:"sender"`
	Count  int    `json:"count"`
}

// Stats are aggregate counters derived from record history, computed on read.
type Stats struct {
	Total        int           `json:"total"`
	Pending      int           `json:"pending"`
	Success      int           `json:"success"`
	Failed       int           `json:"failed"`
	Last24Hours  int           `json:"last_24_hours"`
	Today        int           `json:"today"`
	TotalFeeMist uint64        `json:"total_fee_mist"`
	TopSenders   []SenderCount `json:"top_senders"`
}
