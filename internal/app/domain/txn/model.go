// Package txn models the unsigned transaction envelope the station sponsors.
package txn

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// Command kinds. Only move calls are inspected by the allow-list; every other
// kind passes through untouched.
const (
	KindMoveCall        = "MoveCall"
	KindTransferObjects = "TransferObjects"
	KindSplitCoins      = "SplitCoins"
	KindMergeCoins      = "MergeCoins"
)

// ErrDecode marks payloads that cannot be decoded into a transaction.
var ErrDecode = errors.New("transaction bytes undecodable")

// ObjectRef pins an owned object at an exact version.
type ObjectRef struct {
	ObjectID string `json:"objectId"`
	Version  string `json:"version"`
	Digest   string `json:"digest"`
}

// GasData carries who pays the fee and with what. The station overwrites all
// of it before signing.
type GasData struct {
	Owner   string     `json:"owner,omitempty"`
	Payment *ObjectRef `json:"payment,omitempty"`
	Budget  uint64     `json:"budget,omitempty"`
	Price   uint64     `json:"price,omitempty"`
}

// Command is one step of a transaction. Target is set only for move calls
// and is the fully-qualified identifier pkg::module::fn. Arguments are
// opaque to the station and passed through untouched.
type Command struct {
	Kind      string            `json:"kind"`
	Target    string            `json:"target,omitempty"`
	Arguments []json.RawMessage `json:"arguments,omitempty"`
}

// Transaction is the decoded envelope. Owned exclusively by one in-flight
// request; never shared.
type Transaction struct {
	Sender   string    `json:"sender,omitempty"`
	Gas      GasData   `json:"gas"`
	Commands []Command `json:"commands"`
}

// Decode parses base64-encoded transaction bytes into a Transaction. Unknown
// fields are rejected so a caller cannot smuggle fields the station does not
// inspect.
func Decode(txBytesB64 string) (*Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(txBytesB64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var tx Transaction
	if err := dec.Decode(&tx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return &tx, nil
}

// Canonical returns the deterministic byte form of the transaction. Map-free
// struct marshalling keeps field order stable, so equal transactions always
// produce equal bytes.
func (t *Transaction) Canonical() ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("canonicalize transaction: %w", err)
	}
	return data, nil
}
