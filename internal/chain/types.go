package chain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// =============================================================================
// JSON-RPC Wire Types
// =============================================================================

// RPCRequest is a JSON-RPC 2.0 request envelope.
type RPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

// RPCResponse is a JSON-RPC 2.0 response envelope.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
	ID      int             `json:"id"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// =============================================================================
// Node Result Types
// =============================================================================

// Coin is one fee-payment object owned by an address. Version and digest pin
// the exact on-chain state; a stale pair invalidates the transaction, so
// coins are always fetched fresh and never cached.
type Coin struct {
	ObjectID string `json:"coinObjectId"`
	Version  string `json:"version"`
	Digest   string `json:"digest"`
	Balance  uint64 `json:"-"`
}

type coinWire struct {
	CoinType     string `json:"coinType"`
	CoinObjectID string `json:"coinObjectId"`
	Version      string `json:"version"`
	Digest       string `json:"digest"`
	Balance      string `json:"balance"`
}

type coinPage struct {
	Data        []coinWire `json:"data"`
	HasNextPage bool       `json:"hasNextPage"`
	NextCursor  string     `json:"nextCursor"`
}

// Balance is an aggregate balance for one coin type.
type Balance struct {
	CoinType        string `json:"coinType"`
	CoinObjectCount int    `json:"coinObjectCount"`
	TotalBalance    uint64 `json:"-"`
}

type balanceWire struct {
	CoinType        string `json:"coinType"`
	CoinObjectCount int    `json:"coinObjectCount"`
	TotalBalance    string `json:"totalBalance"`
}

// DryRunResult is the node's verdict on a finalized transaction.
type DryRunResult struct {
	Effects struct {
		Status struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		} `json:"status"`
	} `json:"effects"`
}

// OK reports whether the dry run succeeded.
func (r DryRunResult) OK() bool { return r.Effects.Status.Status == "success" }

func parseUint(field, value string) (uint64, error) {
	n, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", field, value, err)
	}
	return n, nil
}
