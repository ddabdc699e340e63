// Package chain provides fullnode RPC interaction for the gas station.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a JSON-RPC client for a Sui-compatible fullnode. It exposes only
// the calls the sponsorship pipeline needs; retries, if any, are the caller's
// concern.
type Client struct {
	rpcURL     string
	httpClient *http.Client
}

// Config holds client configuration.
type Config struct {
	RPCURL  string
	Timeout time.Duration
}

// NewClient creates a new fullnode client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		rpcURL: cfg.RPCURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// =============================================================================
// Core RPC Methods
// =============================================================================

// Call makes a JSON-RPC call to the fullnode.
func (c *Client) Call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	req := RPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var rpcResp RPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}

	return rpcResp.Result, nil
}

// GetCoins returns the fee-payment objects owned by an address for one coin
// type, in the node's listing order.
func (c *Client) GetCoins(ctx context.Context, owner, coinType string) ([]Coin, error) {
	result, err := c.Call(ctx, "suix_getCoins", []interface{}{owner, coinType, nil, nil})
	if err != nil {
		return nil, err
	}

	var page coinPage
	if err := json.Unmarshal(result, &page); err != nil {
		return nil, fmt.Errorf("unmarshal coin page: %w", err)
	}

	coins := make([]Coin, 0, len(page.Data))
	for _, w := range page.Data {
		balance, err := parseUint("coin balance", w.Balance)
		if err != nil {
			return nil, err
		}
		coins = append(coins, Coin{
			ObjectID: w.CoinObjectID,
			Version:  w.Version,
			Digest:   w.Digest,
			Balance:  balance,
		})
	}
	return coins, nil
}

// GetBalance returns the aggregate balance of an address for one coin type.
func (c *Client) GetBalance(ctx context.Context, owner, coinType string) (Balance, error) {
	result, err := c.Call(ctx, "suix_getBalance", []interface{}{owner, coinType})
	if err != nil {
		return Balance{}, err
	}

	var w balanceWire
	if err := json.Unmarshal(result, &w); err != nil {
		return Balance{}, fmt.Errorf("unmarshal balance: %w", err)
	}
	total, err := parseUint("total balance", w.TotalBalance)
	if err != nil {
		return Balance{}, err
	}
	return Balance{
		CoinType:        w.CoinType,
		CoinObjectCount: w.CoinObjectCount,
		TotalBalance:    total,
	}, nil
}

// DryRunTransaction asks the node to semantically check finalized transaction
// bytes without executing them.
func (c *Client) DryRunTransaction(ctx context.Context, txBytesB64 string) (DryRunResult, error) {
	result, err := c.Call(ctx, "sui_dryRunTransactionBlock", []interface{}{txBytesB64})
	if err != nil {
		return DryRunResult{}, err
	}

	var dry DryRunResult
	if err := json.Unmarshal(result, &dry); err != nil {
		return DryRunResult{}, fmt.Errorf("unmarshal dry run result: %w", err)
	}
	return dry, nil
}
