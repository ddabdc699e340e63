package chain

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func rpcServer(t *testing.T, handler func(req RPCRequest) (interface{}, *RPCError)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req RPCRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode rpc request: %v", err)
		}

		result, rpcErr := handler(req)
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestNewClient_RequiresURL(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error for missing RPC URL")
	}
}

func TestClient_GetCoins(t *testing.T) {
	server := rpcServer(t, func(req RPCRequest) (interface{}, *RPCError) {
		if req.Method != "suix_getCoins" {
			t.Errorf("method = %s, want suix_getCoins", req.Method)
		}
		return map[string]interface{}{
			"data": []map[string]interface{}{
				{"coinObjectId": "0xa", "version": "5", "digest": "dgst1", "balance": "50000000"},
				{"coinObjectId": "0xb", "version": "9", "digest": "dgst2", "balance": "200000000"},
			},
			"hasNextPage": false,
		}, nil
	})
	defer server.Close()

	client, err := NewClient(Config{RPCURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	coins, err := client.GetCoins(context.Background(), "0xowner", "0x2::sui::SUI")
	if err != nil {
		t.Fatalf("get coins: %v", err)
	}
	if len(coins) != 2 {
		t.Fatalf("expected 2 coins, got %d", len(coins))
	}
	if coins[0].ObjectID != "0xa" || coins[0].Balance != 50000000 {
		t.Fatalf("unexpected first coin: %+v", coins[0])
	}
	if coins[1].Digest != "dgst2" || coins[1].Balance != 200000000 {
		t.Fatalf("unexpected second coin: %+v", coins[1])
	}
}

func TestClient_GetBalance(t *testing.T) {
	server := rpcServer(t, func(req RPCRequest) (interface{}, *RPCError) {
		if req.Method != "suix_getBalance" {
			t.Errorf("method = %s, want suix_getBalance", req.Method)
		}
		return map[string]interface{}{
			"coinType":        "0x2::sui::SUI",
			"coinObjectCount": 3,
			"totalBalance":    "1500000000",
		}, nil
	})
	defer server.Close()

	client, _ := NewClient(Config{RPCURL: server.URL})
	balance, err := client.GetBalance(context.Background(), "0xowner", "0x2::sui::SUI")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance.TotalBalance != 1500000000 || balance.CoinObjectCount != 3 {
		t.Fatalf("unexpected balance: %+v", balance)
	}
}

func TestClient_RPCErrorSurfaced(t *testing.T) {
	server := rpcServer(t, func(req RPCRequest) (interface{}, *RPCError) {
		return nil, &RPCError{Code: -32602, Message: "invalid params"}
	})
	defer server.Close()

	client, _ := NewClient(Config{RPCURL: server.URL})
	_, err := client.GetCoins(context.Background(), "0xowner", "0x2::sui::SUI")
	if err == nil {
		t.Fatal("expected rpc error")
	}
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected *RPCError, got %T: %v", err, err)
	}
	if rpcErr.Code != -32602 {
		t.Fatalf("unexpected code: %d", rpcErr.Code)
	}
}

func TestClient_DryRunTransaction(t *testing.T) {
	server := rpcServer(t, func(req RPCRequest) (interface{}, *RPCError) {
		if req.Method != "sui_dryRunTransactionBlock" {
			t.Errorf("method = %s, want sui_dryRunTransactionBlock", req.Method)
		}
		return map[string]interface{}{
			"effects": map[string]interface{}{
				"status": map[string]interface{}{"status": "success"},
			},
		}, nil
	})
	defer server.Close()

	client, _ := NewClient(Config{RPCURL: server.URL})
	result, err := client.DryRunTransaction(context.Background(), "dGVzdA==")
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !result.OK() {
		t.Fatalf("expected success status, got %+v", result)
	}
}
