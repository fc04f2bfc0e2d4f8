package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testOwner    = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	testMint     = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	testAccount  = "So11111111111111111111111111111111111111112"
	tokenProgram = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
)

func tokenAccount(data any) map[string]any {
	return map[string]any{
		"pubkey": testAccount,
		"account": map[string]any{
			"data":       data,
			"executable": false,
			"lamports":   2039280,
			"owner":      tokenProgram,
			"rentEpoch":  361,
			"space":      165,
		},
	}
}

func parsedData(amount any) map[string]any {
	return map[string]any{
		"program": "spl-token",
		"parsed": map[string]any{
			"type": "account",
			"info": map[string]any{
				"mint":        testMint,
				"owner":       testOwner,
				"tokenAmount": map[string]any{"amount": amount, "decimals": 6},
			},
		},
		"space": 165,
	}
}

func rpcResult(accounts ...map[string]any) string {
	if accounts == nil {
		accounts = []map[string]any{}
	}
	b, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"result":  map[string]any{"context": map[string]any{"slot": 1}, "value": accounts},
	})
	return string(b)
}

func tokenAccountsResponse(amounts ...string) string {
	accounts := make([]map[string]any, 0, len(amounts))
	for _, a := range amounts {
		accounts = append(accounts, tokenAccount(parsedData(a)))
	}
	return rpcResult(accounts...)
}

// rpcNode answers every call with body and records the last request
func rpcNode(t *testing.T, body string) (*httptest.Server, *map[string]any, *atomic.Int32) {
	t.Helper()
	var (
		got   map[string]any
		calls atomic.Int32
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &got, &calls
}

func TestSolanaClient_AccountsByOwner(t *testing.T) {
	srv, got, _ := rpcNode(t, tokenAccountsResponse("150000000000", "2500000"))

	c := NewSolanaClient(srv.URL, "confirmed", srv.Client())
	amounts, err := c.AccountsByOwner(context.Background(), testOwner, testMint)
	require.NoError(t, err)
	require.Len(t, amounts, 2)
	assert.True(t, amounts[0].Equal(decimal.RequireFromString("150000000000")))
	assert.True(t, amounts[1].Equal(decimal.NewFromInt(2500000)))

	req := *got
	assert.Equal(t, "getTokenAccountsByOwner", req["method"])
	params, ok := req["params"].([]any)
	require.True(t, ok)
	require.Len(t, params, 3)
	assert.Equal(t, testOwner, params[0])
	assert.Equal(t, map[string]any{"mint": testMint}, params[1])
	opts, ok := params[2].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "jsonParsed", opts["encoding"])
	assert.Equal(t, "confirmed", opts["commitment"])
}

func TestSolanaClient_Responses(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    []string
		wantErr error
	}{
		{name: "no accounts", body: rpcResult(), want: []string{}},
		{name: "large amount", body: tokenAccountsResponse("18446744073709551616"), want: []string{"18446744073709551616"}},
		{name: "fractional amount", body: tokenAccountsResponse("1.5"), wantErr: ErrMalformedResponse},
		{name: "negative amount", body: tokenAccountsResponse("-1"), wantErr: ErrMalformedResponse},
		{name: "numeric amount", body: rpcResult(tokenAccount(parsedData(5))), wantErr: ErrMalformedResponse},
		{name: "binary data", body: rpcResult(tokenAccount([]string{"AQID", "base64"})), wantErr: ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, _ := rpcNode(t, tt.body)
			c := NewSolanaClient(srv.URL, "confirmed", srv.Client())
			got, err := c.AccountsByOwner(context.Background(), testOwner, testMint)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, got, len(tt.want))
			for i, w := range tt.want {
				assert.Equal(t, w, got[i].String())
			}
		})
	}
}

func TestSolanaClient_RPCError(t *testing.T) {
	srv, _, _ := rpcNode(t, `{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"Invalid param: could not find mint"}}`)

	c := NewSolanaClient(srv.URL, "confirmed", srv.Client())
	_, err := c.AccountsByOwner(context.Background(), testOwner, testMint)
	require.Error(t, err)
	var rpcErr *jsonrpc.RPCError
	require.True(t, errors.As(err, &rpcErr), "got %T: %v", err, err)
	assert.Equal(t, -32602, rpcErr.Code)
}

func TestSolanaClient_InvalidAddress(t *testing.T) {
	srv, _, calls := rpcNode(t, rpcResult())
	c := NewSolanaClient(srv.URL, "confirmed", srv.Client())

	tests := []struct {
		name        string
		owner, mint string
	}{
		{name: "empty owner", owner: "", mint: testMint},
		{name: "not base58", owner: "not-an-address", mint: testMint},
		// 0, O, I and l are outside the alphabet
		{name: "zero digit", owner: "0WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM", mint: testMint},
		// right length and alphabet, but decodes to more than 32 bytes
		{name: "oversized key", owner: strings.Repeat("z", 44), mint: testMint},
		{name: "short key", owner: "9WzDXwBbmkg8ZTbNMqUxvQ", mint: testMint},
		{name: "bad mint", owner: testOwner, mint: strings.Repeat("z", 44)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.AccountsByOwner(context.Background(), tt.owner, tt.mint)
			assert.ErrorIs(t, err, ErrInvalidAddress)
		})
	}
	assert.Zero(t, calls.Load(), "invalid keys must not reach the node")
}

func TestSolanaClient_HTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewSolanaClient(srv.URL, "confirmed", srv.Client())
	_, err := c.AccountsByOwner(context.Background(), testOwner, testMint)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidAddress)
}

func TestParseTokenAmount(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    string
		wantErr bool
	}{
		{name: "amount", data: `{"parsed":{"info":{"tokenAmount":{"amount":"42"}}}}`, want: "42"},
		{name: "zero", data: `{"parsed":{"info":{"tokenAmount":{"amount":"0"}}}}`, want: "0"},
		{name: "missing", data: `{"parsed":{"info":{}}}`, wantErr: true},
		{name: "numeric", data: `{"parsed":{"info":{"tokenAmount":{"amount":42}}}}`, wantErr: true},
		{name: "empty", data: ``, wantErr: true},
		{name: "not json", data: `<html>`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTokenAmount([]byte(tt.data))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedResponse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}
