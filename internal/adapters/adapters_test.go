package adapters

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hulrap/TradingBot-sub016/pkg/types"
)

func TestDecodeFeedMessage(t *testing.T) {
	payload := []byte(`{
		"hash": "0xabc",
		"chain": "ethereum",
		"from": "0xsender",
		"to": "0xrouter",
		"value": "1000000000000000000",
		"gasPrice": "30000000000",
		"gasLimit": 200000,
		"nonce": 7
	}`)

	tx, err := decodeFeedMessage(payload)
	require.NoError(t, err)

	assert.Equal(t, "0xabc", tx.Hash)
	assert.Equal(t, types.ChainEthereum, tx.Chain)
	assert.Equal(t, big.NewInt(1e18), tx.Value)
	assert.Equal(t, big.NewInt(30_000_000_000), tx.GasPrice)
	assert.Equal(t, uint64(7), tx.Nonce)
}

func TestDecodeFeedMessage_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", "nope"},
		{"unknown chain", `{"hash":"0x1","chain":"dogecoin"}`},
		{"missing hash", `{"chain":"ethereum"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeFeedMessage([]byte(tt.payload))
			assert.Error(t, err)
		})
	}
}

func TestHTTPPriceSource_GetPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "0xAAA", r.URL.Query().Get("token"))
		assert.Equal(t, "ethereum", r.URL.Query().Get("chain"))
		fmt.Fprint(w, `{"priceUsd": 2500.5, "confidence": 0.97}`)
	}))
	defer server.Close()

	source := NewHTTPPriceSource(server.URL)
	quote, err := source.GetPrice(context.Background(), "0xAAA", types.ChainEthereum)
	require.NoError(t, err)

	assert.Equal(t, 2500.5, quote.PriceUSD)
	assert.Equal(t, 0.97, quote.Confidence)
	assert.Equal(t, "0xAAA", quote.Token)
	assert.False(t, quote.Timestamp.IsZero())
}

func TestHTTPPriceSource_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown token", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewHTTPPriceSource(server.URL).GetPrice(context.Background(), "0xAAA", types.ChainEthereum)
	assert.Error(t, err)
}

func TestRPCChainClient_PoolReserves(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"address": "0xpool",
			"reserveIn": "500000000000000000000",
			"reserveOut": "1250000000000000000000000",
			"feeBps": 30,
			"liquidityUsd": 2500000
		}`)
	}))
	defer server.Close()

	client := NewRPCChainClient(types.ChainEthereum, "http://localhost:8545", server.URL)
	pool, err := client.PoolReserves(context.Background(), "0xAAA", "0xBBB")
	require.NoError(t, err)

	assert.Equal(t, "0xpool", pool.Address)
	assert.Equal(t, "0xAAA", pool.TokenIn)
	assert.Equal(t, int64(30), pool.FeeBps)
	assert.Equal(t, 0, pool.ReserveIn.Cmp(mustBig("500000000000000000000")))
}

func TestHTTPSigner_SignTransaction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ethereum", req["chain"])

		fmt.Fprintf(w, `{"signed": %q, "hash": "0xsigned"}`,
			base64.StdEncoding.EncodeToString([]byte("signedtx")))
	}))
	defer server.Close()

	signer := NewHTTPSigner(server.URL)
	signed, hash, err := signer.SignTransaction(context.Background(), types.ChainEthereum, []byte("unsigned"))
	require.NoError(t, err)

	assert.Equal(t, []byte("signedtx"), signed)
	assert.Equal(t, "0xsigned", hash)
}

func mustBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad big int literal: " + s)
	}
	return v
}
