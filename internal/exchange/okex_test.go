package exchange

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func TestGetFundingDepositAddress(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("OK-ACCESS-SIGN"))
		assert.Equal(t, "test-key", r.Header.Get("OK-ACCESS-KEY"))
		assert.Equal(t, "test-pass", r.Header.Get("OK-ACCESS-PASSPHRASE"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"code": "0",
			"msg":  "",
			"data": []map[string]string{{"addr": "bc1qexampleaddress"}},
		})
	}))
	defer server.Close()

	c := NewClient(Config{APIKey: "test-key", APISecret: "secret", Passphrase: "test-pass", BaseURL: server.URL}, testLogger())
	addr, err := c.GetFundingDepositAddress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bc1qexampleaddress", addr.Value)
}

func TestUnexpectedResponseSurfacesCodeAndMsg(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"code": "50001",
			"msg":  "invalid signature",
			"data": []any{},
		})
	}))
	defer server.Close()

	c := NewClient(Config{APIKey: "k", APISecret: "s", Passphrase: "p", BaseURL: server.URL}, testLogger())
	_, err := c.GetFundingDepositAddress(context.Background())
	require.Error(t, err)

	var unexpected *UnexpectedResponseError
	require.ErrorAs(t, err, &unexpected)
	assert.Equal(t, "50001", unexpected.Code)
	assert.Equal(t, "invalid signature", unexpected.Msg)
}

func TestTradingAccountBalance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"code": "0",
			"msg":  "",
			"data": []map[string]any{
				{"details": []map[string]string{{"availBal": "1.23456789"}}},
			},
		})
	}))
	defer server.Close()

	c := NewClient(Config{APIKey: "k", APISecret: "s", Passphrase: "p", BaseURL: server.URL}, testLogger())
	bal, err := c.TradingAccountBalance(context.Background())
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.RequireFromString("1.23456789")))
}

func TestPlaceOrderSignsPostBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		signer := &Client{cfg: Config{APISecret: "s"}}
		want := signer.sign(r.Header.Get("OK-ACCESS-TIMESTAMP") + r.Method + r.URL.RequestURI() + string(body))
		assert.Equal(t, want, r.Header.Get("OK-ACCESS-SIGN"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"code": "0",
			"msg":  "",
			"data": []map[string]string{{"ordId": "123456"}},
		})
	}))
	defer server.Close()

	c := NewClient(Config{APIKey: "k", APISecret: "s", Passphrase: "p", BaseURL: server.URL}, testLogger())
	order, err := c.PlaceOrder(context.Background(), "BTC-USD-SWAP", "cross", "buy", "short", "market", 10)
	require.NoError(t, err)
	assert.Equal(t, "123456", order.Value)
}

func TestPosition(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"code": "0",
			"msg":  "",
			"data": []map[string]string{{"pos": "-5", "notionalUsd": "500", "posSide": "short"}},
		})
	}))
	defer server.Close()

	c := NewClient(Config{APIKey: "k", APISecret: "s", Passphrase: "p", BaseURL: server.URL}, testLogger())
	pos, err := c.Position(context.Background())
	require.NoError(t, err)
	assert.True(t, pos.Contracts.Equal(decimal.NewFromInt(-5)))
	assert.True(t, pos.NotionalUSD.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, "short", pos.Side)
}
