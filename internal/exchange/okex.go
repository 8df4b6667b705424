// Package exchange implements the signed REST client the hedging loop
// uses to read balances and positions and to move funds and place orders
// on the derivatives venue.
package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefaultBaseURL is the production OKEX REST endpoint.
const DefaultBaseURL = "https://www.okex.com"

// MinimumWithdrawalAmountBTC and DefaultWithdrawalFeeBTC are the venue's
// published on-chain withdrawal constants.
var (
	MinimumWithdrawalAmountBTC = decimal.NewFromFloat(0.001)
	DefaultWithdrawalFeeBTC    = decimal.NewFromFloat(0.0002)
)

const requestTimeout = 10 * time.Second

// Config carries the signed-request credentials for one account.
type Config struct {
	APIKey     string
	APISecret  string
	Passphrase string
	BaseURL    string
}

// Client is a signed REST client for the OKEX v5 API.
type Client struct {
	httpClient *http.Client
	cfg        Config
	log        zerolog.Logger
}

// NewClient constructs a Client. If cfg.BaseURL is empty, DefaultBaseURL is
// used.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		cfg:        cfg,
		log:        log.With().Str("component", "exchange-okex").Logger(),
	}
}

// UnexpectedResponseError wraps a non-success OKEX response envelope.
type UnexpectedResponseError struct {
	Code string
	Msg  string
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("exchange: unexpected response (code %s): %s", e.Code, e.Msg)
}

// DepositAddress is a funding-account deposit address.
type DepositAddress struct{ Value string }

// TransferID identifies an internal funding<->trading transfer.
type TransferID struct{ Value string }

// TransferState reports the settlement state of a transfer.
type TransferState struct{ Value string }

// WithdrawID identifies an on-chain withdrawal request.
type WithdrawID struct{ Value string }

// OrderID identifies a placed order.
type OrderID struct{ Value string }

// DerivativePosition is the resolved shape of the venue's position query:
// contract count, USD notional, and the position's side.
type DerivativePosition struct {
	Contracts   decimal.Decimal
	NotionalUSD decimal.Decimal
	Side        string
}

type envelope[T any] struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []T    `json:"data"`
}

func extractFirst[T any](body []byte) (T, error) {
	var zero T
	var env envelope[T]
	if err := json.Unmarshal(body, &env); err != nil {
		return zero, fmt.Errorf("exchange: decode response: %w", err)
	}
	if env.Code != "0" {
		return zero, &UnexpectedResponseError{Code: env.Code, Msg: env.Msg}
	}
	if len(env.Data) == 0 {
		return zero, &UnexpectedResponseError{Code: env.Code, Msg: "empty data array"}
	}
	return env.Data[0], nil
}

func (c *Client) sign(preHash string) string {
	mac := hmac.New(sha256.New, []byte(c.cfg.APISecret))
	mac.Write([]byte(preHash))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// doRequest issues a signed request against path with the given method and
// JSON body, returning the raw response bytes. Every call carries a 10s
// deadline regardless of the caller's context.
func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	preHash := timestamp + method + path + string(body)
	sig := c.sign(preHash)

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("exchange: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("OK-ACCESS-KEY", c.cfg.APIKey)
	req.Header.Set("OK-ACCESS-SIGN", sig)
	req.Header.Set("OK-ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("OK-ACCESS-PASSPHRASE", c.cfg.Passphrase)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("exchange: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("exchange: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.log.Error().Int("status", resp.StatusCode).Str("path", path).Msg("non-200 from exchange")
	}

	return respBody, nil
}

// GetFundingDepositAddress returns the BTC deposit address for the
// funding account.
func (c *Client) GetFundingDepositAddress(ctx context.Context) (DepositAddress, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v5/asset/deposit-address?ccy=BTC", nil)
	if err != nil {
		return DepositAddress{}, err
	}
	data, err := extractFirst[struct {
		Addr string `json:"addr"`
	}](body)
	if err != nil {
		return DepositAddress{}, err
	}
	return DepositAddress{Value: data.Addr}, nil
}

func (c *Client) transfer(ctx context.Context, amt decimal.Decimal, from, to, clientID string) (TransferID, error) {
	payload, err := json.Marshal(map[string]string{
		"ccy":      "BTC",
		"amt":      amt.String(),
		"from":     from,
		"to":       to,
		"clientId": clientID,
	})
	if err != nil {
		return TransferID{}, fmt.Errorf("exchange: encode transfer body: %w", err)
	}
	body, err := c.doRequest(ctx, http.MethodPost, "/api/v5/asset/transfer", payload)
	if err != nil {
		return TransferID{}, err
	}
	data, err := extractFirst[struct {
		TransID string `json:"transId"`
	}](body)
	if err != nil {
		return TransferID{}, err
	}
	return TransferID{Value: data.TransID}, nil
}

// TransferFundingToTrading moves amt BTC from the funding sub-account (6)
// to the trading sub-account (18). clientID is a caller-chosen, monotonically
// increasing identifier that makes a retried call idempotent on the venue
// side.
func (c *Client) TransferFundingToTrading(ctx context.Context, amt decimal.Decimal, clientID string) (TransferID, error) {
	return c.transfer(ctx, amt, "6", "18", clientID)
}

// TransferTradingToFunding moves amt BTC from trading (18) back to
// funding (6). See TransferFundingToTrading for clientID's role.
func (c *Client) TransferTradingToFunding(ctx context.Context, amt decimal.Decimal, clientID string) (TransferID, error) {
	return c.transfer(ctx, amt, "18", "6", clientID)
}

// FundingAccountBalance returns the available BTC balance on the funding
// sub-account.
func (c *Client) FundingAccountBalance(ctx context.Context) (decimal.Decimal, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v5/asset/balances?ccy=BTC", nil)
	if err != nil {
		return decimal.Zero, err
	}
	data, err := extractFirst[struct {
		AvailBal string `json:"availBal"`
	}](body)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(data.AvailBal)
}

// TradingAccountBalance returns the available BTC balance on the trading
// sub-account.
func (c *Client) TradingAccountBalance(ctx context.Context) (decimal.Decimal, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v5/account/balance?ccy=BTC", nil)
	if err != nil {
		return decimal.Zero, err
	}
	data, err := extractFirst[struct {
		Details []struct {
			AvailBal string `json:"availBal"`
		} `json:"details"`
	}](body)
	if err != nil {
		return decimal.Zero, err
	}
	if len(data.Details) == 0 {
		return decimal.Zero, &UnexpectedResponseError{Code: "0", Msg: "empty balance details"}
	}
	return decimal.NewFromString(data.Details[0].AvailBal)
}

// TransferState queries the settlement state of a prior transfer.
func (c *Client) TransferState(ctx context.Context, transferID string) (TransferState, error) {
	path := fmt.Sprintf("/api/v5/asset/transfer-state?ccy=BTC&transId=%s", transferID)
	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return TransferState{}, err
	}
	data, err := extractFirst[struct {
		State string `json:"state"`
	}](body)
	if err != nil {
		return TransferState{}, err
	}
	return TransferState{Value: data.State}, nil
}

// WithdrawBtcOnchain initiates an on-chain BTC withdrawal to btcAddress.
// clientID plays the same idempotency role as in TransferFundingToTrading.
func (c *Client) WithdrawBtcOnchain(ctx context.Context, amt, fee decimal.Decimal, btcAddress, clientID string) (WithdrawID, error) {
	payload, err := json.Marshal(map[string]string{
		"ccy":      "BTC",
		"amt":      amt.String(),
		"dest":     "4",
		"fee":      fee.String(),
		"chain":    "BTC-Bitcoin",
		"toAddr":   btcAddress,
		"clientId": clientID,
	})
	if err != nil {
		return WithdrawID{}, fmt.Errorf("exchange: encode withdrawal body: %w", err)
	}
	body, err := c.doRequest(ctx, http.MethodPost, "/api/v5/asset/withdrawal?ccy=BTC", payload)
	if err != nil {
		return WithdrawID{}, err
	}
	data, err := extractFirst[struct {
		WdID string `json:"wdId"`
	}](body)
	if err != nil {
		return WithdrawID{}, err
	}
	return WithdrawID{Value: data.WdID}, nil
}

// PlaceOrder places an order on instID with the given trade mode, side,
// position side, order type and contract size.
func (c *Client) PlaceOrder(ctx context.Context, instID, tdMode, side, posSide, ordType string, size int64) (OrderID, error) {
	payload, err := json.Marshal(map[string]string{
		"ccy":     "BTC",
		"instId":  instID,
		"tdMode":  tdMode,
		"side":    side,
		"ordType": ordType,
		"posSide": posSide,
		"sz":      fmt.Sprintf("%d", size),
	})
	if err != nil {
		return OrderID{}, fmt.Errorf("exchange: encode order body: %w", err)
	}
	body, err := c.doRequest(ctx, http.MethodPost, "/api/v5/trade/order", payload)
	if err != nil {
		return OrderID{}, err
	}
	data, err := extractFirst[struct {
		OrdID string `json:"ordId"`
	}](body)
	if err != nil {
		return OrderID{}, err
	}
	return OrderID{Value: data.OrdID}, nil
}

// Position returns the current BTC-USD-SWAP derivative position.
func (c *Client) Position(ctx context.Context) (DerivativePosition, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v5/account/positions?instId=BTC-USD-SWAP", nil)
	if err != nil {
		return DerivativePosition{}, err
	}
	data, err := extractFirst[struct {
		Pos         string `json:"pos"`
		NotionalUsd string `json:"notionalUsd"`
		PosSide     string `json:"posSide"`
	}](body)
	if err != nil {
		return DerivativePosition{}, err
	}

	contracts, err := decimal.NewFromString(data.Pos)
	if err != nil {
		return DerivativePosition{}, fmt.Errorf("exchange: parse position contracts: %w", err)
	}
	notional, err := decimal.NewFromString(data.NotionalUsd)
	if err != nil {
		return DerivativePosition{}, fmt.Errorf("exchange: parse position notional: %w", err)
	}

	return DerivativePosition{Contracts: contracts, NotionalUSD: notional, Side: data.PosSide}, nil
}
