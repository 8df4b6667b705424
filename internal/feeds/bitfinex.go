package feeds

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/stablesats/dealer/internal/bus"
	"github.com/stablesats/dealer/internal/pricecache"
)

// BitfinexExchangeID is the provider id Bitfinex registers under in
// PriceMixer.
const BitfinexExchangeID = "bitfinex"

// BitfinexTickPayloadType is the bus payload type a Bitfinex tick feed
// publishes under.
const BitfinexTickPayloadType = "bitfinex.tick"

const bitfinexWsURL = "wss://api-pub.bitfinex.com/ws/2"

var bitfinexSubscribeMessage = []byte(`{"event":"subscribe","channel":"ticker","symbol":"tBTCUSD"}`)

// bitfinexTickerFields indexes into Bitfinex's terse positional ticker
// array: [BID, BID_SIZE, ASK, ASK_SIZE, ...].
const (
	bitfinexFieldBid = 0
	bitfinexFieldAsk = 2
)

// parseBitfinexFrame decodes one Bitfinex v2 public websocket frame.
// Bitfinex multiplexes two incompatible shapes over the same socket: an
// object for the initial subscription ack, and a [channelID, [...]]
// tuple for every ticker update thereafter. Only the latter carries
// price data.
func parseBitfinexFrame(raw []byte) (string, any, bool, error) {
	var asObject map[string]any
	if err := json.Unmarshal(raw, &asObject); err == nil {
		return "", nil, false, nil
	}

	var tuple []json.RawMessage
	if err := json.Unmarshal(raw, &tuple); err != nil {
		return "", nil, false, err
	}
	if len(tuple) != 2 {
		return "", nil, false, nil
	}

	var fields []json.Number
	if err := json.Unmarshal(tuple[1], &fields); err != nil {
		// The heartbeat frame carries the literal string "hb" in this
		// position instead of an array.
		return "", nil, false, nil
	}
	if len(fields) <= bitfinexFieldAsk {
		return "", nil, false, nil
	}

	bid, err := decimal.NewFromString(string(fields[bitfinexFieldBid]))
	if err != nil {
		return "", nil, false, err
	}
	ask, err := decimal.NewFromString(string(fields[bitfinexFieldAsk]))
	if err != nil {
		return "", nil, false, err
	}

	tick := pricecache.Tick{Bid: bid, Ask: ask, Timestamp: time.Now().UTC()}
	return BitfinexTickPayloadType, tick, true, nil
}

// NewBitfinexFeed constructs the Bitfinex ticker Feed, wired to publish
// onto b.
func NewBitfinexFeed(b *bus.Bus, log zerolog.Logger) *Feed {
	return New(BitfinexExchangeID, bitfinexWsURL, bitfinexSubscribeMessage, parseBitfinexFrame, b, log)
}

// SubscribeBitfinexTick runs until ctx is cancelled or the bus closes,
// applying every Bitfinex tick payload it reads onto cache.
func SubscribeBitfinexTick(ctx context.Context, sub *bus.Subscription, cache *pricecache.TickCache, log zerolog.Logger) {
	for {
		env, err := sub.Next(ctx)
		if err != nil {
			return
		}
		if env.PayloadType != BitfinexTickPayloadType {
			continue
		}
		raw, ok := env.Payload.([]byte)
		if !ok {
			log.Warn().Msg("bitfinex tick payload had unexpected type")
			continue
		}
		var tick pricecache.Tick
		if err := bus.DecodePayload(raw, &tick); err != nil {
			log.Warn().Err(err).Msg("failed to decode bitfinex tick payload")
			continue
		}
		cache.ApplyUpdate(tick)
	}
}
