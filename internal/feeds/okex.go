package feeds

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/stablesats/dealer/internal/bus"
	"github.com/stablesats/dealer/internal/pricecache"
)

// OkexExchangeID is the provider id OKEX registers under in PriceMixer.
const OkexExchangeID = "okex"

// OkexOrderBookPayloadType is the bus payload type an OKEX order-book
// feed publishes under.
const OkexOrderBookPayloadType = "okex.orderbook"

const okexWsURL = "wss://ws.okx.com:8443/ws/v5/public"

// okexSubscribeMessage subscribes to books5: OKEX's top-5-depth channel
// that sends a full snapshot on every update rather than an incremental
// diff, so no local book-merge state is needed on this side.
var okexSubscribeMessage = []byte(`{"op":"subscribe","args":[{"channel":"books5","instId":"BTC-USD-SWAP"}]}`)

type okexBookFrame struct {
	Arg struct {
		Channel string `json:"channel"`
	} `json:"arg"`
	Data []struct {
		Asks [][]string `json:"asks"`
		Bids [][]string `json:"bids"`
		Ts   string     `json:"ts"`
	} `json:"data"`
}

// parseOkexBookFrame decodes one OKEX books5 websocket frame into an
// OrderBookSnapshot. Subscription acks and frames with no data entries
// return ok=false rather than an error.
func parseOkexBookFrame(raw []byte) (string, any, bool, error) {
	var frame okexBookFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return "", nil, false, err
	}
	if frame.Arg.Channel != "books5" || len(frame.Data) == 0 {
		return "", nil, false, nil
	}

	d := frame.Data[0]
	asks, err := parseOkexLevels(d.Asks)
	if err != nil {
		return "", nil, false, err
	}
	bids, err := parseOkexLevels(d.Bids)
	if err != nil {
		return "", nil, false, err
	}

	tsMillis, err := strconv.ParseInt(d.Ts, 10, 64)
	if err != nil {
		return "", nil, false, err
	}

	snap := pricecache.OrderBookSnapshot{
		Bids:      bids,
		Asks:      asks,
		Timestamp: time.UnixMilli(tsMillis),
	}
	return OkexOrderBookPayloadType, snap, true, nil
}

// parseOkexLevels decodes OKEX's [price, size, liquidated_orders, order_count]
// level tuples, keeping only the price and size a book walk needs.
func parseOkexLevels(raw [][]string) ([]pricecache.OrderBookLevel, error) {
	levels := make([]pricecache.OrderBookLevel, 0, len(raw))
	for _, tuple := range raw {
		if len(tuple) < 2 {
			continue
		}
		price, err := decimal.NewFromString(tuple[0])
		if err != nil {
			return nil, err
		}
		volume, err := decimal.NewFromString(tuple[1])
		if err != nil {
			return nil, err
		}
		levels = append(levels, pricecache.OrderBookLevel{Price: price, Volume: volume})
	}
	return levels, nil
}

// NewOkexFeed constructs the OKEX books5 Feed, wired to publish onto b.
func NewOkexFeed(b *bus.Bus, log zerolog.Logger) *Feed {
	return New(OkexExchangeID, okexWsURL, okexSubscribeMessage, parseOkexBookFrame, b, log)
}

// SubscribeOkexOrderBook runs until ctx is cancelled or the bus closes,
// applying every OKEX order-book payload it reads onto cache. Mirrors
// quotes-server's subscribe_okex task: the feed only publishes, a
// separate subscriber loop owns applying updates to the cache.
func SubscribeOkexOrderBook(ctx context.Context, sub *bus.Subscription, cache *pricecache.OrderBookCache, log zerolog.Logger) {
	for {
		env, err := sub.Next(ctx)
		if err != nil {
			return
		}
		if env.PayloadType != OkexOrderBookPayloadType {
			continue
		}
		raw, ok := env.Payload.([]byte)
		if !ok {
			log.Warn().Msg("okex order book payload had unexpected type")
			continue
		}
		var snap pricecache.OrderBookSnapshot
		if err := bus.DecodePayload(raw, &snap); err != nil {
			log.Warn().Err(err).Msg("failed to decode okex order book payload")
			continue
		}
		cache.ApplyUpdate(snap)
	}
}
