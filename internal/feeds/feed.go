// Package feeds holds the per-exchange websocket adapters that sit
// upstream of PriceBus: each Feed dials one venue's public market-data
// socket, reconnects with exponential backoff on drop, and republishes
// every parsed message onto a bus.Bus as a msgpack-encoded payload, the
// wire shape PriceBus expects at the feed/cache boundary.
package feeds

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/stablesats/dealer/internal/bus"
)

const (
	writeWait   = 10 * time.Second
	dialTimeout = 30 * time.Second

	baseReconnectDelay = 5 * time.Second
	maxReconnectDelay  = 5 * time.Minute
)

// Parser turns one raw websocket text frame into a bus payload. It
// returns ok=false for frames that carry no price data (heartbeats,
// subscription acks) so the feed can skip publishing without treating
// the frame as a parse error.
type Parser func(frame []byte) (payloadType string, payload any, ok bool, err error)

// Feed connects to one exchange's websocket endpoint, sends a
// subscription message on connect, and republishes every parsed frame
// onto bus under exchangeID's payload types.
type Feed struct {
	url              string
	exchangeID       string
	subscribeMessage []byte
	parse            Parser

	httpClient *http.Client
	bus        *bus.Bus
	log        zerolog.Logger

	mu         sync.RWMutex
	conn       *websocket.Conn
	connCtx    context.Context
	cancelFunc context.CancelFunc
	connected  bool

	stopChan chan struct{}
	stopped  bool
}

// New constructs a Feed. subscribeMessage is sent verbatim as a single
// text frame immediately after the handshake completes.
func New(exchangeID, url string, subscribeMessage []byte, parse Parser, b *bus.Bus, log zerolog.Logger) *Feed {
	return &Feed{
		url:              url,
		exchangeID:       exchangeID,
		subscribeMessage: subscribeMessage,
		parse:            parse,
		httpClient:       &http.Client{Transport: &http.Transport{DialContext: (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext}},
		bus:              b,
		log:              log.With().Str("component", "feed").Str("exchange", exchangeID).Logger(),
		stopChan:         make(chan struct{}),
	}
}

// Start dials the feed and begins the read loop, falling back to the
// reconnect loop in the background if the first dial fails.
func (f *Feed) Start() {
	if err := f.connect(); err != nil {
		f.log.Warn().Err(err).Msg("initial connection failed, retrying in background")
		go f.reconnectLoop()
		return
	}
	f.mu.RLock()
	ctx := f.connCtx
	f.mu.RUnlock()
	go f.readLoop(ctx)
}

// Stop closes the connection and halts reconnection attempts.
func (f *Feed) Stop() error {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return nil
	}
	f.stopped = true
	f.mu.Unlock()
	close(f.stopChan)
	return f.disconnect()
}

func (f *Feed) connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, f.url, &websocket.DialOptions{HTTPClient: f.httpClient})
	if err != nil {
		return fmt.Errorf("feeds: dial %s: %w", f.exchangeID, err)
	}

	connCtx, connCancel := context.WithCancel(context.Background())
	f.conn = conn
	f.connCtx = connCtx
	f.cancelFunc = connCancel
	f.connected = true

	writeCtx, writeCancel := context.WithTimeout(connCtx, writeWait)
	defer writeCancel()
	if err := conn.Write(writeCtx, websocket.MessageText, f.subscribeMessage); err != nil {
		connCancel()
		conn.Close(websocket.StatusNormalClosure, "subscribe failed")
		f.conn, f.connCtx, f.cancelFunc, f.connected = nil, nil, nil, false
		return fmt.Errorf("feeds: subscribe %s: %w", f.exchangeID, err)
	}

	f.log.Info().Msg("connected")
	return nil
}

func (f *Feed) disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return nil
	}
	if f.cancelFunc != nil {
		f.cancelFunc()
		f.cancelFunc = nil
	}
	err := f.conn.Close(websocket.StatusNormalClosure, "")
	f.conn, f.connCtx, f.connected = nil, nil, false
	return err
}

func (f *Feed) readLoop(ctx context.Context) {
	defer func() {
		f.mu.RLock()
		stopped := f.stopped
		f.mu.RUnlock()
		if !stopped {
			go f.reconnectLoop()
		}
	}()

	for {
		select {
		case <-f.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		f.mu.RLock()
		conn := f.conn
		f.mu.RUnlock()
		if conn == nil {
			return
		}

		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				f.log.Warn().Err(err).Msg("read error, reconnecting")
			}
			return
		}
		if msgType != websocket.MessageText {
			continue
		}

		payloadType, payload, ok, err := f.parse(data)
		if err != nil {
			f.log.Error().Err(err).Msg("failed to parse frame, skipping")
			continue
		}
		if !ok {
			continue
		}

		encoded, err := bus.EncodePayload(payload)
		if err != nil {
			f.log.Error().Err(err).Msg("failed to encode payload, skipping")
			continue
		}
		f.bus.Publish(payloadType, encoded, bus.Meta{Timestamp: time.Now()})
	}
}

func (f *Feed) reconnectLoop() {
	attempt := 0
	for {
		select {
		case <-f.stopChan:
			return
		default:
		}

		attempt++
		delay := backoff(attempt)
		f.log.Info().Int("attempt", attempt).Dur("delay", delay).Msg("reconnecting")

		select {
		case <-time.After(delay):
		case <-f.stopChan:
			return
		}

		if err := f.connect(); err != nil {
			f.log.Error().Err(err).Int("attempt", attempt).Msg("reconnect failed")
			continue
		}

		f.mu.RLock()
		ctx := f.connCtx
		f.mu.RUnlock()
		go f.readLoop(ctx)
		return
	}
}

func backoff(attempt int) time.Duration {
	delay := float64(baseReconnectDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxReconnectDelay) {
		delay = float64(maxReconnectDelay)
	}
	return time.Duration(delay)
}

// IsConnected reports current connection state.
func (f *Feed) IsConnected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}
