package feeds

import (
	"testing"

	"github.com/stablesats/dealer/internal/pricecache"
	"github.com/stretchr/testify/require"
)

func TestParseOkexBookFrameSnapshot(t *testing.T) {
	frame := []byte(`{"arg":{"channel":"books5","instId":"BTC-USD-SWAP"},"data":[{"asks":[["65000.5","1.2","0","3"]],"bids":[["64999.5","0.8","0","2"]],"ts":"1700000000000"}]}`)

	payloadType, payload, ok, err := parseOkexBookFrame(frame)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, OkexOrderBookPayloadType, payloadType)

	snap, isSnap := payload.(pricecache.OrderBookSnapshot)
	require.True(t, isSnap)
	require.Len(t, snap.Asks, 1)
	require.Len(t, snap.Bids, 1)
	require.True(t, snap.Asks[0].Price.Equal(mustDecimal(t, "65000.5")))
	require.True(t, snap.Bids[0].Volume.Equal(mustDecimal(t, "0.8")))
}

func TestParseOkexBookFrameIgnoresSubscriptionAck(t *testing.T) {
	frame := []byte(`{"event":"subscribe","arg":{"channel":"books5","instId":"BTC-USD-SWAP"}}`)
	_, _, ok, err := parseOkexBookFrame(frame)
	require.NoError(t, err)
	require.False(t, ok)
}
