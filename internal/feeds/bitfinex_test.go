package feeds

import (
	"testing"

	"github.com/stablesats/dealer/internal/pricecache"
	"github.com/stretchr/testify/require"
)

func TestParseBitfinexFrameTickerUpdate(t *testing.T) {
	frame := []byte(`[17,[64999.5,10,65000.5,12,100.1,0.0015,65000,1000,66000,63000]]`)

	payloadType, payload, ok, err := parseBitfinexFrame(frame)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, BitfinexTickPayloadType, payloadType)

	tick, isTick := payload.(pricecache.Tick)
	require.True(t, isTick)
	require.True(t, tick.Bid.Equal(mustDecimal(t, "64999.5")))
	require.True(t, tick.Ask.Equal(mustDecimal(t, "65000.5")))
}

func TestParseBitfinexFrameSkipsSubscriptionAck(t *testing.T) {
	frame := []byte(`{"event":"subscribed","channel":"ticker","chanId":17,"symbol":"tBTCUSD"}`)
	_, _, ok, err := parseBitfinexFrame(frame)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestParseBitfinexFrameSkipsHeartbeat(t *testing.T) {
	frame := []byte(`[17,"hb"]`)
	_, _, ok, err := parseBitfinexFrame(frame)
	require.NoError(t, err)
	require.False(t, ok)
}
