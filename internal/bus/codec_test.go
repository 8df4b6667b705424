package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type samplePayload struct {
	Bid int64
	Ask int64
}

func TestEncodeDecodeEnvelopeRoundTrip(t *testing.T) {
	env := Envelope{
		PayloadType: "tick",
		Payload:     samplePayload{Bid: 100, Ask: 101},
		Meta:        Meta{CorrelationID: "abc", Timestamp: time.Now().Truncate(time.Millisecond)},
	}

	data, err := EncodeEnvelope(env)
	require.NoError(t, err)

	decoded, err := DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, env.PayloadType, decoded.PayloadType)
	assert.Equal(t, env.Meta.CorrelationID, decoded.Meta.CorrelationID)
}

func TestEncodeDecodePayloadRoundTrip(t *testing.T) {
	want := samplePayload{Bid: 100, Ask: 101}

	data, err := EncodePayload(want)
	require.NoError(t, err)

	var got samplePayload
	require.NoError(t, DecodePayload(data, &got))
	assert.Equal(t, want, got)
}
