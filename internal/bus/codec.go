package bus

import (
	"github.com/vmihailenco/msgpack/v5"
)

// wireEnvelope is the msgpack wire shape of an Envelope. It excludes the
// unexported sequence number: sequence numbers are a property of one
// Bus's in-process backlog, not something a remote consumer should see.
type wireEnvelope struct {
	PayloadType string
	Payload     any
	Meta        Meta
}

// EncodeEnvelope serializes an envelope to msgpack bytes, the shape any
// future out-of-process transport for this bus would carry over the wire.
func EncodeEnvelope(env Envelope) ([]byte, error) {
	w := wireEnvelope{PayloadType: env.PayloadType, Payload: env.Payload, Meta: env.Meta}
	return msgpack.Marshal(w)
}

// DecodeEnvelope deserializes msgpack bytes produced by EncodeEnvelope.
// The decoded Payload comes back as a generic map, since msgpack does not
// carry Go type information across the wire; callers that need the
// concrete Tick/OrderBookSnapshot/Gap type must re-decode the payload
// field themselves once they know which PayloadType they received.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var w wireEnvelope
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return Envelope{}, err
	}
	return Envelope{PayloadType: w.PayloadType, Payload: w.Payload, Meta: w.Meta}, nil
}

// EncodePayload msgpack-encodes just the payload, for callers (PriceFeeds)
// that want to ship the normalized Tick/OrderBookSnapshot across a wire
// boundary without the bus's envelope framing.
func EncodePayload(payload any) ([]byte, error) {
	return msgpack.Marshal(payload)
}

// DecodePayload decodes bytes produced by EncodePayload into dst, which
// must be a pointer to the concrete payload type.
func DecodePayload(data []byte, dst any) error {
	return msgpack.Unmarshal(data, dst)
}
