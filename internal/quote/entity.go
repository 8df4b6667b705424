// Package quote implements the event-sourced Quote entity and the
// QuoteService that prices, persists and accepts quotes, fused across the
// exchange providers registered with a pricemixer.Mixer.
package quote

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/stablesats/dealer/internal/money"
)

// Direction distinguishes which leg of a quote is expressed in USD cents:
// BuyCents means the client pays sats and receives cents; SellCents means
// the client pays cents and receives sats.
type Direction string

const (
	BuyCents  Direction = "buy_cents"
	SellCents Direction = "sell_cents"
)

// ErrAlreadyAccepted is returned by Accept when the quote has already been
// accepted once. Quotes are accepted at most once regardless of how many
// times Accept is called (property 5).
var ErrAlreadyAccepted = errors.New("quote: already accepted")

// ErrExpired is returned by Accept when the quote's expiry has been
// reached. A quote at or past its expiry can never transition to
// accepted, even on a first attempt (property 6).
var ErrExpired = errors.New("quote: expired")

// ErrNotFound is returned when a quote id does not resolve to any events.
var ErrNotFound = errors.New("quote: not found")

// initializedEvent is the event payload that seeds a Quote's materialized
// fields. It is the only event type permitted to appear first in a
// quote's event log.
type initializedEvent struct {
	Direction          Direction `json:"direction"`
	ImmediateExecution bool      `json:"immediate_execution"`
	SatAmount          string    `json:"sat_amount"`
	CentAmount         string    `json:"cent_amount"`
	CentSpread         string    `json:"cent_spread"`
	SatSpread          string    `json:"sat_spread"`
	ExpiresAt          time.Time `json:"expires_at"`
}

// acceptedEvent carries no data; its presence in the log is the fact being
// recorded.
type acceptedEvent struct{}

// eventType tags which variant a stored event row holds.
type eventType string

const (
	eventInitialized eventType = "initialized"
	eventAccepted    eventType = "accepted"
)

// storedEvent is the on-disk shape of one row of a quote's event log.
type storedEvent struct {
	Type        eventType        `json:"type"`
	Initialized *initializedEvent `json:"initialized,omitempty"`
	Accepted    *acceptedEvent    `json:"accepted,omitempty"`
}

// Quote is the materialized, event-sourced projection of one pricing
// request: an append-only log of events folded into the fields a caller
// actually needs.
type Quote struct {
	ID                 uuid.UUID
	Direction          Direction
	SatAmount          money.Sats
	CentAmount         money.UsdCents
	CentSpread         money.UsdCents
	SatSpread          money.Sats
	ImmediateExecution bool
	ExpiresAt          time.Time

	events []storedEvent
}

// NewQuoteParams carries the fields a freshly priced quote is seeded with.
type NewQuoteParams struct {
	Direction          Direction
	ImmediateExecution bool
	SatAmount          money.Sats
	CentAmount         money.UsdCents
	CentSpread         money.UsdCents
	SatSpread          money.Sats
	ExpiresAt          time.Time
}

// NewQuote constructs a fresh Quote with a single Initialized event.
func NewQuote(id uuid.UUID, p NewQuoteParams) *Quote {
	q := &Quote{
		ID:                 id,
		Direction:          p.Direction,
		SatAmount:          p.SatAmount,
		CentAmount:         p.CentAmount,
		CentSpread:         p.CentSpread,
		SatSpread:          p.SatSpread,
		ImmediateExecution: p.ImmediateExecution,
		ExpiresAt:          p.ExpiresAt,
	}
	q.events = []storedEvent{{
		Type: eventInitialized,
		Initialized: &initializedEvent{
			Direction:          p.Direction,
			ImmediateExecution: p.ImmediateExecution,
			SatAmount:          p.SatAmount.Decimal().String(),
			CentAmount:         p.CentAmount.Decimal().String(),
			CentSpread:         p.CentSpread.Decimal().String(),
			SatSpread:          p.SatSpread.Decimal().String(),
			ExpiresAt:          p.ExpiresAt,
		},
	}}
	return q
}

// IsAccepted reports whether an Accepted event is present anywhere in the
// log.
func (q *Quote) IsAccepted() bool {
	for _, e := range q.events {
		if e.Type == eventAccepted {
			return true
		}
	}
	return false
}

// isExpired reports whether now has reached the quote's expiry.
func (q *Quote) isExpired(now time.Time) bool {
	return !now.Before(q.ExpiresAt)
}

// Accept transitions the quote to accepted, appending an Accepted event.
// Already-accepted takes precedence over expired: a quote accepted before
// its expiry stays accepted forever, but a first acceptance attempt after
// expiry always fails.
func (q *Quote) Accept(now time.Time) error {
	if q.IsAccepted() {
		return ErrAlreadyAccepted
	}
	if q.isExpired(now) {
		return ErrExpired
	}
	q.events = append(q.events, storedEvent{Type: eventAccepted, Accepted: &acceptedEvent{}})
	return nil
}

// pendingEventsJSON marshals the quote's event log to JSON rows, one per event, for
// persistence as an append-only table.
func (q *Quote) pendingEventsJSON() ([][]byte, error) {
	out := make([][]byte, 0, len(q.events))
	for _, e := range q.events {
		b, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// quoteFromEvents folds a stored event log back into a materialized Quote,
// mirroring the original TryFrom<EntityEvents<QuoteEvent>> pattern: every
// Initialized event seeds the fields, every other event is folded as a
// state transition.
func quoteFromEvents(id uuid.UUID, rows [][]byte) (*Quote, error) {
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	q := &Quote{ID: id}
	for _, row := range rows {
		var e storedEvent
		if err := json.Unmarshal(row, &e); err != nil {
			return nil, err
		}
		switch e.Type {
		case eventInitialized:
			init := e.Initialized
			satAmount, err := money.SatsFromString(init.SatAmount)
			if err != nil {
				return nil, err
			}
			centAmount, err := money.UsdCentsFromString(init.CentAmount)
			if err != nil {
				return nil, err
			}
			centSpread, err := money.UsdCentsFromString(init.CentSpread)
			if err != nil {
				return nil, err
			}
			satSpread, err := money.SatsFromString(init.SatSpread)
			if err != nil {
				return nil, err
			}
			q.Direction = init.Direction
			q.ImmediateExecution = init.ImmediateExecution
			q.SatAmount = satAmount
			q.CentAmount = centAmount
			q.CentSpread = centSpread
			q.SatSpread = satSpread
			q.ExpiresAt = init.ExpiresAt
		}
		q.events = append(q.events, e)
	}
	return q, nil
}
