package quote

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stablesats/dealer/internal/money"
	"github.com/stretchr/testify/require"
)

func newTestQuote(t *testing.T, expired bool) *Quote {
	t.Helper()
	expiresAt := time.Now().Add(2 * time.Minute)
	if expired {
		expiresAt = time.Now().Add(-2 * time.Minute)
	}
	return NewQuote(uuid.New(), NewQuoteParams{
		Direction:  BuyCents,
		SatAmount:  money.SatsFromInt64(100),
		CentAmount: money.UsdCentsFromInt64(10),
		CentSpread: money.UsdCentsFromInt64(1),
		SatSpread:  money.SatsFromInt64(10),
		ExpiresAt:  expiresAt,
	})
}

func TestAcceptQuote(t *testing.T) {
	q := newTestQuote(t, false)
	require.NoError(t, q.Accept(time.Now()))
	require.True(t, q.IsAccepted())
}

func TestCanOnlyAcceptQuoteOnce(t *testing.T) {
	q := newTestQuote(t, false)
	require.NoError(t, q.Accept(time.Now()))
	require.ErrorIs(t, q.Accept(time.Now()), ErrAlreadyAccepted)
}

func TestCannotAcceptExpiredQuote(t *testing.T) {
	q := newTestQuote(t, true)
	require.ErrorIs(t, q.Accept(time.Now()), ErrExpired)
}

func TestAlreadyAcceptedTakesPrecedenceOverExpiry(t *testing.T) {
	q := newTestQuote(t, false)
	require.NoError(t, q.Accept(time.Now()))
	// Once accepted, a later call always reports AlreadyAccepted rather
	// than re-evaluating expiry against the now-later clock.
	require.ErrorIs(t, q.Accept(time.Now().Add(time.Hour)), ErrAlreadyAccepted)
}

func TestQuoteFromEventsRoundTrips(t *testing.T) {
	q := newTestQuote(t, false)
	rows, err := q.pendingEventsJSON()
	require.NoError(t, err)

	folded, err := quoteFromEvents(q.ID, rows)
	require.NoError(t, err)
	require.Equal(t, q.Direction, folded.Direction)
	require.Equal(t, q.SatAmount.Int64(), folded.SatAmount.Int64())
	require.Equal(t, q.CentAmount.Int64(), folded.CentAmount.Int64())
	require.False(t, folded.IsAccepted())
}
