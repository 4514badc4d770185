package enums

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRoundTripsDeclaredValues(t *testing.T) {
	for _, s := range orderStatuses {
		got, err := ParseOrderStatus(s.String())
		require.NoError(t, err)
		require.Equal(t, s, got)
	}
	for _, c := range currencies {
		got, err := ParseCurrency(string(c))
		require.NoError(t, err)
		require.Equal(t, c, got)
	}
}

func TestParseRejectsUnknownAndCaseMismatch(t *testing.T) {
	_, err := ParseOrderStatus("paid")
	require.EqualError(t, err, `invalid order status "paid"`)

	_, err = ParseCurrency("")
	require.Error(t, err)

	_, err = ParseOutboxEventType("order_shipped")
	require.ErrorContains(t, err, "event type")
}

func TestIsValid(t *testing.T) {
	require.True(t, RoleBuyer.IsValid())
	require.False(t, Role("root").IsValid())
	require.True(t, OutboxDLQReasonUnroutable.IsValid())
	require.False(t, OutboxDLQErrorReason("timeout").IsValid())
	require.True(t, LedgerHeld.IsValid())
	require.False(t, LedgerEntryState("PENDING").IsValid())
}

func TestOrderStatusIsTerminal(t *testing.T) {
	terminal := map[OrderStatus]bool{
		OrderStatusCompleted: true,
		OrderStatusCancelled: true,
		OrderStatusRefunded:  true,
	}
	for _, s := range orderStatuses {
		require.Equal(t, terminal[s], s.IsTerminal(), s.String())
	}
}
