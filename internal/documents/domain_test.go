package documents

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryCoversAllKinds(t *testing.T) {
	require.Len(t, Kinds(), 7)
	for _, kind := range Kinds() {
		def, err := Lookup(kind)
		require.NoError(t, err)
		require.NotEmpty(t, def.Prefix)
		require.NotEmpty(t, def.HeaderTable)
		require.NotEmpty(t, def.InitialStatus)
	}
}

func TestInvoiceTransitions(t *testing.T) {
	def, err := Lookup(KindInvoice)
	require.NoError(t, err)

	require.True(t, def.CanTransition(StatusDraft, StatusPending))
	require.True(t, def.CanTransition(StatusPending, StatusPaid))
	require.True(t, def.CanTransition(StatusPending, StatusOverdue))
	require.True(t, def.CanTransition(StatusOverdue, StatusPaid))

	require.False(t, def.CanTransition(StatusDraft, StatusPaid))
	require.False(t, def.CanTransition(StatusPaid, StatusPending))
	require.True(t, def.IsTerminal(StatusPaid))
	require.True(t, def.IsTerminal(StatusCancelled))
}

func TestDeliveryNoteTransitions(t *testing.T) {
	def, err := Lookup(KindDeliveryNote)
	require.NoError(t, err)
	require.True(t, def.StockMoving)
	require.Equal(t, StatusPending, def.InitialStatus)
	require.True(t, def.CanTransition(StatusPending, StatusInTransit))
	require.True(t, def.CanTransition(StatusInTransit, StatusDelivered))
	require.False(t, def.CanTransition(StatusDelivered, StatusPending))
}

func TestDiversSharesDeliveryNoteTable(t *testing.T) {
	dn, err := Lookup(KindDeliveryNote)
	require.NoError(t, err)
	div, err := Lookup(KindDivers)
	require.NoError(t, err)

	require.Equal(t, dn.HeaderTable, div.HeaderTable)
	require.NotEqual(t, dn.Discriminator, div.Discriminator)
	require.NotEqual(t, dn.Prefix, div.Prefix)
}

func TestLookupUnknownKind(t *testing.T) {
	_, err := Lookup(Kind("memo"))
	require.ErrorIs(t, err, ErrUnknownKind)
}
