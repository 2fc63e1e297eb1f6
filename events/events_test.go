package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBusDeliversToSubscribersOfKind(t *testing.T) {
	b := NewBus()
	var got []Event
	b.Subscribe(ServerPromoted, func(e Event) { got = append(got, e) })
	b.Subscribe(ServerDemoted, func(e Event) { t.Fatal("should not fire for a different kind") })

	b.Publish(Event{Kind: ServerPromoted, GroupID: "g1", BackendID: "b1"})

	require.Len(t, got, 1)
	require.Equal(t, "g1", got[0].GroupID)
}

func TestBusMultipleSubscribersAllInvoked(t *testing.T) {
	b := NewBus()
	calls := 0
	b.Subscribe(Degraded, func(e Event) { calls++ })
	b.Subscribe(Degraded, func(e Event) { calls++ })

	b.Publish(Event{Kind: Degraded, ProcedureID: "p1"})

	require.Equal(t, 2, calls)
}
