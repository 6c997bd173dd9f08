package realtime

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func mustChange(t *testing.T, table string, eventType EventType, record map[string]any) Change {
	t.Helper()
	change, err := NewChange("public", table, eventType, record, nil)
	require.NoError(t, err)
	return change
}

func TestHubDeliversMatchingChangesOnce(t *testing.T) {
	hub := NewHub(8, zerolog.Nop())
	defer hub.Close()

	// Two bindings that both match must still deliver once.
	sub, err := hub.Subscribe("both",
		Binding{Event: EventInsert, Table: "commitments", Filter: "addressee_id=eq.u1"},
		Binding{Event: EventAny, Table: "commitments"},
	)
	require.NoError(t, err)
	other, err := hub.Subscribe("reviews", Binding{Event: EventInsert, Table: "reviews"})
	require.NoError(t, err)

	delivered := hub.Publish(mustChange(t, "commitments", EventInsert, map[string]any{"addressee_id": "u1"}))
	require.Equal(t, 1, delivered)

	require.Len(t, sub.C, 1)
	require.Len(t, other.C, 0)
}

func TestHubPreservesPublishOrder(t *testing.T) {
	hub := NewHub(16, zerolog.Nop())
	defer hub.Close()

	sub, err := hub.Subscribe("ordered", Binding{Table: "messages"})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		hub.Publish(mustChange(t, "messages", EventInsert, map[string]any{"id": fmt.Sprint(i)}))
	}

	for i := 0; i < 10; i++ {
		change := <-sub.C
		value, _ := change.Value("id")
		require.Equal(t, fmt.Sprint(i), value)
	}
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(2, zerolog.Nop())
	defer hub.Close()

	slow, err := hub.Subscribe("slow", Binding{Table: "messages"})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		hub.Publish(mustChange(t, "messages", EventInsert, map[string]any{"id": fmt.Sprint(i)}))
	}

	require.Len(t, slow.C, 2)
	require.Equal(t, int64(3), slow.Dropped())

	first := <-slow.C
	value, _ := first.Value("id")
	require.Equal(t, "0", value)
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub(2, zerolog.Nop())
	defer hub.Close()

	sub, err := hub.Subscribe("gone", Binding{Table: "messages"})
	require.NoError(t, err)
	require.Equal(t, 1, hub.Len())

	hub.Unsubscribe(sub)
	hub.Unsubscribe(sub)

	_, ok := <-sub.C
	require.False(t, ok)
	require.Equal(t, 0, hub.Len())
	require.Equal(t, 0, hub.Publish(mustChange(t, "messages", EventInsert, nil)))
}

func TestHubCloseClosesAll(t *testing.T) {
	hub := NewHub(2, zerolog.Nop())

	a, err := hub.Subscribe("a", Binding{Table: "messages"})
	require.NoError(t, err)
	b, err := hub.Subscribe("b", Binding{Table: "reviews"})
	require.NoError(t, err)

	hub.Close()

	_, ok := <-a.C
	require.False(t, ok)
	_, ok = <-b.C
	require.False(t, ok)

	late, err := hub.Subscribe("late", Binding{Table: "messages"})
	require.NoError(t, err)
	_, ok = <-late.C
	require.False(t, ok)

	// Unsubscribing after close must not double-close.
	hub.Unsubscribe(a)
}

func TestHubSubscribeRejectsBadFilter(t *testing.T) {
	hub := NewHub(2, zerolog.Nop())
	defer hub.Close()

	_, err := hub.Subscribe("bad", Binding{Table: "messages", Filter: "commitment_id=like.x"})
	require.ErrorIs(t, err, ErrInvalidFilter)
	require.Equal(t, 0, hub.Len())
}
