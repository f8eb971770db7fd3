package contacts

import (
	"net"
	"testing"

	"github.com/AtDexters-Lab/nexus-dht/internal/id"
	"github.com/AtDexters-Lab/nexus-dht/internal/krpc"
	"github.com/stretchr/testify/require"
)

func contact(fill byte, port uint16) krpc.NodeContact {
	var n id.NodeID
	for i := range n {
		n[i] = fill
	}
	return krpc.NodeContact{ID: n, IP: net.IP{10, 0, 0, fill}, Port: port}
}

func TestObserveAndPick(t *testing.T) {
	s := NewSet(8)
	require.Zero(t, s.Len())
	require.Empty(t, s.Pick(4))

	s.Observe(contact(1, 6881))
	s.Observe(contact(2, 6882))
	s.Observe(contact(3, 6883))
	require.Equal(t, 3, s.Len())

	picked := s.Pick(8)
	require.Len(t, picked, 3)

	// Observing a known node refreshes it rather than duplicating it.
	s.Observe(contact(2, 7000))
	require.Equal(t, 3, s.Len())

	var found bool
	for _, c := range s.Pick(3) {
		if c.ID == contact(2, 0).ID {
			require.EqualValues(t, 7000, c.Port)
			found = true
		}
	}
	require.True(t, found)
}

func TestEvictionIsOldestFirst(t *testing.T) {
	s := NewSet(2)
	s.Observe(contact(1, 6881))
	s.Observe(contact(2, 6882))
	s.Observe(contact(3, 6883)) // evicts 1
	require.Equal(t, 2, s.Len())

	for _, c := range s.Pick(2) {
		require.NotEqual(t, contact(1, 0).ID, c.ID)
	}
}

func TestRemove(t *testing.T) {
	s := NewSet(4)
	s.Observe(contact(1, 6881))
	s.Observe(contact(2, 6882))

	s.Remove(contact(1, 0).ID)
	require.Equal(t, 1, s.Len())
	s.Remove(contact(1, 0).ID) // idempotent
	require.Equal(t, 1, s.Len())
}

func TestPickRotates(t *testing.T) {
	s := NewSet(4)
	s.Observe(contact(1, 6881))
	s.Observe(contact(2, 6882))

	first := s.Pick(1)[0]
	second := s.Pick(1)[0]
	require.NotEqual(t, first.ID, second.ID)
}
