// Package contacts maintains a bounded set of recently seen node
// contacts used to answer find_node and get_peers queries. It is a flat
// recency set, not a Kademlia routing table: no distance metric, no
// buckets.
package contacts

import (
	"sync"

	"github.com/AtDexters-Lab/nexus-dht/internal/id"
	"github.com/AtDexters-Lab/nexus-dht/internal/krpc"
)

// Set is a fixed-capacity recency set of node contacts. Safe for
// concurrent use.
type Set struct {
	mu       sync.Mutex
	capacity int
	order    []id.NodeID // oldest first
	byID     map[id.NodeID]krpc.NodeContact
	cursor   int
}

// NewSet creates a Set holding at most capacity contacts.
func NewSet(capacity int) *Set {
	if capacity <= 0 {
		capacity = 64
	}
	return &Set{
		capacity: capacity,
		byID:     make(map[id.NodeID]krpc.NodeContact, capacity),
	}
}

// Observe records a contact, refreshing it if already present. The
// oldest contact is evicted when the set is full.
func (s *Set) Observe(c krpc.NodeContact) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[c.ID]; ok {
		s.byID[c.ID] = c
		s.moveToBack(c.ID)
		return
	}

	if len(s.order) >= s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.byID, oldest)
	}
	s.order = append(s.order, c.ID)
	s.byID[c.ID] = c
}

// Remove drops a contact, e.g. after repeated query timeouts.
func (s *Set) Remove(nodeID id.NodeID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[nodeID]; !ok {
		return
	}
	delete(s.byID, nodeID)
	for i, existing := range s.order {
		if existing == nodeID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Pick returns up to k contacts, starting at a rotating offset so
// repeated queries spread over the whole set.
func (s *Set) Pick(k int) []krpc.NodeContact {
	s.mu.Lock()
	defer s.mu.Unlock()

	if k <= 0 || len(s.order) == 0 {
		return nil
	}
	if k > len(s.order) {
		k = len(s.order)
	}

	picked := make([]krpc.NodeContact, 0, k)
	start := s.cursor % len(s.order)
	s.cursor++
	for i := 0; i < k; i++ {
		nodeID := s.order[(start+i)%len(s.order)]
		picked = append(picked, s.byID[nodeID])
	}
	return picked
}

// Len reports the number of stored contacts.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

func (s *Set) moveToBack(nodeID id.NodeID) {
	for i, existing := range s.order {
		if existing == nodeID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			s.order = append(s.order, nodeID)
			return
		}
	}
}
