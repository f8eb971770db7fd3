// Package peerstore stores peers announced for infohashes. Swarm lists
// are bounded per infohash and the set of tracked infohashes is bounded
// by an LRU, so a flood of announces for unique infohashes evicts old
// swarms instead of growing memory without limit.
package peerstore

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/AtDexters-Lab/nexus-dht/internal/id"
	"github.com/AtDexters-Lab/nexus-dht/internal/krpc"
)

// Store tracks announced peers per infohash. Safe for concurrent use.
type Store struct {
	swarms  *lru.Cache[id.InfoHash, *swarm]
	perKey  int
	ttl     time.Duration
	nowFunc func() time.Time // overridable in tests
}

type swarm struct {
	mu      sync.Mutex
	entries []entry
}

type entry struct {
	peer krpc.PeerContact
	seen time.Time
}

// New creates a Store tracking at most capacity infohashes with at most
// perKey peers each; peers expire after ttl.
func New(capacity, perKey int, ttl time.Duration) (*Store, error) {
	swarms, err := lru.New[id.InfoHash, *swarm](capacity)
	if err != nil {
		return nil, fmt.Errorf("peerstore: %w", err)
	}
	return &Store{
		swarms:  swarms,
		perKey:  perKey,
		ttl:     ttl,
		nowFunc: time.Now,
	}, nil
}

// Announce records a peer for an infohash, refreshing it if already
// listed. The oldest peer is dropped when the swarm list is full.
func (s *Store) Announce(h id.InfoHash, p krpc.PeerContact) {
	fresh := &swarm{}
	sw, ok, _ := s.swarms.PeekOrAdd(h, fresh)
	if !ok {
		sw = fresh
	}
	now := s.nowFunc()

	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.prune(now, s.ttl)

	for i := range sw.entries {
		if sw.entries[i].peer.Port == p.Port && sw.entries[i].peer.IP.Equal(p.IP) {
			sw.entries[i].seen = now
			return
		}
	}
	if len(sw.entries) >= s.perKey {
		sw.entries = sw.entries[1:]
	}
	sw.entries = append(sw.entries, entry{peer: p, seen: now})
	s.swarms.Get(h) // mark as recently used
}

// Peers returns the live peers announced for an infohash.
func (s *Store) Peers(h id.InfoHash) []krpc.PeerContact {
	sw, ok := s.swarms.Get(h)
	if !ok {
		return nil
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.prune(s.nowFunc(), s.ttl)

	peers := make([]krpc.PeerContact, 0, len(sw.entries))
	for _, e := range sw.entries {
		peers = append(peers, e.peer)
	}
	return peers
}

// Swarms reports the number of tracked infohashes.
func (s *Store) Swarms() int {
	return s.swarms.Len()
}

// prune drops entries older than ttl. Caller holds the swarm lock.
func (sw *swarm) prune(now time.Time, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	live := sw.entries[:0]
	for _, e := range sw.entries {
		if now.Sub(e.seen) < ttl {
			live = append(live, e)
		}
	}
	sw.entries = live
}
