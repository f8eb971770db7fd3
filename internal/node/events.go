package node

import "time"

// EventKind labels a node event for admin feed consumers.
type EventKind string

const (
	// EventQueryServed is published after a query got a response.
	EventQueryServed EventKind = "query_served"
	// EventPeerAnnounced is published when an announce_peer is accepted.
	EventPeerAnnounced EventKind = "peer_announced"
	// EventTokenRejected is published when an announce_peer carries a
	// token that does not verify.
	EventTokenRejected EventKind = "token_rejected"
	// EventBootstrapped is published after a bootstrap contact answered.
	EventBootstrapped EventKind = "bootstrapped"
)

// Event is a single observable node occurrence.
type Event struct {
	Kind     EventKind `json:"kind"`
	Method   string    `json:"method,omitempty"`
	From     string    `json:"from,omitempty"`
	InfoHash string    `json:"infoHash,omitempty"`
	Time     time.Time `json:"time"`
}

// EventSink receives node events. Publish must not block.
type EventSink interface {
	Publish(Event)
}
