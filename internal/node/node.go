// Package node implements the query-answering side of the DHT: it wires
// the transport endpoint to the krpc codec, the contact set, the peer
// store and the token manager, and it bootstraps from configured
// contacts on startup.
package node

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/AtDexters-Lab/nexus-dht/internal/config"
	"github.com/AtDexters-Lab/nexus-dht/internal/contacts"
	"github.com/AtDexters-Lab/nexus-dht/internal/id"
	"github.com/AtDexters-Lab/nexus-dht/internal/krpc"
	"github.com/AtDexters-Lab/nexus-dht/internal/peerstore"
	"github.com/AtDexters-Lab/nexus-dht/internal/token"
)

// closestContacts is how many contacts a find_node or get_peers response
// carries, matching the conventional bucket size.
const closestContacts = 8

// Querier issues outbound queries; satisfied by *transport.Endpoint.
type Querier interface {
	Query(ctx context.Context, to *net.UDPAddr, build func(tid string) ([]byte, error)) (*krpc.Envelope, error)
}

// Node answers the four DHT query methods.
type Node struct {
	cfg      *config.Config
	selfID   id.NodeID
	fam      krpc.Family
	querier  Querier
	contacts *contacts.Set
	peers    *peerstore.Store
	tokens   *token.Manager
	events   EventSink
}

// New assembles a Node from its collaborators. events may be nil.
func New(cfg *config.Config, selfID id.NodeID, querier Querier, cs *contacts.Set, ps *peerstore.Store, tm *token.Manager) *Node {
	return &Node{
		cfg:      cfg,
		selfID:   selfID,
		fam:      cfg.Family(),
		querier:  querier,
		contacts: cs,
		peers:    ps,
		tokens:   tm,
	}
}

// SetEvents attaches an event sink. Must be called before the endpoint
// starts delivering queries.
func (n *Node) SetEvents(sink EventSink) {
	n.events = sink
}

// ID returns the node's own identifier.
func (n *Node) ID() id.NodeID {
	return n.selfID
}

func (n *Node) publish(ev Event) {
	if n.events == nil {
		return
	}
	ev.Time = time.Now()
	n.events.Publish(ev)
}

// HandleQuery implements transport.Handler. Decode failures of the
// method shape are answered with a KRPC protocol error rather than
// silence, so well-meaning but buggy peers get a diagnostic.
func (n *Node) HandleQuery(from *net.UDPAddr, env *krpc.Envelope) ([]byte, error) {
	q, err := krpc.DecodeQuery(env, n.fam)
	if err != nil {
		log.Debug().Str("component", "node").Stringer("from", from).Err(err).Msg("malformed query payload")
		return krpc.EncodeError(env.TransactionID, krpc.ErrorCodeProtocol, "Protocol Error")
	}

	n.observeQuerier(q, from)

	var resp krpc.Response
	switch q := q.(type) {
	case krpc.PingQuery:
		resp = krpc.PingResponse{ID: n.selfID}

	case krpc.FindNodeQuery:
		resp = krpc.FindNodeResponse{ID: n.selfID, Nodes: n.contacts.Pick(closestContacts)}

	case krpc.GetPeersQuery:
		r := krpc.GetPeersResponse{ID: n.selfID, Token: n.tokens.Issue(from.IP)}
		if peers := n.peers.Peers(q.InfoHash); len(peers) > 0 {
			r.Peers = peers
		} else {
			r.Nodes = n.contacts.Pick(closestContacts)
		}
		resp = r

	case krpc.AnnouncePeerQuery:
		if !n.tokens.Verify(from.IP, q.Token) {
			n.publish(Event{Kind: EventTokenRejected, From: from.String(), InfoHash: q.InfoHash.String()})
			return krpc.EncodeError(env.TransactionID, krpc.ErrorCodeProtocol, "Bad token")
		}
		port := q.Port
		if q.ImpliedPort {
			port = uint16(from.Port)
		}
		n.peers.Announce(q.InfoHash, krpc.PeerContact{IP: from.IP, Port: port})
		n.publish(Event{Kind: EventPeerAnnounced, From: from.String(), InfoHash: q.InfoHash.String()})
		resp = krpc.AnnouncePeerResponse{ID: n.selfID}

	default:
		return krpc.EncodeError(env.TransactionID, krpc.ErrorCodeMethodUnknown, "Method Unknown")
	}

	n.publish(Event{Kind: EventQueryServed, Method: string(env.Method), From: from.String()})
	return krpc.EncodeResponse(env.TransactionID, resp, n.fam)
}

// observeQuerier folds the querying node into the contact set. Every
// query argument record carries the querying node's identifier.
func (n *Node) observeQuerier(q krpc.Query, from *net.UDPAddr) {
	var nodeID id.NodeID
	switch q := q.(type) {
	case krpc.PingQuery:
		nodeID = q.ID
	case krpc.FindNodeQuery:
		nodeID = q.ID
	case krpc.GetPeersQuery:
		nodeID = q.ID
	case krpc.AnnouncePeerQuery:
		nodeID = q.ID
	default:
		return
	}
	n.contacts.Observe(krpc.NodeContact{ID: nodeID, IP: from.IP, Port: uint16(from.Port)})
}

// Bootstrap seeds the contact set by asking each configured bootstrap
// node for contacts near our own identifier. Failures are logged and
// skipped; an empty contact set just means we answer with what we have.
func (n *Node) Bootstrap(ctx context.Context) {
	for _, addr := range n.cfg.BootstrapNodes {
		if err := n.bootstrapFrom(ctx, addr); err != nil {
			log.Warn().Str("component", "node").Str("bootstrap", addr).Err(err).Msg("bootstrap contact failed")
			continue
		}
		n.publish(Event{Kind: EventBootstrapped, From: addr})
	}
	log.Info().Str("component", "node").Int("contacts", n.contacts.Len()).Msg("bootstrap finished")
}

func (n *Node) bootstrapFrom(ctx context.Context, addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", addr, err)
	}

	env, err := n.querier.Query(ctx, udpAddr, func(tid string) ([]byte, error) {
		return krpc.EncodeQuery(tid, krpc.FindNodeQuery{ID: n.selfID, Target: n.selfID})
	})
	if err != nil {
		return err
	}
	if env.Type == krpc.TypeError {
		return fmt.Errorf("bootstrap node answered with error %d: %s", env.Error.Code, env.Error.Message)
	}

	resp, err := krpc.DecodeResponse(env, krpc.MethodFindNode, n.fam)
	if err != nil {
		return err
	}
	found := resp.(krpc.FindNodeResponse)
	n.contacts.Observe(krpc.NodeContact{ID: found.ID, IP: udpAddr.IP, Port: uint16(udpAddr.Port)})
	for _, c := range found.Nodes {
		n.contacts.Observe(c)
	}
	return nil
}
