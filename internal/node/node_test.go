package node_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zeebo/bencode"

	"github.com/AtDexters-Lab/nexus-dht/internal/config"
	"github.com/AtDexters-Lab/nexus-dht/internal/contacts"
	"github.com/AtDexters-Lab/nexus-dht/internal/id"
	"github.com/AtDexters-Lab/nexus-dht/internal/krpc"
	"github.com/AtDexters-Lab/nexus-dht/internal/node"
	"github.com/AtDexters-Lab/nexus-dht/internal/peerstore"
	"github.com/AtDexters-Lab/nexus-dht/internal/token"
)

type sinkStub struct {
	events []node.Event
}

func (s *sinkStub) Publish(ev node.Event) {
	s.events = append(s.events, ev)
}

func newTestNode(t *testing.T) (*node.Node, *sinkStub) {
	t.Helper()
	cfg := &config.Config{ListenAddress: "127.0.0.1:0", AddressFamily: "ipv4"}

	selfID, err := id.GenerateNodeID()
	require.NoError(t, err)
	ps, err := peerstore.New(16, 8, time.Hour)
	require.NoError(t, err)
	tm, err := token.NewManager(5 * time.Minute)
	require.NoError(t, err)

	n := node.New(cfg, selfID, nil, contacts.NewSet(16), ps, tm)
	sink := &sinkStub{}
	n.SetEvents(sink)
	return n, sink
}

func fill(b byte) id.NodeID {
	var n id.NodeID
	for i := range n {
		n[i] = b
	}
	return n
}

func ask(t *testing.T, n *node.Node, from *net.UDPAddr, q krpc.Query) *krpc.Envelope {
	t.Helper()
	raw, err := krpc.EncodeQuery("aa", q)
	require.NoError(t, err)
	env, err := krpc.DecodeEnvelope(raw, 0)
	require.NoError(t, err)

	reply, err := n.HandleQuery(from, env)
	require.NoError(t, err)
	replyEnv, err := krpc.DecodeEnvelope(reply, 0)
	require.NoError(t, err)
	require.Equal(t, "aa", replyEnv.TransactionID)
	return replyEnv
}

func TestHandlePing(t *testing.T) {
	n, sink := newTestNode(t)
	from := &net.UDPAddr{IP: net.IP{203, 0, 113, 7}, Port: 6881}

	replyEnv := ask(t, n, from, krpc.PingQuery{ID: fill(1)})
	require.Equal(t, krpc.TypeResponse, replyEnv.Type)

	resp, err := krpc.DecodeResponse(replyEnv, krpc.MethodPing, krpc.FamilyIPv4)
	require.NoError(t, err)
	require.Equal(t, n.ID(), resp.(krpc.PingResponse).ID)

	require.Len(t, sink.events, 1)
	require.Equal(t, node.EventQueryServed, sink.events[0].Kind)
}

func TestHandleFindNodeReturnsObservedContacts(t *testing.T) {
	n, _ := newTestNode(t)

	// Two earlier queriers populate the contact set.
	ask(t, n, &net.UDPAddr{IP: net.IP{10, 0, 0, 1}, Port: 7001}, krpc.PingQuery{ID: fill(1)})
	ask(t, n, &net.UDPAddr{IP: net.IP{10, 0, 0, 2}, Port: 7002}, krpc.PingQuery{ID: fill(2)})

	replyEnv := ask(t, n, &net.UDPAddr{IP: net.IP{10, 0, 0, 3}, Port: 7003},
		krpc.FindNodeQuery{ID: fill(3), Target: fill(9)})
	resp, err := krpc.DecodeResponse(replyEnv, krpc.MethodFindNode, krpc.FamilyIPv4)
	require.NoError(t, err)

	found := resp.(krpc.FindNodeResponse)
	// The set holds the two earlier queriers plus the find_node sender.
	require.Len(t, found.Nodes, 3)
}

func TestGetPeersAnnounceCycle(t *testing.T) {
	n, sink := newTestNode(t)
	from := &net.UDPAddr{IP: net.IP{203, 0, 113, 7}, Port: 6881}
	infohash := id.InfoHash(fill(9))

	// No peers yet: token plus contacts.
	replyEnv := ask(t, n, from, krpc.GetPeersQuery{ID: fill(1), InfoHash: infohash})
	resp, err := krpc.DecodeResponse(replyEnv, krpc.MethodGetPeers, krpc.FamilyIPv4)
	require.NoError(t, err)
	gp := resp.(krpc.GetPeersResponse)
	require.NotEmpty(t, gp.Token)
	require.Empty(t, gp.Peers)

	// Announce with the issued token, implied_port set: the source port
	// wins over the advertised one.
	replyEnv = ask(t, n, from, krpc.AnnouncePeerQuery{
		ID:          fill(1),
		InfoHash:    infohash,
		Port:        9999,
		Token:       gp.Token,
		ImpliedPort: true,
	})
	require.Equal(t, krpc.TypeResponse, replyEnv.Type)

	// The announced peer now shows up for other queriers.
	other := &net.UDPAddr{IP: net.IP{203, 0, 113, 8}, Port: 6882}
	replyEnv = ask(t, n, other, krpc.GetPeersQuery{ID: fill(2), InfoHash: infohash})
	resp, err = krpc.DecodeResponse(replyEnv, krpc.MethodGetPeers, krpc.FamilyIPv4)
	require.NoError(t, err)
	gp = resp.(krpc.GetPeersResponse)
	require.Len(t, gp.Peers, 1)
	require.EqualValues(t, 6881, gp.Peers[0].Port)
	require.True(t, gp.Peers[0].IP.Equal(from.IP))

	var announced bool
	for _, ev := range sink.events {
		if ev.Kind == node.EventPeerAnnounced {
			announced = true
			require.Equal(t, infohash.String(), ev.InfoHash)
		}
	}
	require.True(t, announced)
}

func TestAnnounceWithBadToken(t *testing.T) {
	n, sink := newTestNode(t)
	from := &net.UDPAddr{IP: net.IP{203, 0, 113, 7}, Port: 6881}

	replyEnv := ask(t, n, from, krpc.AnnouncePeerQuery{
		ID:       fill(1),
		InfoHash: id.InfoHash(fill(9)),
		Port:     6881,
		Token:    []byte("forged"),
	})
	require.Equal(t, krpc.TypeError, replyEnv.Type)
	require.EqualValues(t, krpc.ErrorCodeProtocol, replyEnv.Error.Code)

	var rejected bool
	for _, ev := range sink.events {
		rejected = rejected || ev.Kind == node.EventTokenRejected
	}
	require.True(t, rejected)
}

// A token issued to one address must not authorize announces from another.
func TestAnnounceTokenBoundToAddress(t *testing.T) {
	n, _ := newTestNode(t)
	infohash := id.InfoHash(fill(9))

	alice := &net.UDPAddr{IP: net.IP{203, 0, 113, 7}, Port: 6881}
	replyEnv := ask(t, n, alice, krpc.GetPeersQuery{ID: fill(1), InfoHash: infohash})
	resp, err := krpc.DecodeResponse(replyEnv, krpc.MethodGetPeers, krpc.FamilyIPv4)
	require.NoError(t, err)
	tk := resp.(krpc.GetPeersResponse).Token

	mallory := &net.UDPAddr{IP: net.IP{203, 0, 113, 66}, Port: 6881}
	replyEnv = ask(t, n, mallory, krpc.AnnouncePeerQuery{
		ID: fill(2), InfoHash: infohash, Port: 6881, Token: tk,
	})
	require.Equal(t, krpc.TypeError, replyEnv.Type)
}

func TestMalformedQueryPayloadGetsProtocolError(t *testing.T) {
	n, _ := newTestNode(t)
	from := &net.UDPAddr{IP: net.IP{203, 0, 113, 7}, Port: 6881}

	raw, err := bencode.EncodeBytes(map[string]interface{}{
		"t": "aa", "y": "q", "q": "ping",
		"a": map[string]interface{}{"id": "short"},
	})
	require.NoError(t, err)
	env, err := krpc.DecodeEnvelope(raw, 0)
	require.NoError(t, err)

	reply, err := n.HandleQuery(from, env)
	require.NoError(t, err)
	replyEnv, err := krpc.DecodeEnvelope(reply, 0)
	require.NoError(t, err)
	require.Equal(t, krpc.TypeError, replyEnv.Type)
	require.EqualValues(t, krpc.ErrorCodeProtocol, replyEnv.Error.Code)
}
