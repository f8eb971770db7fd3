// Package krpc implements the wire-level message codec for the mainline
// DHT query protocol: the three-key bencoded envelope, the compact
// node/peer contact encodings, and the per-method argument and response
// shapes. The codec is stateless; every function is safe for concurrent
// use. Bencode syntax itself is handled by github.com/zeebo/bencode.
package krpc

// DefaultMaxMessageBytes bounds a single datagram before decoding. It is
// deliberately below the common path MTU so oversized input is rejected,
// never truncated.
const DefaultMaxMessageBytes = 1400

// Top-level envelope keys.
const (
	keyTransactionID = "t"
	keyType          = "y"
	keyQueryName     = "q"
	keyArgs          = "a"
	keyResponse      = "r"
	keyError         = "e"
)

// Payload keys shared by the method shapes.
const (
	keyID          = "id"
	keyTarget      = "target"
	keyInfoHash    = "info_hash"
	keyPort        = "port"
	keyToken       = "token"
	keyImpliedPort = "implied_port"
	keyNodes       = "nodes"
	keyValues      = "values"
)

// MessageType is the value of the envelope's y key.
type MessageType string

const (
	TypeQuery    MessageType = "q"
	TypeResponse MessageType = "r"
	TypeError    MessageType = "e"
)

// Method names the four recognized query methods.
type Method string

const (
	MethodPing         Method = "ping"
	MethodFindNode     Method = "find_node"
	MethodGetPeers     Method = "get_peers"
	MethodAnnouncePeer Method = "announce_peer"
)

var knownMethods = map[Method]bool{
	MethodPing:         true,
	MethodFindNode:     true,
	MethodGetPeers:     true,
	MethodAnnouncePeer: true,
}

var knownTypes = map[MessageType]bool{
	TypeQuery:    true,
	TypeResponse: true,
	TypeError:    true,
}

// Well-known KRPC error codes, sent in error message payloads.
const (
	ErrorCodeGeneric       = 201
	ErrorCodeServer        = 202
	ErrorCodeProtocol      = 203
	ErrorCodeMethodUnknown = 204
)
