package krpc

import (
	"fmt"

	"github.com/AtDexters-Lab/nexus-dht/internal/id"
)

// Query is the tagged union over the four method argument records.
type Query interface {
	Method() Method
}

// PingQuery asks a node to prove liveness.
type PingQuery struct {
	ID id.NodeID
}

// FindNodeQuery asks for contacts near a target identifier.
type FindNodeQuery struct {
	ID     id.NodeID
	Target id.NodeID
}

// GetPeersQuery asks for peers in a swarm, or contacts near its infohash.
type GetPeersQuery struct {
	ID       id.NodeID
	InfoHash id.InfoHash
}

// AnnouncePeerQuery registers the querying node as a peer for a swarm.
// Token must be a token previously issued by the queried node. When
// ImpliedPort is set the receiver uses the datagram's source port and
// ignores Port.
type AnnouncePeerQuery struct {
	ID          id.NodeID
	InfoHash    id.InfoHash
	Port        uint16
	Token       []byte
	ImpliedPort bool
}

func (PingQuery) Method() Method         { return MethodPing }
func (FindNodeQuery) Method() Method     { return MethodFindNode }
func (GetPeersQuery) Method() Method     { return MethodGetPeers }
func (AnnouncePeerQuery) Method() Method { return MethodAnnouncePeer }

// Response is the tagged union over the four method response records.
type Response interface {
	RespondsTo() Method
}

// PingResponse carries only the responder's identifier.
type PingResponse struct {
	ID id.NodeID
}

// FindNodeResponse carries contacts near the requested target. Nodes may
// be empty.
type FindNodeResponse struct {
	ID    id.NodeID
	Nodes []NodeContact
}

// GetPeersResponse carries a write token plus peers, contacts, both, or
// neither. Token, Nodes and Peers are all optional on the wire; absent
// keys decode as empty values.
type GetPeersResponse struct {
	ID    id.NodeID
	Token []byte
	Nodes []NodeContact
	Peers []PeerContact
}

// AnnouncePeerResponse carries only the responder's identifier.
type AnnouncePeerResponse struct {
	ID id.NodeID
}

func (PingResponse) RespondsTo() Method         { return MethodPing }
func (FindNodeResponse) RespondsTo() Method     { return MethodFindNode }
func (GetPeersResponse) RespondsTo() Method     { return MethodGetPeers }
func (AnnouncePeerResponse) RespondsTo() Method { return MethodAnnouncePeer }

// EncodeQuery serializes a typed query into a full KRPC message.
func EncodeQuery(tid string, q Query) ([]byte, error) {
	var args map[string]interface{}
	switch q := q.(type) {
	case PingQuery:
		args = map[string]interface{}{keyID: string(q.ID[:])}
	case FindNodeQuery:
		args = map[string]interface{}{
			keyID:     string(q.ID[:]),
			keyTarget: string(q.Target[:]),
		}
	case GetPeersQuery:
		args = map[string]interface{}{
			keyID:       string(q.ID[:]),
			keyInfoHash: string(q.InfoHash[:]),
		}
	case AnnouncePeerQuery:
		if len(q.Token) == 0 {
			return nil, fmt.Errorf("%w: announce_peer token must not be empty", ErrMissingField)
		}
		implied := int64(0)
		if q.ImpliedPort {
			implied = 1
		}
		args = map[string]interface{}{
			keyID:          string(q.ID[:]),
			keyInfoHash:    string(q.InfoHash[:]),
			keyPort:        int64(q.Port),
			keyToken:       string(q.Token),
			keyImpliedPort: implied,
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, q.Method())
	}
	return EncodeQueryEnvelope(tid, q.Method(), args)
}

// EncodeResponse serializes a typed response into a full KRPC message.
// fam selects the compact encoding width for contact lists; empty
// optional fields are omitted from the wire.
func EncodeResponse(tid string, r Response, fam Family) ([]byte, error) {
	var resp map[string]interface{}
	switch r := r.(type) {
	case PingResponse:
		resp = map[string]interface{}{keyID: string(r.ID[:])}
	case AnnouncePeerResponse:
		resp = map[string]interface{}{keyID: string(r.ID[:])}
	case FindNodeResponse:
		nodes, err := EncodeNodeContacts(r.Nodes, fam)
		if err != nil {
			return nil, err
		}
		resp = map[string]interface{}{
			keyID:    string(r.ID[:]),
			keyNodes: string(nodes),
		}
	case GetPeersResponse:
		resp = map[string]interface{}{keyID: string(r.ID[:])}
		if len(r.Token) > 0 {
			resp[keyToken] = string(r.Token)
		}
		if len(r.Nodes) > 0 {
			nodes, err := EncodeNodeContacts(r.Nodes, fam)
			if err != nil {
				return nil, err
			}
			resp[keyNodes] = string(nodes)
		}
		if len(r.Peers) > 0 {
			values := make([]interface{}, 0, len(r.Peers))
			for i, p := range r.Peers {
				rec, err := EncodePeerContact(p, fam)
				if err != nil {
					return nil, fmt.Errorf("peer %d: %w", i, err)
				}
				values = append(values, string(rec))
			}
			resp[keyValues] = values
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, r.RespondsTo())
	}
	return EncodeResponseEnvelope(tid, resp)
}

// DecodeQuery validates a query envelope's arguments against its method's
// shape and returns the typed record.
func DecodeQuery(env *Envelope, fam Family) (Query, error) {
	if env.Type != TypeQuery {
		return nil, fmt.Errorf("%w: envelope is %q, not a query", ErrUnknownType, env.Type)
	}
	nodeID, err := identifierField(env.Args, keyID)
	if err != nil {
		return nil, err
	}

	switch env.Method {
	case MethodPing:
		return PingQuery{ID: nodeID}, nil

	case MethodFindNode:
		target, err := identifierField(env.Args, keyTarget)
		if err != nil {
			return nil, err
		}
		return FindNodeQuery{ID: nodeID, Target: target}, nil

	case MethodGetPeers:
		hash, err := infoHashField(env.Args, keyInfoHash)
		if err != nil {
			return nil, err
		}
		return GetPeersQuery{ID: nodeID, InfoHash: hash}, nil

	case MethodAnnouncePeer:
		hash, err := infoHashField(env.Args, keyInfoHash)
		if err != nil {
			return nil, err
		}
		port, err := portField(env.Args, keyPort)
		if err != nil {
			return nil, err
		}
		token, err := stringField(env.Args, keyToken)
		if err != nil {
			return nil, err
		}
		implied, err := impliedPortField(env.Args)
		if err != nil {
			return nil, err
		}
		return AnnouncePeerQuery{
			ID:          nodeID,
			InfoHash:    hash,
			Port:        port,
			Token:       []byte(token),
			ImpliedPort: implied,
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, env.Method)
}

// DecodeResponse validates a response envelope against the shape of the
// method it answers. The expected method comes from the caller's
// transaction state, since response payloads do not name their method.
func DecodeResponse(env *Envelope, expected Method, fam Family) (Response, error) {
	if env.Type != TypeResponse {
		return nil, fmt.Errorf("%w: envelope is %q, not a response", ErrUnknownType, env.Type)
	}
	nodeID, err := identifierField(env.Response, keyID)
	if err != nil {
		return nil, err
	}

	switch expected {
	case MethodPing:
		return PingResponse{ID: nodeID}, nil

	case MethodAnnouncePeer:
		return AnnouncePeerResponse{ID: nodeID}, nil

	case MethodFindNode:
		nodes, err := nodesField(env.Response, fam)
		if err != nil {
			return nil, err
		}
		return FindNodeResponse{ID: nodeID, Nodes: nodes}, nil

	case MethodGetPeers:
		resp := GetPeersResponse{ID: nodeID}
		if token, ok, err := optionalStringField(env.Response, keyToken); err != nil {
			return nil, err
		} else if ok {
			resp.Token = []byte(token)
		}
		if _, ok := env.Response[keyNodes]; ok {
			nodes, err := nodesField(env.Response, fam)
			if err != nil {
				return nil, err
			}
			resp.Nodes = nodes
		}
		peers, err := valuesField(env.Response, fam)
		if err != nil {
			return nil, err
		}
		resp.Peers = peers
		return resp, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, expected)
}

func identifierField(m map[string]interface{}, key string) (id.NodeID, error) {
	var n id.NodeID
	s, err := stringField(m, key)
	if err != nil {
		return n, err
	}
	if len(s) != id.Size {
		return n, fmt.Errorf("%w: %q is %d bytes, want %d", ErrInvalidFieldLength, key, len(s), id.Size)
	}
	copy(n[:], s)
	return n, nil
}

func infoHashField(m map[string]interface{}, key string) (id.InfoHash, error) {
	var h id.InfoHash
	s, err := stringField(m, key)
	if err != nil {
		return h, err
	}
	if len(s) != id.Size {
		return h, fmt.Errorf("%w: %q is %d bytes, want %d", ErrInvalidFieldLength, key, len(s), id.Size)
	}
	copy(h[:], s)
	return h, nil
}

func portField(m map[string]interface{}, key string) (uint16, error) {
	raw, ok := m[key]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrMissingField, key)
	}
	n, ok := raw.(int64)
	if !ok {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrWrongFieldType, key)
	}
	if n < 0 || n > 65535 {
		return 0, fmt.Errorf("%w: %q value %d is out of range", ErrWrongFieldType, key, n)
	}
	return uint16(n), nil
}

// impliedPortField tolerates an absent key: BEP 5 marks implied_port as
// optional and most implementations omit it when zero.
func impliedPortField(m map[string]interface{}) (bool, error) {
	raw, ok := m[keyImpliedPort]
	if !ok {
		return false, nil
	}
	n, ok := raw.(int64)
	if !ok {
		return false, fmt.Errorf("%w: %q is not an integer", ErrWrongFieldType, keyImpliedPort)
	}
	if n != 0 && n != 1 {
		return false, fmt.Errorf("%w: %q must be 0 or 1, got %d", ErrWrongFieldType, keyImpliedPort, n)
	}
	return n == 1, nil
}

func optionalStringField(m map[string]interface{}, key string) (string, bool, error) {
	raw, ok := m[key]
	if !ok {
		return "", false, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", false, fmt.Errorf("%w: %q is not a string", ErrWrongFieldType, key)
	}
	return s, true, nil
}

func nodesField(m map[string]interface{}, fam Family) ([]NodeContact, error) {
	s, ok, err := optionalStringField(m, keyNodes)
	if err != nil || !ok {
		return nil, err
	}
	return DecodeNodeContacts([]byte(s), fam)
}

func valuesField(m map[string]interface{}, fam Family) ([]PeerContact, error) {
	raw, ok := m[keyValues]
	if !ok {
		return nil, nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a list", ErrWrongFieldType, keyValues)
	}
	peers := make([]PeerContact, 0, len(list))
	for i, elem := range list {
		s, ok := elem.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %q element %d is not a string", ErrWrongFieldType, keyValues, i)
		}
		p, err := DecodePeerContact([]byte(s), fam)
		if err != nil {
			return nil, fmt.Errorf("%q element %d: %w", keyValues, i, err)
		}
		peers = append(peers, p)
	}
	return peers, nil
}
