package krpc

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/AtDexters-Lab/nexus-dht/internal/id"
)

// Family selects the address family for compact contact records. The wire
// format does not self-describe family, so callers must choose it from
// transport context (the socket the datagram arrived on) and apply it to
// a whole blob, never per record.
type Family int

const (
	FamilyIPv4 Family = iota
	FamilyIPv6
)

func (f Family) addrLen() int {
	if f == FamilyIPv6 {
		return net.IPv6len
	}
	return net.IPv4len
}

// NodeContactLen is the fixed per-record width for compact node info:
// 26 bytes for IPv4, 38 for IPv6.
func (f Family) NodeContactLen() int {
	return id.Size + f.addrLen() + 2
}

// PeerContactLen is the fixed per-record width for compact peer info:
// 6 bytes for IPv4, 18 for IPv6.
func (f Family) PeerContactLen() int {
	return f.addrLen() + 2
}

func (f Family) String() string {
	if f == FamilyIPv6 {
		return "ipv6"
	}
	return "ipv4"
}

// NodeContact is a routable node: identifier, address and port.
type NodeContact struct {
	ID   id.NodeID
	IP   net.IP
	Port uint16
}

// UDPAddr returns the contact's address as a net.UDPAddr.
func (c NodeContact) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: c.IP, Port: int(c.Port)}
}

// PeerContact is a peer address with no identifier.
type PeerContact struct {
	IP   net.IP
	Port uint16
}

func addrBytes(ip net.IP, fam Family) ([]byte, error) {
	var b []byte
	if fam == FamilyIPv6 {
		if ip.To4() == nil {
			b = ip.To16()
		}
	} else {
		b = ip.To4()
	}
	if b == nil {
		return nil, fmt.Errorf("%w: address %s is not %s", ErrWrongFieldType, ip, fam)
	}
	return b, nil
}

// EncodeNodeContact packs a single node record: identifier, address in
// network byte order, then the port as a big-endian 16-bit integer.
// nodeID must be exactly 20 bytes; it is never truncated or padded.
func EncodeNodeContact(nodeID []byte, ip net.IP, port uint16, fam Family) ([]byte, error) {
	if len(nodeID) != id.Size {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidIdentifierLength, len(nodeID))
	}
	addr, err := addrBytes(ip, fam)
	if err != nil {
		return nil, err
	}
	out := make([]byte, fam.NodeContactLen())
	copy(out, nodeID)
	copy(out[id.Size:], addr)
	binary.BigEndian.PutUint16(out[id.Size+len(addr):], port)
	return out, nil
}

// EncodeNodeContacts concatenates the fixed-width encodings of all
// contacts into one blob, writing each record at its computed offset in a
// pre-sized buffer.
func EncodeNodeContacts(contacts []NodeContact, fam Family) ([]byte, error) {
	stride := fam.NodeContactLen()
	out := make([]byte, len(contacts)*stride)
	for i, c := range contacts {
		addr, err := addrBytes(c.IP, fam)
		if err != nil {
			return nil, fmt.Errorf("contact %d: %w", i, err)
		}
		off := i * stride
		copy(out[off:], c.ID[:])
		copy(out[off+id.Size:], addr)
		binary.BigEndian.PutUint16(out[off+id.Size+len(addr):], c.Port)
	}
	return out, nil
}

// DecodeNodeContacts splits a compact blob into node contacts. The input
// length must be an exact multiple of the per-contact width; output order
// equals byte order of the input, since senders may order contacts by
// distance.
func DecodeNodeContacts(b []byte, fam Family) ([]NodeContact, error) {
	stride := fam.NodeContactLen()
	if len(b)%stride != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrTruncatedCompactData, len(b), stride)
	}
	contacts := make([]NodeContact, 0, len(b)/stride)
	for off := 0; off < len(b); off += stride {
		rec := b[off : off+stride]
		var c NodeContact
		copy(c.ID[:], rec[:id.Size])
		c.IP = cloneIP(rec[id.Size : stride-2])
		c.Port = binary.BigEndian.Uint16(rec[stride-2:])
		contacts = append(contacts, c)
	}
	return contacts, nil
}

// EncodePeerContact packs a single peer record: address bytes then
// big-endian port.
func EncodePeerContact(p PeerContact, fam Family) ([]byte, error) {
	addr, err := addrBytes(p.IP, fam)
	if err != nil {
		return nil, err
	}
	out := make([]byte, fam.PeerContactLen())
	copy(out, addr)
	binary.BigEndian.PutUint16(out[len(addr):], p.Port)
	return out, nil
}

// DecodePeerContact unpacks a single fixed-width peer record. Unlike node
// contacts, peers arrive one record per list element, so the input must
// be exactly one record wide.
func DecodePeerContact(b []byte, fam Family) (PeerContact, error) {
	width := fam.PeerContactLen()
	if len(b) != width {
		return PeerContact{}, fmt.Errorf("%w: peer record is %d bytes, want %d", ErrTruncatedCompactData, len(b), width)
	}
	return PeerContact{
		IP:   cloneIP(b[:width-2]),
		Port: binary.BigEndian.Uint16(b[width-2:]),
	}, nil
}

// cloneIP copies address bytes out of a decode buffer so contacts do not
// alias the original datagram.
func cloneIP(b []byte) net.IP {
	ip := make(net.IP, len(b))
	copy(ip, b)
	return ip
}
