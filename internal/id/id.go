package id

import (
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

// Size is the length in bytes of node identifiers and infohashes.
const Size = 20

// ErrInvalidLength is returned when raw bytes are not exactly Size long.
var ErrInvalidLength = errors.New("id: identifier must be exactly 20 bytes")

// NodeID is the identifier a node presents on the wire.
type NodeID [Size]byte

// InfoHash identifies a torrent swarm.
type InfoHash [Size]byte

// ParseNodeID copies raw bytes into a NodeID, rejecting wrong lengths.
func ParseNodeID(b []byte) (NodeID, error) {
	var n NodeID
	if len(b) != Size {
		return n, fmt.Errorf("%w: got %d", ErrInvalidLength, len(b))
	}
	copy(n[:], b)
	return n, nil
}

// NodeIDFromHex parses a 40-character hex string into a NodeID.
func NodeIDFromHex(s string) (NodeID, error) {
	var n NodeID
	b, err := hex.DecodeString(s)
	if err != nil {
		return n, fmt.Errorf("id: invalid hex identifier: %w", err)
	}
	return ParseNodeID(b)
}

// String returns the lower-case hex form.
func (n NodeID) String() string {
	return hex.EncodeToString(n[:])
}

// ParseInfoHash copies raw bytes into an InfoHash, rejecting wrong lengths.
func ParseInfoHash(b []byte) (InfoHash, error) {
	var h InfoHash
	if len(b) != Size {
		return h, fmt.Errorf("%w: got %d", ErrInvalidLength, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// InfoHashFromHex parses a 40-character hex string into an InfoHash.
func InfoHashFromHex(s string) (InfoHash, error) {
	var h InfoHash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("id: invalid hex infohash: %w", err)
	}
	return ParseInfoHash(b)
}

// String returns the lower-case hex form.
func (h InfoHash) String() string {
	return hex.EncodeToString(h[:])
}

// GenerateNodeID returns a cryptographically random node identifier.
func GenerateNodeID() (NodeID, error) {
	var n NodeID
	if _, err := crand.Read(n[:]); err != nil {
		return n, fmt.Errorf("id: failed to generate identifier: %w", err)
	}
	return n, nil
}
