// Package token issues and verifies the opaque write tokens handed out in
// get_peers responses and echoed back by announce_peer. A token is an
// HMAC over the requester's IP under a rotating secret; tokens from the
// current or the previous rotation window verify, so a peer has at least
// one full window to announce after a get_peers.
package token

import (
	"crypto/hmac"
	crand "crypto/rand"
	"crypto/sha1"
	"fmt"
	"net"
	"sync"
	"time"
)

const secretLen = 20

// Manager mints and checks announce tokens. Safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	interval time.Duration
	rotated  time.Time
	secret   [secretLen]byte
	previous [secretLen]byte

	now func() time.Time // overridable in tests
}

// NewManager creates a Manager rotating its secret every interval.
func NewManager(interval time.Duration) (*Manager, error) {
	m := &Manager{interval: interval, now: time.Now}
	if _, err := crand.Read(m.secret[:]); err != nil {
		return nil, fmt.Errorf("token: failed to generate secret: %w", err)
	}
	if _, err := crand.Read(m.previous[:]); err != nil {
		return nil, fmt.Errorf("token: failed to generate secret: %w", err)
	}
	m.rotated = m.now()
	return m, nil
}

func (m *Manager) maybeRotate() {
	if m.now().Sub(m.rotated) < m.interval {
		return
	}
	m.previous = m.secret
	crand.Read(m.secret[:])
	m.rotated = m.now()
}

func sign(secret []byte, ip net.IP) []byte {
	// Normalize so the 4-byte and 16-byte forms of the same v4 address
	// produce the same token.
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	mac := hmac.New(sha1.New, secret)
	mac.Write(ip)
	return mac.Sum(nil)
}

// Issue returns the token for the given requester address.
func (m *Manager) Issue(ip net.IP) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maybeRotate()
	return sign(m.secret[:], ip)
}

// Verify reports whether the token was issued to the given address within
// the last two rotation windows.
func (m *Manager) Verify(ip net.IP, token []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maybeRotate()
	if hmac.Equal(token, sign(m.secret[:], ip)) {
		return true
	}
	return hmac.Equal(token, sign(m.previous[:], ip))
}
