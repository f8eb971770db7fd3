package token

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	m, err := NewManager(5 * time.Minute)
	require.NoError(t, err)

	ip := net.IP{203, 0, 113, 9}
	tk := m.Issue(ip)
	require.NotEmpty(t, tk)
	require.True(t, m.Verify(ip, tk))

	// A token is bound to the address it was issued for.
	require.False(t, m.Verify(net.IP{203, 0, 113, 10}, tk))
	require.False(t, m.Verify(ip, []byte("forged")))
}

func TestVerifyNormalizesAddressForm(t *testing.T) {
	m, err := NewManager(5 * time.Minute)
	require.NoError(t, err)

	tk := m.Issue(net.IP{203, 0, 113, 9})
	require.True(t, m.Verify(net.ParseIP("203.0.113.9"), tk))
}

func TestRotationWindows(t *testing.T) {
	m, err := NewManager(5 * time.Minute)
	require.NoError(t, err)

	base := time.Now()
	m.now = func() time.Time { return base }
	m.rotated = base

	ip := net.IP{203, 0, 113, 9}
	tk := m.Issue(ip)

	// One rotation later the token still verifies via the previous secret.
	m.now = func() time.Time { return base.Add(6 * time.Minute) }
	require.True(t, m.Verify(ip, tk))

	// Two rotations later it is gone.
	m.now = func() time.Time { return base.Add(12 * time.Minute) }
	require.False(t, m.Verify(ip, tk))
}
