package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/AtDexters-Lab/nexus-dht/internal/config"
	"github.com/AtDexters-Lab/nexus-dht/internal/krpc"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := config.LoadConfig(writeConfig(t, "listenAddress: 0.0.0.0:6881\n"))
	require.NoError(t, err)

	require.Equal(t, krpc.FamilyIPv4, cfg.Family())
	require.Equal(t, krpc.DefaultMaxMessageBytes, cfg.MaxMessageBytes)
	require.Equal(t, 3, cfg.QueryTimeoutSeconds)
	require.Equal(t, 2, cfg.QueryRetries)
	require.Equal(t, 64, cfg.ContactSetSize)
	require.Equal(t, 1024, cfg.PeerStoreCapacity)
	require.Equal(t, 300, cfg.TokenRotationSeconds)
}

func TestLoadConfigValidation(t *testing.T) {
	cases := []struct {
		name     string
		contents string
	}{
		{"missing listen address", "maxMessageBytes: 1400\n"},
		{"bad listen address", "listenAddress: not-an-address\n"},
		{"bad family", "listenAddress: 0.0.0.0:6881\naddressFamily: ipv5\n"},
		{"bad bootstrap node", "listenAddress: 0.0.0.0:6881\nbootstrapNodes: [nope]\n"},
		{"admin without secret", "listenAddress: 0.0.0.0:6881\nadminListenAddress: 127.0.0.1:8080\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.LoadConfig(writeConfig(t, tc.contents))
			require.Error(t, err)
		})
	}
}

func TestLoadConfigFull(t *testing.T) {
	cfg, err := config.LoadConfig(writeConfig(t, `
listenAddress: "[::]:6881"
addressFamily: ipv6
maxMessageBytes: 2000
bootstrapNodes:
  - "router.example.net:6881"
adminListenAddress: "127.0.0.1:8080"
adminJwtSecret: "secret"
`))
	require.NoError(t, err)
	require.Equal(t, krpc.FamilyIPv6, cfg.Family())
	require.Equal(t, 2000, cfg.MaxMessageBytes)
	require.Equal(t, []string{"router.example.net:6881"}, cfg.BootstrapNodes)
}
