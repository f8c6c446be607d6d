package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/partyroom/internal/config"
)

func TestAdvertiseAddr(t *testing.T) {
	hostname, err := os.Hostname()
	require.NoError(t, err)

	assert.Equal(t, "rooms-0.partyroom:8080", advertiseAddr("rooms-0.partyroom:8080", "[::]:8080"))
	assert.Equal(t, "127.0.0.1:9000", advertiseAddr("", "127.0.0.1:9000"))
	assert.Equal(t, hostname+":8080", advertiseAddr("", "[::]:8080"))
	assert.Equal(t, hostname+":8080", advertiseAddr("", "0.0.0.0:8080"))
}

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partyroom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("node:\n  role: player\n  id: from-file\nserver:\n  port: 7000\n"), 0o600))

	cfg, err := loadConfig(flags{configPath: path, role: config.RoleRoom, port: 7100})
	require.NoError(t, err)
	assert.Equal(t, config.RoleRoom, cfg.Node.Role)
	assert.Equal(t, "from-file", cfg.Node.ID)
	assert.Equal(t, 7100, cfg.Server.Port)
}

func TestLoadConfigRejectsBadRole(t *testing.T) {
	_, err := loadConfig(flags{role: "janitor"})
	assert.ErrorContains(t, err, "node.role")
}
