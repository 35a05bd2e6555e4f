package inventory

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conflux-chain/cloud-provisioner/internal/types"
)

func TestSaveAndLoadHosts(t *testing.T) {
	hosts := []types.HostSpec{
		{
			IP:           "203.0.113.10",
			PrivateIP:    "10.0.0.10",
			NodesPerHost: 5,
			SSHUser:      "ubuntu",
			SSHKeyPath:   "/home/ubuntu/.ssh/id_rsa",
			Provider:     "aws",
			Region:       "us-east-1",
			Zone:         "us-east-1a",
			InstanceID:   "i-0abc",
		},
		{
			IP:           "203.0.113.11",
			NodesPerHost: 10,
			Provider:     "aws",
			Region:       "eu-west-1",
			InstanceID:   "i-0def",
		},
	}

	path := filepath.Join(t.TempDir(), "out", "hosts.json")
	require.NoError(t, SaveHosts(path, hosts))

	loaded, err := LoadHosts(path)
	require.NoError(t, err)
	assert.Equal(t, hosts, loaded)

	// human-readable on disk
	raw, err := os.ReadFile(path) // #nosec G304
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), "\n  "))
	assert.Contains(t, string(raw), `"nodes_per_host": 5`)
}

func TestSaveHostsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.json")
	require.NoError(t, SaveHosts(path, nil))

	loaded, err := LoadHosts(path)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestLoadHostsMissingFile(t *testing.T) {
	_, err := LoadHosts(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadHostsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := LoadHosts(path)
	assert.Error(t, err)
}
