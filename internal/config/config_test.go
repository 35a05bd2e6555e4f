package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conflux-chain/cloud-provisioner/internal/constants"
)

const sampleConfig = `
[[clouds]]
provider = "mock"
default_user_name = "ubuntu"
user_tag = "alice"
image_name = "conflux-node"
ssh_key_path = "/tmp/id_rsa"

[[clouds.instance_types]]
name = "large"
nodes = 10

[[clouds.instance_types]]
name = "small"
nodes = 5

[[clouds.regions]]
name = "us-east-1"
count = 100
zone_max_nodes = 50
max_nodes = 20

[[clouds.regions]]
name = "eu-west-1"
count = 40
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "provision.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSampleConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	require.Len(t, cfg.Clouds, 1)
	cloud := cfg.Clouds[0]
	assert.Equal(t, "mock", cloud.Provider)
	assert.Equal(t, "ubuntu", cloud.DefaultUserName)
	assert.Equal(t, "alice", cloud.UserTag)
	assert.Equal(t, "cfx-test-alice", cloud.KeyPairName)

	require.Len(t, cloud.InstanceTypes, 2)
	assert.Equal(t, "large", cloud.InstanceTypes[0].Name)
	assert.Equal(t, 10, cloud.InstanceTypes[0].Nodes)

	require.Len(t, cloud.Regions, 2)
	assert.Equal(t, "us-east-1", cloud.Regions[0].Name)
	assert.Equal(t, 100, cloud.Regions[0].Count)
	assert.Equal(t, 50, cloud.Regions[0].ZoneMaxNodes)
	assert.Equal(t, 20, cloud.Regions[0].MaxNodesPerCall)

	assert.Equal(t, 140, cfg.TotalNodes())
	assert.Equal(t, []string{"us-east-1", "eu-west-1"}, cloud.RegionNames())
}

func TestLoadUserTagFromEnv(t *testing.T) {
	t.Setenv(constants.EnvUserTag, "bob")

	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "bob", cfg.Clouds[0].UserTag)
	assert.Equal(t, "cfx-test-bob", cfg.Clouds[0].KeyPairName)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no clouds", `x = 1`},
		{"bad provider", `
[[clouds]]
provider = "closedstack"
user_tag = "a"
[[clouds.instance_types]]
name = "t"
nodes = 1
[[clouds.regions]]
name = "r"
count = 1
`},
		{"no instance types", `
[[clouds]]
provider = "mock"
user_tag = "a"
[[clouds.regions]]
name = "r"
count = 1
`},
		{"zero node instance type", `
[[clouds]]
provider = "mock"
user_tag = "a"
[[clouds.instance_types]]
name = "t"
nodes = 0
[[clouds.regions]]
name = "r"
count = 1
`},
		{"no regions", `
[[clouds]]
provider = "mock"
user_tag = "a"
[[clouds.instance_types]]
name = "t"
nodes = 1
`},
		{"negative count", `
[[clouds]]
provider = "mock"
user_tag = "a"
[[clouds.instance_types]]
name = "t"
nodes = 1
[[clouds.regions]]
name = "r"
count = -1
`},
		{"missing user tag", `
[[clouds]]
provider = "mock"
[[clouds.instance_types]]
name = "t"
nodes = 1
[[clouds.regions]]
name = "r"
count = 1
`},
	}

	t.Setenv(constants.EnvUserTag, "")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".ssh/id_rsa"), expandPath("~/.ssh/id_rsa"))
	assert.Equal(t, "/abs/path", expandPath("/abs/path"))
	assert.Equal(t, "relative", expandPath("relative"))
}
