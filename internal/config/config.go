// Package config loads the provisioning request config (TOML) and the
// credential environment (.env).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/conflux-chain/cloud-provisioner/internal/constants"
	"github.com/conflux-chain/cloud-provisioner/internal/logger"
	"github.com/conflux-chain/cloud-provisioner/internal/provider"
	"github.com/conflux-chain/cloud-provisioner/internal/types"
)

// CloudConfig describes one cloud account's share of the fleet: which
// provider, which regions, and which instance types to try in order.
type CloudConfig struct {
	Provider        string `mapstructure:"provider"`
	DefaultUserName string `mapstructure:"default_user_name"`
	UserTag         string `mapstructure:"user_tag"`
	ImageName       string `mapstructure:"image_name"`
	SSHKeyPath      string `mapstructure:"ssh_key_path"`
	KeyPairName     string `mapstructure:"key_pair_name"`

	// InstanceTypes in fallback-priority order; the first is the default type
	InstanceTypes []types.InstanceType `mapstructure:"instance_types"`

	// Regions in configuration order, each with its node count and knobs
	Regions []types.RegionRequest `mapstructure:"regions"`
}

// ProvisionConfig is the full request config: one entry per cloud account
type ProvisionConfig struct {
	Clouds []CloudConfig `mapstructure:"clouds"`
}

// LoadEnv loads credentials and overrides from .env when present. A missing
// file is not an error; the variables may come from the real environment.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		logger.Debugf("No .env file loaded: %v", err)
	}
}

// Load reads and validates the request config from a TOML file
func Load(path string) (*ProvisionConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg ProvisionConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *ProvisionConfig) normalize() error {
	if len(c.Clouds) == 0 {
		return fmt.Errorf("config has no clouds")
	}

	for i := range c.Clouds {
		cloud := &c.Clouds[i]
		if !provider.IsValidProvider(cloud.Provider) {
			return fmt.Errorf("cloud %d: unsupported provider %q", i, cloud.Provider)
		}
		if len(cloud.InstanceTypes) == 0 {
			return fmt.Errorf("cloud %d (%s): no instance types", i, cloud.Provider)
		}
		for _, it := range cloud.InstanceTypes {
			if it.Name == "" || it.Nodes <= 0 {
				return fmt.Errorf("cloud %d (%s): invalid instance type %+v", i, cloud.Provider, it)
			}
		}
		if len(cloud.Regions) == 0 {
			return fmt.Errorf("cloud %d (%s): no regions", i, cloud.Provider)
		}
		for _, region := range cloud.Regions {
			if region.Name == "" {
				return fmt.Errorf("cloud %d (%s): region with empty name", i, cloud.Provider)
			}
			if region.Count < 0 {
				return fmt.Errorf("cloud %d (%s): region %s has negative count", i, cloud.Provider, region.Name)
			}
		}

		if tag := os.Getenv(constants.EnvUserTag); tag != "" {
			cloud.UserTag = tag
		}
		if cloud.UserTag == "" {
			return fmt.Errorf("cloud %d (%s): user_tag is required", i, cloud.Provider)
		}
		if cloud.DefaultUserName == "" {
			cloud.DefaultUserName = "root"
		}
		if cloud.KeyPairName == "" {
			cloud.KeyPairName = "cfx-test-" + cloud.UserTag
		}
		cloud.SSHKeyPath = expandPath(cloud.SSHKeyPath)
	}
	return nil
}

// TotalNodes sums the node targets across all clouds and regions
func (c *ProvisionConfig) TotalNodes() int {
	total := 0
	for _, cloud := range c.Clouds {
		for _, region := range cloud.Regions {
			total += region.Count
		}
	}
	return total
}

// RegionNames returns the region ids of one cloud in configuration order
func (c CloudConfig) RegionNames() []string {
	names := make([]string, 0, len(c.Regions))
	for _, region := range c.Regions {
		names = append(names, region.Name)
	}
	return names
}

func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
