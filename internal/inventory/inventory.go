// Package inventory persists provisioned host records so callers can recover
// a fleet across restarts. The provisioning core itself keeps no state.
package inventory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/conflux-chain/cloud-provisioner/internal/types"
)

// SaveHosts writes the host records to path as indented JSON, creating parent
// directories as needed
func SaveHosts(path string, hosts []types.HostSpec) error {
	data, err := json.MarshalIndent(hosts, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal hosts: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create inventory dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write hosts file: %w", err)
	}
	return nil
}

// LoadHosts reads host records previously written with SaveHosts
func LoadHosts(path string) ([]types.HostSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read hosts file: %w", err)
	}

	var hosts []types.HostSpec
	if err := json.Unmarshal(data, &hosts); err != nil {
		return nil, fmt.Errorf("parse hosts file %s: %w", path, err)
	}
	return hosts, nil
}
