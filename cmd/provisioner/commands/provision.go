// Package commands implements the provisioner CLI subcommands
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conflux-chain/cloud-provisioner/internal/config"
	"github.com/conflux-chain/cloud-provisioner/internal/fleet"
	"github.com/conflux-chain/cloud-provisioner/internal/infra"
	"github.com/conflux-chain/cloud-provisioner/internal/inventory"
	"github.com/conflux-chain/cloud-provisioner/internal/logger"
	"github.com/conflux-chain/cloud-provisioner/internal/provider"
	"github.com/conflux-chain/cloud-provisioner/internal/types"
)

// GetProvisionCmd returns the provision subcommand
func GetProvisionCmd() *cobra.Command {
	return provisionCmd
}

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Acquire the fleet described by the request config",
	RunE:  runProvision,
}

func init() {
	provisionCmd.Flags().StringP("config", "c", "provision.toml", "TOML request config")
	provisionCmd.Flags().StringP("output", "o", "hosts.json", "where to write the host inventory")
	provisionCmd.Flags().Bool("allow-create", false, "create missing VPCs, subnets, security groups and key pairs")
	provisionCmd.Flags().Bool("network-only", false, "bootstrap network infrastructure and exit without creating instances")
}

func runProvision(cmd *cobra.Command, args []string) error {
	var (
		cfgPath, _     = cmd.Flags().GetString("config")
		output, _      = cmd.Flags().GetString("output")
		allowCreate, _ = cmd.Flags().GetBool("allow-create")
		networkOnly, _ = cmd.Flags().GetBool("network-only")
	)

	ctx := cmd.Context()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	logger.Infof("Provisioning %d nodes across %d clouds", cfg.TotalNodes(), len(cfg.Clouds))

	var (
		allHosts   []types.HostSpec
		unresolved int
	)
	for _, cloud := range cfg.Clouds {
		client, err := provider.NewClient(ctx, cloud.Provider)
		if err != nil {
			return err
		}

		regions, err := infra.EnsureRegions(ctx, infra.Options{
			Client:   client,
			Provider: cloud.Provider,
			KeyPair: types.KeyPairRequest{
				KeyPath:     cloud.SSHKeyPath,
				KeyPairName: cloud.KeyPairName,
			},
			ImageName:   cloud.ImageName,
			AllowCreate: allowCreate,
		}, cloud.RegionNames())
		if err != nil {
			return err
		}
		if networkOnly {
			logger.Infof("Network infrastructure ready for %s, skipping instance creation", cloud.Provider)
			continue
		}

		prov, err := fleet.NewProvisioner(fleet.Options{
			Client:         client,
			Provider:       cloud.Provider,
			SSHUser:        cloud.DefaultUserName,
			InstanceConfig: types.NewInstanceConfig(cloud.UserTag),
			Regions:        regions,
			InstanceTypes:  cloud.InstanceTypes,
		})
		if err != nil {
			return err
		}

		hosts, report, err := prov.Provision(ctx, cloud.Regions)
		if err != nil {
			return err
		}
		allHosts = append(allHosts, hosts...)
		unresolved += report.Unresolved
	}

	if networkOnly {
		return nil
	}

	if err := inventory.SaveHosts(output, allHosts); err != nil {
		return err
	}
	logger.Infof("Saved %d hosts (%d nodes) to %s", len(allHosts), fleet.CountNodes(allHosts), output)

	if unresolved > 0 {
		return fmt.Errorf("fleet short by %d nodes, see %s for the acquired hosts", unresolved, output)
	}
	return nil
}
