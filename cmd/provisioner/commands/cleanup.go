package commands

import (
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/conflux-chain/cloud-provisioner/internal/config"
	"github.com/conflux-chain/cloud-provisioner/internal/logger"
	"github.com/conflux-chain/cloud-provisioner/internal/provider"
	"github.com/conflux-chain/cloud-provisioner/internal/types"
)

// GetCleanupCmd returns the cleanup subcommand
func GetCleanupCmd() *cobra.Command {
	return cleanupCmd
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Terminate all fleet-tagged instances of the configured regions",
	RunE:  runCleanup,
}

func init() {
	cleanupCmd.Flags().StringP("config", "c", "provision.toml", "TOML request config")
	cleanupCmd.Flags().Bool("dry-run", false, "list matching instances without terminating them")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	var (
		cfgPath, _ = cmd.Flags().GetString("config")
		dryRun, _  = cmd.Flags().GetBool("dry-run")
	)

	ctx := cmd.Context()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	for _, cloud := range cfg.Clouds {
		client, err := provider.NewClient(ctx, cloud.Provider)
		if err != nil {
			return err
		}

		for _, regionID := range cloud.RegionNames() {
			instances, err := client.ListTaggedInstances(ctx, regionID)
			if err != nil {
				return err
			}
			// only this operator's instances; other users may share the account
			instances = lo.Filter(instances, func(inst types.TaggedInstance, _ int) bool {
				return inst.Tags[types.DefaultUserTagKey] == cloud.UserTag
			})
			if len(instances) == 0 {
				logger.Infof("Region %s: nothing to clean up", regionID)
				continue
			}

			ids := lo.Map(instances, func(inst types.TaggedInstance, _ int) string { return inst.InstanceID })
			if dryRun {
				logger.Infof("Region %s: would terminate %d instances: %v", regionID, len(ids), ids)
				continue
			}

			if err := client.DeleteInstances(ctx, regionID, ids); err != nil {
				return err
			}
			logger.Infof("Region %s: terminated %d instances", regionID, len(ids))
		}
	}
	return nil
}
