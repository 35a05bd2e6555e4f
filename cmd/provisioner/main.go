package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/conflux-chain/cloud-provisioner/cmd/provisioner/commands"
	"github.com/conflux-chain/cloud-provisioner/internal/config"
	"github.com/conflux-chain/cloud-provisioner/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "provisioner",
	Short: "Provision blockchain test fleets across cloud regions",
	Long: `provisioner acquires a target number of test nodes across cloud regions,
verifies every instance is running and SSH-reachable, and backfills any
shortfall from regions that still have capacity.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Initialize()
		config.LoadEnv()
	},
}

func init() {
	rootCmd.AddCommand(commands.GetProvisionCmd())
	rootCmd.AddCommand(commands.GetCleanupCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
