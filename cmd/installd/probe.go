package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/tierone/installd/pkg/client"
	"github.com/tierone/installd/pkg/types"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Run the config phase",
	Long: `Probe the system and compute the software proposal.

Re-running probe refreshes the proposal. When the service is running
another phase the command waits for it to end.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPhase(cmd, func(ctx context.Context, c *client.Client) (types.ManagerState, error) {
			return whenIdle(ctx, c.Probe)
		})
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)
}
