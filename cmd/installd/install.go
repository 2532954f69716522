package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tierone/installd/pkg/client"
	"github.com/tierone/installd/pkg/types"
)

const busyRetryInterval = 500 * time.Millisecond

var (
	installProduct string
	installProbe   bool
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Run the install phase",
	Long: `Install the proposed software into the target directory.

The service rejects the install phase until a proposal exists and the
selected product is registered when it requires registration. Use
--probe to run the config phase first. Selecting a product with
--product implies --probe.`,
	Args: cobra.NoArgs,
	RunE: runInstall,
}

func init() {
	installCmd.Flags().StringVarP(&installProduct, "product", "p", "", "select this product first")
	installCmd.Flags().BoolVar(&installProbe, "probe", false, "run the config phase first")
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	return runPhase(cmd, func(ctx context.Context, c *client.Client) (types.ManagerState, error) {
		probe := installProbe
		if installProduct != "" {
			if err := c.SelectProduct(ctx, installProduct); err != nil {
				return types.ManagerState{}, fmt.Errorf("selecting %s: %w", installProduct, err)
			}
			probe = true
		}
		if probe {
			if _, err := whenIdle(ctx, c.Probe); err != nil {
				return types.ManagerState{}, err
			}
		}
		return whenIdle(ctx, c.Install)
	})
}

// whenIdle calls run until the service stops rejecting it as busy.
// Selecting a product makes the service probe again in the background.
func whenIdle(ctx context.Context, run func(context.Context) (types.ManagerState, error)) (types.ManagerState, error) {
	for {
		state, err := run(ctx)
		var apiErr *client.APIError
		if !errors.As(err, &apiErr) || !apiErr.Busy() {
			return state, err
		}

		select {
		case <-time.After(busyRetryInterval):
		case <-ctx.Done():
			return state, ctx.Err()
		}
	}
}
