package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tierone/installd/pkg/client"
	"github.com/tierone/installd/pkg/types"
	"github.com/tierone/installd/pkg/ui"
)

var watchExit bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the service progress",
	Long: `Follow the phase, status and progress of the service as they change.

With --exit the command returns once the next phase run ends.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchExit, "exit", false, "exit when the next phase run ends")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events, err := subscribe(ctx, newClient())
	if err != nil {
		return err
	}

	err = ui.Watch(ctx, events, !quiet(), watchExit)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// subscribe opens the event stream and waits for the initial state, so
// no event of a phase started afterwards is missed.
func subscribe(ctx context.Context, c *client.Client) (<-chan types.Event, error) {
	events, err := c.Events(ctx)
	if err != nil {
		return nil, err
	}

	var first types.Event
	select {
	case ev, ok := <-events:
		if !ok {
			return nil, errors.New("event stream closed by the service")
		}
		first = ev
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	out := make(chan types.Event, 64)
	out <- first
	go func() {
		defer close(out)
		for ev := range events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// runPhase starts a phase through run and renders its progress until it
// returns.
func runPhase(cmd *cobra.Command, run func(context.Context, *client.Client) (types.ManagerState, error)) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := newClient()
	events, err := subscribe(ctx, c)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		_, err := run(ctx, c)
		done <- err
	}()

	w := ui.NewWatcher(os.Stdout, ui.WithInteractive(!quiet()))
	return w.Run(ctx, events, done)
}
