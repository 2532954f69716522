package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tierone/installd/pkg/types"
	"github.com/tierone/installd/pkg/ui"
)

var (
	statusJSON      bool
	statusPorcelain bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the service status",
	Long: `Show the installation phase, whether the service is busy, which
subsystems are running and the progress of the current phase.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
	statusCmd.Flags().BoolVar(&statusPorcelain, "porcelain", false, "machine-readable output")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	c := newClient()
	state, err := c.Manager(cmd.Context())
	if err != nil {
		return err
	}
	product, selected, err := c.SelectedProduct(cmd.Context())
	if err != nil {
		return err
	}
	if !selected {
		product = ""
	}

	switch {
	case statusJSON:
		return outputStatusJSON(state, product)
	case statusPorcelain:
		outputStatusPorcelain(state, product)
		return nil
	default:
		outputStatusTable(state, product)
		return nil
	}
}

func outputStatusJSON(state types.ManagerState, product string) error {
	output := struct {
		types.ManagerState
		Product string `json:"product,omitempty"`
	}{state, product}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}

// outputStatusPorcelain prints
// phase<TAB>status<TAB>can_install<TAB>current/total<TAB>busy,...<TAB>product.
func outputStatusPorcelain(state types.ManagerState, product string) {
	busy := strings.Join(state.Busy, ",")
	if busy == "" {
		busy = "-"
	}
	if product == "" {
		product = "-"
	}
	fmt.Printf("%s\t%s\t%t\t%d/%d\t%s\t%s\n",
		state.PhaseLabel,
		state.Status,
		state.CanInstall,
		state.Progress.CurrentStep, state.Progress.TotalSteps,
		busy,
		product,
	)
}

func outputStatusTable(state types.ManagerState, product string) {
	row := func(label, value string) {
		fmt.Printf("%-12s %s\n", label+":", value)
	}

	row("Phase", ui.PhaseStyle(state.Phase).Render(state.Phase.String()))
	row("Status", ui.StatusStyle(state.Status).Render(state.Status.String()))
	if len(state.Busy) > 0 {
		row("Busy", ui.WarningStyle.Render(strings.Join(state.Busy, ", ")))
	}
	if product != "" {
		row("Product", product)
	} else {
		row("Product", ui.MutedStyle.Render("none selected"))
	}

	canInstall := ui.WarningStyle.Render("no")
	if state.CanInstall {
		canInstall = ui.SuccessStyle.Render("yes")
	}
	row("Can install", canInstall)

	p := state.Progress
	if p.TotalSteps > 0 {
		row("Progress", fmt.Sprintf("%d/%d %s", p.CurrentStep, p.TotalSteps, p.Description))
	}
}
