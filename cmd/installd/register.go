package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tierone/installd/pkg/ui"
)

var registerEmail string

var registerCmd = &cobra.Command{
	Use:   "register <code>",
	Short: "Register the system with the subscription service",
	Long: `Register the system and activate the selected product with a
registration code. Products with a mandatory registration cannot be
installed before this succeeds.`,
	Args: cobra.ExactArgs(1),
	RunE: runRegister,
}

var deregisterCmd = &cobra.Command{
	Use:   "deregister",
	Short: "Remove the system from the subscription service",
	Args:  cobra.NoArgs,
	RunE:  runDeregister,
}

func init() {
	registerCmd.Flags().StringVarP(&registerEmail, "email", "e", "", "contact e-mail address")
	rootCmd.AddCommand(registerCmd, deregisterCmd)
}

func runRegister(cmd *cobra.Command, args []string) error {
	st, err := newClient().Register(cmd.Context(), args[0], registerEmail)
	if err != nil {
		return err
	}

	if !quiet() {
		fmt.Printf("%s System registered\n", ui.SymbolSuccess)
		if st.Service != nil {
			fmt.Printf("  Service: %s\n", st.Service.Name)
		}
		fmt.Printf("  Code:    %s\n", st.Code)
	}
	return nil
}

func runDeregister(cmd *cobra.Command, args []string) error {
	if _, err := newClient().Deregister(cmd.Context()); err != nil {
		return err
	}
	if !quiet() {
		fmt.Printf("%s System deregistered\n", ui.SymbolSuccess)
	}
	return nil
}
