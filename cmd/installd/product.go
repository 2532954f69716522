package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tierone/installd/pkg/config"
	"github.com/tierone/installd/pkg/ui"
)

var (
	productJSON bool

	productDisplayName  string
	productDescription  string
	productVersion      string
	productArch         string
	productRepos        []string
	productRegistration string
)

var productCmd = &cobra.Command{
	Use:     "product",
	Aliases: []string{"products"},
	Short:   "Manage products",
	Long: `List and select the products the service can install, or edit the
products of the local configuration.`,
}

var productListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List the products known to the service",
	Args:    cobra.NoArgs,
	RunE:    runProductList,
}

var productSelectCmd = &cobra.Command{
	Use:   "select <product>",
	Short: "Select the product to install",
	Long: `Select the product to install. The service probes again for the
new product in the background.`,
	Args: cobra.ExactArgs(1),
	RunE: runProductSelect,
}

var productAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a product to the configuration",
	Args:  cobra.ExactArgs(1),
	RunE:  runProductAdd,
}

var productRemoveCmd = &cobra.Command{
	Use:     "remove <name>",
	Aliases: []string{"rm"},
	Short:   "Remove a product from the configuration",
	Args:    cobra.ExactArgs(1),
	RunE:    runProductRemove,
}

func init() {
	productListCmd.Flags().BoolVar(&productJSON, "json", false, "output as JSON")

	productAddCmd.Flags().StringVar(&productDisplayName, "display-name", "", "human readable name")
	productAddCmd.Flags().StringVar(&productDescription, "description", "", "description")
	productAddCmd.Flags().StringVar(&productVersion, "version", "", "product version")
	productAddCmd.Flags().StringVar(&productArch, "arch", "", "architecture")
	productAddCmd.Flags().StringSliceVarP(&productRepos, "repos", "r", nil, "repositories of the product (required)")
	productAddCmd.Flags().StringVar(&productRegistration, "registration", "", "registration requirement (optional or mandatory)")
	_ = productAddCmd.MarkFlagRequired("repos") // Safe to ignore - panics caught at startup

	productCmd.AddCommand(productListCmd, productSelectCmd, productAddCmd, productRemoveCmd)
	rootCmd.AddCommand(productCmd)
}

func runProductList(cmd *cobra.Command, args []string) error {
	c := newClient()
	products, err := c.Products(cmd.Context())
	if err != nil {
		return err
	}
	selected, _, err := c.SelectedProduct(cmd.Context())
	if err != nil {
		return err
	}

	if productJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(products)
	}

	if len(products) == 0 {
		fmt.Println("No products configured")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\tPRODUCT\tNAME\tVERSION\tREGISTRATION\tAVAILABLE")
	for _, p := range products {
		mark := ""
		if p.Name == selected {
			mark = "*"
		}
		available := "no"
		if p.Available {
			available = "yes"
		}
		registration := p.Registration
		if registration == "" {
			registration = "-"
		}
		version := p.Version
		if version == "" {
			version = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", mark, p.Name, p.DisplayName, version, registration, available)
	}
	return w.Flush()
}

func runProductSelect(cmd *cobra.Command, args []string) error {
	if err := newClient().SelectProduct(cmd.Context(), args[0]); err != nil {
		return err
	}
	if !quiet() {
		fmt.Printf("%s Selected product: %s\n", ui.SymbolSuccess, args[0])
	}
	return nil
}

func runProductAdd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	prod := config.Product{
		Name:         args[0],
		DisplayName:  productDisplayName,
		Description:  productDescription,
		Version:      productVersion,
		Arch:         productArch,
		Registration: config.RegistrationMode(productRegistration),
	}
	if err := cfg.AddProduct(prod); err != nil {
		return err
	}
	for _, repo := range productRepos {
		if err := cfg.AddRepoToProduct(prod.Name, repo); err != nil {
			return err
		}
	}

	if err := config.ValidateConfig(cfg); err != nil {
		return err
	}
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	if !quiet() {
		fmt.Printf("Added product: %s\n", prod.Name)
		fmt.Println("Restart the service to make it available.")
	}
	return nil
}

func runProductRemove(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RemoveProduct(args[0]); err != nil {
		return err
	}
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	if !quiet() {
		fmt.Printf("Removed product: %s\n", args[0])
	}
	return nil
}
