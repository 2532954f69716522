package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tierone/installd/pkg/config"
)

var (
	initForce   bool
	initExample bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration",
	Long: `Write a default installd configuration file (installd.toml) to the
current directory, or to the path given with --config.

Use --example to include example repository and product entries.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite existing configuration")
	initCmd.Flags().BoolVar(&initExample, "example", false, "include example repository and product entries")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := viper.GetString("config")
	if configPath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
		configPath = filepath.Join(cwd, config.ConfigFileName)
	}

	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("config file already exists: %s\nUse --force to overwrite", configPath)
	}

	cfg := config.NewDefaultConfig()
	if initExample {
		addExampleEntries(cfg)
	}

	if err := cfg.SaveTo(configPath); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	if !quiet() {
		fmt.Printf("Created configuration: %s\n", configPath)
		if initExample {
			fmt.Println("\nExample entries created. Edit the config file to point at your repositories.")
		} else {
			fmt.Println("\nAdd repositories with 'installd repo add' and products with 'installd product add'.")
		}
	}

	return nil
}

func addExampleEntries(cfg *config.Config) {
	cfg.Repositories = []config.Repository{
		{
			Name: "oss",
			URL:  "https://download.opensuse.org/tumbleweed/repo/oss/",
			Type: config.RepoTypeHTTP,
			Tags: []string{"base"},
		},
		{
			Name:   "overlay",
			URL:    "https://github.com/example/installer-overlay.git",
			Type:   config.RepoTypeGit,
			Branch: "main",
		},
	}
	cfg.Products = []config.Product{
		{
			Name:         "tumbleweed",
			DisplayName:  "openSUSE Tumbleweed",
			Arch:         "x86_64",
			Repositories: []string{"oss", "overlay"},
		},
	}
}
