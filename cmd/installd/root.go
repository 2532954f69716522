package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tierone/installd/pkg/client"
	"github.com/tierone/installd/pkg/config"
	"github.com/tierone/installd/pkg/logging"
)

const envPrefix = "INSTALLD"

var rootCmd = &cobra.Command{
	Use:   "installd",
	Short: "installd - operating system installer service",
	Long: `installd probes the system, computes the software proposal and
installs the selected product into the target directory.

Run 'installd serve' to start the service, then drive it with
'installd probe' and 'installd install' from the same or another host.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "config file path")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("server", "", "service address (default http://"+config.DefaultListen+")")
	flags.BoolP("quiet", "q", false, "minimal output")

	for _, name := range []string{"config", "log-level", "server", "quiet"} {
		_ = viper.BindPFlag(name, flags.Lookup(name)) // flags exist, cannot fail
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func quiet() bool {
	return viper.GetBool("quiet")
}

// loadConfig reads the configuration named by --config, or the one found
// in the working directory or /etc/installd.
func loadConfig() (*config.Config, error) {
	path := viper.GetString("config")
	if path == "" {
		found, err := config.FindConfigFile()
		if err != nil {
			return nil, fmt.Errorf("no config file found: %w\nRun 'installd init' to create one", err)
		}
		path = found
	}

	path, err := config.ExpandPath(path)
	if err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if level := viper.GetString("log-level"); level != "" {
		cfg.General.LogLevel = level
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (logr.Logger, error) {
	return logging.New(logging.Options{
		Level:  cfg.General.LogLevel,
		Format: cfg.General.LogFormat,
		Output: os.Stderr,
	})
}

// serverURL returns the base URL of the service the client commands talk
// to.
func serverURL() string {
	addr := viper.GetString("server")
	if addr == "" {
		addr = config.DefaultListen
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return addr
}

func newClient() *client.Client {
	return client.New(serverURL(), client.WithUserAgent(config.DefaultUserAgent))
}

func Execute() error {
	return rootCmd.Execute()
}
