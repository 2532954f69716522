package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"
	"github.com/tierone/installd/pkg/bus"
	"github.com/tierone/installd/pkg/config"
	"github.com/tierone/installd/pkg/installer"
	"github.com/tierone/installd/pkg/network"
	"github.com/tierone/installd/pkg/server"
	"golang.org/x/sync/errgroup"
)

var (
	serveListen string
	serveProbe  bool
	serveNoDBus bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the installer service",
	Long: `Run the installer service: the HTTP bridge on [server].listen and,
when [dbus].enabled is set, the D-Bus interface on the configured bus.

The service stops on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveListen, "listen", "l", "", "override listen address")
	serveCmd.Flags().BoolVar(&serveProbe, "probe", false, "run the config phase on startup")
	serveCmd.Flags().BoolVar(&serveNoDBus, "no-dbus", false, "do not export the D-Bus interface")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return err
	}
	if serveListen != "" {
		cfg.Server.Listen = serveListen
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []installer.Option{installer.WithLogger(log)}
	if cfg.Network.Enabled {
		conn, err := dbus.ConnectSystemBus()
		if err != nil {
			return fmt.Errorf("connecting to NetworkManager: %w", err)
		}
		defer conn.Close()
		opts = append(opts, installer.WithNetworkClient(network.NewNMClient(conn, log)))
	}

	inst := installer.New(cfg, opts...)
	defer inst.Close()

	if cfg.DBus.Enabled && !serveNoDBus {
		conn, err := bus.Connect(cfg.DBus.Bus)
		if err != nil {
			return err
		}
		defer conn.Close()

		exp, err := bus.Export(ctx, conn, inst.Manager(), log)
		if err != nil {
			return err
		}
		defer exp.Close()
		if err := exp.RequestName(); err != nil {
			return err
		}
		log.Info("D-Bus interface exported", "name", bus.ServiceName, "bus", string(cfg.DBus.Bus))
	}

	srv := server.New(inst,
		server.WithLogger(log),
		server.WithAllowedOrigins(cfg.Server.AllowedOrigins),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx, cfg.Server.Listen)
	})
	if serveProbe {
		g.Go(func() error {
			if err := inst.Manager().RunConfigPhase(ctx); err != nil {
				log.Error(err, "startup probe failed")
			}
			return nil
		})
	}

	log.Info("installd started", "version", version, "config", cfg.Path(), "target", cfg.General.TargetDir)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
