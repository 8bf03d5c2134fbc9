package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/drover/pkg/api"
	"github.com/cuemby/drover/pkg/config"
	"github.com/cuemby/drover/pkg/connector"
	"github.com/cuemby/drover/pkg/dmsetup"
	"github.com/cuemby/drover/pkg/driver"
	"github.com/cuemby/drover/pkg/export"
	"github.com/cuemby/drover/pkg/log"
	"github.com/cuemby/drover/pkg/lvm"
	"github.com/cuemby/drover/pkg/metrics"
	"github.com/cuemby/drover/pkg/monitor"
	"github.com/cuemby/drover/pkg/remote"
	"github.com/cuemby/drover/pkg/storage"
	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the Drover volume daemon on this host",
	Long: `Run the per-host volume daemon.

The daemon serves the volume API, watches active migrations, and
registers itself in the service registry so peers can reach it. One
daemon in the cluster owns the metadata store; every other daemon
points at it with --registry (or registry_addr in the config file).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		registryAddr, _ := cmd.Flags().GetString("registry")

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if registryAddr != "" {
			cfg.RegistryAddr = registryAddr
		}

		log.Init(log.Config{
			Level:      log.Level(cfg.LogLevel),
			JSONOutput: cfg.LogJSON,
			Output:     os.Stderr,
		})
		metrics.Register()

		var store storage.Store
		if cfg.RegistryAddr != "" {
			store = storage.NewRemoteStore(cfg.RegistryAddr)
		} else {
			store, err = storage.NewBoltStore(cfg.DataDir)
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
		}
		defer store.Close()

		remoteSvc := remote.NewClient(store)
		drv := driver.New(cfg, store, driver.Options{
			DM:       dmsetup.New(),
			Data:     lvm.New(cfg.VolumeGroup),
			Meta:     lvm.New(cfg.MetadataVolumeGroup),
			Broker:   connector.NewBroker(connector.NewISCSI(), remoteSvc),
			Remote:   remoteSvc,
			Exporter: export.NewTGT(cfg.TargetPortal),
		})

		server := api.New(cfg.ListenAddr, store, drv)
		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Run()
		}()

		// Register after the listener is up so peers resolving us can
		// connect right away.
		if err := drv.RegisterService(context.Background()); err != nil {
			return err
		}

		mon := monitor.New(drv, store, cfg.MonitorInterval)
		mon.Start()
		defer mon.Stop()

		fmt.Printf("Drover daemon running on %s (host %s)\n", cfg.ListenAddr, cfg.BackendHost())

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case err := <-errCh:
			return err
		case sig := <-sigCh:
			fmt.Printf("Received %v, shutting down...\n", sig)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	},
}

func init() {
	daemonCmd.Flags().String("config", "/etc/drover/config.yaml", "Path to the config file")
	daemonCmd.Flags().String("registry", "", "Address of the registry daemon (host:port)")
}
