package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/tether/internal/allowlist"
	"github.com/ehrlich-b/tether/internal/certs"
	"github.com/ehrlich-b/tether/internal/config"
	"github.com/ehrlich-b/tether/internal/console"
	"github.com/ehrlich-b/tether/internal/controller"
	"github.com/ehrlich-b/tether/internal/files"
	"github.com/ehrlich-b/tether/internal/logger"
	"github.com/ehrlich-b/tether/internal/prober"
	"github.com/ehrlich-b/tether/internal/server"
	"github.com/ehrlich-b/tether/internal/session"
	"github.com/ehrlich-b/tether/internal/store"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "tetherd",
		Short: "tether command-and-control server",
		Long:  "Listens for endpoint agents over TLS, admits them by IP allow-list and drives them from an interactive operator console.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVar(&configPath, "config", "config.toml", "path to the TOML configuration")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadServer(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.DataDir); err != nil {
		return err
	}

	fm := files.NewManager(cfg.DataDir)
	if err := fm.EnsureLayout(); err != nil {
		return err
	}

	st, err := store.Open(fm.Path("tetherd.db"))
	if err != nil {
		return err
	}
	defer st.Close()

	allow, err := allowlist.Open(fm.Path("authorised_ips.txt"))
	if err != nil {
		return err
	}
	defer allow.Close()

	created, err := certs.Ensure(fm.Path("cert.pem"), fm.Path("key.pem"))
	if err != nil {
		return fmt.Errorf("certificate setup: %w", err)
	}
	if created {
		logger.Server().Info("New certificates created")
	}
	tlsCfg, err := certs.ServerConfig(fm.Path("cert.pem"), fm.Path("key.pem"))
	if err != nil {
		return err
	}

	table := session.NewTable()
	srv := &server.Server{
		Addr:          cfg.Addr(),
		TLS:           tlsCfg,
		Allow:         allow,
		Table:         table,
		MaxFrameBytes: cfg.MaxFrameBytes,
		Log:           logger.Server(),
		AuthLog:       logger.Auth(),
		Store:         st,
	}
	if err := srv.Listen(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go srv.AcceptLoop()

	prb := &prober.Prober{
		Table:    table,
		Interval: cfg.ProbeInterval(),
		Log:      logger.Server(),
		Store:    st,
	}
	go prb.Run(ctx)

	ctrl := &controller.Controller{
		Files: fm,
		Log:   logger.Server(),
		Store: st,
	}

	cons := &console.Console{
		In:          os.Stdin,
		Out:         os.Stdout,
		Table:       table,
		Ctrl:        ctrl,
		Files:       fm,
		Store:       st,
		HashSources: cfg.HashManifestSources,
		OnShutdown:  func() { srv.Close() },
	}

	// A signal while the console blocks on stdin gets the same farewell
	// path as the operator's exit command.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig, ok := <-sigCh
		if !ok {
			return
		}
		logger.Server().Info("Received " + sig.String() + ", shutting down")
		ctrl.Shutdown(table)
		srv.Close()
		st.Close()
		os.Exit(0)
	}()

	cons.Run()
	signal.Stop(sigCh)
	close(sigCh)

	logger.Server().Info("Server socket closed successfully")
	return nil
}
