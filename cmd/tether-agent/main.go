package main

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/tether/internal/agent"
	"github.com/ehrlich-b/tether/internal/config"
)

func main() {
	var (
		configPath string
		serverIP   string
		port       int
	)

	root := &cobra.Command{
		Use:   "tether-agent",
		Short: "tether endpoint agent",
		Long:  "Connects out to a tetherd server over TLS and executes its requests.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadAgent(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("server") {
				cfg.Server = serverIP
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cfg.Server == "" {
				return fmt.Errorf("no server address: set --server or the config file")
			}

			a := &agent.Agent{
				Addr:          net.JoinHostPort(cfg.Server, strconv.Itoa(cfg.Port)),
				Reconnect:     cfg.ReconnectInterval(),
				MaxFrameBytes: cfg.MaxFrameBytes,
				Log:           slog.New(slog.NewTextHandler(os.Stderr, nil)),
			}
			return a.Run()
		},
	}
	root.Flags().StringVar(&configPath, "config", "agent.yaml", "path to the YAML configuration")
	root.Flags().StringVar(&serverIP, "server", "", "server address")
	root.Flags().IntVar(&port, "port", 999, "server port")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
