package main

import (
	"github.com/spf13/cobra"

	"github.com/xhad/ackaudit/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the auditor over HTTP and websocket",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}
		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		s := server.New(server.ServerConfig{
			Addr:          cfg.Server.Addr,
			MaxUploadMB:   cfg.Server.MaxUploadMB,
			AllowedOrigin: cfg.Server.AllowedOrigin,
		}, a.Auditor, a.Fetcher, a.Sink, a.Metrics, log)
		return s.ListenAndServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}
