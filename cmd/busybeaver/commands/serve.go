package commands

import (
	"github.com/spf13/cobra"

	"busybeaver/internal/app"
	"busybeaver/internal/platform/httpserver"
)

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				srv := httpserver.New(cfg.Server, a.Handler())
				return httpserver.Run(cmd.Context(), srv, cfg.Server.ShutdownGrace, a.Logger())
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default BUSYBEAVER_ADDR)")
	return cmd
}
