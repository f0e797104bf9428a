package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/twpayne/go-shadows/internal/server"
)

func (a *app) newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  a.runServe,
	}

	flags := serveCmd.Flags()
	flags.String("address", "", "listen address")
	_ = a.viper.BindPFlag("server.address", flags.Lookup("address"))

	return serveCmd
}

func (a *app) runServe(cmd *cobra.Command, args []string) error {
	service, err := a.newService()
	if err != nil {
		return err
	}

	if a.config.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	options := []server.Option{
		server.WithLogger(a.logger),
		server.WithMaxConcurrentLoads(a.config.Server.MaxConcurrentLoads),
		server.WithLoadWait(a.config.Server.LoadWait),
		server.WithAllowedOrigins(a.config.CORS.AllowedOrigins),
	}
	if mapImagesDir := a.config.Storage.MapImagesDir; mapImagesDir != "" {
		options = append(options, server.WithMapImages(os.DirFS(mapImagesDir)))
	}
	s := server.New(service, options...)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx, a.config.Server)
}
