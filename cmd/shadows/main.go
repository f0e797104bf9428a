package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/twpayne/go-shadows"
	"github.com/twpayne/go-shadows/internal/config"
)

// An app holds the state shared by all commands.
type app struct {
	viper      *viper.Viper
	configFile string
	envFile    string
	config     *config.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{
		viper: viper.New(),
	}

	rootCmd := &cobra.Command{
		Use:               "shadows",
		Short:             "Locate TM35FIN map tiles and render their terrain shadows",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.preRun,
	}

	persistentFlags := rootCmd.PersistentFlags()
	persistentFlags.StringVar(&a.configFile, "config", "", "config file")
	persistentFlags.StringVar(&a.envFile, "env-file", ".env", "environment file")
	persistentFlags.String("heightmaps-dir", "", "heightmap directory")
	persistentFlags.String("map-images-dir", "", "map image directory")
	persistentFlags.String("log-level", "", "log level (debug, info, warn, error)")
	persistentFlags.String("log-format", "", "log format (text, json)")
	_ = a.viper.BindPFlag("storage.heightmaps_dir", persistentFlags.Lookup("heightmaps-dir"))
	_ = a.viper.BindPFlag("storage.map_images_dir", persistentFlags.Lookup("map-images-dir"))
	_ = a.viper.BindPFlag("logging.level", persistentFlags.Lookup("log-level"))
	_ = a.viper.BindPFlag("logging.format", persistentFlags.Lookup("log-format"))

	rootCmd.AddCommand(
		a.newServeCmd(),
		a.newLocateCmd(),
		a.newRenderCmd(),
		a.newSliceCmd(),
		a.newSliceMapImagesCmd(),
		a.newPruneCmd(),
	)

	return rootCmd
}

// preRun loads the environment file and the configuration.
func (a *app) preRun(cmd *cobra.Command, args []string) error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	if a.configFile != "" {
		a.viper.SetConfigFile(a.configFile)
		if err := a.viper.ReadInConfig(); err != nil {
			return err
		}
	}

	cfg, err := config.Load(a.viper)
	if err != nil {
		return err
	}
	a.config = cfg
	a.logger = newLogger(cfg.Logging, cmd.ErrOrStderr())
	return nil
}

// newService returns a Service reading heightmaps from the configured
// directory.
func (a *app) newService() (*shadows.Service, error) {
	return shadows.NewService(os.DirFS(a.config.Storage.HeightmapsDir))
}

func run(ctx context.Context, args []string) error {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
