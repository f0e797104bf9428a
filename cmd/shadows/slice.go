package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/twpayne/go-shadows"
)

// epsgTM35FIN is the EPSG code of ETRS89 / TM35FIN(E,N).
const epsgTM35FIN = 3067

func (a *app) newSliceCmd() *cobra.Command {
	sliceCmd := &cobra.Command{
		Use:   "slice geotiff...",
		Short: "Slice GeoTIFF elevation models into heightmap artifacts",
		Args:  cobra.MinimumNArgs(1),
		RunE:  a.runSlice,
	}
	flags := sliceCmd.Flags()
	flags.StringP("output", "o", "", "output directory (default is the heightmap directory)")
	flags.Int("concurrency", 4, "number of tiles sliced concurrently")
	return sliceCmd
}

func (a *app) runSlice(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	output, err := flags.GetString("output")
	if err != nil {
		return err
	}
	if output == "" {
		output = a.config.Storage.HeightmapsDir
	}
	concurrency, err := flags.GetInt("concurrency")
	if err != nil {
		return err
	}

	osFs := afero.NewOsFs()
	if err := osFs.MkdirAll(output, 0o755); err != nil {
		return err
	}
	slicer, err := shadows.NewSlicer(
		afero.NewBasePathFs(osFs, output),
		shadows.DefaultTileGrid,
		shadows.WithConcurrency(concurrency),
	)
	if err != nil {
		return err
	}

	for _, arg := range args {
		if err := a.sliceGeoTIFF(cmd, slicer, arg); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) sliceGeoTIFF(cmd *cobra.Command, slicer *shadows.Slicer, filename string) error {
	geoTIFF, err := shadows.OpenGeoTIFF(os.DirFS(filepath.Dir(filename)), filepath.Base(filename))
	if err != nil {
		return err
	}
	defer geoTIFF.Close()

	logger := a.logger.With(slog.String("filename", filename))
	if epsg := geoTIFF.EPSG(); epsg != epsgTM35FIN {
		logger.Warn("unexpected CRS", slog.Int("epsg", epsg))
	}

	stats, err := slicer.Slice(cmd.Context(), geoTIFF)
	if err != nil {
		return err
	}
	logger.Info("sliced",
		slog.Int("written", stats.Written),
		slog.Int("skipped", stats.Skipped),
	)
	return nil
}
