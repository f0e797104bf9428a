package main

import (
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/twpayne/go-shadows"
)

func (a *app) newSliceMapImagesCmd() *cobra.Command {
	sliceMapImagesCmd := &cobra.Command{
		Use:   "slice-map-images png...",
		Short: "Slice georeferenced map images into per-tile PNGs",
		Long:  "Slice georeferenced map images into per-tile PNGs. Each image must have a world file with the same name and a .pgw extension.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  a.runSliceMapImages,
	}
	flags := sliceMapImagesCmd.Flags()
	flags.StringP("output", "o", "", "output directory (default is the map image directory)")
	flags.Int("concurrency", 4, "number of tiles sliced concurrently")
	return sliceMapImagesCmd
}

func (a *app) runSliceMapImages(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	output, err := flags.GetString("output")
	if err != nil {
		return err
	}
	if output == "" {
		output = a.config.Storage.MapImagesDir
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
		if err := a.sliceMapImage(cmd, slicer, arg); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) sliceMapImage(cmd *cobra.Command, slicer *shadows.Slicer, filename string) error {
	worldFile, err := readWorldFile(strings.TrimSuffix(filename, ".png") + ".pgw")
	if err != nil {
		return err
	}

	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()
	img, err := png.Decode(file)
	if err != nil {
		return err
	}

	stats, err := slicer.SliceMapImage(cmd.Context(), img, worldFile)
	if err != nil {
		return err
	}
	a.logger.Info("sliced",
		slog.String("filename", filename),
		slog.Int("written", stats.Written),
	)
	return nil
}

func readWorldFile(filename string) (shadows.WorldFile, error) {
	file, err := os.Open(filename)
	if err != nil {
		return shadows.WorldFile{}, err
	}
	defer file.Close()
	worldFile, err := shadows.ParseWorldFile(file)
	if err != nil {
		return shadows.WorldFile{}, fmt.Errorf("%s: %w", filename, err)
	}
	return worldFile, nil
}

func (a *app) newPruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove map images without heightmaps and heightmaps without map images",
		Args:  cobra.NoArgs,
		RunE:  a.runPrune,
	}
}

func (a *app) runPrune(cmd *cobra.Command, args []string) error {
	osFs := afero.NewOsFs()
	removed, err := shadows.PruneUnpaired(
		afero.NewBasePathFs(osFs, a.config.Storage.MapImagesDir),
		afero.NewBasePathFs(osFs, a.config.Storage.HeightmapsDir),
	)
	if err != nil {
		return err
	}
	a.logger.Info("pruned", slog.Int("removed", removed))
	return nil
}
