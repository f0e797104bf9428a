package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/twpayne/go-shadows"
)

func (a *app) newRenderCmd() *cobra.Command {
	renderCmd := &cobra.Command{
		Use:   "render longitude latitude",
		Short: "Render the shadows of the tile at a TM35FIN tile address",
		Args:  cobra.ExactArgs(2),
		RunE:  a.runRender,
	}
	renderCmd.Flags().StringP("output", "o", "", "write a PNG to file instead of printing a data URI")
	return renderCmd
}

func (a *app) runRender(cmd *cobra.Command, args []string) (err error) {
	lon, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return err
	}
	lat, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return err
	}
	tile := shadows.TileAddress{Lon: lon, Lat: lat}

	service, err := a.newService()
	if err != nil {
		return err
	}
	mask, err := service.Shadows(cmd.Context(), tile)
	if err != nil {
		return err
	}

	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	if output == "" {
		dataURI, err := shadows.EncodeDataURI(mask)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), dataURI)
		return err
	}

	file, err := os.Create(output)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := file.Close(); err == nil {
			err = closeErr
		}
	}()
	if err := shadows.EncodePNG(file, mask); err != nil {
		return err
	}
	a.logger.Info("rendered", "tile", shadows.TileFilename(tile), "output", output)
	return nil
}
