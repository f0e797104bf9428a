package main

import (
	"strconv"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/twpayne/go-shadows"
)

func (a *app) newLocateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "locate longitude latitude",
		Short: "Print the tile containing a WGS84 coordinate",
		Args:  cobra.ExactArgs(2),
		RunE:  a.runLocate,
	}
}

func (a *app) runLocate(cmd *cobra.Command, args []string) error {
	lon, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return err
	}
	lat, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return err
	}

	service, err := a.newService()
	if err != nil {
		return err
	}
	tileInformation, err := service.TileInformation(shadows.GeodeticCoord{Lon: lon, Lat: lat})
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(tileInformation)
}
