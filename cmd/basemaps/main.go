package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/airbusgeo/godal"
	"github.com/airbusgeo/reserve-monitor/basemap"
	"github.com/airbusgeo/reserve-monitor/interface/planet"
	"github.com/airbusgeo/reserve-monitor/service"
	"github.com/airbusgeo/reserve-monitor/service/log"
	"github.com/airbusgeo/reserve-monitor/vector"
	"go.uber.org/zap"
)

type config struct {
	List         bool
	NameContains string

	Mosaic  string
	Monthly bool
	AOI     string
	Prefix  string
	OutDir  string

	StorageURI string
	Planet     planet.Config
}

func newAppConfig() (*config, error) {
	config := config{}
	flag.BoolVar(&config.List, "list", false, "list the mosaics (csv on stdout)")
	flag.StringVar(&config.NameContains, "name-contains", "", "filter the listed mosaics by name")
	flag.StringVar(&config.Mosaic, "mosaic", "", "name of the mosaic to download over the aoi")
	flag.BoolVar(&config.Monthly, "monthly", false, "download all the monthly normalized mosaics over the aoi")
	flag.StringVar(&config.AOI, "aoi", "", "shapefile or geojson of the reserve")
	flag.StringVar(&config.Prefix, "prefix", "", "prefix of the monthly basemaps (default: name of the aoi file)")
	flag.StringVar(&config.OutDir, "out", ".", "output directory")
	flag.StringVar(&config.StorageURI, "storage-uri", "", "storage uri (local, gs) to export the basemaps (optional)")
	config.Planet.SetFlags()
	flag.Parse()

	if !config.List && config.Mosaic == "" && !config.Monthly {
		return nil, fmt.Errorf("one of list, mosaic or monthly config flag is required")
	}
	if (config.Mosaic != "" || config.Monthly) && config.AOI == "" {
		return nil, fmt.Errorf("missing aoi config flag")
	}
	if config.Prefix == "" && config.AOI != "" {
		config.Prefix = service.WithExt(filepath.Base(config.AOI), service.NoExtension)
	}
	return &config, nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := run(ctx); err != nil {
		log.Fatal("error", zap.Error(err))
	}
}

func run(ctx context.Context) error {
	config, err := newAppConfig()
	if err != nil {
		return err
	}
	godal.RegisterAll()

	client, err := config.Planet.NewClient(ctx)
	if err != nil {
		return err
	}
	exporter, err := service.NewExporter(ctx, config.StorageURI)
	if err != nil {
		return err
	}

	if config.List {
		mosaics, err := client.ListMosaics(ctx, config.NameContains)
		if err != nil {
			return err
		}
		log.Logger(ctx).Sugar().Infof("%d mosaics found", len(mosaics))
		if err := basemap.WriteMosaicsCSV(os.Stdout, mosaics); err != nil {
			return err
		}
	}
	if config.AOI == "" {
		return nil
	}

	boundary, err := vector.LoadLonLat(config.AOI)
	if err != nil {
		return err
	}
	bbox, err := vector.BBox(boundary.Geometry)
	if err != nil {
		return err
	}
	log.Logger(ctx).Sugar().Infof("bbox of %s: %s", config.AOI, planet.BBoxParam(bbox))

	var outputs []string
	if config.Mosaic != "" {
		out := filepath.Join(config.OutDir, config.Mosaic+"."+string(service.ExtensionTIFF))
		if err := basemap.Basemap(ctx, client, config.Mosaic, bbox, filepath.Join(config.OutDir, "quads"), out); err != nil {
			return err
		}
		outputs = append(outputs, out)
	}
	if config.Monthly {
		done, err := basemap.MonthlyArchive(ctx, client, bbox, config.Prefix, config.OutDir)
		outputs = append(outputs, done...)
		if err != nil {
			return err
		}
	}
	if _, err := exporter.Export(ctx, service.KindBasemap, config.OutDir, outputs...); err != nil {
		return err
	}
	return nil
}
