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
	"github.com/airbusgeo/reserve-monitor/catalog"
	"github.com/airbusgeo/reserve-monitor/interface/planet"
	"github.com/airbusgeo/reserve-monitor/service"
	"github.com/airbusgeo/reserve-monitor/service/log"
	"github.com/airbusgeo/reserve-monitor/vector"
	"go.uber.org/zap"
)

type config struct {
	AOI        string
	Start, End string
	CloudCover float64
	MinVisible float64
	Out        string

	StorageURI string
	Planet     planet.Config
}

func newAppConfig() (*config, error) {
	config := config{}
	flag.StringVar(&config.AOI, "aoi", "", "shapefile or geojson of the reserve")
	flag.StringVar(&config.Start, "start", "", "start of the acquisition date range (optional)")
	flag.StringVar(&config.End, "end", "", "end of the acquisition date range, included (optional)")
	flag.Float64Var(&config.CloudCover, "cloud-cover", catalog.DefaultMaxCloudCover, "maximum cloud cover [0-1]")
	flag.Float64Var(&config.MinVisible, "min-visible", 0, "minimum visible percent of the scenes [0-100] (0: no filter)")
	flag.StringVar(&config.Out, "out", "scenes.csv", "output csv")
	flag.StringVar(&config.StorageURI, "storage-uri", "", "storage uri (local, gs) to export the csv (optional)")
	config.Planet.SetFlags()
	flag.Parse()

	if config.AOI == "" {
		return nil, fmt.Errorf("missing aoi config flag")
	}
	if service.GetExt(config.Out) != service.ExtensionCSV {
		return nil, fmt.Errorf("out config flag must be a .%s file: %s", service.ExtensionCSV, config.Out)
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

	boundary, err := vector.LoadLonLat(config.AOI)
	if err != nil {
		return err
	}
	start, end, err := service.ParseDateRange(config.Start, config.End)
	if err != nil {
		return err
	}
	c := catalog.Catalog{Searcher: client}
	scenes, err := c.ScenesInventory(ctx, catalog.Area{
		Geometry:      boundary.Geometry,
		Start:         start,
		End:           end,
		MaxCloudCover: config.CloudCover,
		MinVisible:    config.MinVisible,
	})
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(config.Out), 0755); err != nil {
		return err
	}
	f, err := os.Create(config.Out)
	if err != nil {
		return err
	}
	if err := catalog.WriteScenesCSV(f, scenes); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	log.Logger(ctx).Info("scenes written", zap.Int("scenes", len(scenes)), zap.String("output", config.Out))

	if _, err := exporter.Export(ctx, service.KindSearch, filepath.Dir(config.Out), config.Out); err != nil {
		return err
	}
	return nil
}
