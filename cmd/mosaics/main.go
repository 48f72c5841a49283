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
	"github.com/airbusgeo/reserve-monitor/common"
	"github.com/airbusgeo/reserve-monitor/interface/events"
	"github.com/airbusgeo/reserve-monitor/mosaic"
	"github.com/airbusgeo/reserve-monitor/service"
	"github.com/airbusgeo/reserve-monitor/service/log"
	"github.com/airbusgeo/reserve-monitor/vector"
	"go.uber.org/zap"
)

type config struct {
	Src        string
	Out        string
	Start, End string
	AOI        string
	EPSG       int
	Resolution float64
	Layout     string
	MaskUDM    bool
	ClipDir    string

	StorageURI string
	Events     events.Config
}

func newAppConfig() (*config, error) {
	config := config{}
	flag.StringVar(&config.Src, "src", "scenes", "directory of the delivered scenes (*"+mosaic.SceneSuffix+")")
	flag.StringVar(&config.Out, "out", "mosaics", "output directory of the daily mosaics")
	flag.StringVar(&config.Start, "start", "", "first date to composite (optional)")
	flag.StringVar(&config.End, "end", "", "last date to composite, included (optional)")
	flag.StringVar(&config.AOI, "aoi", "", "shapefile or geojson of the reserve, to rank the scenes by coverage and clip the mosaics (optional)")
	flag.IntVar(&config.EPSG, "epsg", mosaic.DefaultEPSG, "epsg code of the mosaics")
	flag.Float64Var(&config.Resolution, "resolution", mosaic.DefaultResolution, "resolution of the mosaics (in units of the projection)")
	flag.StringVar(&config.Layout, "layout", "BGRN", "band layout of the scenes")
	flag.BoolVar(&config.MaskUDM, "mask-udm", false, "mask the pixels that are not clear according to the usable data mask (udm2) of the scenes")
	flag.StringVar(&config.ClipDir, "clip-dir", "", "clip the mosaics to the aoi into this directory (optional, requires aoi)")
	flag.StringVar(&config.StorageURI, "storage-uri", "", "storage uri (local, gs) to export the mosaics, and to import the aoi if missing (optional)")
	config.Events.SetFlags()
	flag.Parse()

	if config.ClipDir != "" && config.AOI == "" {
		return nil, fmt.Errorf("missing aoi config flag to clip the mosaics")
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

	start, end, err := service.ParseDateRange(config.Start, config.End)
	if err != nil {
		return err
	}
	layout, err := common.ParseBandLayout(config.Layout)
	if err != nil {
		return err
	}
	opts := mosaic.Options{
		EPSG:       config.EPSG,
		Resolution: config.Resolution,
		Layout:     layout,
		MaskUDM:    config.MaskUDM,
	}
	exporter, err := service.NewExporter(ctx, config.StorageURI)
	if err != nil {
		return err
	}
	var boundary vector.Boundary
	if config.AOI != "" {
		// Boundaries preprocessed by cmd/bounds are fetched from the storage
		if imported, err := exporter.ImportMissing(ctx, service.KindBoundaries, filepath.Base(config.AOI), config.AOI); err != nil {
			return err
		} else if imported {
			log.Logger(ctx).Info("aoi imported from the storage", zap.String("aoi", config.AOI))
		}
		if boundary, err = vector.Load(config.AOI); err != nil {
			return err
		}
		opts.Boundary, opts.BoundaryPath = &boundary, config.AOI
	}
	publisher, stop, err := config.Events.NewPublisher(ctx)
	if err != nil {
		return err
	}
	defer stop()

	done, err := mosaic.Run(ctx, config.Src, start, end, config.Out, opts)
	for _, out := range done {
		events.PublishProduct(ctx, publisher, filepath.Base(out), out)
	}
	if _, e := exporter.Export(ctx, service.KindMosaic, config.Out, done...); e != nil {
		err = service.MergeErrors(true, err, e)
	}
	if err != nil {
		return err
	}
	log.Logger(ctx).Sugar().Infof("%d mosaics written in %s", len(done), config.Out)

	if config.ClipDir == "" {
		return nil
	}
	all, err := mosaic.ListRasters(config.Out)
	if err != nil {
		return err
	}
	clipped, err := mosaic.ClipAll(ctx, all, boundary, config.ClipDir)
	if err != nil {
		return err
	}
	log.Logger(ctx).Sugar().Infof("%d mosaics clipped in %s", len(clipped), config.ClipDir)
	if _, err := exporter.Export(ctx, service.KindMosaic, filepath.Dir(config.ClipDir), clipped...); err != nil {
		return err
	}
	return nil
}
