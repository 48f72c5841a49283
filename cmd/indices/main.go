package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/airbusgeo/godal"
	"github.com/airbusgeo/reserve-monitor/common"
	"github.com/airbusgeo/reserve-monitor/index"
	"github.com/airbusgeo/reserve-monitor/interface/events"
	"github.com/airbusgeo/reserve-monitor/mosaic"
	"github.com/airbusgeo/reserve-monitor/service"
	"github.com/airbusgeo/reserve-monitor/service/log"
	"go.uber.org/zap"
)

type config struct {
	Src     string
	Out     string
	Indices string
	Layout  string
	Scale   float64
	Workers int

	StorageURI string
	Events     events.Config
}

func newAppConfig() (*config, error) {
	config := config{}
	flag.StringVar(&config.Src, "src", "mosaics", "directory of the mosaics")
	flag.StringVar(&config.Out, "out", "indices", "output directory (one sub-directory per index)")
	flag.StringVar(&config.Indices, "indices", "all", "comma-separated indices to compute (ndvi, ndwi, msavi2, mtvi2, vari, tgi) or all")
	flag.StringVar(&config.Layout, "layout", "RGBN", "band layout of the mosaics")
	flag.Float64Var(&config.Scale, "scale", index.DefaultScale, "scale of the reflectances of the mosaics")
	flag.IntVar(&config.Workers, "workers", 1, "number of mosaics processed in parallel")
	flag.StringVar(&config.StorageURI, "storage-uri", "", "storage uri (local, gs) to export the indices (optional)")
	config.Events.SetFlags()
	flag.Parse()
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

	indices, err := index.ParseIndices(config.Indices)
	if err != nil {
		return err
	}
	layout, err := common.ParseBandLayout(config.Layout)
	if err != nil {
		return err
	}
	inputs, err := mosaic.ListRasters(config.Src)
	if err != nil {
		return err
	}

	exporter, err := service.NewExporter(ctx, config.StorageURI)
	if err != nil {
		return err
	}
	publisher, stop, err := config.Events.NewPublisher(ctx)
	if err != nil {
		return err
	}
	defer stop()

	report, err := index.Run(ctx, inputs, config.Out, indices, index.Options{Layout: layout, Scale: config.Scale, Workers: config.Workers})
	log.Logger(ctx).Sugar().Infof("%d indices computed, %d skipped", len(report.Computed), len(report.Skipped))
	for _, out := range report.Computed {
		events.PublishProduct(ctx, publisher, filepath.Base(out), out)
	}
	if _, e := exporter.Export(ctx, service.KindIndex, config.Out, report.Computed...); e != nil {
		err = service.MergeErrors(true, err, e)
	}
	return err
}
