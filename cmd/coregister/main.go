package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/airbusgeo/reserve-monitor/coreg"
	"github.com/airbusgeo/reserve-monitor/interface/events"
	"github.com/airbusgeo/reserve-monitor/mosaic"
	"github.com/airbusgeo/reserve-monitor/service"
	"github.com/airbusgeo/reserve-monitor/service/log"
	"go.uber.org/zap"
)

type config struct {
	Src     string
	Out     string
	Engine  string
	Mode    string
	Command string
	Docker  coreg.DockerConfig

	StorageURI string
	Events     events.Config
}

func newAppConfig() (*config, error) {
	config := config{}
	flag.StringVar(&config.Src, "src", "mosaics", "directory of the rasters to coregister (the first one, by name, is the reference)")
	flag.StringVar(&config.Out, "out", "coregistered", "output directory")
	flag.StringVar(&config.Engine, "engine", "exec", "how to run arosics: exec (local command) or docker")
	flag.StringVar(&config.Mode, "mode", string(coreg.Local), "coregistration mode: local or global")
	flag.StringVar(&config.Command, "command", coreg.DefaultCommand, "arosics command (exec engine)")
	dockerEnvs := config.Docker.SetFlags()
	flag.StringVar(&config.StorageURI, "storage-uri", "", "storage uri (local, gs) to export the coregistered rasters (optional)")
	config.Events.SetFlags()
	flag.Parse()

	switch config.Engine {
	case "exec":
	case "docker":
		if config.Docker.Image == "" {
			return nil, fmt.Errorf("missing docker-image config flag")
		}
		if *dockerEnvs != "" {
			config.Docker.Envs = strings.Split(*dockerEnvs, ",")
		}
	default:
		return nil, fmt.Errorf("unknown engine: %s (expecting exec or docker)", config.Engine)
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

	mode, err := coreg.ParseMode(config.Mode)
	if err != nil {
		return err
	}
	var engine coreg.Coregistrator
	if config.Engine == "docker" {
		d, err := coreg.NewDockerEngine(ctx, config.Docker, mode)
		if err != nil {
			return err
		}
		if err := d.Ping(ctx, 10*time.Second); err != nil {
			return err
		}
		engine = d
	} else {
		engine = coreg.NewExecEngine(config.Command, mode)
	}

	files, err := mosaic.ListRasters(config.Src)
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

	if err := os.MkdirAll(config.Out, 0755); err != nil {
		return err
	}
	report, err := coreg.Batch(ctx, engine, files, config.Out)
	if e := service.ToJSON(report, config.Out, "coregistration.json"); e != nil {
		err = service.MergeErrors(true, err, e)
	}
	log.Logger(ctx).Info("coregistration done", zap.String("reference", report.Reference), zap.Int("done", len(report.Done)), zap.Int("skipped", len(report.Skipped)), zap.Int("failed", len(report.Failed)))
	for _, out := range report.Done {
		events.PublishProduct(ctx, publisher, filepath.Base(out), out)
	}
	if _, e := exporter.Export(ctx, service.KindCoreg, config.Out, report.Done...); e != nil {
		err = service.MergeErrors(true, err, e)
	}
	return err
}
