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

	"github.com/airbusgeo/godal"
	"github.com/airbusgeo/reserve-monitor/service"
	"github.com/airbusgeo/reserve-monitor/service/log"
	"github.com/airbusgeo/reserve-monitor/vector"
	"go.uber.org/zap"
)

type config struct {
	Src        string
	Out        string
	ToGeoJSON  bool
	Workers    int
	StorageURI string
}

func newAppConfig() (*config, error) {
	config := config{}
	flag.StringVar(&config.Src, "src", "", "shapefile or geojson of a reserve, or directory of reserves")
	flag.StringVar(&config.Out, "out", "bounds", "output directory, or output file (with extension, single reserve only)")
	flag.BoolVar(&config.ToGeoJSON, "to-geojson", false, "convert the reserve(s) to geojson (EPSG:4326) instead of computing the bounding envelope")
	flag.IntVar(&config.Workers, "workers", 1, "number of reserves processed in parallel (directory only)")
	flag.StringVar(&config.StorageURI, "storage-uri", "", "storage uri (local, gs) to export the outputs (optional)")
	flag.Parse()

	if config.Src == "" {
		return nil, fmt.Errorf("missing src config flag")
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

	exporter, err := service.NewExporter(ctx, config.StorageURI)
	if err != nil {
		return err
	}

	info, err := os.Stat(config.Src)
	if err != nil {
		return err
	}
	var outputs []string
	switch {
	case info.IsDir() && !config.ToGeoJSON:
		if outputs, err = vector.ProcessDir(ctx, config.Src, config.Out, config.Workers); err != nil {
			return err
		}
	case info.IsDir():
		entries, err := os.ReadDir(config.Src)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if !strings.EqualFold(filepath.Ext(e.Name()), ".shp") {
				continue
			}
			dst := service.WithExt(filepath.Join(config.Out, e.Name()), "geojson")
			if err := vector.ToGeoJSON(filepath.Join(config.Src, e.Name()), dst); err != nil {
				return err
			}
			outputs = append(outputs, dst)
		}
	default:
		dst := config.Out
		if filepath.Ext(dst) == "" {
			// directory
			name := strings.TrimSuffix(filepath.Base(config.Src), filepath.Ext(config.Src))
			if !config.ToGeoJSON {
				name += "_bounds"
			}
			dst = filepath.Join(dst, name+".geojson")
		}
		if config.ToGeoJSON {
			err = vector.ToGeoJSON(config.Src, dst)
		} else {
			err = vector.Process(config.Src, dst)
		}
		if err != nil {
			return err
		}
		outputs = append(outputs, dst)
	}
	for _, o := range outputs {
		log.Logger(ctx).Info("written", zap.String("output", o))
	}

	root := config.Out
	if filepath.Ext(root) != "" {
		root = filepath.Dir(root)
	}
	if _, err := exporter.Export(ctx, service.KindBoundaries, root, outputs...); err != nil {
		return err
	}
	return nil
}
