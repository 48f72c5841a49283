package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/airbusgeo/reserve-monitor/catalog"
	"github.com/airbusgeo/reserve-monitor/common"
	"github.com/airbusgeo/reserve-monitor/interface/database/pg"
	"github.com/airbusgeo/reserve-monitor/interface/delivery"
	"github.com/airbusgeo/reserve-monitor/interface/events"
	"github.com/airbusgeo/reserve-monitor/interface/planet"
	"github.com/airbusgeo/reserve-monitor/order"
	"github.com/airbusgeo/reserve-monitor/service"
	"github.com/airbusgeo/reserve-monitor/service/log"
	"github.com/airbusgeo/reserve-monitor/vector"
	"go.uber.org/zap"
)

type config struct {
	Scenes          string
	IDs             string
	Name            string
	AOI             string
	Harmonize       bool
	ChunkSize       int
	Out             string
	Extract         bool
	SkipExisting    bool
	MaxPollDuration time.Duration

	DbConnection string
	StorageURI   string
	Delivery     deliveryConfig
	Events       events.Config
	Planet       planet.Config
}

func newAppConfig() (*config, error) {
	config := config{}
	flag.StringVar(&config.Scenes, "scenes", "", "csv of the scenes to order (Image_IDs column)")
	flag.StringVar(&config.IDs, "ids", "", "comma-separated ids of the scenes to order (alternative to -scenes)")
	flag.StringVar(&config.Name, "name", "", "name of the order (suffixed by the index of the sub-order)")
	flag.StringVar(&config.AOI, "aoi", "", "shapefile or geojson to clip the scenes to (optional)")
	flag.BoolVar(&config.Harmonize, "harmonize", true, "harmonize the scenes with Sentinel-2")
	flag.IntVar(&config.ChunkSize, "chunk-size", order.MaxItemsPerOrder, "maximum number of scenes per sub-order")
	flag.StringVar(&config.Out, "out", "scenes", "output directory of the delivered files")
	flag.BoolVar(&config.Extract, "extract", false, "extract the zip archives delivered")
	flag.BoolVar(&config.SkipExisting, "skip-existing", true, "do not order the scenes that already have a file in the output directory")
	flag.DurationVar(&config.MaxPollDuration, "max-poll-duration", 0, "maximum duration to wait for an order to be terminal (0: no limit)")
	flag.StringVar(&config.DbConnection, "db-connection", "", "connection to the order ledger database (optional)")
	flag.StringVar(&config.StorageURI, "storage-uri", "", "storage uri (local, gs) to export the scenes, and to import the scenes csv if missing (optional)")
	config.Delivery.SetFlags()
	config.Events.SetFlags()
	config.Planet.SetFlags()
	flag.Parse()

	if (config.Scenes == "") == (config.IDs == "") {
		return nil, fmt.Errorf("one of scenes or ids config flag is required")
	}
	if config.Name == "" {
		return nil, fmt.Errorf("missing name config flag")
	}
	if config.ChunkSize <= 0 || config.ChunkSize > order.MaxItemsPerOrder {
		return nil, fmt.Errorf("chunk-size must be in [1, %d]: %d", order.MaxItemsPerOrder, config.ChunkSize)
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
	if config.Scenes != "" {
		// Scene inventories written by cmd/scenes are fetched from the storage
		if imported, err := exporter.ImportMissing(ctx, service.KindSearch, filepath.Base(config.Scenes), config.Scenes); err != nil {
			return err
		} else if imported {
			log.Logger(ctx).Info("scenes imported from the storage", zap.String("scenes", config.Scenes))
		}
	}
	ids, err := sceneIDs(config.Scenes, config.IDs)
	if err != nil {
		return err
	}
	if config.SkipExisting {
		n := len(ids)
		if ids, err = order.FilterExisting(ids, config.Out); err != nil {
			return err
		}
		log.Logger(ctx).Sugar().Infof("%d scenes already in %s: skipped", n-len(ids), config.Out)
	}
	if len(ids) == 0 {
		log.Logger(ctx).Info("nothing to order")
		return nil
	}

	req := order.Request{
		Name:      config.Name,
		ItemIDs:   ids,
		Harmonize: config.Harmonize,
		ChunkSize: config.ChunkSize,
	}
	if config.AOI != "" {
		if req.ClipAOI, err = clipAOI(config.AOI); err != nil {
			return err
		}
	}
	var loc delivery.Location
	if req.Delivery, loc, err = config.Delivery.newDelivery(); err != nil {
		return err
	}

	client, err := config.Planet.NewClient(ctx)
	if err != nil {
		return err
	}
	runner := order.NewRunner(client, config.Out)
	runner.Extract = config.Extract
	runner.Poll.MaxPollDuration = config.MaxPollDuration
	if req.Delivery != nil {
		runner.DeliveryLocation = loc
		if runner.Fetcher, err = delivery.NewFetcher(ctx, loc, config.Delivery.S3); err != nil {
			return err
		}
	}
	if config.DbConnection != "" {
		if runner.Ledger, err = pg.New(ctx, config.DbConnection); err != nil {
			return fmt.Errorf("pg.New: %w", err)
		}
	}
	publisher, stop, err := config.Events.NewPublisher(ctx)
	if err != nil {
		return err
	}
	defer stop()
	runner.Events = publisher

	log.Logger(ctx).Sugar().Infof("run %s: ordering %d scenes (events: %s)", runner.RunID, len(ids), config.Events)
	reports, err := runner.Run(ctx, req)
	if e := writeReports(ctx, reports, config.Out, runner.RunID); e != nil {
		err = service.MergeErrors(true, err, e)
	}
	if err != nil {
		return err
	}

	var files []string
	for _, r := range reports {
		files = append(files, r.Downloaded...)
	}
	if _, err := exporter.Export(ctx, service.KindScene, config.Out, files...); err != nil {
		return err
	}
	return nil
}

// sceneIDs reads the ids from the csv, or from the comma-separated list
func sceneIDs(csvFile, list string) ([]string, error) {
	var ids []string
	if csvFile == "" {
		for _, id := range strings.Split(list, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	} else {
		f, err := os.Open(csvFile)
		if err != nil {
			return nil, fmt.Errorf("sceneIDs.Open: %w", err)
		}
		defer f.Close()
		if ids, err = catalog.ReadSceneIDs(f); err != nil {
			return nil, err
		}
	}
	for _, id := range ids {
		if !common.IsSceneID(id) {
			return nil, fmt.Errorf("sceneIDs: invalid scene id '%s'", id)
		}
	}
	return ids, nil
}

// clipAOI returns the first polygon of the aoi, in lon/lat
func clipAOI(aoi string) (json.RawMessage, error) {
	b, err := vector.LoadLonLat(aoi)
	if err != nil {
		return nil, err
	}
	p, err := service.FirstPolygon(b.Geometry)
	if err != nil {
		return nil, err
	}
	return service.GeometryJSON(p)
}

func writeReports(ctx context.Context, reports []common.OrderReport, outDir, runID string) error {
	summary := map[common.OrderState]int{}
	for _, r := range reports {
		summary[r.State]++
	}
	for state, n := range summary {
		log.Logger(ctx).Sugar().Infof("%d sub-orders %s", n, state)
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("writeReports.MkdirAll: %w", err)
	}
	return service.ToJSON(reports, outDir, "orders_"+runID+".json")
}
