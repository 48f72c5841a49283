package index

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"sync"

	"github.com/airbusgeo/reserve-monitor/common"
	"github.com/airbusgeo/reserve-monitor/service"
	"github.com/airbusgeo/reserve-monitor/service/log"
	"github.com/airbusgeo/reserve-monitor/service/raster"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultScale converts PlanetScope surface reflectance DN to reflectance
const DefaultScale = 10000

// Options of the computation
type Options struct {
	// Layout of the bands of the input mosaics (default: RGBN)
	Layout common.BandLayout
	// Scale divides the raw values (default: DefaultScale)
	Scale float64
	// Workers is the number of mosaics processed in parallel (default: 1)
	Workers int
}

// Report lists the products computed and skipped by Run
type Report struct {
	Computed []string `json:"computed"`
	Skipped  []string `json:"skipped"`
}

// OutputPath returns the path of the index of the mosaic: <outDir>/<index>/<date>_<index>.tif
func OutputPath(outDir, mosaic string, idx Index) string {
	date := strings.TrimSuffix(filepath.Base(mosaic), filepath.Ext(mosaic))
	return filepath.Join(outDir, string(idx), fmt.Sprintf("%s_%s.%s", date, idx, service.ExtensionGTiff))
}

// Run computes the indices of each input mosaic.
// An index already computed (output file exists) is skipped without opening the mosaic.
func Run(ctx context.Context, inputs []string, outDir string, indices []Index, opts Options) (Report, error) {
	if opts.Layout == (common.BandLayout{}) {
		opts.Layout = common.LayoutRGBN
	}
	if opts.Scale == 0 {
		opts.Scale = DefaultScale
	}

	var report Report
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.Workers, 1))
	for _, input := range inputs {
		input := input
		var todo []Index
		for _, idx := range indices {
			out := OutputPath(outDir, input, idx)
			if service.FileExists(out) {
				log.Logger(ctx).Sugar().Debugf("%s already exists: skipped", filepath.Base(out))
				report.Skipped = append(report.Skipped, out)
				continue
			}
			todo = append(todo, idx)
		}
		if len(todo) == 0 {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			computed, err := computeMosaic(log.With(gctx, "mosaic", filepath.Base(input)), input, outDir, todo, opts)
			mu.Lock()
			report.Computed = append(report.Computed, computed...)
			mu.Unlock()
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return report, fmt.Errorf("Run.%w", err)
	}
	return report, nil
}

func computeMosaic(ctx context.Context, input, outDir string, indices []Index, opts Options) ([]string, error) {
	im, err := raster.Read(input, opts.Layout.Indexes()...)
	if err != nil {
		return nil, fmt.Errorf("computeMosaic.%w", err)
	}
	var computed []string
	for _, idx := range indices {
		if err := ctx.Err(); err != nil {
			return computed, err
		}
		out := OutputPath(outDir, input, idx)
		res := Compute(im, idx, opts.Scale)
		res.Metadata = map[string]string{
			common.TagIndex:  string(idx),
			common.TagSource: filepath.Base(input),
		}
		if err := raster.WriteFloat32(out, res); err != nil {
			return computed, fmt.Errorf("computeMosaic.%w", err)
		}
		log.Logger(ctx).Info("index computed", zap.String("index", string(idx)), zap.String("output", out))
		computed = append(computed, out)
	}
	return computed, nil
}

// Compute returns the single-band image of the index.
// The bands of im are B, G, R, NIR; their values are divided by scale.
func Compute(im *raster.Image, idx Index, scale float64) *raster.Image {
	res := im.New(1)
	res.Descriptions = []string{strings.ToUpper(string(idx))}
	out := res.Bands[0]
	for i := range out {
		if !valid(im, i) {
			continue
		}
		out[i] = idx.Compute(Pixel{
			Blue:  im.Bands[0][i] / scale,
			Green: im.Bands[1][i] / scale,
			Red:   im.Bands[2][i] / scale,
			NIR:   im.Bands[3][i] / scale,
		})
	}
	return res
}

func valid(im *raster.Image, i int) bool {
	for b := range im.Bands {
		if im.IsNoData(b, i) || math.IsInf(im.Bands[b][i], 0) {
			return false
		}
	}
	return true
}
