package mosaic

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/airbusgeo/reserve-monitor/service"
	"github.com/airbusgeo/reserve-monitor/service/log"
	"github.com/airbusgeo/reserve-monitor/vector"
	"go.uber.org/zap"
)

// Run composites one mosaic per date for the scenes of srcDir acquired between start and end.
// Dates already composited are skipped. A failing date is logged and the next one is processed.
func Run(ctx context.Context, srcDir string, start, end time.Time, outDir string, opts Options) ([]string, error) {
	groups, err := GroupByDate(srcDir, start, end, outDir)
	if err != nil {
		return nil, fmt.Errorf("Run.%w", err)
	}
	log.Logger(ctx).Sugar().Infof("%d dates to composite", len(groups))
	var done []string
	var merr error
	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		out, err := Composite(ctx, group, outDir, opts)
		if err != nil {
			log.Logger(ctx).Error("composite failed", zap.String("date", group.Date), zap.Error(err))
			merr = service.MergeErrors(true, merr, err)
			continue
		}
		done = append(done, out)
	}
	return done, merr
}

// ClipAll clips the rasters to the boundary, writing <dstDir>/<name>_clip.tif.
// Rasters that do not overlap the boundary are logged and skipped.
func ClipAll(ctx context.Context, srcs []string, boundary vector.Boundary, dstDir string) ([]string, error) {
	var done []string
	for _, src := range srcs {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		name := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
		dst := filepath.Join(dstDir, name+"_clip.tif")
		if service.FileExists(dst) {
			done = append(done, dst)
			continue
		}
		if err := Clip(src, boundary, dst); err != nil {
			if errors.Is(err, ErrNoOverlap) {
				log.Logger(ctx).Sugar().Warnf("%s: %v", filepath.Base(src), err)
				continue
			}
			return done, fmt.Errorf("ClipAll.%w", err)
		}
		done = append(done, dst)
	}
	return done, nil
}

// ListRasters returns the sorted GeoTIFF files of dir
func ListRasters(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("ListRasters.ReadDir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		switch service.GetExt(strings.ToLower(e.Name())) {
		case service.ExtensionGTiff, service.ExtensionTIFF:
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}
