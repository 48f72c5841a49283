package basemap

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/airbusgeo/reserve-monitor/common"
	"github.com/airbusgeo/reserve-monitor/service"
	"github.com/airbusgeo/reserve-monitor/service/log"
	"github.com/airbusgeo/reserve-monitor/service/raster"
	"go.uber.org/zap"
)

// API is the part of the provider client used to fetch basemaps
type API interface {
	ListMosaics(ctx context.Context, nameContains string) ([]common.Mosaic, error)
	GetMosaic(ctx context.Context, name string) (common.Mosaic, error)
	ListQuads(ctx context.Context, mosaic common.Mosaic, bbox [4]float64) ([]common.Quad, error)
	DownloadIfMissing(ctx context.Context, url, dst string) (bool, error)
}

// WriteMosaicsCSV writes one line per mosaic
func WriteMosaicsCSV(w io.Writer, mosaics []common.Mosaic) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(common.MosaicCSVHeader); err != nil {
		return fmt.Errorf("WriteMosaicsCSV: %w", err)
	}
	for _, m := range mosaics {
		bbox := make([]string, len(m.BBox))
		for i, v := range m.BBox {
			bbox[i] = fmt.Sprintf("%g", v)
		}
		if err := cw.Write([]string{
			m.ID,
			m.Name,
			m.Interval,
			formatTime(m.FirstAcquired),
			formatTime(m.LastAcquired),
			strings.Join(bbox, " "),
			strings.Join(m.ItemTypes, " "),
			m.Links.Self,
			m.Links.Quads,
			m.Links.Tiles,
		}); err != nil {
			return fmt.Errorf("WriteMosaicsCSV: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("WriteMosaicsCSV: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// QuadPath returns the path of the quad: <dir>/<prefix>_<id>.tiff (<dir>/<id>.tiff if prefix is empty)
func QuadPath(dir, prefix string, quad common.Quad) string {
	name := quad.ID
	if prefix != "" {
		name = prefix + "_" + name
	}
	return filepath.Join(dir, name+"."+string(service.ExtensionTIFF))
}

// DownloadQuads downloads the quads of the mosaic intersecting the bbox into dir, unless they already exist.
// It returns the paths of all the quads (downloaded or not).
func DownloadQuads(ctx context.Context, api API, mosaic common.Mosaic, bbox [4]float64, dir, prefix string) ([]string, error) {
	ctx = log.With(ctx, "mosaic", mosaic.Name)
	quads, err := api.ListQuads(ctx, mosaic, bbox)
	if err != nil {
		return nil, fmt.Errorf("DownloadQuads.%w", err)
	}
	log.Logger(ctx).Sugar().Infof("%d quads found", len(quads))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("DownloadQuads.MkdirAll: %w", err)
	}
	var files []string
	for _, q := range quads {
		if q.Links.Download == "" {
			log.Logger(ctx).Warn("quad without download link", zap.String("quad", q.ID))
			continue
		}
		dst := QuadPath(dir, prefix, q)
		if _, err := api.DownloadIfMissing(ctx, q.Links.Download, dst); err != nil {
			return files, fmt.Errorf("DownloadQuads[%s].%w", q.ID, err)
		}
		files = append(files, dst)
	}
	return files, nil
}

// Basemap downloads the quads of the mosaic named mosaicName that intersect the bbox into
// <quadsDir> and merges them into out (unless it already exists).
func Basemap(ctx context.Context, api API, mosaicName string, bbox [4]float64, quadsDir, out string) error {
	if service.FileExists(out) {
		log.Logger(ctx).Sugar().Infof("%s already exists: skipped", out)
		return nil
	}
	mosaic, err := api.GetMosaic(ctx, mosaicName)
	if err != nil {
		return fmt.Errorf("Basemap.%w", err)
	}
	files, err := DownloadQuads(ctx, api, mosaic, bbox, quadsDir, "")
	if err != nil {
		return fmt.Errorf("Basemap.%w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("Basemap: no quad of %s intersects the bbox", mosaicName)
	}
	if err := raster.Merge(files, out); err != nil {
		return fmt.Errorf("Basemap.%w", err)
	}
	return nil
}

// MonthlyArchive builds, for each monthly normalized mosaic, the basemap of the bbox:
// quads are downloaded into <outDir>/<date>_quads/, merged into <outDir>/mosaics/<prefix>_<date>.tiff
// and the quad directory is removed. Existing basemaps are skipped.
func MonthlyArchive(ctx context.Context, api API, bbox [4]float64, prefix, outDir string) ([]string, error) {
	mosaics, err := api.ListMosaics(ctx, common.MonthlyNormalizedMosaicTag)
	if err != nil {
		return nil, fmt.Errorf("MonthlyArchive.%w", err)
	}
	var done []string
	for _, m := range mosaics {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if !strings.Contains(m.Name, common.MonthlyNormalizedMosaicTag) {
			continue
		}
		date, err := common.MonthlyMosaicDate(m.Name)
		if err != nil {
			log.Logger(ctx).Warn("unexpected mosaic name", zap.String("mosaic", m.Name), zap.Error(err))
			continue
		}
		out := MonthlyArchivePath(outDir, prefix, date)
		if service.FileExists(out) {
			log.Logger(ctx).Sugar().Debugf("%s already exists: skipped", filepath.Base(out))
			done = append(done, out)
			continue
		}
		quadsDir := filepath.Join(outDir, date+"_quads")
		files, err := DownloadQuads(ctx, api, m, bbox, quadsDir, date)
		if err != nil {
			return done, fmt.Errorf("MonthlyArchive.%w", err)
		}
		if len(files) == 0 {
			log.Logger(ctx).Warn("no quad intersects the bbox", zap.String("mosaic", m.Name))
			continue
		}
		if err := raster.Merge(files, out); err != nil {
			return done, fmt.Errorf("MonthlyArchive.%w", err)
		}
		if err := os.RemoveAll(quadsDir); err != nil {
			log.Logger(ctx).Warn("unable to remove quads", zap.String("dir", quadsDir), zap.Error(err))
		}
		log.Logger(ctx).Info("basemap written", zap.String("output", out))
		done = append(done, out)
	}
	return done, nil
}

// MonthlyArchivePath returns <outDir>/mosaics/<prefix>_<date>.tiff
func MonthlyArchivePath(outDir, prefix, date string) string {
	return filepath.Join(outDir, string(service.KindMosaic), fmt.Sprintf("%s_%s.%s", prefix, date, service.ExtensionTIFF))
}
