package mosaic

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/airbusgeo/reserve-monitor/common"
	"github.com/airbusgeo/reserve-monitor/service"
	"github.com/airbusgeo/reserve-monitor/service/log"
	"github.com/airbusgeo/reserve-monitor/service/raster"
	"github.com/airbusgeo/reserve-monitor/vector"
	"go.uber.org/zap"
)

const (
	// DefaultEPSG is UTM zone 10N
	DefaultEPSG = 32610
	// DefaultResolution is the pixel size of PlanetScope ortho scenes (meters)
	DefaultResolution = 3.
)

// Options of the compositing
type Options struct {
	EPSG       int               // default: DefaultEPSG
	Resolution float64           // default: DefaultResolution
	Layout     common.BandLayout // layout of the scenes (default: BGRN)
	MaskUDM    bool              // mask the pixels that are not clear according to the UDM2
	// Boundary is used to rank the scenes by coverage (optional)
	Boundary     *vector.Boundary
	BoundaryPath string // recorded in the metadata
}

// Metadata describes a mosaic (stored in the dataset and in <date>_metadata.json)
type Metadata struct {
	Created     string   `json:"created"`
	SourceDir   string   `json:"source_dir"`
	Scenes      []string `json:"scenes"`
	EPSG        int      `json:"epsg"`
	GeojsonUsed string   `json:"geojson_used"`
}

func (o *Options) setDefaults() {
	if o.EPSG == 0 {
		o.EPSG = DefaultEPSG
	}
	if o.Resolution == 0 {
		o.Resolution = DefaultResolution
	}
	if o.Layout == (common.BandLayout{}) {
		o.Layout = common.LayoutBGRN
	}
}

// Rank returns the indexes of counts sorted by ascending count (stable)
func Rank(counts []int) []int {
	idx := make([]int, len(counts))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return counts[idx[i]] < counts[idx[j]] })
	return idx
}

// CountValid counts the valid pixels of the image (all bands valid, not all zero) that are inside the mask (nil: everywhere)
func CountValid(im *raster.Image, mask []bool) int {
	n := 0
	for i := 0; i < im.Width*im.Height; i++ {
		if (mask == nil || mask[i]) && im.Valid(i) {
			n++
		}
	}
	return n
}

// Composite merges the scenes of the date into a 4-band RGBN float32 GeoTIFF written in outDir.
// The scenes are reprojected to the target CRS and painted by ascending number of valid pixels
// inside the boundary, so that the scene with the best coverage wins overlaps.
func Composite(ctx context.Context, group DateGroup, outDir string, opts Options) (string, error) {
	opts.setDefaults()
	ctx = log.With(ctx, "date", group.Date)
	if len(group.Scenes) == 0 {
		return "", errors.New("Composite: no scene")
	}
	target, err := godal.NewSpatialRefFromEPSG(opts.EPSG)
	if err != nil {
		return "", fmt.Errorf("Composite.NewSpatialRefFromEPSG: %w", err)
	}
	defer target.Close()
	srs, err := target.WKT()
	if err != nil {
		return "", fmt.Errorf("Composite.WKT: %w", err)
	}

	var boundary *godal.Geometry
	if opts.Boundary != nil {
		b, err := vector.ReprojectToSRS(*opts.Boundary, srs)
		if err != nil {
			return "", fmt.Errorf("Composite.%w", err)
		}
		if boundary, err = b.OGRGeometry(); err != nil {
			return "", fmt.Errorf("Composite.%w", err)
		}
		defer boundary.Close()
	}

	images := make([]*raster.Image, len(group.Scenes))
	counts := make([]int, len(group.Scenes))
	for i, scene := range group.Scenes {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		im, err := loadScene(ctx, scene, srs, opts)
		if err != nil {
			return "", fmt.Errorf("Composite.%w", err)
		}
		var mask []bool
		if boundary != nil {
			if mask, err = im.Mask(boundary); err != nil {
				return "", fmt.Errorf("Composite.%w", err)
			}
		}
		images[i], counts[i] = im, CountValid(im, mask)
		log.Logger(ctx).Debug("scene loaded", zap.String("scene", filepath.Base(scene)), zap.Int("valid_pixels", counts[i]))
	}

	order := Rank(counts)
	ranked := make([]*raster.Image, len(order))
	for i, j := range order {
		ranked[i] = images[j]
	}
	out := paint(ranked, opts.Resolution)
	out.SRS = srs
	out.Descriptions = common.RGBNNames

	md := Metadata{
		Created:     time.Now().Format(common.CreatedLayout),
		SourceDir:   filepath.Dir(group.Scenes[0]),
		EPSG:        opts.EPSG,
		GeojsonUsed: opts.BoundaryPath,
	}
	for _, s := range group.Scenes {
		md.Scenes = append(md.Scenes, filepath.Base(s))
	}
	out.Metadata = map[string]string{
		common.TagCreated:     md.Created,
		common.TagSourceDir:   md.SourceDir,
		common.TagScenes:      strings.Join(md.Scenes, ","),
		common.TagEPSG:        strconv.Itoa(md.EPSG),
		common.TagGeojsonUsed: md.GeojsonUsed,
	}

	dst := OutputPath(outDir, group.Date)
	if err := raster.WriteFloat32(dst, out); err != nil {
		return "", fmt.Errorf("Composite.%w", err)
	}
	if err := service.ToJSON(md, outDir, group.Date+"_metadata.json"); err != nil {
		return dst, fmt.Errorf("Composite.%w", err)
	}
	log.Logger(ctx).Info("mosaic written", zap.String("output", dst), zap.Int("scenes", len(group.Scenes)))
	return dst, nil
}

// loadScene reprojects the scene on the aligned grid of the target CRS, with bands B, G, R, NIR
// and the pixels not clear according to the UDM2 (if any) set to nodata.
func loadScene(ctx context.Context, scene, srs string, opts Options) (*raster.Image, error) {
	ds, err := godal.Open(scene, godal.RasterOnly())
	if err != nil {
		return nil, fmt.Errorf("loadScene.Open[%s]: %w", scene, err)
	}
	defer ds.Close()
	warped, err := raster.Warp(ds, raster.WarpOptions{SRS: srs, Resolution: opts.Resolution})
	if err != nil {
		return nil, fmt.Errorf("loadScene[%s].%w", scene, err)
	}
	defer warped.Close()
	im, err := raster.FromDataset(warped, opts.Layout.Indexes()...)
	if err != nil {
		return nil, fmt.Errorf("loadScene[%s].%w", scene, err)
	}

	if !opts.MaskUDM {
		return im, nil
	}
	udm := UDMPath(scene)
	if udm == "" || !service.FileExists(udm) {
		log.Logger(ctx).Sugar().Debugf("%s: no udm", filepath.Base(scene))
		return im, nil
	}
	clearMask, err := loadClearMask(udm, im, srs, opts.Resolution)
	if err != nil {
		return nil, fmt.Errorf("loadScene.%w", err)
	}
	for i, c := range clearMask {
		if !c {
			for b := range im.Bands {
				im.Bands[b][i] = math.NaN()
			}
		}
	}
	return im, nil
}

// loadClearMask returns, on the grid of im, true where the band 1 (clear) of the UDM2 is 1
func loadClearMask(udm string, im *raster.Image, srs string, resolution float64) ([]bool, error) {
	ds, err := godal.Open(udm, godal.RasterOnly())
	if err != nil {
		return nil, fmt.Errorf("loadClearMask.Open[%s]: %w", udm, err)
	}
	defer ds.Close()
	bounds := im.Bounds()
	warped, err := raster.Warp(ds, raster.WarpOptions{SRS: srs, Resolution: resolution, Extent: &bounds})
	if err != nil {
		return nil, fmt.Errorf("loadClearMask[%s].%w", udm, err)
	}
	defer warped.Close()
	m, err := raster.FromDataset(warped, 1)
	if err != nil {
		return nil, fmt.Errorf("loadClearMask[%s].%w", udm, err)
	}
	if m.Width != im.Width || m.Height != im.Height {
		return nil, fmt.Errorf("loadClearMask[%s]: grid mismatch %dx%d != %dx%d", udm, m.Width, m.Height, im.Width, im.Height)
	}
	clearMask := make([]bool, len(m.Bands[0]))
	for i, v := range m.Bands[0] {
		clearMask[i] = v == 1
	}
	return clearMask, nil
}

// paint merges the images (bands B, G, R, NIR on grids aligned on the resolution) into a RGBN image
// covering all of them. Later images overwrite earlier ones where they are valid.
func paint(images []*raster.Image, resolution float64) *raster.Image {
	ext := images[0].Bounds()
	for _, im := range images[1:] {
		b := im.Bounds()
		ext = [4]float64{math.Min(ext[0], b[0]), math.Min(ext[1], b[1]), math.Max(ext[2], b[2]), math.Max(ext[3], b[3])}
	}
	out := &raster.Image{
		Width:        int(math.Round((ext[2] - ext[0]) / resolution)),
		Height:       int(math.Round((ext[3] - ext[1]) / resolution)),
		GeoTransform: [6]float64{ext[0], resolution, 0, ext[3], 0, -resolution},
	}
	for range common.RGBNNames {
		out.Bands = append(out.Bands, raster.NaNs(out.Width*out.Height))
		out.NoData = append(out.NoData, math.NaN())
	}
	// B,G,R,NIR => R,G,B,NIR
	rgbn := []int{2, 1, 0, 3}
	for _, im := range images {
		col0 := int(math.Round((im.GeoTransform[0] - ext[0]) / resolution))
		row0 := int(math.Round((ext[3] - im.GeoTransform[3]) / resolution))
		for y := 0; y < im.Height; y++ {
			for x := 0; x < im.Width; x++ {
				i := y*im.Width + x
				if !im.Valid(i) {
					continue
				}
				o := (row0+y)*out.Width + col0 + x
				for b, src := range rgbn {
					out.Bands[b][o] = im.Bands[src][i]
				}
			}
		}
	}
	return out
}
