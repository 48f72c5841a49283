package mosaic

import (
	"errors"
	"fmt"
	"math"

	"github.com/airbusgeo/reserve-monitor/service/raster"
	"github.com/airbusgeo/reserve-monitor/vector"
)

// ErrNoOverlap is returned by Clip when the raster does not intersect the boundary
var ErrNoOverlap = errors.New("raster does not overlap the boundary")

// Clip crops the raster to the envelope of the boundary and sets the pixels outside the boundary to nodata.
// The output is a float32 GeoTIFF in the CRS of the raster.
func Clip(src string, boundary vector.Boundary, dst string) error {
	im, err := raster.Read(src)
	if err != nil {
		return fmt.Errorf("Clip.%w", err)
	}
	b, err := vector.ReprojectToSRS(boundary, im.SRS)
	if err != nil {
		return fmt.Errorf("Clip.%w", err)
	}
	env, err := vector.Envelope(b.Geometry)
	if err != nil {
		return fmt.Errorf("Clip.%w", err)
	}

	gt := im.GeoTransform
	x0, y0 := im.Pixel(env.MinX(), env.MaxY())
	x1 := int(math.Ceil((env.MaxX() - gt[0]) / gt[1]))
	y1 := int(math.Ceil((env.MinY() - gt[3]) / gt[5]))
	x0, y0 = max(x0, 0), max(y0, 0)
	x1, y1 = min(x1, im.Width), min(y1, im.Height)
	if x0 >= x1 || y0 >= y1 {
		return fmt.Errorf("Clip[%s]: %w", src, ErrNoOverlap)
	}

	out := &raster.Image{
		Width:        x1 - x0,
		Height:       y1 - y0,
		GeoTransform: [6]float64{gt[0] + float64(x0)*gt[1], gt[1], 0, gt[3] + float64(y0)*gt[5], 0, gt[5]},
		SRS:          im.SRS,
		Descriptions: im.Descriptions,
		Metadata:     im.Metadata,
	}
	g, err := b.OGRGeometry()
	if err != nil {
		return fmt.Errorf("Clip.%w", err)
	}
	defer g.Close()
	for bi, src := range im.Bands {
		band := make([]float64, out.Width*out.Height)
		for y := 0; y < out.Height; y++ {
			copy(band[y*out.Width:(y+1)*out.Width], src[(y0+y)*im.Width+x0:(y0+y)*im.Width+x1])
		}
		out.Bands = append(out.Bands, band)
		out.NoData = append(out.NoData, im.NoData[bi])
	}
	mask, err := out.Mask(g)
	if err != nil {
		return fmt.Errorf("Clip.%w", err)
	}
	inside := false
	for i, m := range mask {
		if m {
			inside = true
			continue
		}
		for _, band := range out.Bands {
			band[i] = math.NaN()
		}
	}
	if !inside {
		return fmt.Errorf("Clip[%s]: %w", src, ErrNoOverlap)
	}
	if err := raster.WriteFloat32(dst, out); err != nil {
		return fmt.Errorf("Clip.%w", err)
	}
	return nil
}
