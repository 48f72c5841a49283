package index

import (
	"fmt"
	"math"
	"strings"
)

// Index is a derived product computed pixel by pixel from the bands of a mosaic
type Index string

// Supported indices
const (
	NDVI   Index = "ndvi"
	NDWI   Index = "ndwi"
	MSAVI2 Index = "msavi2"
	MTVI2  Index = "mtvi2"
	VARI   Index = "vari"
	TGI    Index = "tgi"
)

// All returns the supported indices
func All() []Index {
	return []Index{NDVI, NDWI, MSAVI2, MTVI2, VARI, TGI}
}

// Pixel holds the reflectances of a pixel
type Pixel struct {
	Blue, Green, Red, NIR float64
}

// Formula computes an index. It returns NaN if the index is undefined for this pixel.
type Formula func(p Pixel) float64

var formulas = map[Index]Formula{
	NDVI: func(p Pixel) float64 {
		return ratio(p.NIR-p.Red, p.NIR+p.Red)
	},
	NDWI: func(p Pixel) float64 {
		return ratio(p.Green-p.NIR, p.Green+p.NIR)
	},
	MSAVI2: func(p Pixel) float64 {
		a := 2*p.NIR + 1
		return (a - math.Sqrt(a*a-8*(p.NIR-p.Red))) / 2
	},
	MTVI2: func(p Pixel) float64 {
		a := 2*p.NIR + 1
		return ratio(1.5*(1.2*(p.NIR-p.Green)-2.5*(p.Red-p.Green)), math.Sqrt(a*a-(6*p.NIR-5*math.Sqrt(p.Red))-0.5))
	},
	VARI: func(p Pixel) float64 {
		return ratio(p.Green-p.Red, p.Green+p.Red-p.Blue)
	},
	TGI: func(p Pixel) float64 {
		return -0.5 * (190*(p.Red-p.Green) - 120*(p.Red-p.Blue))
	},
}

func ratio(num, den float64) float64 {
	if den == 0 || math.IsNaN(den) || math.IsInf(den, 0) {
		return math.NaN()
	}
	return num / den
}

// Compute returns the value of the index for the pixel (NaN if undefined)
func (i Index) Compute(p Pixel) float64 {
	f, ok := formulas[i]
	if !ok {
		return math.NaN()
	}
	v := f(p)
	if math.IsInf(v, 0) {
		return math.NaN()
	}
	return v
}

// ParseIndex returns the index with the given name (case-insensitive)
func ParseIndex(s string) (Index, error) {
	i := Index(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := formulas[i]; !ok {
		return "", fmt.Errorf("ParseIndex: unknown index %s", s)
	}
	return i, nil
}

// ParseIndices parses a comma-separated list of indices ("all" or "" for all of them)
func ParseIndices(s string) ([]Index, error) {
	if s == "" || strings.EqualFold(s, "all") {
		return All(), nil
	}
	var indices []Index
	for _, name := range strings.Split(s, ",") {
		i, err := ParseIndex(name)
		if err != nil {
			return nil, err
		}
		indices = append(indices, i)
	}
	return indices, nil
}
