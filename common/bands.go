package common

import (
	"fmt"
	"strings"
)

// BandLayout gives the 1-based index of each band in a 4-band raster
type BandLayout struct {
	Blue, Green, Red, NIR int
}

var (
	// LayoutBGRN is the layout of PlanetScope 4-band surface reflectance scenes
	LayoutBGRN = BandLayout{Blue: 1, Green: 2, Red: 3, NIR: 4}
	// LayoutRGBN is the layout of the mosaics written by this module
	LayoutRGBN = BandLayout{Red: 1, Green: 2, Blue: 3, NIR: 4}
)

// RGBNNames are the band descriptions of a RGBN mosaic
var RGBNNames = []string{"R", "G", "B", "NIR"}

// ParseBandLayout returns the layout of a four-letter name (e.g. "bgrn", "rgbn")
func ParseBandLayout(s string) (BandLayout, error) {
	s = strings.ToLower(s)
	if len(s) != 4 {
		return BandLayout{}, fmt.Errorf("ParseBandLayout: expected 4 letters, got %s", s)
	}
	var l BandLayout
	for i, c := range s {
		var b *int
		switch c {
		case 'b':
			b = &l.Blue
		case 'g':
			b = &l.Green
		case 'r':
			b = &l.Red
		case 'n':
			b = &l.NIR
		default:
			return BandLayout{}, fmt.Errorf("ParseBandLayout: unknown band %c in %s", c, s)
		}
		if *b != 0 {
			return BandLayout{}, fmt.Errorf("ParseBandLayout: duplicated band %c in %s", c, s)
		}
		*b = i + 1
	}
	return l, nil
}

// Indexes returns the band indexes in the order B, G, R, NIR
func (l BandLayout) Indexes() []int {
	return []int{l.Blue, l.Green, l.Red, l.NIR}
}

// ToRGBN returns the source band indexes to reorder a raster with this layout into RGBN
func (l BandLayout) ToRGBN() []int {
	return []int{l.Red, l.Green, l.Blue, l.NIR}
}
