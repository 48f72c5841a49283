package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/airbusgeo/reserve-monitor/common"
	"github.com/airbusgeo/reserve-monitor/interface/planet"
	"github.com/airbusgeo/reserve-monitor/service/log"
	"github.com/go-spatial/geom"
)

// DefaultMaxCloudCover is the maximum cloud cover of the scenes returned by default
const DefaultMaxCloudCover = 0.5

// Searcher searches the scenes of the provider catalog
type Searcher interface {
	QuickSearch(ctx context.Context, opts planet.SearchOptions) ([]common.Scene, error)
}

// Catalog searches the scenes covering an area
type Catalog struct {
	Searcher Searcher
}

// Area to search
type Area struct {
	Geometry      geom.Geometry
	Start, End    time.Time // optional
	MaxCloudCover float64   // [0-1]
	// MinVisible filters the scenes whose visible percent is known and lower (0: no filter)
	MinVisible float64
}

// Validate checks the area
func (a Area) Validate() error {
	if a.Geometry == nil {
		return errors.New("missing geometry")
	}
	if a.MaxCloudCover < 0 || a.MaxCloudCover > 1 {
		return fmt.Errorf("cloud cover must be in [0, 1]: %f", a.MaxCloudCover)
	}
	if !a.Start.IsZero() && !a.End.IsZero() && a.End.Before(a.Start) {
		return fmt.Errorf("end date (%v) is before start date (%v)", a.End, a.Start)
	}
	return nil
}

// ScenesInventory lists the scenes covering the area, sorted by acquisition date
func (c *Catalog) ScenesInventory(ctx context.Context, area Area) ([]common.Scene, error) {
	if err := area.Validate(); err != nil {
		return nil, fmt.Errorf("ScenesInventory: %w", err)
	}
	log.Logger(ctx).Sugar().Debugf("search scenes from %v to %v (cloud cover <= %.2f)", area.Start, area.End, area.MaxCloudCover)
	scenes, err := c.Searcher.QuickSearch(ctx, planet.SearchOptions{
		Geometry:      area.Geometry,
		Start:         area.Start,
		End:           area.End,
		MaxCloudCover: area.MaxCloudCover,
	})
	if err != nil {
		return nil, fmt.Errorf("ScenesInventory.%w", err)
	}
	scenes = removeDoubleEntries(scenes)
	if area.MinVisible > 0 {
		scenes = filterVisible(scenes, area.MinVisible)
	}
	sort.SliceStable(scenes, func(i, j int) bool {
		return scenes[i].Properties.Acquired.Before(scenes[j].Properties.Acquired)
	})
	log.Logger(ctx).Sugar().Infof("%d scenes found", len(scenes))
	return scenes, nil
}

// removeDoubleEntries removes the scenes returned twice, keeping the first occurence
func removeDoubleEntries(scenes []common.Scene) []common.Scene {
	seen := make(map[string]struct{}, len(scenes))
	res := scenes[:0]
	for _, s := range scenes {
		if _, ok := seen[s.ID]; ok {
			continue
		}
		seen[s.ID] = struct{}{}
		res = append(res, s)
	}
	return res
}

func filterVisible(scenes []common.Scene, minVisible float64) []common.Scene {
	res := scenes[:0]
	for _, s := range scenes {
		// Unknown visible percent (NaN) is kept
		if !(s.Visible() < minVisible) {
			res = append(res, s)
		}
	}
	return res
}
