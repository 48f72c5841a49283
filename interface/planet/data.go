package planet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/airbusgeo/reserve-monitor/common"
	"github.com/airbusgeo/reserve-monitor/service"
	"github.com/airbusgeo/reserve-monitor/service/geometry"
	"github.com/airbusgeo/reserve-monitor/service/log"
	"github.com/go-spatial/geom"
)

// SearchOptions are the filters of a scene search
type SearchOptions struct {
	Geometry      geom.Geometry
	Start, End    time.Time // optional
	MaxCloudCover float64   // [0-1]
	ItemTypes     []string  // default: PSScene
	AssetTypes    []string  // default: ortho_analytic_4b_sr
}

// Geometries larger than accepted by the provider are simplified (tolerance doubled at each retry)
const (
	simplifyInitialTolerance = 1e-5
	simplifyMaxAttempts      = 8
)

type searchRequest struct {
	ItemTypes []string `json:"item_types"`
	Filter    filter   `json:"filter"`
}

type filter struct {
	Type   string        `json:"type"`
	Config []interface{} `json:"config"`
}

type objectFilter struct {
	Type      string      `json:"type"`
	FieldName string      `json:"field_name,omitempty"`
	Config    interface{} `json:"config"`
}

type dateConfig struct {
	GTE string `json:"gte,omitempty"`
	LTE string `json:"lte,omitempty"`
}

type rangeConfig struct {
	LTE *float64 `json:"lte,omitempty"`
}

type scenesPage struct {
	Features []common.Scene `json:"features"`
}

func newSearchRequest(opts SearchOptions, geometryJSON json.RawMessage) searchRequest {
	itemTypes := opts.ItemTypes
	if len(itemTypes) == 0 {
		itemTypes = []string{common.ItemTypePSScene}
	}
	assetTypes := opts.AssetTypes
	if len(assetTypes) == 0 {
		assetTypes = []string{common.AssetOrthoAnalytic4bSR}
	}
	cloudCover := opts.MaxCloudCover
	filters := []interface{}{
		objectFilter{Type: "GeometryFilter", FieldName: "geometry", Config: geometryJSON},
		objectFilter{Type: "AssetFilter", Config: assetTypes},
		objectFilter{Type: "RangeFilter", FieldName: "cloud_cover", Config: rangeConfig{LTE: &cloudCover}},
	}
	if !opts.Start.IsZero() || !opts.End.IsZero() {
		dc := dateConfig{}
		if !opts.Start.IsZero() {
			dc.GTE = opts.Start.UTC().Format(time.RFC3339)
		}
		if !opts.End.IsZero() {
			dc.LTE = opts.End.UTC().Format(time.RFC3339)
		}
		filters = append(filters, objectFilter{Type: "DateRangeFilter", FieldName: "acquired", Config: dc})
	}
	return searchRequest{ItemTypes: itemTypes, Filter: filter{Type: "AndFilter", Config: filters}}
}

// QuickSearch searches the scenes matching the options, following all the pages of results.
// If the geometry is too large for the provider (413), it is progressively simplified and the search is retried.
func (c *Client) QuickSearch(ctx context.Context, opts SearchOptions) ([]common.Scene, error) {
	g := opts.Geometry
	tolerance := simplifyInitialTolerance
	for attempt := 0; ; attempt++ {
		scenes, err := c.quickSearch(ctx, opts, g)
		if err == nil || service.HTTPStatus(err) != http.StatusRequestEntityTooLarge {
			return scenes, err
		}
		if attempt == simplifyMaxAttempts {
			return nil, fmt.Errorf("QuickSearch: geometry still too large after %d simplifications: %w", attempt, err)
		}
		before := geometry.NumPoints(g)
		if g, err = geometry.Simplify(g, tolerance); err != nil {
			return nil, fmt.Errorf("QuickSearch.%w", err)
		}
		log.Logger(ctx).Sugar().Infof("request too large: geometry simplified from %d to %d points (tolerance=%g)", before, geometry.NumPoints(g), tolerance)
		tolerance *= 2
	}
}

func (c *Client) quickSearch(ctx context.Context, opts SearchOptions, g geom.Geometry) ([]common.Scene, error) {
	if g == nil {
		return nil, errors.New("quickSearch: missing geometry")
	}
	geometryJSON, err := service.GeometryJSON(g)
	if err != nil {
		return nil, fmt.Errorf("quickSearch.%w", err)
	}
	req, err := service.NewJSONRequest(ctx, http.MethodPost, strings.TrimSuffix(c.DataURL, "/")+"/quick-search", newSearchRequest(opts, geometryJSON))
	if err != nil {
		return nil, fmt.Errorf("quickSearch.%w", err)
	}
	scenes, err := collect(c, req, func(body []byte) ([]common.Scene, error) {
		var page scenesPage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("Unmarshal: %w", err)
		}
		return page.Features, nil
	})
	if err != nil {
		return nil, fmt.Errorf("quickSearch.%w", err)
	}
	log.Logger(ctx).Sugar().Debugf("%d scenes found", len(scenes))
	return scenes, nil
}
