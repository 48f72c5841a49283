package common

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"math"
	"path"
	"time"
)

const (
	ItemTypePSScene            = "PSScene"
	AssetOrthoAnalytic4bSR     = "ortho_analytic_4b_sr"
	ProductBundleAnalyticSR    = "analytic_sr_udm2"
	HarmonizeTargetSentinel2   = "Sentinel-2"
	MonthlyNormalizedMosaicTag = "ps_monthly_normalized_"
)

// Links are the hypermedia links of a provider resource
type Links struct {
	Self     string `json:"_self,omitempty"`
	Next     string `json:"_next,omitempty"`
	Quads    string `json:"quads,omitempty"`
	Tiles    string `json:"tiles,omitempty"`
	Download string `json:"download,omitempty"`
}

// Mosaic is a provider-composited basemap
type Mosaic struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Interval      string     `json:"interval"`
	BBox          [4]float64 `json:"bbox"`
	ItemTypes     []string   `json:"item_types"`
	FirstAcquired time.Time  `json:"first_acquired"`
	LastAcquired  time.Time  `json:"last_acquired"`
	Links         Links      `json:"_links"`
}

// Quad is a fixed-size tile of a mosaic
type Quad struct {
	ID             string     `json:"id"`
	BBox           [4]float64 `json:"bbox"`
	PercentCovered float64    `json:"percent_covered"`
	Links          Links      `json:"_links"`
}

// SceneProperties are the searchable properties of a scene
type SceneProperties struct {
	Acquired         time.Time `json:"acquired"`
	CloudCover       float64   `json:"cloud_cover"`
	VisiblePercent   *float64  `json:"visible_percent,omitempty"`
	GroundControl    bool      `json:"ground_control"`
	SatelliteAzimuth float64   `json:"satellite_azimuth"`
	SatelliteID      string    `json:"satellite_id,omitempty"`
}

// Scene is a single satellite capture
type Scene struct {
	ID         string          `json:"id"`
	Properties SceneProperties `json:"properties"`
}

// Visible returns the visible percent of the scene or NaN if unknown
func (s Scene) Visible() float64 {
	if s.Properties.VisiblePercent == nil {
		return math.NaN()
	}
	return *s.Properties.VisiblePercent
}

// OrderResult is a file delivered by a successful order
type OrderResult struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	Delivery string `json:"delivery,omitempty"`
}

// FileName returns the last segment of the remote path of the result
func (r OrderResult) FileName() string {
	return path.Base(r.Name)
}

// OrderLinks are the links of an order
type OrderLinks struct {
	Self    string        `json:"_self"`
	Results []OrderResult `json:"results,omitempty"`
}

// Order is a provider-side batch job
type Order struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	State       string     `json:"state"`
	LastMessage *string    `json:"last_message,omitempty"`
	Links       OrderLinks `json:"_links"`
}

// Status returns the parsed state of the order
func (o Order) Status() OrderState {
	return ParseOrderState(o.State)
}

// Message returns the last message or "" if missing
func (o Order) Message() string {
	if o.LastMessage == nil {
		return ""
	}
	return *o.LastMessage
}

// OrderReport summarizes a sub-order once terminal
type OrderReport struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Chunk      int        `json:"chunk"`
	State      OrderState `json:"state"`
	ItemIDs    []string   `json:"item_ids"`
	Downloaded []string   `json:"downloaded,omitempty"`
}

// Value implements the driver.Value interface
func (r OrderReport) Value() (driver.Value, error) {
	return json.Marshal(r)
}

// Scan implements the sql.Scanner interface
func (r *OrderReport) Scan(value interface{}) error {
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, r)
}

const (
	EventTypeOrder   = "order"
	EventTypeProduct = "product"
)

// Event is published when an order is terminal or a product is created
type Event struct {
	Type    string     `json:"type"` // order (EventTypeOrder) or product (EventTypeProduct)
	ID      string     `json:"id"`
	State   OrderState `json:"state,omitempty"`
	Files   []string   `json:"files,omitempty"`
	Message string     `json:"message,omitempty"`

	// Order events only
	Name    string   `json:"name,omitempty"`
	RunID   string   `json:"run_id,omitempty"`
	Chunk   int      `json:"chunk,omitempty"`
	URL     string   `json:"url,omitempty"`
	ItemIDs []string `json:"item_ids,omitempty"`
}
