package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/airbusgeo/reserve-monitor/service"
	"github.com/airbusgeo/reserve-monitor/service/log"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	areaField       = "area"
	startField      = "start"
	endField        = "end"
	cloudCoverField = "cloud_cover"
	minVisibleField = "min_visible"
	formatField     = "format"
)

func (c *Catalog) AddHandler(r *mux.Router) {
	r.HandleFunc("/catalog/scenes", c.ScenesHandler).Methods("GET")
	r.HandleFunc("/catalog/scenes", c.ScenesHandler).Methods("POST")
}

func readField(req *http.Request, field string) ([]byte, error) {
	if req.FormValue(field) != "" {
		return []byte(req.FormValue(field)), nil
	}
	file, _, err := req.FormFile(field)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var buf bytes.Buffer
	io.Copy(&buf, file)
	return buf.Bytes(), nil
}

func readFloat(req *http.Request, field string, defaultValue float64) (float64, error) {
	s := req.FormValue(field)
	if s == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return v, nil
}

func (c *Catalog) loadArea(req *http.Request) (Area, error) {
	area := Area{}
	areaJSON, err := readField(req, areaField)
	if err != nil || len(areaJSON) == 0 {
		return area, fmt.Errorf("loadArea: missing required field: '%s' (GeoJSON)", areaField)
	}
	if area.Geometry, err = service.UnmarshalGeometry(areaJSON); err != nil {
		return area, fmt.Errorf("loadArea: %w\nJSON:\n%s", err, areaJSON)
	}
	if area.Start, area.End, err = service.ParseDateRange(req.FormValue(startField), req.FormValue(endField)); err != nil {
		return area, fmt.Errorf("loadArea.%w", err)
	}
	if area.MaxCloudCover, err = readFloat(req, cloudCoverField, DefaultMaxCloudCover); err != nil {
		return area, fmt.Errorf("loadArea.%w", err)
	}
	if area.MinVisible, err = readFloat(req, minVisibleField, 0); err != nil {
		return area, fmt.Errorf("loadArea.%w", err)
	}
	return area, area.Validate()
}

// ScenesHandler searches the scenes covering the area and returns them as json (default) or csv (format=csv)
func (c *Catalog) ScenesHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	area, err := c.loadArea(req)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "%v", err)
		return
	}

	scenes, err := c.ScenesInventory(ctx, area)
	if err != nil {
		log.Logger(ctx).Warn("ScenesHandler", zap.Error(err))
		if service.Temporary(err) {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusInternalServerError)
		}
		fmt.Fprintf(w, "%v", err)
		return
	}

	switch req.FormValue(formatField) {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		if err := WriteScenesCSV(w, scenes); err != nil {
			log.Logger(ctx).Warn("ScenesHandler.WriteScenesCSV", zap.Error(err))
		}
	default:
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(scenes); err != nil {
			log.Logger(ctx).Warn("ScenesHandler.Encode", zap.Error(err))
		}
	}
}
