package planet

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/airbusgeo/reserve-monitor/common"
	"github.com/airbusgeo/reserve-monitor/service"
	geomwkt "github.com/go-spatial/geom/encoding/wkt"
)

func newTestClient(srv *httptest.Server) *Client {
	c := NewClient(srv.Client())
	c.BasemapsURL = srv.URL + "/basemaps/v1/mosaics"
	c.DataURL = srv.URL + "/data/v1"
	c.OrdersURL = srv.URL + "/compute/ops/orders/v2"
	c.RateLimitWait = time.Millisecond
	return c
}

func TestPaginate(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		var next string
		switch page {
		case "":
			page = "1"
			next = srv.URL + "/basemaps/v1/mosaics?page=2"
		case "2":
			next = srv.URL + "/basemaps/v1/mosaics?page=3"
		}
		fmt.Fprintf(w, `{"_links":{"_self":"%s","_next":"%s"},"mosaics":[{"id":"m%s_a","name":"a"},{"id":"m%s_b","name":"b"}]}`, r.URL, next, page, page)
	}))
	defer srv.Close()
	c := newTestClient(srv)

	mosaics, err := c.ListMosaics(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	expected := []string{"m1_a", "m1_b", "m2_a", "m2_b", "m3_a", "m3_b"}
	if len(mosaics) != len(expected) {
		t.Fatalf("expected %d mosaics, got %d", len(expected), len(mosaics))
	}
	for i, m := range mosaics {
		if m.ID != expected[i] {
			t.Errorf("mosaic %d: expected %s, got %s", i, expected[i], m.ID)
		}
	}
}

func TestPaginateError(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprintf(w, `{"_links":{"_next":"%s"},"mosaics":[{"id":"m1"}]}`, srv.URL+"/basemaps/v1/mosaics?page=2")
	}))
	defer srv.Close()

	mosaics, err := newTestClient(srv).ListMosaics(context.Background(), "")
	if err == nil || !service.Temporary(err) {
		t.Errorf("expected a temporary error, got %v", err)
	}
	if mosaics != nil {
		t.Errorf("partial results must be discarded")
	}
}

func TestRateLimit(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"_links":{},"mosaics":[{"id":"m1","name":"ps_monthly_normalized_analytic_2021_07_mosaic"}]}`))
	}))
	defer srv.Close()

	m, err := newTestClient(srv).GetMosaic(context.Background(), "ps_monthly_normalized_analytic_2021_07_mosaic")
	if err != nil {
		t.Fatal(err)
	}
	if m.ID != "m1" || calls != 3 {
		t.Errorf("expected m1 after 3 calls, got %s after %d calls", m.ID, calls)
	}

	calls = -10
	c := newTestClient(srv)
	c.MaxRateLimitRetries = 2
	if _, err := c.GetMosaic(context.Background(), "any"); service.HTTPStatus(err) != http.StatusTooManyRequests {
		t.Errorf("expected a 429 error, got %v", err)
	}
}

func TestListQuads(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/basemaps/v1/mosaics/m1/quads" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.URL.Query().Get("bbox") != "-120.1,34.6,-120,34.8" || r.URL.Query().Get("minimal") != "true" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"_links":{},"items":[{"id":"L15-0343E-1259N","_links":{"download":"http://dl/1"}}]}`))
	}))
	defer srv.Close()

	quads, err := newTestClient(srv).ListQuads(context.Background(), common.Mosaic{ID: "m1"}, [4]float64{-120.1, 34.6, -120, 34.8})
	if err != nil {
		t.Fatal(err)
	}
	if len(quads) != 1 || quads[0].ID != "L15-0343E-1259N" || quads[0].Links.Download != "http://dl/1" {
		t.Errorf("unexpected quads %+v", quads)
	}
}

func TestQuickSearch(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Write([]byte(`{"_links":{},"features":[{"id":"20210902_180001_1001","properties":{"acquired":"2021-09-02T18:00:01.5Z","visible_percent":90}}]}`))
			return
		}
		var req struct {
			ItemTypes []string `json:"item_types"`
			Filter    struct {
				Type   string `json:"type"`
				Config []struct {
					Type      string          `json:"type"`
					FieldName string          `json:"field_name"`
					Config    json.RawMessage `json:"config"`
				} `json:"config"`
			} `json:"filter"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.Filter.Type != "AndFilter" || len(req.Filter.Config) != 4 || req.ItemTypes[0] != "PSScene" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var geometry struct {
			Coordinates [][][2]float64 `json:"coordinates"`
		}
		json.Unmarshal(req.Filter.Config[0].Config, &geometry)
		if len(geometry.Coordinates[0]) > 6 {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		if string(req.Filter.Config[2].Config) != `{"lte":0.5}` || !strings.Contains(string(req.Filter.Config[3].Config), `"gte":"2021-09-01T00:00:00Z"`) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fmt.Fprintf(w, `{"_links":{"_next":"%s/data/v1/searches/1/results?page=2"},"features":[{"id":"20210901_180754_1032","properties":{"acquired":"2021-09-01T18:07:54.123Z","ground_control":true,"satellite_azimuth":100.5}}]}`, srv.URL)
	}))
	defer srv.Close()

	g, err := geomwkt.DecodeString("POLYGON ((0 0, 0.5 0, 1 0, 1 0.5, 1 1, 0.5 1, 0 1, 0 0.5, 0 0))")
	if err != nil {
		t.Fatal(err)
	}
	scenes, err := newTestClient(srv).QuickSearch(context.Background(), SearchOptions{
		Geometry:      g,
		Start:         time.Date(2021, 9, 1, 0, 0, 0, 0, time.UTC),
		MaxCloudCover: 0.5,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(scenes) != 2 || scenes[0].ID != "20210901_180754_1032" || scenes[1].ID != "20210902_180001_1001" {
		t.Fatalf("unexpected scenes %+v", scenes)
	}
	if !scenes[0].Properties.GroundControl || scenes[0].Properties.SatelliteAzimuth != 100.5 || scenes[1].Visible() != 90 {
		t.Errorf("unexpected properties %+v", scenes)
	}
}

func TestOrders(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var req OrderRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Tools) != 2 || req.Tools[1].Harmonize.TargetSensor != "Sentinel-2" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusAccepted)
			fmt.Fprintf(w, `{"id":"o1","name":"%s","state":"queued","_links":{"_self":"%s/compute/ops/orders/v2/o1"}}`, req.Name, srv.URL)
		case http.MethodGet:
			w.Write([]byte(`{"id":"o1","state":"success","last_message":"Manifest delivery completed","_links":{"_self":"x","results":[{"name":"o1/PSScene/20210901_180754_1032_3B_AnalyticMS_SR_harmonized_clip.tif","location":"http://dl/1"}]}}`))
		}
	}))
	defer srv.Close()
	c := newTestClient(srv)
	ctx := context.Background()

	order, err := c.CreateOrder(ctx, NewSceneOrderRequest("test", []string{"20210901_180754_1032"}, json.RawMessage(`{"type":"Polygon","coordinates":[]}`), true))
	if err != nil {
		t.Fatal(err)
	}
	if order.Status() != common.OrderStateQueued || order.Name != "test" {
		t.Errorf("unexpected order %+v", order)
	}
	order, err = c.GetOrder(ctx, order.Links.Self)
	if err != nil {
		t.Fatal(err)
	}
	if order.Status() != common.OrderStateSuccess || len(order.Links.Results) != 1 {
		t.Fatalf("unexpected order %+v", order)
	}
	if f := order.Links.Results[0].FileName(); f != "20210901_180754_1032_3B_AnalyticMS_SR_harmonized_clip.tif" {
		t.Errorf("unexpected file name %s", f)
	}
}

func TestTransport(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
	}))
	defer srv.Close()
	ctx := context.Background()

	client, err := NewHTTPClient(ctx, AuthConfig{APIKey: "key"})
	if err != nil {
		t.Fatal(err)
	}
	client.Get(srv.URL)
	if auth != "Basic a2V5Og==" {
		t.Errorf("expected basic auth, got %s", auth)
	}

	client, err = NewHTTPClient(ctx, AuthConfig{Scheme: AuthBearer, APIKey: "key"})
	if err != nil {
		t.Fatal(err)
	}
	client.Get(srv.URL)
	if auth != "Bearer key" {
		t.Errorf("expected bearer auth, got %s", auth)
	}

	client, err = NewHTTPClient(ctx, AuthConfig{APIKey: "key"}, "api.planet.com")
	if err != nil {
		t.Fatal(err)
	}
	client.Get(srv.URL)
	if auth != "" {
		t.Errorf("expected no auth outside the api hosts, got %s", auth)
	}

	if _, err := NewHTTPClient(ctx, AuthConfig{}); err == nil {
		t.Errorf("expected an error without api key")
	}
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		io.WriteString(w, "quad content")
	}))
	defer srv.Close()
	c := newTestClient(srv)
	ctx := context.Background()
	dir := t.TempDir()
	dst := filepath.Join(dir, "quads", "L15-0343E-1259N.tiff")

	downloaded, err := c.DownloadIfMissing(ctx, srv.URL+"/quad", dst)
	if err != nil {
		t.Fatal(err)
	}
	if !downloaded {
		t.Errorf("expected a download")
	}
	if b, err := os.ReadFile(dst); err != nil || string(b) != "quad content" {
		t.Errorf("unexpected content %s (%v)", b, err)
	}
	if service.FileExists(service.AtomicPath(dst)) {
		t.Errorf("temporary file must be renamed")
	}
	if downloaded, err = c.DownloadIfMissing(ctx, srv.URL+"/quad", dst); err != nil || downloaded {
		t.Errorf("expected a skip, got %v %v", downloaded, err)
	}
	if err := c.Download(ctx, srv.URL+"/missing", filepath.Join(dir, "missing.tiff")); err == nil || service.Temporary(err) {
		t.Errorf("expected a permanent error, got %v", err)
	}
}
