package planet

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/airbusgeo/reserve-monitor/common"
)

type mosaicsPage struct {
	Mosaics []common.Mosaic `json:"mosaics"`
}

type quadsPage struct {
	Items []common.Quad `json:"items"`
}

// ListMosaics lists all the mosaics (whose name contains nameContains, if not empty)
func (c *Client) ListMosaics(ctx context.Context, nameContains string) ([]common.Mosaic, error) {
	params := url.Values{}
	if nameContains != "" {
		params.Set("name__contains", nameContains)
	}
	mosaics, err := c.listMosaics(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("ListMosaics.%w", err)
	}
	return mosaics, nil
}

// GetMosaic returns the mosaic with the given name
func (c *Client) GetMosaic(ctx context.Context, name string) (common.Mosaic, error) {
	mosaics, err := c.listMosaics(ctx, url.Values{"name__is": []string{name}})
	if err != nil {
		return common.Mosaic{}, fmt.Errorf("GetMosaic.%w", err)
	}
	if len(mosaics) == 0 {
		return common.Mosaic{}, ErrNotFound{Type: "mosaic", ID: name}
	}
	return mosaics[0], nil
}

func (c *Client) listMosaics(ctx context.Context, params url.Values) ([]common.Mosaic, error) {
	u := c.BasemapsURL
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("NewRequest: %w", err)
	}
	return collect(c, req, func(body []byte) ([]common.Mosaic, error) {
		var page mosaicsPage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("Unmarshal: %w", err)
		}
		return page.Mosaics, nil
	})
}

// ListQuads lists the quads of the mosaic that intersect the bbox (minx, miny, maxx, maxy in lon/lat)
func (c *Client) ListQuads(ctx context.Context, mosaic common.Mosaic, bbox [4]float64) ([]common.Quad, error) {
	params := url.Values{}
	params.Set("bbox", BBoxParam(bbox))
	params.Set("minimal", "true")
	u := strings.TrimSuffix(c.BasemapsURL, "/") + "/" + url.PathEscape(mosaic.ID) + "/quads?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("ListQuads.NewRequest: %w", err)
	}
	quads, err := collect(c, req, func(body []byte) ([]common.Quad, error) {
		var page quadsPage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("Unmarshal: %w", err)
		}
		return page.Items, nil
	})
	if err != nil {
		return nil, fmt.Errorf("ListQuads[%s].%w", mosaic.Name, err)
	}
	return quads, nil
}

// BBoxParam formats a bbox as expected by the quads endpoint
func BBoxParam(bbox [4]float64) string {
	s := make([]string, len(bbox))
	for i, v := range bbox {
		s[i] = fmt.Sprintf("%g", v)
	}
	return strings.Join(s, ",")
}

// ErrNotFound is returned when a resource does not exist
type ErrNotFound struct {
	Type, ID string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Type, e.ID)
}
