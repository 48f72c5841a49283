package planet

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/airbusgeo/reserve-monitor/common"
	"github.com/airbusgeo/reserve-monitor/service"
	"github.com/airbusgeo/reserve-monitor/service/log"
)

// Default endpoints of the provider
const (
	DefaultBasemapsURL = "https://api.planet.com/basemaps/v1/mosaics"
	DefaultDataURL     = "https://api.planet.com/data/v1"
	DefaultOrdersURL   = "https://api.planet.com/compute/ops/orders/v2"
)

// Client is a client of the provider API
type Client struct {
	HTTP        *http.Client
	BasemapsURL string
	DataURL     string
	OrdersURL   string

	// RateLimitWait is the pause before retrying a request rejected with 429 (Too Many Requests)
	RateLimitWait time.Duration
	// MaxRateLimitRetries is the number of retries of a rate-limited request (0: unlimited)
	MaxRateLimitRetries int
}

// NewClient returns a client using the default endpoints
func NewClient(httpClient *http.Client) *Client {
	return &Client{
		HTTP:          httpClient,
		BasemapsURL:   DefaultBasemapsURL,
		DataURL:       DefaultDataURL,
		OrdersURL:     DefaultOrdersURL,
		RateLimitWait: time.Second,
	}
}

// Hosts returns the hosts of the endpoints (to be authenticated)
func (c *Client) Hosts() []string {
	hosts := service.NewStringSet()
	for _, u := range []string{c.BasemapsURL, c.DataURL, c.OrdersURL} {
		if h := HostOf(u); h != "" {
			hosts.Push(h)
		}
	}
	return hosts.Slice()
}

// send sends the request and returns the body of the response.
// Rate-limited requests are retried after RateLimitWait.
func (c *Client) send(req *http.Request) ([]byte, error) {
	ctx := req.Context()
	for retry := 0; ; retry++ {
		r := req.Clone(ctx)
		if retry > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("send.GetBody: %w", err)
			}
			r.Body = body
		}
		resp, err := c.HTTP.Do(r)
		if err != nil {
			return nil, service.MakeTemporary(fmt.Errorf("send[%s]: %w", req.URL, err))
		}
		if resp.StatusCode == http.StatusTooManyRequests && (c.MaxRateLimitRetries <= 0 || retry < c.MaxRateLimitRetries) {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			log.Logger(ctx).Sugar().Debugf("rate limited on %s: retry in %v", req.URL.Path, c.RateLimitWait)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.RateLimitWait):
			}
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, service.NewHTTPError(resp)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, service.MakeTemporary(fmt.Errorf("send.ReadAll: %w", err))
		}
		return body, nil
	}
}

func (c *Client) sendJSON(ctx context.Context, method, url string, payload, out interface{}) error {
	req, err := service.NewJSONRequest(ctx, method, url, payload)
	if err != nil {
		return err
	}
	body, err := c.send(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("Unmarshal[%s]: %w", body, err)
	}
	return nil
}

type pageLinks struct {
	Links common.Links `json:"_links"`
}

// PageHandler handles the body of a page
type PageHandler func(body []byte) error

// Paginate sends the first request, then follows the "_links._next" link of each page until absent.
// Each page is passed to handle, in page order.
func (c *Client) Paginate(req *http.Request, handle PageHandler) error {
	ctx := req.Context()
	for page := 1; ; page++ {
		body, err := c.send(req)
		if err != nil {
			return fmt.Errorf("Paginate[page %d].%w", page, err)
		}
		var links pageLinks
		if err := json.Unmarshal(body, &links); err != nil {
			return fmt.Errorf("Paginate.Unmarshal[%s]: %w", body, err)
		}
		if err := handle(body); err != nil {
			return fmt.Errorf("Paginate.handle: %w", err)
		}
		if links.Links.Next == "" {
			return nil
		}
		if req, err = http.NewRequestWithContext(ctx, http.MethodGet, links.Links.Next, nil); err != nil {
			return fmt.Errorf("Paginate.NewRequest: %w", err)
		}
		req.Header.Set("Accept", "application/json")
	}
}

// collect paginates and accumulates the items of all the pages.
// On error, the partial results are discarded.
func collect[T any](c *Client, req *http.Request, items func(body []byte) ([]T, error)) ([]T, error) {
	var all []T
	err := c.Paginate(req, func(body []byte) error {
		page, err := items(body)
		if err != nil {
			return err
		}
		all = append(all, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}
