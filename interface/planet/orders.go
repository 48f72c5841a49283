package planet

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/airbusgeo/reserve-monitor/common"
)

// OrderRequest is the payload of an order creation
type OrderRequest struct {
	Name       string         `json:"name"`
	SourceType string         `json:"source_type,omitempty"`
	Products   []OrderProduct `json:"products"`
	Tools      []OrderTool    `json:"tools,omitempty"`
	Delivery   *Delivery      `json:"delivery,omitempty"`
}

// OrderProduct is a set of items to deliver with a given bundle
type OrderProduct struct {
	ItemIDs       []string `json:"item_ids"`
	ItemType      string   `json:"item_type"`
	ProductBundle string   `json:"product_bundle"`
}

// OrderTool is a processing applied to the items before delivery (only one field must be set)
type OrderTool struct {
	Clip      *ClipTool      `json:"clip,omitempty"`
	Harmonize *HarmonizeTool `json:"harmonize,omitempty"`
}

// ClipTool clips the items to the AOI (GeoJSON polygon)
type ClipTool struct {
	AOI json.RawMessage `json:"aoi"`
}

// HarmonizeTool harmonizes the radiometry of the items with a target sensor
type HarmonizeTool struct {
	TargetSensor string `json:"target_sensor"`
}

// Delivery configures how the order is delivered
type Delivery struct {
	ArchiveType        string              `json:"archive_type,omitempty"`
	ArchiveFilename    string              `json:"archive_filename,omitempty"`
	SingleArchive      bool                `json:"single_archive,omitempty"`
	AmazonS3           *AmazonS3Delivery   `json:"amazon_s3,omitempty"`
	GoogleCloudStorage *GoogleCloudStorage `json:"google_cloud_storage,omitempty"`
}

// AmazonS3Delivery delivers the order to an S3 bucket
type AmazonS3Delivery struct {
	Bucket             string `json:"bucket"`
	AWSRegion          string `json:"aws_region"`
	AWSAccessKeyID     string `json:"aws_access_key_id"`
	AWSSecretAccessKey string `json:"aws_secret_access_key"`
	PathPrefix         string `json:"path_prefix,omitempty"`
}

// GoogleCloudStorage delivers the order to a GCS bucket
type GoogleCloudStorage struct {
	Bucket      string `json:"bucket"`
	Credentials string `json:"credentials"` // base64-encoded service account key
	PathPrefix  string `json:"path_prefix,omitempty"`
}

// NewSceneOrderRequest creates the request of an order of scenes, with optional clip and harmonization
func NewSceneOrderRequest(name string, itemIDs []string, clipAOI json.RawMessage, harmonize bool) OrderRequest {
	req := OrderRequest{
		Name:       name,
		SourceType: "scenes",
		Products: []OrderProduct{{
			ItemIDs:       itemIDs,
			ItemType:      common.ItemTypePSScene,
			ProductBundle: common.ProductBundleAnalyticSR,
		}},
	}
	if clipAOI != nil {
		req.Tools = append(req.Tools, OrderTool{Clip: &ClipTool{AOI: clipAOI}})
	}
	if harmonize {
		req.Tools = append(req.Tools, OrderTool{Harmonize: &HarmonizeTool{TargetSensor: common.HarmonizeTargetSentinel2}})
	}
	return req
}

// CreateOrder submits the order and returns it (with the url to poll its state)
func (c *Client) CreateOrder(ctx context.Context, orderRequest OrderRequest) (common.Order, error) {
	var order common.Order
	if err := c.sendJSON(ctx, http.MethodPost, c.OrdersURL, orderRequest, &order); err != nil {
		return order, fmt.Errorf("CreateOrder[%s].%w", orderRequest.Name, err)
	}
	if order.Links.Self == "" {
		return order, fmt.Errorf("CreateOrder[%s]: missing url of the order", orderRequest.Name)
	}
	return order, nil
}

// GetOrder fetches the order from its url
func (c *Client) GetOrder(ctx context.Context, orderURL string) (common.Order, error) {
	var order common.Order
	if err := c.sendJSON(ctx, http.MethodGet, orderURL, nil, &order); err != nil {
		return order, fmt.Errorf("GetOrder.%w", err)
	}
	return order, nil
}
