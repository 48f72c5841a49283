package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/airbusgeo/geocube/interface/messaging"
	"github.com/airbusgeo/reserve-monitor/common"
	db "github.com/airbusgeo/reserve-monitor/interface/database"
	"github.com/airbusgeo/reserve-monitor/interface/delivery"
	"github.com/airbusgeo/reserve-monitor/interface/events"
	"github.com/airbusgeo/reserve-monitor/interface/planet"
	"github.com/airbusgeo/reserve-monitor/service"
	"github.com/airbusgeo/reserve-monitor/service/log"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrPollTimeout is returned when an order is still not terminal after MaxPollDuration
var ErrPollTimeout = errors.New("order is not terminal after the maximum polling duration")

// API is the part of the provider client used to run the orders
type API interface {
	CreateOrder(ctx context.Context, req planet.OrderRequest) (common.Order, error)
	GetOrder(ctx context.Context, url string) (common.Order, error)
	DownloadIfMissing(ctx context.Context, url, dst string) (bool, error)
}

// Ledger records the orders and their states
type Ledger interface {
	CreateOrder(ctx context.Context, order db.Order) error
	UpdateOrder(ctx context.Context, id string, state common.OrderState, message *string) error
}

// PollConfig configures the polling of the state of an order
type PollConfig struct {
	QueuedInterval           time.Duration
	RunningInterval          time.Duration
	RunningNoMessageInterval time.Duration
	// MaxPollDuration stops polling an order (0: poll until terminal)
	MaxPollDuration time.Duration
}

// DefaultPollConfig returns the default polling intervals
func DefaultPollConfig() PollConfig {
	return PollConfig{
		QueuedInterval:           time.Second,
		RunningInterval:          5 * time.Second,
		RunningNoMessageInterval: 4 * time.Second,
	}
}

// Interval returns the time to wait before polling the order again
func (p PollConfig) Interval(order common.Order) time.Duration {
	switch order.Status() {
	case common.OrderStateSubmitted, common.OrderStateQueued:
		return p.QueuedInterval
	}
	if order.LastMessage == nil {
		return p.RunningNoMessageInterval
	}
	return p.RunningInterval
}

// Request is an order of scenes, split in sub-orders of at most ChunkSize items
type Request struct {
	Name      string
	ItemIDs   []string
	ClipAOI   json.RawMessage // optional
	Harmonize bool
	ChunkSize int // default: MaxItemsPerOrder
	Delivery  *planet.Delivery
}

// Runner submits the orders, polls them until terminal and downloads the results
type Runner struct {
	API    API
	Poll   PollConfig
	OutDir string
	RunID  string

	// Optional
	Ledger Ledger
	Events messaging.Publisher
	// Fetcher retrieves the results delivered in a bucket at DeliveryLocation/<order id>
	// instead of downloading them from the order links
	Fetcher          delivery.Fetcher
	DeliveryLocation delivery.Location
	// Extract the zip archives of the results
	Extract bool
}

// NewRunner creates a runner with the default polling configuration and a new run id
func NewRunner(api API, outDir string) *Runner {
	return &Runner{
		API:    api,
		Poll:   DefaultPollConfig(),
		OutDir: outDir,
		RunID:  uuid.New().String(),
	}
}

// Run splits the request in sub-orders and runs them sequentially.
// A sub-order ending in partial, failed or cancelled state does not stop the run.
// Returns the reports of the sub-orders that have been run.
func (r *Runner) Run(ctx context.Context, req Request) ([]common.OrderReport, error) {
	chunks := Split(req.ItemIDs, req.ChunkSize)
	ctx = log.With(ctx, "run", r.RunID)
	log.Logger(ctx).Sugar().Infof("%d items to order in %d sub-orders", len(req.ItemIDs), len(chunks))

	reports := make([]common.OrderReport, 0, len(chunks))
	for i, ids := range chunks {
		name := req.Name
		if len(chunks) > 1 {
			name = fmt.Sprintf("%s_%d", req.Name, i)
		}
		orderReq := planet.NewSceneOrderRequest(name, ids, req.ClipAOI, req.Harmonize)
		orderReq.Delivery = req.Delivery
		report, err := r.RunChunk(ctx, i, orderReq)
		if err != nil {
			return reports, fmt.Errorf("Run[%s].%w", name, err)
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// RunChunk submits one order, polls it until terminal and downloads its results on success
func (r *Runner) RunChunk(ctx context.Context, chunk int, req planet.OrderRequest) (common.OrderReport, error) {
	report := common.OrderReport{Name: req.Name, Chunk: chunk, ItemIDs: itemIDs(req)}

	order, err := r.API.CreateOrder(ctx, req)
	if err != nil {
		return report, fmt.Errorf("RunChunk.%w", err)
	}
	report.ID = order.ID
	orderURL := order.Links.Self
	ctx = log.With(ctx, "order", order.ID)
	log.Logger(ctx).Sugar().Infof("order %s submitted (%d items): %s", req.Name, len(report.ItemIDs), order.Status())

	if r.Ledger != nil {
		if err := r.Ledger.CreateOrder(ctx, db.Order{
			ID:      order.ID,
			Name:    req.Name,
			RunID:   r.RunID,
			Chunk:   chunk,
			State:   order.Status(),
			URL:     order.Links.Self,
			ItemIDs: report.ItemIDs,
		}); err != nil {
			return report, fmt.Errorf("RunChunk.%w", err)
		}
	}

	if order, err = r.poll(ctx, order); err != nil {
		return report, fmt.Errorf("RunChunk.%w", err)
	}
	report.State = order.Status()

	switch report.State {
	case common.OrderStateSuccess:
		if report.Downloaded, err = r.download(ctx, order); err != nil {
			return report, fmt.Errorf("RunChunk.%w", err)
		}
		log.Logger(ctx).Sugar().Infof("order %s: %d files downloaded", req.Name, len(report.Downloaded))
	default:
		log.Logger(ctx).Warn("order not successful: nothing downloaded", zap.String("name", req.Name), zap.String("state", report.State.String()), zap.String("message", order.Message()))
	}

	r.publish(ctx, common.Event{
		Type:    common.EventTypeOrder,
		ID:      report.ID,
		State:   report.State,
		Files:   report.Downloaded,
		Message: order.Message(),
		Name:    req.Name,
		RunID:   r.RunID,
		Chunk:   chunk,
		URL:     orderURL,
		ItemIDs: report.ItemIDs,
	})
	return report, nil
}

// poll re-fetches the order until it is terminal
func (r *Runner) poll(ctx context.Context, order common.Order) (common.Order, error) {
	id, url := order.ID, order.Links.Self
	var deadline <-chan time.Time
	if r.Poll.MaxPollDuration > 0 {
		timer := time.NewTimer(r.Poll.MaxPollDuration)
		defer timer.Stop()
		deadline = timer.C
	}

	state := order.Status()
	for !order.Status().IsTerminal() {
		if order.Status() == common.OrderStateRunning && order.LastMessage != nil {
			log.Logger(ctx).Sugar().Infof("running: %s", *order.LastMessage)
		}
		select {
		case <-ctx.Done():
			return order, ctx.Err()
		case <-deadline:
			return order, fmt.Errorf("poll[%s]: %w", url, ErrPollTimeout)
		case <-time.After(r.Poll.Interval(order)):
		}

		var err error
		if order, err = r.getOrder(ctx, url); err != nil {
			return order, fmt.Errorf("poll.%w", err)
		}
		if order.Status() != state {
			state = order.Status()
			log.Logger(ctx).Sugar().Debugf("order state: %s", state)
			r.updateLedger(ctx, id, order)
		}
	}
	return order, nil
}

func (r *Runner) getOrder(ctx context.Context, url string) (common.Order, error) {
	var order common.Order
	err := service.Retriable(ctx, func() (err error) {
		order, err = r.API.GetOrder(ctx, url)
		return err
	}, time.Second, 3)
	return order, err
}

// download retrieves the results of a successful order into OutDir (sequentially)
func (r *Runner) download(ctx context.Context, order common.Order) ([]string, error) {
	var files []string
	if r.Fetcher != nil {
		var err error
		if files, err = r.Fetcher.Fetch(ctx, r.DeliveryLocation.Join(order.ID), r.OutDir); err != nil {
			return nil, fmt.Errorf("download.%w", err)
		}
	} else {
		for _, result := range order.Links.Results {
			dst := filepath.Join(r.OutDir, result.FileName())
			if _, err := r.API.DownloadIfMissing(ctx, result.Location, dst); err != nil {
				return files, fmt.Errorf("download[%s].%w", result.Name, err)
			}
			files = append(files, dst)
		}
	}
	if r.Extract {
		var err error
		if files, err = delivery.UnarchiveAll(files, r.OutDir); err != nil {
			return nil, fmt.Errorf("download.%w", err)
		}
	}
	return files, nil
}

func (r *Runner) updateLedger(ctx context.Context, id string, order common.Order) {
	if r.Ledger == nil {
		return
	}
	if err := r.Ledger.UpdateOrder(ctx, id, order.Status(), order.LastMessage); err != nil {
		log.Logger(ctx).Warn("unable to update the ledger", zap.Error(err))
	}
}

func (r *Runner) publish(ctx context.Context, evt common.Event) {
	events.Publish(ctx, r.Events, evt)
}

func itemIDs(req planet.OrderRequest) []string {
	var ids []string
	for _, p := range req.Products {
		ids = append(ids, p.ItemIDs...)
	}
	return ids
}
