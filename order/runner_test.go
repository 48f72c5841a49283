package order_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/airbusgeo/reserve-monitor/common"
	db "github.com/airbusgeo/reserve-monitor/interface/database"
	"github.com/airbusgeo/reserve-monitor/interface/planet"
	"github.com/airbusgeo/reserve-monitor/order"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// fakeAPI replays a scripted sequence of states for each order
type fakeAPI struct {
	mu        sync.Mutex
	script    func(id string) []common.Order
	created   []planet.OrderRequest
	polls     map[string]int
	downloads []string
}

func (f *fakeAPI) CreateOrder(ctx context.Context, req planet.OrderRequest) (common.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("o%d", len(f.created))
	f.created = append(f.created, req)
	return common.Order{ID: id, Name: req.Name, State: "queued", Links: common.OrderLinks{Self: "/orders/" + id}}, nil
}

func (f *fakeAPI) GetOrder(ctx context.Context, url string) (common.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := filepath.Base(url)
	states := f.script(id)
	i := min(f.polls[id], len(states)-1)
	f.polls[id]++
	o := states[i]
	o.ID = id
	return o, nil
}

func (f *fakeAPI) DownloadIfMissing(ctx context.Context, url, dst string) (bool, error) {
	f.mu.Lock()
	f.downloads = append(f.downloads, url)
	f.mu.Unlock()
	return true, os.WriteFile(dst, []byte(url), 0644)
}

type fakeLedger struct {
	orders  map[string]db.Order
	updates []common.OrderState
}

func (l *fakeLedger) CreateOrder(ctx context.Context, o db.Order) error {
	l.orders[o.ID] = o
	return nil
}

func (l *fakeLedger) UpdateOrder(ctx context.Context, id string, state common.OrderState, message *string) error {
	o, ok := l.orders[id]
	if !ok {
		return db.ErrNotFound{Type: "order", ID: id}
	}
	o.State = state
	if message != nil {
		o.Message = *message
	}
	l.orders[id] = o
	l.updates = append(l.updates, state)
	return nil
}

type fakePublisher struct {
	events []common.Event
}

func (p *fakePublisher) Publish(ctx context.Context, data ...[]byte) error {
	for _, d := range data {
		var evt common.Event
		if err := json.Unmarshal(d, &evt); err != nil {
			return err
		}
		p.events = append(p.events, evt)
	}
	return nil
}

func strPtr(s string) *string { return &s }

func running(msg *string) common.Order {
	return common.Order{State: "running", LastMessage: msg}
}

func success(files ...string) common.Order {
	o := common.Order{State: "success", LastMessage: strPtr("Manifest delivery completed")}
	for _, f := range files {
		o.Links.Results = append(o.Links.Results, common.OrderResult{Name: "order/PSScene/" + f, Location: "http://dl/" + f})
	}
	return o
}

var _ = Describe("Runner", func() {
	var (
		ctx       context.Context
		outDir    string
		api       *fakeAPI
		ledger    *fakeLedger
		publisher *fakePublisher
		runner    *order.Runner
		ids       = []string{"20210901_180754_1032", "20210902_180001_1001", "20210903_175959_1003"}
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		outDir, err = os.MkdirTemp("", "orders")
		Expect(err).NotTo(HaveOccurred())
		api = &fakeAPI{polls: map[string]int{}}
		ledger = &fakeLedger{orders: map[string]db.Order{}}
		publisher = &fakePublisher{}
		runner = order.NewRunner(api, outDir)
		runner.Poll = order.PollConfig{QueuedInterval: time.Millisecond, RunningInterval: time.Millisecond, RunningNoMessageInterval: time.Millisecond}
		runner.Ledger = ledger
		runner.Events = publisher
	})

	AfterEach(func() {
		os.RemoveAll(outDir)
	})

	Context("when the sub-orders end in different states", func() {
		BeforeEach(func() {
			api.script = func(id string) []common.Order {
				if id == "o0" {
					return []common.Order{
						{State: "queued"},
						running(nil),
						running(strPtr("Processing items")),
						success("20210901_180754_1032_3B_AnalyticMS_SR_harmonized_clip.tif", "20210902_180001_1001_3B_AnalyticMS_SR_harmonized_clip.tif"),
					}
				}
				return []common.Order{running(nil), {State: "failed", LastMessage: strPtr("Order failed")}}
			}
		})

		It("should run every sub-order and download the results of the successful ones", func() {
			reports, err := runner.Run(ctx, order.Request{Name: "reserve", ItemIDs: ids, ChunkSize: 2, Harmonize: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(reports).To(HaveLen(2))

			Expect(api.created).To(HaveLen(2))
			Expect(api.created[0].Name).To(Equal("reserve_0"))
			Expect(api.created[0].Products[0].ItemIDs).To(Equal(ids[:2]))
			Expect(api.created[1].Products[0].ItemIDs).To(Equal(ids[2:]))

			Expect(reports[0].State).To(Equal(common.OrderStateSuccess))
			Expect(reports[0].Downloaded).To(Equal([]string{
				filepath.Join(outDir, "20210901_180754_1032_3B_AnalyticMS_SR_harmonized_clip.tif"),
				filepath.Join(outDir, "20210902_180001_1001_3B_AnalyticMS_SR_harmonized_clip.tif"),
			}))
			for _, f := range reports[0].Downloaded {
				Expect(f).To(BeAnExistingFile())
			}
			Expect(reports[1].State).To(Equal(common.OrderStateFailed))
			Expect(reports[1].Downloaded).To(BeEmpty())
			Expect(api.downloads).To(HaveLen(2))
		})

		It("should record the orders in the ledger", func() {
			_, err := runner.Run(ctx, order.Request{Name: "reserve", ItemIDs: ids, ChunkSize: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(ledger.orders).To(HaveLen(2))
			Expect(ledger.orders["o0"].State).To(Equal(common.OrderStateSuccess))
			Expect(ledger.orders["o0"].RunID).To(Equal(runner.RunID))
			Expect(ledger.orders["o1"].State).To(Equal(common.OrderStateFailed))
			Expect(ledger.orders["o1"].Message).To(Equal("Order failed"))
		})

		It("should publish an event per terminal order", func() {
			_, err := runner.Run(ctx, order.Request{Name: "reserve", ItemIDs: ids, ChunkSize: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(publisher.events).To(HaveLen(2))
			Expect(publisher.events[0].Type).To(Equal(common.EventTypeOrder))
			Expect(publisher.events[0].State).To(Equal(common.OrderStateSuccess))
			Expect(publisher.events[0].Files).To(HaveLen(2))
			Expect(publisher.events[1].State).To(Equal(common.OrderStateFailed))
			Expect(publisher.events[1].Chunk).To(Equal(1))
			Expect(publisher.events[1].RunID).To(Equal(runner.RunID))
		})
	})

	Context("when an order never leaves the running state", func() {
		BeforeEach(func() {
			api.script = func(id string) []common.Order {
				return []common.Order{running(nil)}
			}
		})

		It("should stop polling after MaxPollDuration", func() {
			runner.Poll.MaxPollDuration = 20 * time.Millisecond
			_, err := runner.Run(ctx, order.Request{Name: "reserve", ItemIDs: ids})
			Expect(errors.Is(err, order.ErrPollTimeout)).To(BeTrue())
		})

		It("should stop polling when the context is cancelled", func() {
			cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
			defer cancel()
			_, err := runner.Run(cctx, order.Request{Name: "reserve", ItemIDs: ids})
			Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
			Expect(api.downloads).To(BeEmpty())
		})
	})

	Context("when the provider reports an unknown state", func() {
		BeforeEach(func() {
			api.script = func(id string) []common.Order {
				return []common.Order{{State: "finishing"}, success("20210901_180754_1032_3B_udm2_clip.tif")}
			}
		})

		It("should keep polling until a terminal state", func() {
			reports, err := runner.Run(ctx, order.Request{Name: "reserve", ItemIDs: ids[:1]})
			Expect(err).NotTo(HaveOccurred())
			Expect(reports).To(HaveLen(1))
			Expect(reports[0].Name).To(Equal("reserve"))
			Expect(reports[0].State).To(Equal(common.OrderStateSuccess))
		})
	})
})

var _ = Describe("PollConfig", func() {
	p := order.DefaultPollConfig()

	It("should wait according to the state of the order", func() {
		Expect(p.Interval(common.Order{State: "queued"})).To(Equal(time.Second))
		Expect(p.Interval(running(strPtr("Processing")))).To(Equal(5 * time.Second))
		Expect(p.Interval(running(nil))).To(Equal(4 * time.Second))
	})
})
