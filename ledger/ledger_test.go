package ledger_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/airbusgeo/reserve-monitor/common"
	"github.com/airbusgeo/reserve-monitor/ledger"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Ledger", func() {
	var (
		ctx     context.Context
		backend *memoryBackend
		l       *ledger.Ledger
		success = common.Event{
			Type:    common.EventTypeOrder,
			ID:      "o0",
			State:   common.OrderStateSuccess,
			Message: "Manifest delivery completed",
			Name:    "reserve_0",
			RunID:   "run1",
			URL:     "http://orders/o0",
			ItemIDs: []string{"20210901_180754_1032", "20210902_180001_1001"},
		}
		failed = common.Event{
			Type:    common.EventTypeOrder,
			ID:      "o1",
			State:   common.OrderStateFailed,
			Message: "Order failed",
			Name:    "reserve_1",
			RunID:   "run1",
			Chunk:   1,
			ItemIDs: []string{"20210903_175959_1003"},
		}
	)

	BeforeEach(func() {
		ctx = context.Background()
		backend = newMemoryBackend()
		l = ledger.NewLedger(backend)
	})

	Context("handling events", func() {
		It("should record unknown orders", func() {
			Expect(l.EventHandler(ctx, success)).To(Succeed())
			Expect(l.EventHandler(ctx, failed)).To(Succeed())
			Expect(backend.orders).To(HaveLen(2))
			o := backend.orders["o0"]
			Expect(o.Name).To(Equal("reserve_0"))
			Expect(o.RunID).To(Equal("run1"))
			Expect(o.State).To(Equal(common.OrderStateSuccess))
			Expect(o.ItemIDs).To(Equal(success.ItemIDs))
			Expect(backend.orders["o1"].Chunk).To(Equal(1))
		})

		It("should update known orders", func() {
			running := success
			running.State, running.Message = common.OrderStateRunning, ""
			Expect(l.EventHandler(ctx, running)).To(Succeed())
			Expect(backend.orders["o0"].State).To(Equal(common.OrderStateRunning))
			Expect(l.EventHandler(ctx, success)).To(Succeed())
			Expect(backend.orders["o0"].State).To(Equal(common.OrderStateSuccess))
			Expect(backend.orders["o0"].Message).To(Equal(success.Message))
		})

		It("should not overwrite a terminal state", func() {
			Expect(l.EventHandler(ctx, success)).To(Succeed())
			late := success
			late.State = common.OrderStateQueued
			Expect(l.EventHandler(ctx, late)).To(Succeed())
			Expect(backend.orders["o0"].State).To(Equal(common.OrderStateSuccess))
		})

		It("should ignore product events", func() {
			Expect(l.EventHandler(ctx, common.Event{Type: common.EventTypeProduct, ID: "2021-09-01", Files: []string{"a.tif"}})).To(Succeed())
			Expect(backend.orders).To(BeEmpty())
		})

		It("should reject malformed events", func() {
			Expect(l.EventHandler(ctx, common.Event{Type: "tile", ID: "x"})).NotTo(Succeed())
			Expect(l.EventHandler(ctx, common.Event{Type: common.EventTypeOrder})).NotTo(Succeed())
		})
	})

	Context("summarizing a run", func() {
		It("should count the orders and list the delivered scenes", func() {
			Expect(l.EventHandler(ctx, success)).To(Succeed())
			Expect(l.EventHandler(ctx, failed)).To(Succeed())
			status, ids, err := l.RunStatus(ctx, "run1")
			Expect(err).NotTo(HaveOccurred())
			Expect(status[common.OrderStateSuccess]).To(BeEquivalentTo(1))
			Expect(status[common.OrderStateFailed]).To(BeEquivalentTo(1))
			Expect(status.Total()).To(BeEquivalentTo(2))
			Expect(ids).To(Equal(success.ItemIDs))

			status, ids, err = l.RunStatus(ctx, "run2")
			Expect(err).NotTo(HaveOccurred())
			Expect(status.Total()).To(BeZero())
			Expect(ids).To(BeEmpty())
		})
	})

	Context("serving http", func() {
		var server *httptest.Server

		BeforeEach(func() {
			Expect(l.EventHandler(ctx, success)).To(Succeed())
			Expect(l.EventHandler(ctx, failed)).To(Succeed())
			server = httptest.NewServer(l.NewHandler())
		})

		AfterEach(func() {
			server.Close()
		})

		do := func(method, path string) *http.Response {
			req, err := http.NewRequest(method, server.URL+path, nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			return resp
		}

		It("should list the orders", func() {
			resp := do("GET", "/orders?state=failed")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(200))
			var orders []map[string]interface{}
			Expect(json.NewDecoder(resp.Body).Decode(&orders)).To(Succeed())
			Expect(orders).To(HaveLen(1))
			Expect(orders[0]["id"]).To(Equal("o1"))
		})

		It("should list the orders of a state whatever its case", func() {
			resp := do("GET", "/orders?state=FAILED")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(200))
			var orders []map[string]interface{}
			Expect(json.NewDecoder(resp.Body).Decode(&orders)).To(Succeed())
			Expect(orders).To(HaveLen(1))
		})

		It("should reject an unknown state", func() {
			resp := do("GET", "/orders?state=lost")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(400))
		})

		It("should reject a malformed page", func() {
			resp := do("GET", "/orders?page=x")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(400))
		})

		It("should get an order or return 404", func() {
			resp := do("GET", "/orders/o0")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(200))
			var order map[string]interface{}
			Expect(json.NewDecoder(resp.Body).Decode(&order)).To(Succeed())
			Expect(order["name"]).To(Equal("reserve_0"))

			resp404 := do("GET", "/orders/unknown")
			resp404.Body.Close()
			Expect(resp404.StatusCode).To(Equal(404))
		})

		It("should force the state of an order", func() {
			resp := do("PUT", "/orders/o1/force/cancelled")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(200))
			Expect(backend.orders["o1"].State).To(Equal(common.OrderStateCancelled))

			resp = do("PUT", "/orders/o1/force/unknown")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(400))

			resp = do("PUT", "/orders/o9/force/failed")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(404))
		})

		It("should delete an order", func() {
			resp := do("DELETE", "/orders/o1")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(204))
			Expect(backend.orders).NotTo(HaveKey("o1"))
		})

		It("should print the status of the run", func() {
			resp := do("GET", "/runs/run1")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(200))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("success:   1"))
			Expect(string(body)).To(ContainSubstring("Total:     2"))
			Expect(string(body)).To(ContainSubstring("Scenes delivered: 2"))
		})

		It("should list the delivered scenes of the run", func() {
			resp := do("GET", "/runs/run1/scenes")
			defer resp.Body.Close()
			var ids []string
			Expect(json.NewDecoder(resp.Body).Decode(&ids)).To(Succeed())
			Expect(ids).To(Equal(success.ItemIDs))
		})
	})
})
