package pg_test

import (
	"errors"

	"github.com/airbusgeo/reserve-monitor/common"
	db "github.com/airbusgeo/reserve-monitor/interface/database"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Order ledger", func() {
	var (
		order = db.Order{
			ID:      "0e8a4c2e-aaaa-4a4b-9d55-7a1b0e7f3c11",
			Name:    "reserve_2021-09-01_2021-09-30_0",
			RunID:   "run1",
			Chunk:   0,
			State:   common.OrderStateQueued,
			URL:     "https://api.planet.com/compute/ops/orders/v2/0e8a4c2e-aaaa-4a4b-9d55-7a1b0e7f3c11",
			ItemIDs: []string{"20210901_180754_1032", "20210902_180001_1001"},
		}
		second = db.Order{
			ID:      "7b1f2a90-bbbb-4c3e-8d8a-1f4b2e9c0d22",
			Name:    "reserve_2021-09-01_2021-09-30_1",
			RunID:   "run1",
			Chunk:   1,
			State:   common.OrderStateQueued,
			ItemIDs: []string{"20210903_175959_1003"},
		}
	)

	Context("creating orders", func() {
		It("should record the orders", func() {
			Expect(backend.CreateOrder(ctx, order)).To(Succeed())
			Expect(backend.CreateOrder(ctx, second)).To(Succeed())
		})
		It("should refuse a duplicate", func() {
			err := backend.CreateOrder(ctx, order)
			Expect(errors.As(err, &db.ErrAlreadyExists{})).To(BeTrue())
		})
		It("should read the order back", func() {
			o, err := backend.Order(ctx, order.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(o.Name).To(Equal(order.Name))
			Expect(o.State).To(Equal(common.OrderStateQueued))
			Expect(o.ItemIDs).To(Equal(order.ItemIDs))
			Expect(o.Created.IsZero()).To(BeFalse())
		})
	})

	Context("updating orders", func() {
		It("should update the state and the message", func() {
			msg := "Manifest delivery completed"
			Expect(backend.UpdateOrder(ctx, order.ID, common.OrderStateSuccess, &msg)).To(Succeed())
			Expect(backend.UpdateOrder(ctx, second.ID, common.OrderStateFailed, nil)).To(Succeed())
			o, err := backend.Order(ctx, order.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(o.State).To(Equal(common.OrderStateSuccess))
			Expect(o.Message).To(Equal(msg))
		})
		It("should return not found for an unknown order", func() {
			err := backend.UpdateOrder(ctx, "unknown", common.OrderStateSuccess, nil)
			Expect(errors.As(err, &db.ErrNotFound{})).To(BeTrue())
		})
	})

	Context("listing orders", func() {
		It("should filter by name pattern", func() {
			orders, err := backend.Orders(ctx, "reserve_*_1", "", "", 0, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(orders).To(HaveLen(1))
			Expect(orders[0].ID).To(Equal(second.ID))
		})
		It("should filter by run and state", func() {
			orders, err := backend.Orders(ctx, "", "run1", "success", 0, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(orders).To(HaveLen(1))
			Expect(orders[0].ID).To(Equal(order.ID))
		})
		It("should count the orders per state", func() {
			status, err := backend.OrdersStatus(ctx, "run1")
			Expect(err).NotTo(HaveOccurred())
			Expect(status.Total()).To(BeEquivalentTo(2))
			Expect(status[common.OrderStateSuccess]).To(BeEquivalentTo(1))
			Expect(status[common.OrderStateFailed]).To(BeEquivalentTo(1))
		})
	})

	Context("in a transaction", func() {
		It("should rollback on error", func() {
			err := db.UnitOfWork(ctx, backend, func(tx db.OrderTxBackend) error {
				if err := tx.DeleteOrder(ctx, second.ID); err != nil {
					return err
				}
				return errors.New("abort")
			})
			Expect(err).To(HaveOccurred())
			_, err = backend.Order(ctx, second.ID)
			Expect(err).NotTo(HaveOccurred())
		})
		It("should commit on success", func() {
			Expect(db.UnitOfWork(ctx, backend, func(tx db.OrderTxBackend) error {
				return tx.DeleteOrder(ctx, second.ID)
			})).To(Succeed())
			_, err := backend.Order(ctx, second.ID)
			Expect(errors.As(err, &db.ErrNotFound{})).To(BeTrue())
		})
	})
})
