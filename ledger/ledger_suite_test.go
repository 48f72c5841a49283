package ledger_test

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/airbusgeo/reserve-monitor/common"
	db "github.com/airbusgeo/reserve-monitor/interface/database"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// memoryBackend implements db.OrderDBBackend in memory.
// Transactions work on a copy of the orders, applied on commit.
type memoryBackend struct {
	mu     sync.Mutex
	orders map[string]db.Order
	seq    int
}

type memoryTx struct {
	*memoryBackend
	parent *memoryBackend
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{orders: map[string]db.Order{}}
}

func (m *memoryBackend) StartTransaction(ctx context.Context) (db.OrderTxBackend, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := newMemoryBackend()
	cp.seq = m.seq
	for k, v := range m.orders {
		cp.orders[k] = v
	}
	return &memoryTx{memoryBackend: cp, parent: m}, nil
}

func (t *memoryTx) Commit() error {
	t.parent.mu.Lock()
	defer t.parent.mu.Unlock()
	t.parent.orders, t.parent.seq = t.orders, t.seq
	return nil
}

func (t *memoryTx) Rollback() error {
	return nil
}

func (m *memoryBackend) CreateOrder(ctx context.Context, order db.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[order.ID]; ok {
		return db.ErrAlreadyExists{Type: "order", ID: order.ID}
	}
	m.seq++
	order.Created = order.Created.AddDate(0, 0, m.seq)
	m.orders[order.ID] = order
	return nil
}

func (m *memoryBackend) UpdateOrder(ctx context.Context, id string, state common.OrderState, message *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return db.ErrNotFound{Type: "order", ID: id}
	}
	o.State = state
	if message != nil {
		o.Message = *message
	}
	m.orders[id] = o
	return nil
}

func (m *memoryBackend) Order(ctx context.Context, id string) (db.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return o, db.ErrNotFound{Type: "order", ID: id}
	}
	return o, nil
}

func (m *memoryBackend) Orders(ctx context.Context, name, runID, state string, page, limit int) ([]db.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	orders := []db.Order{}
	for _, o := range m.orders {
		if (name == "" || strings.Contains(o.Name, strings.Trim(name, "*"))) &&
			(runID == "" || o.RunID == runID) &&
			(state == "" || o.State.String() == state) {
			orders = append(orders, o)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].Created.Before(orders[j].Created) })
	if limit > 0 {
		start := page * limit
		if start > len(orders) {
			start = len(orders)
		}
		end := start + limit
		if end > len(orders) {
			end = len(orders)
		}
		orders = orders[start:end]
	}
	return orders, nil
}

func (m *memoryBackend) OrdersStatus(ctx context.Context, runID string) (db.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := db.Status{}
	for _, o := range m.orders {
		if runID == "" || o.RunID == runID {
			status[o.State]++
		}
	}
	return status, nil
}

func (m *memoryBackend) DeleteOrder(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[id]; !ok {
		return db.ErrNotFound{Type: "order", ID: id}
	}
	delete(m.orders, id)
	return nil
}

func TestLedger(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Ledger Suite")
}
