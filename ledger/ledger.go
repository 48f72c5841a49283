package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/airbusgeo/reserve-monitor/common"
	db "github.com/airbusgeo/reserve-monitor/interface/database"
	"github.com/airbusgeo/reserve-monitor/service/log"
)

// Ledger keeps track of the orders submitted by the runs
type Ledger struct {
	db.OrderDBBackend
	dbmu sync.Mutex
}

func NewLedger(db db.OrderDBBackend) *Ledger {
	return &Ledger{OrderDBBackend: db}
}

// EventHandler records the order described by the event, or updates its state if it is already known.
// A terminal state is never overwritten by a non-terminal one (events may be delivered out of order).
// Product events are only logged.
func (l *Ledger) EventHandler(ctx context.Context, evt common.Event) error {
	switch evt.Type {
	case common.EventTypeOrder:
	case common.EventTypeProduct:
		log.Logger(ctx).Sugar().Infof("product %s: %d files", evt.ID, len(evt.Files))
		return nil
	default:
		return fmt.Errorf("EventHandler: unknown event type '%s'", evt.Type)
	}
	if evt.ID == "" {
		return errors.New("EventHandler: missing order id")
	}

	l.dbmu.Lock()
	defer l.dbmu.Unlock()
	return db.UnitOfWork(ctx, l, func(tx db.OrderTxBackend) error {
		order, err := tx.Order(ctx, evt.ID)
		if errors.As(err, &db.ErrNotFound{}) {
			return tx.CreateOrder(ctx, db.Order{
				ID:      evt.ID,
				Name:    evt.Name,
				RunID:   evt.RunID,
				Chunk:   evt.Chunk,
				State:   evt.State,
				Message: evt.Message,
				URL:     evt.URL,
				ItemIDs: evt.ItemIDs,
			})
		}
		if err != nil {
			return fmt.Errorf("EventHandler.%w", err)
		}
		if order.State.IsTerminal() && !evt.State.IsTerminal() {
			log.Logger(ctx).Sugar().Debugf("order %s is already %s: %s event ignored", order.ID, order.State, evt.State)
			return nil
		}
		return tx.UpdateOrder(ctx, evt.ID, evt.State, &evt.Message)
	})
}

// ForceOrderState sets the state of the order, whatever its current state
func (l *Ledger) ForceOrderState(ctx context.Context, id string, state common.OrderState) error {
	l.dbmu.Lock()
	defer l.dbmu.Unlock()
	if err := l.UpdateOrder(ctx, id, state, nil); err != nil {
		return fmt.Errorf("ForceOrderState.%w", err)
	}
	log.Logger(ctx).Sugar().Infof("order %s forced to %s", id, state)
	return nil
}

// RunStatus returns the number of orders per state of the run and the ids of the scenes that were successfully ordered
func (l *Ledger) RunStatus(ctx context.Context, runID string) (db.Status, []string, error) {
	status, err := l.OrdersStatus(ctx, runID)
	if err != nil {
		return nil, nil, fmt.Errorf("RunStatus.%w", err)
	}
	orders, err := l.Orders(ctx, "", runID, common.OrderStateSuccess.String(), 0, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("RunStatus.%w", err)
	}
	var ids []string
	for _, o := range orders {
		ids = append(ids, o.ItemIDs...)
	}
	return status, ids, nil
}
