package db

import (
	"context"
	"fmt"
	"time"

	"github.com/airbusgeo/reserve-monitor/common"
)

// Order is a sub-order recorded in the ledger
type Order struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	RunID   string            `json:"run_id"`
	Chunk   int               `json:"chunk"`
	State   common.OrderState `json:"state"`
	Message string            `json:"message"`
	URL     string            `json:"url"`
	ItemIDs []string          `json:"item_ids"`
	Created time.Time         `json:"created"`
	Updated time.Time         `json:"updated"`
}

type ErrAlreadyExists struct {
	Type, ID string
}

func (e ErrAlreadyExists) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Type, e.ID)
}

type ErrNotFound struct {
	Type, ID string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Type, e.ID)
}

// Status is the number of orders per state
type Status map[common.OrderState]int64

// Set the number of occurences for a given state
func (s Status) Set(state common.OrderState, nb int64) {
	s[state] = nb
}

// Total returns the number of orders
func (s Status) Total() int64 {
	var n int64
	for _, nb := range s {
		n += nb
	}
	return n
}

type OrderTxBackend interface {
	OrderBackend
	// Must be call to apply transaction
	Commit() error
	// Might be called to cancel the transaction (no effect if commit has already be done)
	Rollback() error
}

type OrderDBBackend interface {
	OrderBackend
	StartTransaction(ctx context.Context) (OrderTxBackend, error)
}

type OrderBackend interface {
	// CreateOrder records a new order, may return ErrAlreadyExists
	CreateOrder(ctx context.Context, order Order) error
	// UpdateOrder updates the state & message (if != nil) of the order, may return ErrNotFound
	UpdateOrder(ctx context.Context, id string, state common.OrderState, message *string) error
	// Order returns the order with the given id, may return ErrNotFound
	Order(ctx context.Context, id string) (Order, error)
	// Orders returns the list of orders fitting the given parameters
	// name [optional=""] name pattern (* and ? wildcards, (?i) suffix for case-insensitivity)
	// runID [optional=""] id of the run
	// state [optional=""] state of the order
	Orders(ctx context.Context, name, runID, state string, page, limit int) ([]Order, error)
	// OrdersStatus returns the number of orders per state for the run (all runs if runID="")
	OrdersStatus(ctx context.Context, runID string) (Status, error)
	// DeleteOrder deletes the order, may return ErrNotFound
	DeleteOrder(ctx context.Context, id string) error
}

// UnitOfWork runs a function and commit the database at the end or rollback if the function returns an error
func UnitOfWork(ctx context.Context, db OrderDBBackend, f func(tx OrderTxBackend) error) (err error) {
	// Start transaction
	txn, err := db.StartTransaction(ctx)
	if err != nil {
		return fmt.Errorf("uow.starttransaction: %w", err)
	}

	// Rollback if not successful
	defer func() {
		if e := txn.Rollback(); err == nil {
			err = e
		}
	}()

	// Execute function
	if err = f(txn); err != nil {
		return fmt.Errorf("uow.%w", err)
	}

	return txn.Commit()
}
