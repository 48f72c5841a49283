package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/airbusgeo/reserve-monitor/common"
	db "github.com/airbusgeo/reserve-monitor/interface/database"
	"github.com/lib/pq"
)

// pgInterface allows to use either a sql.DB or a sql.Tx
type pgInterface interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// BackendTx implements OrderTxBackend
type BackendTx struct {
	*sql.Tx
	Backend
}

// BackendDB implements OrderDBBackend
type BackendDB struct {
	*sql.DB
	Backend
}

// Backend implements OrderBackend
type Backend struct {
	pgInterface
}

/* http://www.postgresql.org/docs/9.3/static/errcodes-appendix.html */
const (
	noError             = "00000"
	connectionFailure   = "08006"
	foreignKeyViolation = "23503"
	uniqueViolation     = "23505"

	notPqError = "X"
)

func pqErrorCode(err error) pq.ErrorCode {
	if err == nil {
		return noError
	}
	var pqerr *pq.Error
	if errors.As(err, &pqerr) {
		return pqerr.Code
	}
	return notPqError
}

// StartTransaction implements OrderDBBackend
func (bdb BackendDB) StartTransaction(ctx context.Context) (db.OrderTxBackend, error) {
	tx, err := bdb.BeginTx(ctx, nil)
	if err != nil {
		return BackendTx{}, err
	}
	return BackendTx{tx, Backend{pgInterface: tx}}, nil
}

// Rollback overloads sql.Tx.Rollback to be idempotent
func (btx BackendTx) Rollback() error {
	err := btx.Tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}

// New creates a new backend using Postgres
func New(ctx context.Context, dbConnection string) (*BackendDB, error) {
	db, err := sql.Open("postgres", dbConnection)
	if err != nil {
		return nil, fmt.Errorf("sql.open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db.ping: %w", err)
	}
	return &BackendDB{db, Backend{pgInterface: db}}, nil
}

const orderColumns = "id, name, run_id, chunk, state, message, url, item_ids, created, updated"

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row scanner) (db.Order, error) {
	var o db.Order
	err := row.Scan(&o.ID, &o.Name, &o.RunID, &o.Chunk, &o.State, &o.Message, &o.URL, pq.Array(&o.ItemIDs), &o.Created, &o.Updated)
	return o, err
}

// CreateOrder implements OrderBackend
func (b Backend) CreateOrder(ctx context.Context, order db.Order) error {
	_, err := b.ExecContext(ctx,
		"insert into planet_order(id, name, run_id, chunk, state, message, url, item_ids) values($1, $2, $3, $4, $5, $6, $7, $8)",
		order.ID, order.Name, order.RunID, order.Chunk, order.State, order.Message, order.URL, pq.Array(order.ItemIDs))
	switch pqErrorCode(err) {
	case noError:
		return nil
	case uniqueViolation:
		return db.ErrAlreadyExists{Type: "order", ID: order.ID}
	default:
		return fmt.Errorf("CreateOrder.exec: %w", err)
	}
}

// UpdateOrder implements OrderBackend
func (b Backend) UpdateOrder(ctx context.Context, id string, state common.OrderState, message *string) error {
	var (
		res sql.Result
		err error
	)
	if message != nil {
		res, err = b.ExecContext(ctx, "update planet_order set state=$1, message=$2, updated=now() where id=$3", state, *message, id)
	} else {
		res, err = b.ExecContext(ctx, "update planet_order set state=$1, updated=now() where id=$2", state, id)
	}
	if err != nil {
		return fmt.Errorf("UpdateOrder.exec: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("UpdateOrder.RowsAffected: %w", err)
	} else if n == 0 {
		return db.ErrNotFound{Type: "order", ID: id}
	}
	return nil
}

// Order implements OrderBackend
func (b Backend) Order(ctx context.Context, id string) (db.Order, error) {
	o, err := scanOrder(b.QueryRowContext(ctx, "select "+orderColumns+" from planet_order where id=$1", id))
	switch {
	case err == nil:
		return o, nil
	case errors.Is(err, sql.ErrNoRows):
		return o, db.ErrNotFound{Type: "order", ID: id}
	default:
		return o, fmt.Errorf("Order.Scan: %w", err)
	}
}

// Orders implements OrderBackend
func (b Backend) Orders(ctx context.Context, name, runID, state string, page, limit int) ([]db.Order, error) {
	wc := joinClause{}
	if name != "" {
		name, operator := parseLike(name)
		wc.append("name "+operator+" $%d", name)
	}
	if runID != "" {
		wc.append("run_id = $%d", runID)
	}
	if state != "" {
		wc.append("state = $%d", state)
	}
	rows, err := b.QueryContext(ctx, "select "+orderColumns+" from planet_order"+wc.WhereClause()+" ORDER BY created, chunk"+limitOffsetClause(page, limit), wc.Parameters...)
	if err != nil {
		return nil, fmt.Errorf("Orders.QueryContext: %w", err)
	}
	defer rows.Close()

	orders := []db.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("Orders.Scan: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Orders.rows.err: %w", err)
	}
	return orders, nil
}

// OrdersStatus implements OrderBackend
func (b Backend) OrdersStatus(ctx context.Context, runID string) (db.Status, error) {
	wc := joinClause{}
	if runID != "" {
		wc.append("run_id = $%d", runID)
	}
	rows, err := b.QueryContext(ctx, "select state, count(*) from planet_order"+wc.WhereClause()+" GROUP BY state", wc.Parameters...)
	if err != nil {
		return nil, fmt.Errorf("OrdersStatus.QueryContext: %w", err)
	}
	defer rows.Close()

	status := db.Status{}
	for rows.Next() {
		var (
			state common.OrderState
			nb    int64
		)
		if err := rows.Scan(&state, &nb); err != nil {
			return nil, fmt.Errorf("OrdersStatus.Scan: %w", err)
		}
		status.Set(state, nb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("OrdersStatus.rows.err: %w", err)
	}
	return status, nil
}

// DeleteOrder implements OrderBackend
func (b Backend) DeleteOrder(ctx context.Context, id string) error {
	res, err := b.ExecContext(ctx, "delete from planet_order where id=$1", id)
	if err != nil {
		return fmt.Errorf("DeleteOrder.exec: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("DeleteOrder.RowsAffected: %w", err)
	} else if n == 0 {
		return db.ErrNotFound{Type: "order", ID: id}
	}
	return nil
}
