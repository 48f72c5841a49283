package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/airbusgeo/reserve-monitor/common"
	db "github.com/airbusgeo/reserve-monitor/interface/database"
	"github.com/airbusgeo/reserve-monitor/service/log"
	"github.com/gorilla/mux"
)

// AddHandler registers the endpoints of the ledger
func (l *Ledger) AddHandler(r *mux.Router) {
	r.HandleFunc("/orders", l.ListOrdersHandler).Methods("GET")
	r.HandleFunc("/orders/{order}", l.GetOrderHandler).Methods("GET")
	r.HandleFunc("/orders/{order}", l.DeleteOrderHandler).Methods("DELETE")
	r.HandleFunc("/orders/{order}/force/{state}", l.ForceOrderStateHandler).Methods("PUT")
	r.HandleFunc("/runs/{run}", l.GetRunStatusHandler).Methods("GET")
	r.HandleFunc("/runs/{run}/scenes", l.ListRunScenesHandler).Methods("GET")
}

// NewHandler returns a router serving the endpoints of the ledger
func (l *Ledger) NewHandler() http.Handler {
	r := mux.NewRouter()
	l.AddHandler(r)
	return r
}

func intParam(req *http.Request, key string) (int, error) {
	v := req.FormValue(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// ListOrdersHandler lists the orders, filtered by name, run_id or state
func (l *Ledger) ListOrdersHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	page, err := intParam(req, "page")
	if err != nil {
		w.WriteHeader(400)
		return
	}
	limit, err := intParam(req, "limit")
	if err != nil {
		w.WriteHeader(400)
		return
	}
	state := req.FormValue("state")
	if state != "" {
		st, err := common.OrderStateString(state)
		if err != nil {
			w.WriteHeader(400)
			fmt.Fprintf(w, "%v", err)
			return
		}
		state = st.String()
	}
	orders, err := l.Orders(ctx, req.FormValue("name"), req.FormValue("run_id"), state, page, limit)
	if err != nil {
		log.Logger(ctx).Sugar().Warnf("ledger.orders: %v", err)
		w.WriteHeader(500)
		fmt.Fprintf(w, "%v", err)
		return
	}
	json.NewEncoder(w).Encode(orders)
}

// GetOrderHandler retrieves an order
func (l *Ledger) GetOrderHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	order, err := l.Order(ctx, mux.Vars(req)["order"])
	if errors.As(err, &db.ErrNotFound{}) {
		w.WriteHeader(404)
		return
	}
	if err != nil {
		log.Logger(ctx).Sugar().Warnf("ledger.order: %v", err)
		w.WriteHeader(500)
		fmt.Fprintf(w, "%v", err)
		return
	}
	json.NewEncoder(w).Encode(order)
}

// DeleteOrderHandler removes an order from the ledger
func (l *Ledger) DeleteOrderHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	err := l.DeleteOrder(ctx, mux.Vars(req)["order"])
	if errors.As(err, &db.ErrNotFound{}) {
		w.WriteHeader(404)
		return
	}
	if err != nil {
		log.Logger(ctx).Sugar().Warnf("ledger.DeleteOrderHandler: %v", err)
		w.WriteHeader(500)
		fmt.Fprintf(w, "%v", err)
		return
	}
	w.WriteHeader(204)
}

// ForceOrderStateHandler sets the state of the order
func (l *Ledger) ForceOrderStateHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	state, err := common.OrderStateString(mux.Vars(req)["state"])
	if err != nil {
		w.WriteHeader(400)
		fmt.Fprintf(w, "%v", err)
		return
	}
	err = l.ForceOrderState(ctx, mux.Vars(req)["order"], state)
	if errors.As(err, &db.ErrNotFound{}) {
		w.WriteHeader(404)
		return
	}
	if err != nil {
		log.Logger(ctx).Sugar().Warnf("ledger.ForceOrderStateHandler: %v", err)
		w.WriteHeader(500)
		fmt.Fprintf(w, "%v", err)
		return
	}
	w.WriteHeader(200)
}

// GetRunStatusHandler returns the number of orders of the run per state
func (l *Ledger) GetRunStatusHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	status, ids, err := l.RunStatus(ctx, mux.Vars(req)["run"])
	if err != nil {
		w.WriteHeader(500)
		fmt.Fprintf(w, "%v", err)
		return
	}
	w.WriteHeader(200)
	fmt.Fprintf(w, "Orders:\n")
	for _, state := range common.OrderStateValues() {
		fmt.Fprintf(w, "  %-10s %d\n", state.String()+":", status[state])
	}
	fmt.Fprintf(w, "  %-10s %d\n", "Total:", status.Total())
	fmt.Fprintf(w, "\nScenes delivered: %d\n", len(ids))
}

// ListRunScenesHandler lists the ids of the scenes successfully ordered during the run
func (l *Ledger) ListRunScenesHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	_, ids, err := l.RunStatus(ctx, mux.Vars(req)["run"])
	if err != nil {
		log.Logger(ctx).Sugar().Warnf("ledger.ListRunScenesHandler: %v", err)
		w.WriteHeader(500)
		fmt.Fprintf(w, "%v", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	json.NewEncoder(w).Encode(ids)
}
