package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/airbusgeo/geocube/interface/messaging"
	"github.com/airbusgeo/reserve-monitor/catalog"
	"github.com/airbusgeo/reserve-monitor/interface/database/pg"
	"github.com/airbusgeo/reserve-monitor/interface/events"
	"github.com/airbusgeo/reserve-monitor/interface/planet"
	"github.com/airbusgeo/reserve-monitor/ledger"
	"github.com/airbusgeo/reserve-monitor/service"
	"github.com/airbusgeo/reserve-monitor/service/log"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type config struct {
	AppPort      string
	APIToken     string
	DbConnection string

	Events events.Config
	Planet planet.Config
}

func newAppConfig() (*config, error) {
	config := config{}
	flag.StringVar(&config.AppPort, "port", "8080", "port to use")
	flag.StringVar(&config.APIToken, "api-token", os.Getenv("API_TOKEN"), "bearer token expected by the server (optional, default: $API_TOKEN)")
	flag.StringVar(&config.DbConnection, "db-connection", "", "connection to the order ledger database (optional)")
	config.Events.SetFlags()
	config.Planet.SetFlags()
	flag.Parse()

	if config.AppPort == "" {
		return nil, fmt.Errorf("failed to initialize port application flag")
	}
	if config.Events.Queue != "" && config.DbConnection == "" {
		return nil, fmt.Errorf("missing db-connection config flag to record the events of %s", config.Events)
	}
	return &config, nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := run(ctx); err != nil {
		log.Fatal("error", zap.Error(err))
	}
}

func run(ctx context.Context) error {
	config, err := newAppConfig()
	if err != nil {
		return err
	}

	client, err := config.Planet.NewClient(ctx)
	if err != nil {
		return err
	}

	r := mux.NewRouter()
	c := catalog.Catalog{Searcher: client}
	c.AddHandler(r)

	var l *ledger.Ledger
	if config.DbConnection != "" {
		db, err := pg.New(ctx, config.DbConnection)
		if err != nil {
			return fmt.Errorf("pg.New: %w", err)
		}
		l = ledger.NewLedger(db)
		l.AddHandler(r)
	} else {
		log.Logger(ctx).Warn("order ledger is not configured: /orders and /runs endpoints are disabled")
	}

	headersOk := handlers.AllowedHeaders([]string{"*"})
	originsOk := handlers.AllowedOrigins([]string{"*"})
	methodsOk := handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	s := http.Server{
		Addr:    ":" + config.AppPort,
		Handler: handlers.CORS(originsOk, headersOk, methodsOk)(BearerAuthenticate(config.APIToken, r)),
	}
	go func() {
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Logger(ctx).Fatal("catalog.ListenAndServe", zap.Error(err))
		}
	}()

	consumer, stop, err := config.Events.NewConsumer(ctx)
	if err != nil {
		return err
	}
	defer stop()

	log.Logger(ctx).Sugar().Debugf("catalog listening on :%s, events: %s", config.AppPort, config.Events)
	if consumer != nil {
		if err := consume(ctx, consumer, l); err != nil && ctx.Err() == nil {
			return err
		}
	} else {
		<-ctx.Done()
	}

	sctx, cncl := context.WithTimeout(context.Background(), 30*time.Second)
	defer cncl()
	return s.Shutdown(sctx)
}

// consume records the events in the ledger until ctx is done
func consume(ctx context.Context, consumer messaging.Consumer, l *ledger.Ledger) error {
	for ctx.Err() == nil {
		err := consumer.Pull(ctx, func(ctx context.Context, msg *messaging.Message) error {
			ctx = log.With(ctx, "msgID", msg.ID)
			log.Logger(log.With(ctx, "body", string(msg.Data))).Sugar().Debugf("message %s try %d", msg.ID, msg.TryCount)
			if msg.TryCount > 30 {
				return fmt.Errorf("bailing out after too many retries")
			}
			evt, err := events.Decode(msg.Data)
			if err != nil {
				return err
			}
			if err := l.EventHandler(ctx, evt); err != nil {
				return service.MakeTemporary(fmt.Errorf("failed to record %s %s: %w", evt.Type, evt.ID, err))
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("consumer.Pull: %w", err)
		}
	}
	return nil
}
