// Package main boots the stock adjustment session service.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/stock-adjustment-service/internal/cache"
	"github.com/fairyhunter13/stock-adjustment-service/internal/config"
	"github.com/fairyhunter13/stock-adjustment-service/internal/events"
	"github.com/fairyhunter13/stock-adjustment-service/internal/gateway"
	httpapi "github.com/fairyhunter13/stock-adjustment-service/internal/http"
	"github.com/fairyhunter13/stock-adjustment-service/internal/journal"
	"github.com/fairyhunter13/stock-adjustment-service/internal/obs"
	"github.com/fairyhunter13/stock-adjustment-service/internal/queue"
	"github.com/fairyhunter13/stock-adjustment-service/internal/session"
	"github.com/fairyhunter13/stock-adjustment-service/internal/store"
)

func main() {
	cfg := config.Load()
	obs.InitLogger()
	obs.SetLevel(cfg.LogLevel)
	obs.Logger.Info("service_starting", "gateway", cfg.GatewayBaseURL)

	if err := run(cfg); err != nil {
		obs.Logger.Error("service_failed", "error", err)
		os.Exit(1)
	}
	obs.Logger.Info("service_stopped")
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gwOpts := gateway.Options{
		BaseURL: cfg.GatewayBaseURL,
		Token:   cfg.GatewayToken,
		Timeout: cfg.GatewayTimeout,
	}
	if cfg.RedisAddr != "" {
		rdb, err := cache.Dial(ctx, cfg.RedisAddr)
		if err != nil {
			obs.Logger.Warn("redis_unavailable", "addr", cfg.RedisAddr, "error", err)
		} else {
			defer rdb.Close()
			gwOpts.Cache = cache.NewRedisIDCache(rdb, cfg.RedisIDTTL)
			obs.Logger.Info("redis_id_cache_enabled", "addr", cfg.RedisAddr, "ttl_sec", cfg.RedisIDTTL.Seconds())
		}
	}
	gw, err := gateway.New(gwOpts)
	if err != nil {
		return err
	}

	var sinks []queue.Sink
	var journalReader httpapi.JournalReader
	if cfg.JournalPath != "" {
		j, err := journal.Open(cfg.JournalPath)
		if err != nil {
			return err
		}
		defer j.Close()
		sinks = append(sinks, j)
		journalReader = j
		obs.Logger.Info("journal_enabled", "path", cfg.JournalPath)
	}
	if cfg.AMQPURL != "" {
		conn, ch, err := events.SetupConn(cfg.AMQPURL, 5, 2*time.Second)
		if err != nil {
			obs.Logger.Warn("amqp_unavailable", "error", err)
		} else {
			defer conn.Close()
			defer ch.Close()
			sinks = append(sinks, events.NewPublisher(ch))
			obs.Logger.Info("amqp_publisher_enabled", "exchange", events.ExchangeName)
		}
	}

	mgr := queue.NewManager(queue.New(cfg.DispatchBuffer), cfg.DispatchWorkers, cfg.GatewayTimeout, sinks...)
	mgrCtx, cancelMgr := context.WithCancel(context.Background())
	defer cancelMgr()
	mgr.Start(mgrCtx)

	ctrl := session.New(gw, session.Options{
		LookupDebounce:  cfg.LookupDebounce,
		MinCodeLength:   cfg.LookupMinCodeLen,
		LookupTimeout:   cfg.GatewayTimeout,
		NoticeDelay:     cfg.NoticeDelay,
		CounterDuration: cfg.CounterDuration,
		CounterMinStep:  cfg.CounterMinStep,
		Mirror:          store.New(),
		Recorder:        mgr,
	})
	obs.Logger.Info("session_started", "session_id", ctrl.SessionID())

	app := httpapi.NewApp(cfg, ctrl, mgr, journalReader)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(app),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		obs.Logger.Info("http_listen", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		obs.Logger.Info("shutdown_signal")
		app.StartShutdown()

		ctxSrv, cancelSrv := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancelSrv()
		// in-flight commits finish and record their events first
		if err := srv.Shutdown(ctxSrv); err != nil {
			obs.Logger.Error("http_shutdown_error", "error", err)
		}
		ctrl.Close()

		mgr.CloseIntake()
		_, _, backlog, depth := mgr.QueueMetrics()
		obs.Logger.Info("shutdown_drain_begin", "backlog_size", backlog, "queue_depth", depth, "worker_count", mgr.WorkerCount())
		if drained := mgr.DrainUntil(ctxSrv); !drained {
			obs.Logger.Warn("shutdown_drain_timeout")
		} else {
			obs.Logger.Info("shutdown_drain_complete")
		}
		mgr.Stop()
		return nil
	})
	return g.Wait()
}
