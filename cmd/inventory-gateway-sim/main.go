// Package main runs the in-memory inventory API used for local development
// and the integration tests.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/stock-adjustment-service/internal/config"
	"github.com/fairyhunter13/stock-adjustment-service/internal/gateway/gatewaysim"
	"github.com/fairyhunter13/stock-adjustment-service/internal/obs"
)

var catalog = []gatewaysim.Product{
	{ID: 1, Code: "8839-22-BLK", Name: "Crew Neck Tee Black", Price: decimal.RequireFromString("49.90"), Quantity: 45},
	{ID: 2, Code: "8839-22-WHT", Name: "Crew Neck Tee White", Price: decimal.RequireFromString("49.90"), Quantity: 12},
	{ID: 3, Code: "5120-07-NAV", Name: "Chino Navy", Price: decimal.RequireFromString("89.00"), Quantity: 0},
	{ID: 4, Code: "7781-01-GRY", Name: "Hoodie Grey", Price: decimal.RequireFromString("119.50"), Quantity: 7},
}

func main() {
	cfg := config.LoadSim()
	obs.InitLogger()
	obs.SetLevel(cfg.LogLevel)

	sim := gatewaysim.New(cfg.Latency, catalog...)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           sim.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		obs.Logger.Info("sim_listen", "addr", cfg.Addr, "latency_ms", cfg.Latency.Milliseconds(), "products", len(catalog))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			obs.Logger.Error("sim_server_error", "error", err)
			os.Exit(1)
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigc
	obs.Logger.Info("shutdown_signal", "signal", s.String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		obs.Logger.Error("sim_shutdown_error", "error", err)
	}
}
