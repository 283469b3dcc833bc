package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gift_sniper/internal/catalog"
	"gift_sniper/internal/config"
	"gift_sniper/internal/engine"
	"gift_sniper/internal/httpapi"
	"gift_sniper/internal/logbus"
	"gift_sniper/internal/market/gateway"
	"gift_sniper/internal/notify"
	"gift_sniper/internal/proxypool"
	"gift_sniper/internal/runstate"
	"gift_sniper/internal/store/sqlite"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	bus := logbus.New(200)
	bus.Log("", "info", "server starting", map[string]any{"addr": cfg.Server.Addr})

	ctx := context.Background()
	store, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("open sqlite: %v", err)
	}
	defer store.Close()

	cat, err := catalog.Load(cfg.Catalog.Path, cfg.Catalog.URL)
	if err != nil {
		log.Fatalf("load gift catalog: %v", err)
	}
	bus.Log("", "info", "gift catalog loaded", map[string]any{"kinds": cat.Len()})

	pool, err := proxypool.New(cfg.Storage.ProxyFile())
	if err != nil {
		log.Fatalf("open proxy pool: %v", err)
	}
	registry := runstate.NewRegistry(cfg.Storage.RunStateDir())

	var notifiers notify.Multi
	if cfg.Notify.Telegram.BotToken != "" {
		tg, err := notify.NewTelegramNotifier(cfg.Notify.Telegram, store, bus)
		if err != nil {
			log.Fatalf("telegram notifier: %v", err)
		}
		notifiers = append(notifiers, tg)
	}
	var mailer *notify.EmailNotifier
	if cfg.Notify.Email.Enabled {
		mailer = notify.NewEmailNotifier(cfg.Notify.Email, store, bus)
		notifiers = append(notifiers, mailer)
	}

	manager := engine.NewManager(engine.Options{
		Config:   cfg,
		Dialer:   gateway.NewDialer(cfg.Gateway, bus),
		Pool:     pool,
		Registry: registry,
		Settings: store,
		Catalog:  cat,
		Notifier: notifiers,
		Bus:      bus,
	})

	// Tenants that were running when the previous process died come back up
	// before the API starts taking traffic.
	if err := manager.RestoreAll(ctx); err != nil {
		bus.Log("", "error", "restore failed", map[string]any{"error": err.Error()})
	}

	api := httpapi.New(httpapi.Options{
		Cfg:      cfg,
		Bus:      bus,
		Store:    store,
		Manager:  manager,
		Pool:     pool,
		Registry: registry,
		Catalog:  cat,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		bus.Log("", "info", "shutdown signal received", map[string]any{"signal": sig.String()})
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			bus.Log("", "error", "http server error", map[string]any{"error": err.Error()})
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	manager.StopAll(shutdownCtx)
	_ = server.Shutdown(shutdownCtx)
	if mailer != nil {
		mailer.Close()
	}
	bus.Log("", "info", "server stopped", nil)
}
