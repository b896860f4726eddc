// Command crapsd serves a live craps table over HTTP and websockets.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MJE43/craps-pf-go/internal/api"
	"github.com/MJE43/craps-pf-go/internal/config"
	"github.com/MJE43/craps-pf-go/internal/scripting"
	"github.com/MJE43/craps-pf-go/internal/store"
	"github.com/MJE43/craps-pf-go/internal/table"
)

func main() {
	log.SetPrefix("[CRAPSD] ")
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("crapsd: %v", err)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	started := time.Now()

	db, err := store.New(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	hub := api.NewHub(cfg.TickHz, cfg.BroadcastHz)
	tbl, err := table.New(table.Options{
		StartWallet: cfg.StartWallet,
		TickHz:      cfg.TickHz,
		MaxSettle:   cfg.MaxSettle,
		ClientSeed:  cfg.ClientSeed,
		Recorder:    db,
		Listeners:   []table.Listener{hub},
	})
	if err != nil {
		return err
	}

	tableCtx, stopTable := context.WithCancel(context.Background())
	tableDone := make(chan struct{})
	go func() {
		defer close(tableDone)
		tbl.Run(tableCtx)
	}()

	auto := scripting.NewEngine(tbl, hub)
	auto.SetRecorder(db)
	srv := api.NewServer(api.Deps{Table: tbl, Store: db, Autoplay: auto, Hub: hub})

	addr, err := srv.Start(cfg.Addr)
	if err != nil {
		stopTable()
		<-tableDone
		return err
	}
	srv.Audit().Startup(addr, api.Fields{
		"db_path":      cfg.DBPath,
		"start_wallet": cfg.StartWallet,
		"tick_hz":      cfg.TickHz,
		"broadcast_hz": cfg.BroadcastHz,
		"max_settle":   cfg.MaxSettle.String(),
	})
	log.Printf("listening on %s", addr)

	<-ctx.Done()
	log.Printf("shutting down")

	if auto.GetState().State == scripting.StateRunning {
		_ = auto.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}

	stopTable()
	<-tableDone
	srv.Audit().Shutdown("signal", time.Since(started))
	return nil
}
