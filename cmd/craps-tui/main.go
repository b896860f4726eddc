// Command craps-tui plays a craps table in the terminal.
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gdamore/tcell/v2"

	"github.com/MJE43/craps-pf-go/internal/config"
	"github.com/MJE43/craps-pf-go/internal/store"
	"github.com/MJE43/craps-pf-go/internal/table"
	"github.com/MJE43/craps-pf-go/internal/tui"
)

func main() {
	dbPath := flag.String("db", "", "SQLite ledger path (empty disables recording)")
	logPath := flag.String("log", "", "write table logs to this file")
	flag.Parse()

	log.SetPrefix("[CRAPS-TUI] ")
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// the terminal belongs to tcell, so logs go to a file or nowhere
	logOut := io.Discard
	if *logPath != "" {
		f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			log.Fatalf("open log: %v", err)
		}
		defer f.Close()
		logOut = f
	}

	opts := table.Options{
		StartWallet: cfg.StartWallet,
		TickHz:      cfg.TickHz,
		MaxSettle:   cfg.MaxSettle,
		ClientSeed:  cfg.ClientSeed,
		Logger:      log.New(logOut, "[TABLE] ", log.LstdFlags),
	}
	if *dbPath != "" {
		db, err := store.New(*dbPath)
		if err != nil {
			log.Fatalf("store: %v", err)
		}
		defer db.Close()
		opts.Recorder = db
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		log.Fatalf("screen: %v", err)
	}
	if err := screen.Init(); err != nil {
		log.Fatalf("screen init: %v", err)
	}
	defer screen.Fini()

	tbl, err := table.New(opts)
	if err != nil {
		screen.Fini()
		log.Fatalf("table: %v", err)
	}
	app := tui.NewApp(screen, tbl)
	tbl.AddListener(app.Listener())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tableCtx, stopTable := context.WithCancel(ctx)
	tableDone := make(chan struct{})
	go func() {
		defer close(tableDone)
		tbl.Run(tableCtx)
	}()
	if s, err := tbl.Snapshot(ctx); err == nil {
		app.Listener().StateChanged(s)
	}

	if err := app.Run(ctx); err != nil {
		log.Printf("tui: %v", err)
	}
	stopTable()
	<-tableDone
}
