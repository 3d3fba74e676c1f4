// dtnntpd is the DTN-NNTP gateway daemon: an NNTP reader server whose
// article flow is carried over Bundle Protocol 7 via an external DTN daemon.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	prof "github.com/go-while/go-cpu-mem-profiler"
	log "github.com/sirupsen/logrus"

	"github.com/go-dtn/dtnntp/internal/backend"
	"github.com/go-dtn/dtnntp/internal/config"
	"github.com/go-dtn/dtnntp/internal/database"
	"github.com/go-dtn/dtnntp/internal/nntp"
	"github.com/go-dtn/dtnntp/internal/web"
)

var Prof *prof.Profiler

var appVersion = "-unset-"

func main() {
	config.AppVersion = appVersion

	var (
		configPath = flag.String("config", "config.toml", "Path to TOML configuration file")
		profAddr   = flag.String("prof", "", "Enable pprof web server on this address (e.g. :61190)")
	)
	flag.Parse()

	// -config given explicitly makes a missing file fatal
	explicit := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicit = true
		}
	})

	cfg, err := config.Load(*configPath, explicit)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Warnf("Unknown log level %q, using info", cfg.Log.Level)
		level = log.InfoLevel
	}
	log.SetLevel(level)

	log.Printf("Starting dtnntpd (version: %s)", config.AppVersion)

	if *profAddr != "" {
		Prof = prof.NewProf()
		go Prof.PprofWeb(*profAddr)
	}

	db, err := database.Open(cfg.Backend.DBURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := backend.New(cfg, db)
	if err := b.Start(ctx); err != nil {
		log.Fatalf("Failed to start backend: %v", err)
	}

	srv, err := nntp.NewNNTPServer(cfg, db, b)
	if err != nil {
		log.Fatalf("Failed to create NNTP server: %v", err)
	}
	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start NNTP server: %v", err)
	}

	var console *web.Server
	if cfg.Web.Listen != "" {
		console = web.NewServer(cfg, db, b)
		console.Start()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Printf("Received signal %v, shutting down", sig)

	if console != nil {
		console.Stop()
	}
	srv.Stop()
	b.Stop()
	log.Println("dtnntpd shut down")
}
