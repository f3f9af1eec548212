package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gluk-w/claworc/log-viewer/internal/config"
	"github.com/gluk-w/claworc/log-viewer/internal/database"
	"github.com/gluk-w/claworc/log-viewer/internal/handlers"
	"github.com/gluk-w/claworc/log-viewer/internal/history"
	"github.com/gluk-w/claworc/log-viewer/internal/logging"
	"github.com/gluk-w/claworc/log-viewer/internal/logviewer"
	"github.com/gluk-w/claworc/log-viewer/internal/sshconn"
	"github.com/gluk-w/claworc/log-viewer/internal/sshlogs"
	"github.com/gluk-w/claworc/log-viewer/internal/sshmanager"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--import-connections" {
		runImportCommand()
		return
	}

	config.Load()
	logging.Init()

	if err := database.Init(); err != nil {
		log.Fatalf("Database init: %v", err)
	}
	defer database.Close()

	policy, err := sshmanager.NewHostPolicy(config.Cfg.AllowedHosts)
	if err != nil {
		log.Fatalf("Invalid ALLOWED_HOSTS: %v", err)
	}
	var allowHost func(string) error
	if policy.Restricted() {
		allowHost = policy.Allow
		log.Printf("[ssh] host allow list active: %s", config.Cfg.AllowedHosts)
	}

	connector, err := sshconn.NewConnector(sshconn.Options{
		DialTimeout:    config.Cfg.DialTimeout,
		KnownHostsPath: config.Cfg.KnownHostsPath,
		AllowHost:      allowHost,
	})
	if err != nil {
		log.Fatalf("SSH connector init: %v", err)
	}

	eventLog := sshmanager.NewEventLog()
	hub := sshmanager.NewHub(eventLog)

	rateLimit := sshmanager.DefaultRateLimitConfig()
	mgr := sshmanager.NewManager(connector, hub, sshmanager.Options{
		PollInterval: config.Cfg.PollInterval,
		Stream:       sshlogs.StreamOptions{Tail: config.Cfg.TailLines},
		MaxLineBytes: config.Cfg.MaxLineBytes,
		RateLimit:    &rateLimit,

		KeepaliveInterval: config.Cfg.KeepaliveInterval,
		KeepaliveTimeout:  config.Cfg.KeepaliveTimeout,
	})

	recorder := history.NewRecorder(database.DB, config.Cfg.HistoryRetentionDays)
	mgr.OnSessionEnd(recorder.Observer())
	purgeCron, err := history.SchedulePurge(recorder, config.Cfg.HistoryPurgeSchedule)
	if err != nil {
		log.Fatalf("History purge schedule: %v", err)
	}

	if config.Cfg.ConnectionsFile != "" {
		if _, err := logviewer.ImportConnections(config.Cfg.ConnectionsFile); err != nil {
			log.Printf("WARNING: connections import failed: %v", err)
		}
	}

	handlers.Service = logviewer.New(mgr, logviewer.Options{
		ReadTailLines: config.Cfg.ReadTailLines,
		DiscoveryDirs: config.Cfg.DiscoveryDirs,
	})
	handlers.Hub = hub
	handlers.EventLog = eventLog
	handlers.History = recorder
	handlers.OriginPatterns = config.Cfg.AllowedOrigins
	if config.Cfg.EventBuffer > 0 {
		handlers.EventBuffer = config.Cfg.EventBuffer
	}

	if config.Cfg.APIToken == "" {
		log.Printf("WARNING: LOGVIEWER_API_TOKEN is empty, API is unauthenticated")
	}

	srv := &http.Server{
		Addr:    config.Cfg.ListenAddr,
		Handler: handlers.NewRouter(config.Cfg.APIToken),
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Server starting on %s", config.Cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-sigCtx.Done()
	log.Println("Shutting down...")

	<-purgeCron.Stop().Done()
	mgr.Close()
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

func runImportCommand() {
	fs := flag.NewFlagSet("import-connections", flag.ExitOnError)
	file := fs.String("file", "", "YAML file with a top-level 'connections' list")
	fs.Parse(os.Args[2:])

	if *file == "" {
		fmt.Fprintf(os.Stderr, "Usage: log-viewer --import-connections --file <connections.yaml>\n")
		os.Exit(1)
	}

	config.Load()
	if err := database.Init(); err != nil {
		log.Fatalf("Database init: %v", err)
	}
	defer database.Close()

	n, err := logviewer.ImportConnections(*file)
	if err != nil {
		log.Fatalf("Import failed: %v", err)
	}
	fmt.Printf("Imported %d connections from %s.\n", n, *file)
}
