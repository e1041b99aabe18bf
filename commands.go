package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/anchorlight/framekit/internal/config"
	"github.com/anchorlight/framekit/internal/db"
	"github.com/anchorlight/framekit/internal/scene/bench"
	"github.com/anchorlight/framekit/internal/scene/monitor"
)

// loadTuning resolves the tuning for a session: the -config file when
// given, the built-in defaults otherwise.
func loadTuning(path string) *config.TuningConfig {
	if path == "" {
		return config.DefaultTuningConfig()
	}
	tuning, err := config.LoadTuningConfig(path)
	if err != nil {
		log.Fatalf("Failed to load tuning config %s: %v", path, err)
	}
	return tuning
}

func mustPreset(name string) bench.Scenario {
	s, ok := bench.PresetByName(name)
	if !ok {
		log.Fatalf("Unknown scenario %q (available: %s)", name, strings.Join(bench.PresetNames(), ", "))
	}
	return s
}

// runServe drives a simulated session at the scenario's target frame rate
// until SIGINT/SIGTERM, with the monitoring webserver and run store
// attached. The script formulas are continuous, so the session runs past
// the preset frame count until stopped.
func runServe() {
	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	tuning := loadTuning(*configPath)
	s := mustPreset(*scenario)

	store, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()
	if err := store.EnsureSchema(); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	session, err := bench.NewSession(s, tuning, nil)
	if err != nil {
		log.Fatalf("Failed to assemble session: %v", err)
	}
	defer session.Dispose()

	run, err := bench.StartRun(store, s, time.Now())
	if err != nil {
		log.Fatalf("Failed to create run: %v", err)
	}
	log.Printf("serving scenario %q as run %s on %s", s.Name, run.ID, *listen)

	adminMux := http.NewServeMux()
	if err := store.AttachAdminRoutes(adminMux); err != nil {
		log.Fatalf("Failed to attach admin routes: %v", err)
	}

	ws := monitor.NewWebServer(monitor.WebServerConfig{
		Address:    *listen,
		Stats:      session.Stats,
		Profiler:   session.Profiler,
		SessionID:  run.ID,
		Scenario:   s.Name,
		ConfigEcho: tuning,
		Admin:      adminMux,
	})

	// Wait group for the HTTP server, the stats logger, and the frame loop
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := session.Start(ctx); err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}
	defer session.Stop()

	// HTTP server goroutine; Start blocks until ctx is cancelled and
	// shuts the server down itself
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ws.Start(ctx); err != nil {
			log.Printf("webserver error: %v", err)
		}
		log.Print("webserver routine terminated")
	}()

	// periodic frame-rate logging
	wg.Add(1)
	go func() {
		defer wg.Done()
		session.Stats.LogStats(ctx, 10*time.Second)
	}()

	// frame loop at the scenario's target rate
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(time.Duration(float64(time.Second) / s.TargetFPS))
		defer ticker.Stop()

		last := time.Now()
		for frame := 0; ; frame++ {
			select {
			case <-ctx.Done():
				log.Printf("frame loop terminated after %d frames", frame)
				return
			case now := <-ticker.C:
				session.Tick(frame, now.Sub(last).Seconds()*1000)
				last = now
			}
		}
	}()

	// Wait for all goroutines to finish
	wg.Wait()

	res := session.Result(run.ID)
	if err := bench.PersistResult(store, run.ID, time.Now(), res); err != nil {
		log.Printf("failed to persist run %s: %v", run.ID, err)
	} else {
		log.Printf("run %s persisted: %d frames, %.1f achieved fps",
			run.ID, res.Summary.Frames, res.Summary.AchievedFPS)
	}
	log.Printf("Graceful shutdown complete")
}

// runBench executes one scenario headless at full speed and prints the
// summary table.
func runBench(args []string) {
	fs := flag.NewFlagSet("bench", flag.ExitOnError)
	name := fs.String("scenario", *scenario, "Scenario preset to run")
	frames := fs.Int("frames", 0, "Override the preset frame count")
	storePath := fs.String("store", "", "Persist results to this SQLite database (default: none)")
	fs.Parse(args)

	tuning := loadTuning(*configPath)
	s := mustPreset(*name)
	if *frames > 0 {
		s.Frames = *frames
	}

	cfg := bench.RunnerConfig{Scenario: s, Tuning: tuning}
	if *storePath != "" {
		database, err := db.NewDB(*storePath)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()
		if err := database.EnsureSchema(); err != nil {
			log.Fatalf("Failed to apply migrations: %v", err)
		}
		cfg.Store = database
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := bench.Run(ctx, cfg)
	if err != nil {
		log.Fatalf("Benchmark failed: %v", err)
	}
	bench.FormatSummary(os.Stdout, res)
}
