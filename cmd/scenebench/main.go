// Command scenebench runs scene optimization scenarios headless and
// reports their frame statistics: one preset, a comma-separated list, or
// the full sweep. Results can be persisted to a run store and rendered as
// frame-time plots.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/anchorlight/framekit/internal/config"
	"github.com/anchorlight/framekit/internal/db"
	"github.com/anchorlight/framekit/internal/scene/bench"
	"github.com/anchorlight/framekit/internal/security"
)

func main() {
	scenarios := flag.String("scenarios", "all", "Comma-separated scenario presets to run, or 'all'")
	frames := flag.Int("frames", 0, "Override the preset frame count (0 keeps each preset's own)")
	configPath := flag.String("config", "", "Tuning config JSON (default: built-in defaults)")
	storePath := flag.String("store", "", "Persist runs to this SQLite database (default: none)")
	outputDir := flag.String("output", "", "Directory for frame-time plots (default: no plots)")
	htmlCharts := flag.Bool("html", false, "Also write an interactive chart page per scenario")
	flag.Parse()

	list, err := resolveScenarios(*scenarios)
	if err != nil {
		log.Fatalf("Invalid scenario list: %v", err)
	}

	tuning := config.DefaultTuningConfig()
	if *configPath != "" {
		tuning, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load tuning config %s: %v", *configPath, err)
		}
	}

	var store *db.DB
	if *storePath != "" {
		store, err = db.NewDB(*storePath)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(); err != nil {
			log.Fatalf("Failed to apply migrations: %v", err)
		}
	}

	if *outputDir != "" {
		if err := os.MkdirAll(*outputDir, 0o755); err != nil {
			log.Fatalf("Could not create output directory %s: %v", *outputDir, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	results := make([]*bench.Result, 0, len(list))
	for _, s := range list {
		if *frames > 0 {
			s.Frames = *frames
		}
		res, err := bench.Run(ctx, bench.RunnerConfig{Scenario: s, Tuning: tuning, Store: store})
		if err != nil {
			log.Fatalf("Scenario %s failed: %v", s.Name, err)
		}
		bench.FormatSummary(os.Stdout, res)
		fmt.Println()

		if *outputDir != "" {
			if err := writePlots(*outputDir, res, *htmlCharts); err != nil {
				log.Fatalf("Failed to write plots for %s: %v", s.Name, err)
			}
		}
		results = append(results, res)
	}

	if len(results) > 1 {
		printComparison(os.Stdout, results)
	}
}

// resolveScenarios expands the -scenarios flag into preset definitions:
// "all" selects every preset, otherwise each comma-separated name must
// match one.
func resolveScenarios(list string) ([]bench.Scenario, error) {
	if strings.TrimSpace(list) == "" {
		return nil, fmt.Errorf("no scenarios given")
	}
	names := bench.PresetNames()
	if list == "all" {
		out := make([]bench.Scenario, 0, len(names))
		for _, name := range names {
			s, _ := bench.PresetByName(name)
			out = append(out, s)
		}
		return out, nil
	}
	parts := strings.Split(list, ",")
	out := make([]bench.Scenario, 0, len(parts))
	for _, p := range parts {
		name := strings.TrimSpace(p)
		s, ok := bench.PresetByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown scenario %q (available: %s)", name, strings.Join(names, ", "))
		}
		out = append(out, s)
	}
	return out, nil
}

// plotPath builds a validated path inside dir for one output artifact. The
// scenario name is sanitized first, so even a hostile name cannot place the
// file outside dir.
func plotPath(dir, scenarioName, suffix string) (string, error) {
	name := security.SanitizeFilename(scenarioName) + suffix
	path := filepath.Join(dir, name)
	if err := security.ValidatePathWithinDirectory(path, dir); err != nil {
		return "", err
	}
	return path, nil
}

func writePlots(dir string, res *bench.Result, html bool) error {
	pngPath, err := plotPath(dir, res.Scenario.Name, "-frames.png")
	if err != nil {
		return err
	}
	if err := bench.WritePlotPNG(pngPath, res.Records); err != nil {
		return err
	}
	log.Printf("wrote %s", pngPath)

	if html {
		htmlPath, err := plotPath(dir, res.Scenario.Name, "-frames.html")
		if err != nil {
			return err
		}
		if err := bench.WriteChartHTML(htmlPath, res); err != nil {
			return err
		}
		log.Printf("wrote %s", htmlPath)
	}
	return nil
}

// printComparison prints one aligned row per scenario for side-by-side
// reading after a sweep.
func printComparison(w io.Writer, results []*bench.Result) {
	fmt.Fprintln(w, "Sweep comparison")
	fmt.Fprintln(w, "================")
	fmt.Fprintf(w, "  %-12s %10s %10s %10s %10s %8s\n",
		"scenario", "mean ms", "p95 ms", "p99 ms", "fps", "dropped")
	for _, res := range results {
		fmt.Fprintf(w, "  %-12s %10.3f %10.3f %10.3f %10.1f %8d\n",
			res.Scenario.Name,
			res.Summary.MeanMS,
			res.Summary.P95MS,
			res.Summary.P99MS,
			res.Summary.AchievedFPS,
			res.Summary.DroppedFrames)
	}
}
