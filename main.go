package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/anchorlight/framekit/internal/db"
	"github.com/anchorlight/framekit/internal/scene/pipeline"
	"github.com/anchorlight/framekit/internal/version"
)

var (
	devMode    = flag.Bool("dev", false, "Run in dev mode (migrations load from disk)")
	listen     = flag.String("listen", ":8080", "HTTP listen address")
	dbFile     = flag.String("db", "framekit.db", "Path to the SQLite results database")
	configPath = flag.String("config", "", "Path to a tuning config JSON (default: built-in defaults)")
	scenario   = flag.String("scenario", "orbit", "Scenario preset driving the simulated session")
	verbosity  = flag.Int("v", 0, "Log verbosity: 0=ops, 1=+diag, 2=+trace")
)

// logWritersFor maps the -v flag onto the pipeline logging streams.
func logWritersFor(v int) pipeline.LogWriters {
	w := pipeline.LogWriters{Ops: os.Stderr}
	if v >= 1 {
		w.Diag = os.Stderr
	}
	if v >= 2 {
		w.Trace = os.Stderr
	}
	return w
}

// Main
func main() {
	flag.Usage = printUsage
	flag.Parse()

	pipeline.SetLogWriters(logWritersFor(*verbosity))

	if flag.NArg() == 0 {
		runServe()
		return
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	switch command {
	case "migrate":
		db.DevMode = *devMode
		db.RunMigrateCommand(args, *dbFile)
	case "bench":
		runBench(args)
	case "version":
		fmt.Printf("framekit %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`framekit - AR scene optimization service

Usage: framekit [flags] [command]

With no command, framekit serves a simulated optimization session: the
scenario preset drives the full pipeline at its target frame rate with the
monitoring webserver, memory profiler and run store attached.

Commands:
  migrate    Manage the results database schema (see 'framekit migrate help')
  bench      Run one headless benchmark and print its summary
  version    Show build information
  help       Show this help message

Flags:
  -listen <addr>      HTTP listen address (default :8080)
  -db <path>          SQLite results database (default framekit.db)
  -config <path>      Tuning config JSON (default: built-in defaults)
  -scenario <name>    Scenario preset for serve mode (default orbit)
  -dev                Dev mode: load migrations from disk
  -v <level>          Log verbosity: 0=ops, 1=+diag, 2=+trace

Examples:
  # Serve the orbit scenario with the monitor UI on :8080
  framekit

  # Serve the stress scenario with diagnostics
  framekit -scenario stress -v 1

  # Apply pending schema migrations
  framekit migrate up

  # Headless benchmark persisted to the results database
  framekit bench -scenario occlusion -store framekit.db`)
}
