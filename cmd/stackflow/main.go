// stackflow infers the operand stack and slot types at every instruction of
// bytecode compile units.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/stackflow/cache"
	"github.com/chazu/stackflow/flow"
	"github.com/chazu/stackflow/wire"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// errFailed marks a run in which some unit failed to analyze; each failure
// has already been reported.
var errFailed = errors.New("some units failed")

type options struct {
	config     string
	format     string
	version    string
	workers    int
	noCache    bool
	prune      time.Duration
	pack       string
	verbosity  int
	multiplier int
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("stackflow", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var o options
	fs.StringVar(&o.config, "config", "", "Manifest path (default: stackflow.toml found from the working directory)")
	fs.StringVar(&o.format, "format", "text", "Output format: text, dot, yaml, cbor")
	fs.StringVar(&o.version, "version", "", "Bytecode version for units that name none (overrides the manifest)")
	fs.IntVar(&o.workers, "workers", 0, "Concurrent analyses (default: from the manifest)")
	fs.IntVar(&o.multiplier, "multiplier", 0, "Iteration budget per block (default: from the manifest)")
	fs.BoolVar(&o.noCache, "no-cache", false, "Do not read or write the summary cache")
	fs.DurationVar(&o.prune, "prune", 0, "Drop cached summaries older than this and exit")
	fs.StringVar(&o.pack, "pack", "", "Write the input units as a CBOR bundle to this path and exit")
	fs.IntVar(&o.verbosity, "v", 0, "Log verbosity (0 quiet, 1 info, 2 debug)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: stackflow [options] [inputs...]\n\n")
		fmt.Fprintf(stderr, "Analyzes the units of a stackflow.toml manifest and of .cbor or .yaml unit bundles.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  stackflow                          # Analyze the units of ./stackflow.toml\n")
		fmt.Fprintf(stderr, "  stackflow -format dot | dot -Tsvg  # Render flow graphs\n")
		fmt.Fprintf(stderr, "  stackflow -format yaml units.cbor  # Summarize a bundle\n")
		fmt.Fprintf(stderr, "  stackflow -pack units.cbor         # Bundle the manifest's units\n")
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if err := execute(ctx, o, fs.Args(), stdout, stderr); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func execute(ctx context.Context, o options, paths []string, stdout, stderr io.Writer) error {
	switch o.format {
	case "text", "dot", "yaml", "cbor":
	default:
		return fmt.Errorf("unknown format %q", o.format)
	}

	p, err := loadProject(o.config, paths)
	if err != nil {
		return err
	}

	verbosity, logPath := o.verbosity, (*string)(nil)
	if p.manifest != nil {
		if verbosity == 0 {
			verbosity = p.manifest.Log.Verbosity
		}
		logPath = p.manifest.LogPath()
	}
	commonlog.Configure(verbosity, logPath)

	if o.version != "" {
		for _, u := range p.units {
			if u.Version == "" {
				u.Version = o.version
			}
		}
	}

	if o.pack != "" {
		return pack(o.pack, p.units)
	}

	store, err := openStore(o, p)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}
	if o.prune > 0 {
		if store == nil {
			return errors.New("-prune needs the cache enabled")
		}
		n, err := store.Prune(ctx, time.Now().Add(-o.prune))
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "pruned %d summaries\n", n)
		return nil
	}
	if len(p.units) == 0 {
		return errors.New("no units to analyze")
	}

	opts := flow.Options{Multiplier: o.multiplier}
	workers := o.workers
	if p.manifest != nil {
		if opts.Multiplier <= 0 {
			opts.Multiplier = p.manifest.FlowOptions().Multiplier
		}
		if workers <= 0 {
			workers = p.manifest.Analysis.Workers
		}
	}
	builder, err := flow.NewBuilder(p.registry, p.builtins, opts)
	if err != nil {
		return err
	}

	// Cached summaries carry no graph, so the graph formats always analyze.
	var s cache.Store
	if store != nil && (o.format == "yaml" || o.format == "cbor") {
		s = store
	}
	results, err := cache.NewAnalyzer(builder, p.registry, s, workers).AnalyzeAll(ctx, p.units)
	if err != nil {
		return err
	}

	failed := false
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", r.Unit.Name, r.Err)
			failed = true
			continue
		}
		if err := write(stdout, o.format, r); err != nil {
			return err
		}
	}
	if failed {
		return errFailed
	}
	return nil
}

// openStore opens the SQLite cache when the manifest enables it.
func openStore(o options, p *project) (*cache.SQLite, error) {
	if o.noCache || p.manifest == nil || !p.manifest.Cache.Enabled {
		return nil, nil
	}
	return cache.OpenSQLite(p.manifest.CachePath())
}

func write(w io.Writer, format string, r cache.Result) error {
	switch format {
	case "text":
		return annotate(w, r.Graph)
	case "dot":
		_, err := io.WriteString(w, r.Graph.Dot())
		return err
	case "yaml":
		out, err := r.Summary.YAML()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "---\n%s", out)
		return err
	case "cbor":
		out, err := wire.MarshalSummary(r.Summary)
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	}
	return fmt.Errorf("unknown format %q", format)
}

func pack(path string, units []*wire.Unit) error {
	b := &wire.Bundle{Units: make([]wire.Unit, len(units))}
	for i, u := range units {
		b.Units[i] = *u
	}
	data, err := wire.MarshalBundle(b)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
