package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/banshee-data/msod/internal/analysis"
	"github.com/banshee-data/msod/internal/api"
	"github.com/banshee-data/msod/internal/config"
	"github.com/banshee-data/msod/internal/db"
	"github.com/banshee-data/msod/internal/fetch"
	"github.com/banshee-data/msod/internal/fsutil"
	"github.com/banshee-data/msod/internal/genotype"
	"github.com/banshee-data/msod/internal/report"
	"github.com/banshee-data/msod/internal/version"
)

const defaultDB = "msod.db"

// errUsage signals that usage was already printed.
var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, errUsage) {
			log.Printf("error: %v", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) < 1 {
		printUsage(out)
		return errUsage
	}

	command, rest := args[0], args[1:]
	switch command {
	case "analyze":
		return runAnalyze(ctx, rest, out)
	case "serve":
		return runServe(ctx, rest)
	case "migrate":
		return runMigrate(rest)
	case "config":
		return runConfig(rest, out)
	case "version":
		fmt.Fprintln(out, version.String())
		return nil
	case "help", "-h", "--help":
		printUsage(out)
		return nil
	default:
		fmt.Fprintf(out, "Unknown command: %s\n\n", command)
		printUsage(out)
		return errUsage
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `msod - Moran spectral outlier detection and randomization

Usage: msod <command> [options]

Commands:
  analyze    Run MSOD and the MSR test on a genotype CSV
  serve      Serve stored runs over HTTP
  migrate    Manage the database schema (see 'msod migrate help')
  config     Print the effective analysis configuration
  version    Show version information
  help       Show this help message

Examples:
  msod analyze -in samples.csv -out results -plots
  msod analyze -url https://example.org/samples.csv -config cfg.json -db msod.db
  msod serve -listen :8080 -db msod.db
`)
}

type analyzeOptions struct {
	in       string
	url      string
	cacheDir string
	config   string
	dbPath   string
	outDir   string
	plots    bool

	// Overrides applied on top of the config file.
	permutations int
	seed         uint64
	habitat      string
	workers      int
}

func parseAnalyzeFlags(args []string, out io.Writer) (*analyzeOptions, error) {
	o := &analyzeOptions{}
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&o.in, "in", "", "Genotype CSV file")
	fs.StringVar(&o.url, "url", "", "Download the genotype CSV from this URL (cached)")
	fs.StringVar(&o.cacheDir, "cache", ".msod-cache", "Download cache directory")
	fs.StringVar(&o.config, "config", "", "Analysis config JSON file")
	fs.StringVar(&o.dbPath, "db", "", "Store the run in this SQLite database")
	fs.StringVar(&o.outDir, "out", "", "Write tables and charts to this directory")
	fs.BoolVar(&o.plots, "plots", false, "Also write PNG plots (requires -out)")
	fs.IntVar(&o.permutations, "permutations", 0, "Override the number of permutations")
	fs.Uint64Var(&o.seed, "seed", 0, "Override the random seed")
	fs.StringVar(&o.habitat, "habitat", "", "Override the habitat level tested by MSR")
	fs.IntVar(&o.workers, "workers", 0, "Override the number of worker goroutines")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if (o.in == "") == (o.url == "") {
		return nil, fmt.Errorf("exactly one of -in or -url is required")
	}
	if o.plots && o.outDir == "" {
		return nil, fmt.Errorf("-plots requires -out")
	}
	if o.permutations < 0 || o.workers < 0 {
		return nil, fmt.Errorf("-permutations and -workers must not be negative")
	}
	return o, nil
}

// loadConfig reads the config file, if any, and applies flag overrides.
func (o *analyzeOptions) loadConfig() (*config.AnalysisConfig, error) {
	cfg := config.EmptyAnalysisConfig()
	if o.config != "" {
		var err error
		if cfg, err = config.LoadAnalysisConfig(o.config); err != nil {
			return nil, err
		}
	}
	if o.permutations > 0 {
		cfg.Permutations = &o.permutations
	}
	if o.seed != 0 {
		cfg.Seed = &o.seed
	}
	if o.habitat != "" {
		cfg.HabitatLevel = &o.habitat
	}
	if o.workers > 0 {
		cfg.Workers = &o.workers
	}
	return cfg, cfg.Validate()
}

func runAnalyze(ctx context.Context, args []string, out io.Writer) error {
	o, err := parseAnalyzeFlags(args, out)
	if err != nil {
		return err
	}
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}

	path := o.in
	if o.url != "" {
		if path, err = fetch.New(o.cacheDir).Fetch(ctx, o.url); err != nil {
			return err
		}
	}

	ds, err := genotype.LoadFile(fsutil.OSFileSystem{}, path, genotype.ReadOptions{ImputeMissing: cfg.GetImputeMissing()})
	if err != nil {
		return err
	}
	if ds.Imputed > 0 {
		log.Printf("imputed %d missing genotypes", ds.Imputed)
	}
	log.Printf("loaded %d individuals, %d loci from %s", ds.N(), ds.NumLoci(), path)

	rep, err := analysis.Run(ctx, ds, cfg)
	if err != nil {
		return err
	}
	rep.Source = filepath.Base(path)
	if o.url != "" {
		rep.Source = o.url
	}

	if o.outDir != "" {
		if _, err := report.WriteAll(fsutil.OSFileSystem{}, o.outDir, rep, report.Options{Plots: o.plots, Alpha: cfg.GetAlpha()}); err != nil {
			return err
		}
	}

	if o.dbPath != "" {
		database, err := db.NewDB(o.dbPath)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer database.Close()
		id, err := db.NewRunStore(database).Insert(rep, rep.Source)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "run id: %s\n", id)
	}

	return printSummary(out, rep)
}

func printSummary(out io.Writer, rep *analysis.Report) error {
	fmt.Fprintf(out, "%d individuals, %d loci, %d MEMs, seed %d\n",
		rep.Individuals, len(rep.Loci), len(rep.Eigenvalues), rep.Seed)
	outliers := rep.Outliers()
	if len(outliers) == 0 {
		fmt.Fprintln(out, "no outlier loci")
		return nil
	}
	fmt.Fprintf(out, "%d outlier loci:\n", len(outliers))
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "locus\tz\tmsod_p_adj\tmsr_p\tmsr_p_adj")
	for _, l := range rep.Loci {
		if l.MSODOutlier || l.MSROutlier {
			fmt.Fprintf(tw, "%s\t%.3f\t%.4g\t%.4g\t%.4g\n", l.Locus, l.Z, l.MSODPAdj, l.MSRP, l.MSRPAdj)
		}
	}
	return tw.Flush()
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	listen := fs.String("listen", ":8080", "Listen address")
	dbPath := fs.String("db", defaultDB, "SQLite database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *listen == "" {
		return fmt.Errorf("listen address is required")
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	mux := http.NewServeMux()
	// admin routes are only reachable over loopback or Tailscale
	database.AttachAdminRoutes(mux)
	mux.Handle("/api/", api.NewServer(db.NewRunStore(database)).ServeMux())

	log.Printf("%s listening on %s", version.String(), *listen)
	return api.ListenAndServe(ctx, *listen, api.LoggingMiddleware(mux))
}

func runMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dbPath := fs.String("db", defaultDB, "SQLite database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return db.RunMigrateCommand(fs.Args(), *dbPath)
}

func runConfig(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	path := fs.String("config", "", "Config file to merge over the defaults")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := config.DefaultAnalysisConfig()
	if *path != "" {
		loaded, err := config.LoadAnalysisConfig(*path)
		if err != nil {
			return err
		}
		cfg = loaded.WithDefaults()
	}
	js, err := cfg.JSON()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(js))
	return err
}
