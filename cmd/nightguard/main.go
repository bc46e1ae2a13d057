package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gokaycavdar/go-nightguard/internal/config"
	"github.com/gokaycavdar/go-nightguard/internal/logging"
	"github.com/gokaycavdar/go-nightguard/internal/pipeline"
	"github.com/gokaycavdar/go-nightguard/internal/watch"
	"github.com/gokaycavdar/go-nightguard/pkg/baseline"
	"github.com/gokaycavdar/go-nightguard/pkg/engine"
	"github.com/gokaycavdar/go-nightguard/pkg/export"
	"github.com/gokaycavdar/go-nightguard/pkg/meraki"
	"github.com/gokaycavdar/go-nightguard/pkg/models"
	"github.com/gokaycavdar/go-nightguard/pkg/rules"
	"github.com/gokaycavdar/go-nightguard/pkg/storage"
	"github.com/gokaycavdar/go-nightguard/pkg/window"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "investigate":
		err = investigateCommand(os.Args[2:])
	case "analyze":
		err = analyzeCommand(os.Args[2:])
	case "collect":
		err = collectCommand(os.Args[2:])
	case "history":
		err = historyCommand(os.Args[2:])
	case "watch":
		err = watchCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("nightguard %s: %v", cmd, err)
	}
}

// runtime is the state shared by every subcommand.
type runtime struct {
	cfg    *config.Config
	logger *slog.Logger
}

func loadRuntime(path string) (*runtime, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return &runtime{cfg: cfg, logger: logger}, nil
}

func (rt *runtime) investigation() *pipeline.Investigation {
	return &pipeline.Investigation{
		Assembler: &baseline.Assembler{Nights: rt.cfg.Analysis.BaselineNights},
		Engine: engine.New(
			engine.WithLogger(rt.logger),
			engine.WithLoiteringRule(rules.NewLoiteringRule(rt.cfg.Analysis.LoiteringDuration())),
		),
	}
}

// archive opens the ClickHouse archive when one is configured. The
// returned close func is never nil.
func (rt *runtime) archive(ctx context.Context) (storage.ConnectionStore, func(), error) {
	if !rt.cfg.ClickHouse.Enabled() {
		return nil, func() {}, nil
	}
	ch := rt.cfg.ClickHouse
	db, err := storage.OpenClickHouse(ctx, storage.ClickHouseConfig{
		Addr:     ch.Addr,
		Database: ch.Database,
		Username: ch.Username,
		Password: ch.Password,
		Table:    ch.Table,
	})
	if err != nil {
		return nil, func() {}, err
	}
	store := storage.NewClickHouseStore(db, ch.Table)
	if err := store.InitSchema(ctx); err != nil {
		db.Close()
		return nil, func() {}, err
	}
	return store, func() { db.Close() }, nil
}

// dashboard connects to the configured network and resolves the display
// names stamped on every connection.
func (rt *runtime) dashboard(ctx context.Context) (*meraki.NetworkSource, string, string, error) {
	if err := rt.cfg.RequireMeraki(); err != nil {
		return nil, "", "", err
	}
	client := meraki.NewClient(rt.cfg.Meraki.APIKey,
		meraki.WithBaseURL(rt.cfg.Meraki.BaseURL),
		meraki.WithLogger(rt.logger),
	)

	var network *meraki.Network
	if id := rt.cfg.Meraki.NetworkID; id != "" {
		n, err := client.Network(ctx, id)
		if err != nil {
			return nil, "", "", fmt.Errorf("network %s: %w", id, err)
		}
		network = n

		if active, err := client.Active(ctx, id); err != nil {
			rt.logger.Warn("network check failed", "network", n.Name, "error", err)
		} else if !active {
			rt.logger.Warn("network has no recent wireless events", "network", n.Name)
		}
	} else {
		n, err := client.SelectNetwork(ctx, rt.cfg.Meraki.OrgID)
		if err != nil {
			return nil, "", "", err
		}
		network = n
	}

	orgName := network.OrganizationID
	if orgs, err := client.Organizations(ctx); err != nil {
		rt.logger.Warn("organization lookup failed", "error", err)
	} else {
		for _, o := range orgs {
			if o.ID == network.OrganizationID {
				orgName = o.Name
			}
		}
	}

	rt.logger.Info("dashboard connected", "network", network.Name, "organization", orgName)
	return client.Source(network.ID), orgName, network.Name, nil
}

func investigateCommand(args []string) error {
	fs := flag.NewFlagSet("investigate", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML configuration (empty: environment only)")
	dateFlag := fs.String("date", "", "Investigated date, YYYY-MM-DD (default: yesterday)")
	out := fs.String("out", "", "Output root (default: analysis.output_dir)")
	fromArchive := fs.Bool("archive", false, "Read events from the ClickHouse archive instead of the dashboard")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rt, err := loadRuntime(*cfgPath)
	if err != nil {
		return err
	}
	date := window.DateOf(time.Now()).AddDate(0, 0, -1)
	if *dateFlag != "" {
		if date, err = window.ParseDate(*dateFlag); err != nil {
			return fmt.Errorf("invalid -date %q: %w", *dateFlag, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	archive, closeArchive, err := rt.archive(ctx)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer closeArchive()

	inv := rt.investigation()
	var src baseline.EventSource
	if *fromArchive {
		if archive == nil {
			return errors.New("-archive needs CLICKHOUSE_ADDR")
		}
		src = storage.NewSource(archive)
	} else {
		dash, org, network, err := rt.dashboard(ctx)
		if err != nil {
			return err
		}
		src = dash
		inv.Organization, inv.Network = org, network
		inv.Archive = archive
	}

	run := engine.NewRun(date, rt.logger)
	report, err := inv.Investigate(ctx, run, src)
	if err != nil {
		return err
	}
	if report.Baseline.Partial() {
		fmt.Printf("warning: %d of %d baseline windows could not be fetched\n",
			len(report.Baseline.Failures), report.Baseline.Windows)
	}

	return writeReport(rt, outputRoot(rt, *out), report,
		fmt.Sprintf("Investigation for %s", window.FormatDate(date)))
}

func analyzeCommand(args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML configuration (empty: environment only)")
	csvPath := fs.String("csv", "", "Connections CSV to analyze")
	dateFlag := fs.String("date", "", "Investigated date, YYYY-MM-DD (default: latest date in the file)")
	out := fs.String("out", "", "Output root (default: analysis.output_dir)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *csvPath == "" {
		return errors.New("-csv is required")
	}

	rt, err := loadRuntime(*cfgPath)
	if err != nil {
		return err
	}
	var date time.Time
	if *dateFlag != "" {
		if date, err = window.ParseDate(*dateFlag); err != nil {
			return fmt.Errorf("invalid -date %q: %w", *dateFlag, err)
		}
	}

	report, err := analyzeFile(rt, *csvPath, date)
	if err != nil {
		return err
	}
	return writeReport(rt, outputRoot(rt, *out), report,
		fmt.Sprintf("Analysis of %s for %s", filepath.Base(*csvPath), report.Analysis.TargetDate))
}

func analyzeFile(rt *runtime, path string, date time.Time) (*pipeline.Report, error) {
	conns, err := export.ReadConnectionsFile(path)
	if err != nil {
		return nil, err
	}
	if len(conns) == 0 {
		return nil, fmt.Errorf("%s has no connections", path)
	}
	return rt.investigation().Analyze(engine.NewRun(date, rt.logger), conns), nil
}

func collectCommand(args []string) error {
	fs := flag.NewFlagSet("collect", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML configuration (empty: environment only)")
	days := fs.Int("days", 0, "Number of full days to collect (default: analysis.collect_days)")
	out := fs.String("out", "", "Output CSV (default: a new history directory)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rt, err := loadRuntime(*cfgPath)
	if err != nil {
		return err
	}
	n := *days
	if n <= 0 {
		n = rt.cfg.Analysis.CollectDays
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src, org, network, err := rt.dashboard(ctx)
	if err != nil {
		return err
	}
	archive, closeArchive, err := rt.archive(ctx)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer closeArchive()

	now := time.Now()
	path := *out
	var dir string
	if path == "" {
		if dir, err = export.NewHistoryDir(outputRoot(rt, ""), now); err != nil {
			return err
		}
		path = filepath.Join(dir, export.CollectionLogFile)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	c := &pipeline.Collection{
		Source:       src,
		Writer:       export.NewConnectionWriter(f),
		Archive:      archive,
		Logger:       rt.logger,
		Organization: org,
		Network:      network,
	}
	stats, err := c.Collect(ctx, now, n)
	if err != nil {
		return err
	}

	if dir != "" {
		if err := export.WriteMetadata(dir, export.Metadata{
			Created:     now,
			Description: fmt.Sprintf("Collection of the last %d days", n),
			Files:       []string{export.CollectionLogFile},
		}); err != nil {
			return err
		}
	}
	fmt.Printf("collected %d connections over %d days (%d failed) into %s\n",
		stats.Connections, stats.Days, stats.FailedDays, path)
	return nil
}

func historyCommand(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML configuration (empty: environment only)")
	root := fs.String("root", "", "Output root (default: analysis.output_dir)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rt, err := loadRuntime(*cfgPath)
	if err != nil {
		return err
	}
	sets, err := export.ListHistory(outputRoot(rt, *root))
	if err != nil {
		return err
	}
	if len(sets) == 0 {
		fmt.Println("no history datasets")
		return nil
	}

	now := time.Now()
	for _, d := range sets {
		kind := make([]string, 0, 2)
		if d.HasCollected {
			kind = append(kind, "collected")
		}
		if d.HasAnalysis {
			kind = append(kind, "analysis")
		}
		fmt.Printf("%s  %-22s %3d files  %s ago\n",
			d.Name, strings.Join(kind, "+"), len(d.Files), d.Age(now).Round(time.Minute))
	}
	return nil
}

func watchCommand(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML configuration (empty: environment only)")
	dir := fs.String("dir", ".", "Directory to watch for connection CSVs")
	out := fs.String("out", "", "Output root (default: analysis.output_dir)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rt, err := loadRuntime(*cfgPath)
	if err != nil {
		return err
	}
	root := outputRoot(rt, *out)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w := &watch.Watcher{
		Dir:    *dir,
		Logger: rt.logger,
		Handle: func(ctx context.Context, path string) error {
			report, err := analyzeFile(rt, path, time.Time{})
			if err != nil {
				return err
			}
			return writeReport(rt, root, report,
				fmt.Sprintf("Analysis of %s for %s", filepath.Base(path), report.Analysis.TargetDate))
		},
	}
	return w.Run(ctx)
}

func outputRoot(rt *runtime, flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return rt.cfg.Analysis.OutputDir
}

// writeReport exports a report into a new history directory and prints a
// summary.
func writeReport(rt *runtime, root string, report *pipeline.Report, description string) error {
	now := time.Now()
	dir, err := export.NewHistoryDir(root, now)
	if err != nil {
		return err
	}
	files, err := export.WriteAnalysis(dir, report.Connections, report.Analysis)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := export.WriteMetadata(dir, export.Metadata{
		Created:     now,
		Description: description,
		RunID:       report.Run.ID,
		Files:       files,
	}); err != nil {
		return err
	}

	printSummary(report.Analysis)
	fmt.Printf("\nresults saved to %s\n", dir)
	rt.logger.Debug("report written", "dir", dir, "files", len(files))
	return nil
}

func printSummary(a *models.Analysis) {
	fmt.Printf("Night of %s (run %s)\n", a.TargetDate, a.RunID)
	for _, b := range a.Buckets() {
		fmt.Printf("  %-26s %d\n", b.Name, len(b.Devices))
	}
	fmt.Printf("  %-26s %d\n", "extended_session_devices", len(a.ExtendedSessions))

	for _, p := range a.LoiteringDevices {
		fmt.Printf("  ! %s %s\n", p.MAC, p.RiskExplanation)
	}
	for _, p := range a.AnomalousDevices {
		if p.RiskLevel == models.RiskAnomalousSuspicious {
			fmt.Printf("  ? %s %s\n", p.MAC, p.RiskExplanation)
		}
	}
}

func printUsage() {
	fmt.Printf(`nightguard CLI

Usage:
  nightguard <command> [flags]

Commands:
  investigate  Fetch the baseline and target night from the dashboard, classify and export
  analyze      Classify a previously collected connections CSV
  collect      Stream the last N full days of connections to a CSV
  history      List exported datasets
  watch        Analyze connection CSVs as they appear in a directory

Examples:
  nightguard investigate -date 2024-03-10
  nightguard investigate -date 2024-03-10 -archive
  nightguard analyze -csv ./history/20240311_080000/all_connections.csv -date 2024-03-10
  nightguard collect -days 30
  nightguard history
  nightguard watch -dir ./drops
`)
}
