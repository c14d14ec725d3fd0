package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/codewithboateng/jitprof/internal/api"
	"github.com/codewithboateng/jitprof/internal/ir"
	"github.com/codewithboateng/jitprof/internal/reporting"
	"github.com/codewithboateng/jitprof/internal/rules"
	"github.com/codewithboateng/jitprof/internal/rulesdsl"
	"github.com/codewithboateng/jitprof/internal/security"
	"github.com/codewithboateng/jitprof/internal/shared"
	"github.com/codewithboateng/jitprof/internal/storage"
	"github.com/codewithboateng/jitprof/internal/trace"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	switch os.Args[1] {
	case "analyze":
		analyzeCmd(os.Args[2:])
	case "report":
		reportCmd(os.Args[2:])
	case "diff":
		diffCmd(os.Args[2:])
	case "serve":
		serveCmd(os.Args[2:])
	case "useradd":
		useraddCmd(os.Args[2:])
	case "version":
		fmt.Println("jitprof", version, "IR:", ir.Version)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `jitprof – array type switch profiler for recorded execution traces

Usage:
  jitprof analyze --path <trace-file-or-dir>[,...] --out <reports-dir> [--db ./jitprof.db] [--limit 30] [--workers 4] [--rules pack.yaml] [--config ./configs/jitprof.yaml]
  jitprof report  --run <run-id|latest> --out <reports-dir> [--db ./jitprof.db] [--config ./configs/jitprof.yaml]
  jitprof diff    --base <run-id> --head <run-id> --out <reports-dir> [--db ./jitprof.db] [--config ./configs/jitprof.yaml]
  jitprof serve   [--addr :8080] [--db ./jitprof.db] [--config ./configs/jitprof.yaml]
  jitprof useradd --username <name> --password <pw> [--role viewer|admin] [--db ./jitprof.db]
  jitprof version
`)
}

func loadConfig(path string) shared.Config {
	cfg, err := shared.LoadConfig(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	return cfg
}

func openDB(dsn string) *storage.DB {
	db, err := storage.OpenSQLite(dsn)
	if err != nil {
		slog.Error("db open error", "err", err)
		os.Exit(1)
	}
	if err := db.CreateSchema(); err != nil {
		slog.Error("db schema error", "err", err)
		os.Exit(1)
	}
	return db
}

func analyzeCmd(args []string) {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config (optional)")
	inPath := fs.String("path", "", "Trace files or directories, comma separated")
	outDir := fs.String("out", "", "Output directory for reports")
	dbPath := fs.String("db", "", "SQLite database path")
	limit := fs.Int("limit", 0, "Maximum warnings per rule (default 30)")
	workers := fs.Int("workers", 0, "Traces replayed concurrently")
	rulesPack := fs.String("rules", "", "YAML rule pack with extra write-watch rules (optional)")
	quiet := fs.Bool("quiet", false, "Do not print the analysis report to stdout")
	_ = fs.Parse(args)

	cfg := loadConfig(*configPath)
	logger := shared.InitLogger(cfg.Logging.Format, cfg.Logging.Level)

	// precedence: flags > config > defaults
	paths := splitPaths(*inPath)
	if len(paths) == 0 {
		paths = cfg.Analysis.Traces
	}
	if *outDir == "" {
		*outDir = cfg.Reporting.OutDir
	}
	if *dbPath == "" {
		*dbPath = cfg.Database.DSN
	}
	if *limit <= 0 {
		*limit = cfg.Analysis.WarningLimit
	}
	if *workers <= 0 {
		*workers = cfg.Analysis.Workers
	}
	if *rulesPack == "" {
		*rulesPack = cfg.Analysis.RulesPack
	}

	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "analyze: --path (or analysis.traces in config) is required")
		os.Exit(2)
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "analyze: cannot create out dir:", err)
		os.Exit(1)
	}

	disabled := map[string]bool{}
	for _, id := range cfg.Analysis.DisabledRules {
		disabled[id] = true
	}
	rules.SetSettings(rules.Settings{Disabled: disabled, WarningLimit: *limit})
	if *rulesPack != "" {
		n, err := rulesdsl.LoadAndRegister(*rulesPack)
		if err != nil {
			logger.Error("rules pack error", "err", err)
			os.Exit(2)
		}
		logger.Info("rules pack loaded", "path", *rulesPack, "rules", n)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	started := time.Now().UTC()
	opts := trace.Options{
		Paths:     paths,
		Workers:   *workers,
		CacheSize: cfg.Analysis.LocationCacheSize,
		Logger:    logger,
	}
	if !*quiet {
		opts.Out = os.Stdout
	}
	res, err := trace.Analyze(ctx, opts)
	for _, w := range res.Diagnostics.Warnings {
		logger.Warn("trace warning", "detail", w)
	}
	if err != nil {
		logger.Error("analyze failed", "err", err)
		os.Exit(1)
	}

	db := openDB(*dbPath)
	defer db.Close()

	warnings := res.Warnings
	waived := 0
	if ws, err := db.ListWaivers(true); err != nil {
		logger.Warn("cannot load waivers", "err", err)
	} else {
		warnings, waived = rules.ApplyWaivers(warnings, ws)
	}

	run := ir.Run{
		ID:        "run-" + uuid.NewString(),
		StartedAt: started,
		Source:    strings.Join(paths, ","),
		IRVersion: ir.Version,
		Context: ir.Context{
			WarningLimit:  *limit,
			DisabledRules: cfg.Analysis.DisabledRules,
			Waived:        waived,
		},
		Traces:   res.Traces,
		Stats:    res.Stats,
		Warnings: warnings,
	}
	if err := db.SaveRun(&run); err != nil {
		logger.Error("db save run error", "err", err)
		os.Exit(1)
	}

	written := writeReports(logger, &run, *outDir, cfg.Reporting.Formats)
	logger.Info("analyze complete",
		"run", run.ID,
		"warnings", len(run.Warnings),
		"waived", waived,
		"reports", written,
		"db", filepath.Clean(*dbPath),
	)
	fmt.Printf("Analyze OK\n  Run: %s\n  Warnings: %d (waived %d)\n  Reports: %s\n  DB: %s\n",
		run.ID, len(run.Warnings), waived, strings.Join(written, ", "), filepath.Clean(*dbPath))
}

func writeReports(logger *slog.Logger, run *ir.Run, outDir string, formats []string) []string {
	if len(formats) == 0 {
		formats = []string{"json", "html", "text"}
	}
	var written []string
	for _, f := range formats {
		var (
			path string
			err  error
		)
		switch strings.ToLower(strings.TrimSpace(f)) {
		case "json":
			path, err = reporting.WriteJSON(run.ID, outDir, run)
		case "html":
			path, err = reporting.WriteHTML(run.ID, outDir, run)
		case "text", "txt":
			path, err = reporting.WriteText(run.ID, outDir, run)
		default:
			logger.Warn("unknown report format", "format", f)
			continue
		}
		if err != nil {
			logger.Error("report write error", "format", f, "err", err)
			continue
		}
		written = append(written, path)
	}
	return written
}

func reportCmd(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config (optional)")
	runID := fs.String("run", "", "Run ID, or \"latest\"")
	outDir := fs.String("out", "", "Output directory")
	dbPath := fs.String("db", "", "SQLite database path")
	_ = fs.Parse(args)

	cfg := loadConfig(*configPath)
	logger := shared.InitLogger(cfg.Logging.Format, cfg.Logging.Level)

	if *outDir == "" {
		*outDir = cfg.Reporting.OutDir
	}
	if *dbPath == "" {
		*dbPath = cfg.Database.DSN
	}
	if *runID == "" {
		fmt.Fprintln(os.Stderr, "report: --run is required")
		os.Exit(2)
	}

	db := openDB(*dbPath)
	defer db.Close()

	var (
		run ir.Run
		err error
	)
	if *runID == "latest" {
		run, err = db.LoadLatestRun()
	} else {
		run, err = db.LoadRun(*runID)
	}
	if err != nil {
		logger.Error("load run error", "err", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		logger.Error("cannot create out dir", "err", err)
		os.Exit(1)
	}
	written := writeReports(logger, &run, *outDir, cfg.Reporting.Formats)
	fmt.Printf("Report OK\n  Run: %s\n  Reports: %s\n", run.ID, strings.Join(written, ", "))
}

func diffCmd(args []string) {
	fs := flag.NewFlagSet("diff", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config (optional)")
	base := fs.String("base", "", "Base run ID")
	head := fs.String("head", "", "Head run ID")
	outDir := fs.String("out", "", "Output directory")
	dbPath := fs.String("db", "", "SQLite database path")
	_ = fs.Parse(args)

	cfg := loadConfig(*configPath)
	logger := shared.InitLogger(cfg.Logging.Format, cfg.Logging.Level)

	if *outDir == "" {
		*outDir = cfg.Reporting.OutDir
	}
	if *dbPath == "" {
		*dbPath = cfg.Database.DSN
	}
	if *base == "" || *head == "" {
		fmt.Fprintln(os.Stderr, "diff: --base and --head are required")
		os.Exit(2)
	}
	db := openDB(*dbPath)
	defer db.Close()

	br, err := db.LoadRun(*base)
	if err != nil {
		logger.Error("load base run error", "err", err)
		os.Exit(1)
	}
	hr, err := db.LoadRun(*head)
	if err != nil {
		logger.Error("load head run error", "err", err)
		os.Exit(1)
	}
	path, err := reporting.WriteDiffJSON(*base, *head, *outDir, &br, &hr)
	if err != nil {
		logger.Error("diff write error", "err", err)
		os.Exit(1)
	}
	fmt.Printf("Diff OK\n  %s\n", path)
}

func serveCmd(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config (optional)")
	addr := fs.String("addr", "", "Listen address")
	dbPath := fs.String("db", "", "SQLite database path")
	_ = fs.Parse(args)

	cfg := loadConfig(*configPath)
	logger := shared.InitLogger(cfg.Logging.Format, cfg.Logging.Level)
	if *addr == "" {
		*addr = cfg.Server.Addr
	}
	if *dbPath == "" {
		*dbPath = cfg.Database.DSN
	}

	db := openDB(*dbPath)
	defer db.Close()
	if n, err := db.PurgeSessions(time.Now()); err == nil && n > 0 {
		logger.Info("purged expired sessions", "count", n)
	}

	s := &api.Server{
		DB:              db,
		UserStore:       db,
		Logger:          logger,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		SessionDuration: cfg.Server.SessionTTL,
	}
	srv := &http.Server{
		Addr:              *addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving api", "addr", *addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
}

func useraddCmd(args []string) {
	fs := flag.NewFlagSet("useradd", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config (optional)")
	username := fs.String("username", "", "User name")
	password := fs.String("password", "", "Password (min 8 characters)")
	role := fs.String("role", storage.RoleViewer, "viewer|admin")
	dbPath := fs.String("db", "", "SQLite database path")
	_ = fs.Parse(args)

	cfg := loadConfig(*configPath)
	logger := shared.InitLogger(cfg.Logging.Format, cfg.Logging.Level)
	if *dbPath == "" {
		*dbPath = cfg.Database.DSN
	}
	if *username == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "useradd: --username and --password are required")
		os.Exit(2)
	}
	hash, err := security.HashPassword(*password)
	if err != nil {
		fmt.Fprintln(os.Stderr, "useradd:", err)
		os.Exit(2)
	}

	db := openDB(*dbPath)
	defer db.Close()
	id, err := db.CreateUser(*username, hash, *role)
	if err != nil {
		logger.Error("create user error", "err", err)
		os.Exit(1)
	}
	_ = db.LogAudit(*username, "user:create", "", map[string]any{"role": *role, "id": id})
	fmt.Printf("User OK\n  %s (%s)\n", *username, *role)
}

func splitPaths(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
