// Command glane analyzes a single page from the command line.
//
// Usage:
//
//	glane -url https://shop.example.com -instruction "gluten-free under 20 zł"
//	glane -html page.html -instruction "products under 50 EUR"
//	glane -url https://shop.example.com -selector "div.product-card"
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/glane/browser"
	"github.com/hazyhaar/glane/dbopen"
	"github.com/hazyhaar/glane/oracle"
	"github.com/hazyhaar/glane/pipeline"
	"github.com/hazyhaar/glane/snapshot"
)

func main() {
	pageURL := flag.String("url", "", "analyze a live URL")
	htmlPath := flag.String("html", "", "analyze a local HTML file instead of a live page")
	instruction := flag.String("instruction", "", "what to look for, in plain language")
	selector := flag.String("selector", "", "skip detection and extract from this CSS selector")
	oracleName := flag.String("oracle", "", "LLM oracle: claude or openai (empty = statistics only)")
	oracleModel := flag.String("oracle-model", "", "override the oracle's default model")
	remote := flag.String("remote", "", "WebSocket URL of an external Chrome (empty = launch locally)")
	stealth := flag.String("stealth", "headless", "browser mode: plain, headless, headful")
	dbPath := flag.String("db", "", "SQLite path for run history (empty = no persistence)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, options{
		PageURL:     *pageURL,
		HTMLPath:    *htmlPath,
		Instruction: *instruction,
		Selector:    *selector,
		Oracle:      *oracleName,
		OracleModel: *oracleModel,
		Remote:      *remote,
		Stealth:     *stealth,
		DBPath:      *dbPath,
	}); err != nil {
		logger.Error("glane: fatal", "error", err)
		os.Exit(1)
	}
}

type options struct {
	PageURL     string
	HTMLPath    string
	Instruction string
	Selector    string
	Oracle      string
	OracleModel string
	Remote      string
	Stealth     string
	DBPath      string
}

func run(ctx context.Context, logger *slog.Logger, opts options) error {
	if opts.PageURL == "" && opts.HTMLPath == "" {
		fmt.Fprintln(os.Stderr, "usage: glane -url <url> | -html <file> [-instruction <text>] [-selector <css>]")
		os.Exit(1)
	}

	cfg := pipeline.Config{Logger: logger}
	var mgr *browser.Manager

	if opts.Oracle != "" {
		orc, err := oracle.New(opts.Oracle, opts.OracleModel)
		if err != nil {
			return fmt.Errorf("oracle: %w", err)
		}
		cfg.Oracle = orc
	}

	if opts.DBPath != "" {
		db, err := dbopen.Open(opts.DBPath, dbopen.WithMkdirAll())
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()
		cfg.DB = db
	}

	if opts.HTMLPath == "" {
		mgr = browser.NewManager(browser.Config{
			RemoteURL:      opts.Remote,
			Stealth:        stealthLevel(opts.Stealth),
			BlockResources: []string{"fonts", "media"},
			Logger:         logger,
		})
		if err := mgr.Start(ctx); err != nil {
			return fmt.Errorf("browser: %w", err)
		}
		defer mgr.Close()
		cfg.Browser = mgr
	}

	svc, err := pipeline.New(cfg)
	if err != nil {
		return err
	}

	res, err := analyze(ctx, svc, mgr, opts)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func analyze(ctx context.Context, svc *pipeline.Service, mgr *browser.Manager, opts options) (any, error) {
	// Full live run: the service manages its own tab.
	if opts.Selector == "" && opts.HTMLPath == "" {
		return svc.Run(ctx, opts.PageURL, opts.Instruction)
	}

	snap, closeSnap, err := openSnapshot(ctx, mgr, opts)
	if err != nil {
		return nil, err
	}
	defer closeSnap()

	if opts.Selector == "" {
		return svc.RunSnapshot(ctx, snap, opts.Instruction)
	}

	// Explicit selector skips detection and goes straight to extraction.
	entities, completeness, err := svc.Extract(ctx, snap, opts.Selector, 0)
	if err != nil {
		return nil, err
	}
	out := map[string]any{
		"selector":     opts.Selector,
		"completeness": completeness,
		"entities":     entities,
	}
	if opts.Instruction != "" {
		report, err := svc.Filter(ctx, entities, opts.Instruction)
		if err != nil {
			return nil, err
		}
		out["filter"] = report
	}
	return out, nil
}

func openSnapshot(ctx context.Context, mgr *browser.Manager, opts options) (snapshot.Snapshot, func(), error) {
	if opts.HTMLPath != "" {
		f, err := os.Open(opts.HTMLPath)
		if err != nil {
			return nil, nil, err
		}
		defer f.Close()
		base := opts.PageURL
		if base == "" {
			base = "file://" + opts.HTMLPath
		}
		snap, err := snapshot.NewStatic(f, base)
		if err != nil {
			return nil, nil, err
		}
		return snap, func() {}, nil
	}

	tab, err := browser.OpenTab(ctx, mgr, opts.PageURL)
	if err != nil {
		return nil, nil, err
	}
	return browser.NewLive(tab), func() { tab.Close() }, nil
}

func stealthLevel(s string) browser.StealthLevel {
	switch s {
	case "plain":
		return browser.LevelPlain
	case "headful":
		return browser.LevelHeadful
	default:
		return browser.LevelHeadless
	}
}
