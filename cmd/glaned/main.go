// Command glaned is the extraction daemon. It exposes the pipeline over a
// chi HTTP API and, optionally, over MCP/QUIC for agent clients.
package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/glane/browser"
	"github.com/hazyhaar/glane/dbopen"
	"github.com/hazyhaar/glane/extract"
	"github.com/hazyhaar/glane/mcpquic"
	"github.com/hazyhaar/glane/observability"
	"github.com/hazyhaar/glane/oracle"
	"github.com/hazyhaar/glane/pipeline"
	"github.com/hazyhaar/glane/safeurl"
	"github.com/hazyhaar/glane/shield"
	"github.com/hazyhaar/glane/watch"
)

func main() {
	configPath := flag.String("config", "", "path to glaned.yaml config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Observability DB: metrics, business events, HTTP logs, rate limits.
	obsDB, err := dbopen.Open(cfg.ObsDB, dbopen.WithMkdirAll())
	if err != nil {
		slog.Error("observability db", "error", err)
		os.Exit(1)
	}
	defer obsDB.Close()
	if err := observability.Init(obsDB); err != nil {
		slog.Error("observability init", "error", err)
		os.Exit(1)
	}
	if err := shield.Init(obsDB); err != nil {
		slog.Error("shield init", "error", err)
		os.Exit(1)
	}

	events := observability.NewEventLogger(obsDB)
	metrics := observability.NewMetricsManager(obsDB, 100, 10*time.Second)
	defer metrics.Close()

	go retentionLoop(ctx, obsDB, metrics, cfg.Retention)

	// Run history DB.
	runsDB, err := dbopen.Open(cfg.RunsDB, dbopen.WithMkdirAll())
	if err != nil {
		slog.Error("runs db", "error", err)
		os.Exit(1)
	}
	defer runsDB.Close()

	// Browser. A failed start leaves the daemon up: snapshot and filter
	// operations work without Chrome, URL runs return an explicit error.
	mgr := browser.NewManager(browser.Config{
		RemoteURL:       cfg.Browser.Remote,
		MemoryLimit:     cfg.Browser.MemoryLimit,
		RecycleInterval: cfg.Browser.RecycleInterval,
		BlockResources:  cfg.Browser.ResourceBlocking,
		Stealth:         stealthLevel(cfg.Browser.Stealth),
		XvfbDisplay:     cfg.Browser.XvfbDisplay,
		Logger:          logger,
	})
	pipelineBrowser := mgr
	if err := mgr.Start(ctx); err != nil {
		slog.Warn("browser unavailable", "error", err)
		pipelineBrowser = nil
	} else {
		defer mgr.Close()
	}

	var orc oracle.Oracle
	if cfg.Oracle.Provider != "" {
		orc, err = oracle.New(cfg.Oracle.Provider, cfg.Oracle.Model)
		if err != nil {
			slog.Error("oracle", "error", err)
			os.Exit(1)
		}
	}

	svc, err := pipeline.New(pipeline.Config{
		Browser: pipelineBrowser,
		Oracle:  orc,
		DB:      runsDB,
		Events:  events,
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		slog.Error("pipeline", "error", err)
		os.Exit(1)
	}

	// Optional MCP over QUIC.
	if cfg.MCP.QUICAddr != "" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "glane",
			Version: "1.0.0",
		}, nil)
		svc.RegisterMCP(mcpSrv)

		var tlsCfg *tls.Config
		if cfg.MCP.TLSCert != "" && cfg.MCP.TLSKey != "" {
			tlsCfg, err = mcpquic.ServerTLSConfig(cfg.MCP.TLSCert, cfg.MCP.TLSKey)
		} else {
			tlsCfg, err = mcpquic.SelfSignedTLSConfig()
		}
		if err != nil {
			slog.Error("MCP QUIC TLS", "error", err)
		} else {
			ql, qErr := mcpquic.NewListener(cfg.MCP.QUICAddr, tlsCfg, mcpSrv, logger)
			if qErr != nil {
				slog.Error("MCP QUIC listener", "error", qErr)
			} else {
				go func() {
					slog.Info("MCP QUIC starting", "addr", cfg.MCP.QUICAddr)
					if sErr := ql.Serve(ctx); sErr != nil && ctx.Err() == nil {
						slog.Error("MCP QUIC", "error", sErr)
					}
				}()
				defer ql.Close()
			}
		}
	}

	// Router.
	r := chi.NewRouter()
	stack, limiter := shield.DefaultAPIStack(obsDB)
	for _, mw := range stack {
		r.Use(mw)
	}
	r.Use(shield.RequestLogger(obsDB))

	// React to rate_limits edits without waiting for the periodic reload.
	limiter.StartReloader(ctx.Done())
	ruleWatch := watch.New(obsDB, watch.Options{
		Interval: time.Second,
		Debounce: 500 * time.Millisecond,
		Detector: watch.PragmaDataVersion,
		Logger:   logger,
	})
	go ruleWatch.OnChange(ctx, func() error {
		limiter.Reload()
		return nil
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Post("/api/run", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			URL         string `json:"url"`
			Instruction string `json:"instruction"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, 400, err)
			return
		}
		if err := safeurl.Validate(req.URL); err != nil {
			writeError(w, 400, err)
			return
		}
		res, err := svc.Run(r.Context(), req.URL, req.Instruction)
		if err != nil {
			writeError(w, runStatus(err), err)
			return
		}
		writeJSON(w, 200, res)
	})

	r.Post("/api/filter", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Entities    []extract.Entity `json:"entities"`
			Instruction string           `json:"instruction"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, 400, err)
			return
		}
		report, err := svc.Filter(r.Context(), req.Entities, req.Instruction)
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, report)
	})

	r.Get("/api/runs", func(w http.ResponseWriter, r *http.Request) {
		runs, err := svc.Runs(r.Context(), queryInt(r, "limit", 50))
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, runs)
	})

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      5 * time.Minute, // full runs render a page and call the oracle
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

// retentionLoop prunes observability tables once a day.
func retentionLoop(ctx context.Context, db *sql.DB, metrics *observability.MetricsManager, cfg retentionConfig) {
	tick := time.NewTicker(24 * time.Hour)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if err := observability.Cleanup(ctx, db, observability.RetentionConfig{
				HTTPLogsDays:  cfg.HTTPLogsDays,
				EventLogsDays: cfg.EventDays,
			}); err != nil {
				slog.Warn("retention cleanup", "error", err)
			}
			if _, err := metrics.Cleanup(ctx, cfg.MetricsDays); err != nil {
				slog.Warn("metrics cleanup", "error", err)
			}
		}
	}
}

func runStatus(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrInvalidInput):
		return 400
	case errors.Is(err, pipeline.ErrNoBrowser):
		return 503
	}
	return 500
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

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
