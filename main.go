package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"leilao-insights/api"
	"leilao-insights/config"
	"leilao-insights/models"
	"leilao-insights/scraper"
	"leilao-insights/scraper/portals"
	"leilao-insights/services"
	"leilao-insights/storage"
	"leilao-insights/utils"
)

const usage = `usage: leilao-insights [command]

commands:
  serve                 run the HTTP API (default)
  extract <url> [--force]
                        run one listing through the pipeline and print the result
  report [csv-path]     print the extraction report, optionally exporting logs as CSV
`

func main() {
	cfg := config.Load()
	logger := utils.NewLogger(cfg.Verbose)

	cmd, args := "serve", os.Args[1:]
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd {
	case "serve":
		err = runServe(ctx, cfg, logger)
	case "extract":
		err = runExtract(ctx, cfg, logger, args)
	case "report":
		err = runReport(ctx, cfg, logger, args)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("%s: %v", cmd, err)
		stop()
		os.Exit(1)
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger *utils.Logger) (storage.Store, error) {
	logger.Info("Opening %s store", cfg.StoreBackend)
	var (
		store storage.Store
		err   error
	)
	switch cfg.StoreBackend {
	case "postgres":
		store, err = storage.NewPostgresStore(ctx, cfg.DSN())
	case "mongo":
		store, err = storage.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDB)
	case "sqlite":
		store, err = storage.NewSQLiteStore(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q (postgres|sqlite|mongo)", cfg.StoreBackend)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

// pipeline holds everything a command needs to run listings through
// the pre-analysis flow.
type pipeline struct {
	store  storage.Store
	lists  *config.TrustLists
	pre    *services.PreAnalysis
	locker *storage.RedisLocker
}

func (p *pipeline) Close() {
	p.pre.Wait()
	if p.locker != nil {
		p.locker.Close()
	}
	p.store.Close()
}

func buildPipeline(ctx context.Context, cfg *config.Config, logger *utils.Logger) (*pipeline, error) {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	lists, err := config.LoadTrustLists(cfg.TrustListPath)
	if err != nil {
		store.Close()
		return nil, err
	}
	trusted, fraud := lists.Counts()
	logger.Info("Trust lists loaded: %d trusted, %d fraudulent hosts", trusted, fraud)

	headers := scraper.BrowserHeaders(cfg.UserAgent)
	retry := &utils.RetryConfig{MaxAttempts: cfg.MaxRetries, BaseDelay: time.Second, Logger: logger.With("fetch")}

	var renderer scraper.Renderer
	switch cfg.Renderer {
	case "rod":
		renderer = scraper.NewRodRenderer(cfg.ChromeBin, cfg.UserAgent, cfg.RenderTimeout())
	default:
		renderer = scraper.NewChromeRenderer(cfg.ChromeBin, cfg.UserAgent, cfg.RenderTimeout())
	}

	var snapshots storage.SnapshotSaver
	if cfg.DebugSnapshots {
		snapshots = store
	}

	p := &pipeline{store: store, lists: lists}

	registry := portals.NewRegistry(logger)
	logger.Info("Portal extractors: %s", strings.Join(registry.Names(), ", "))

	var locker storage.Locker
	if cfg.RedisAddr != "" {
		rl, err := storage.NewRedisLocker(ctx, cfg.RedisAddr, cfg.JobTimeout())
		if err != nil {
			logger.Warn("Redis unavailable, extraction dedup stays in-process: %v", err)
		} else {
			logger.Info("Using Redis lock at %s", cfg.RedisAddr)
			p.locker, locker = rl, rl
		}
	}

	p.pre = services.NewPreAnalysis(services.PreAnalysisConfig{
		Trust: services.NewTrustClassifier(lists, store, logger),
		Acquirer: scraper.NewAcquirer(scraper.AcquirerConfig{
			Fetcher:      scraper.NewStaticFetcher(cfg.StaticTimeout(), headers, retry),
			Renderer:     renderer,
			Headers:      headers,
			MinHTMLBytes: cfg.MinHTMLBytes,
			Snapshots:    snapshots,
			Logger:       logger,
		}),
		Extractor:  registry,
		Cache:      store,
		Logs:       store,
		Locker:     locker,
		Pool:       utils.NewWorkerPool(cfg.MaxConcurrency, cfg.RateLimitMs),
		Async:      cfg.Async(),
		JobTimeout: cfg.JobTimeout(),
		Logger:     logger,
	})
	return p, nil
}

func runServe(ctx context.Context, cfg *config.Config, logger *utils.Logger) error {
	logger.Info("=== leilao-insights pre-analysis API starting ===")
	logger.Info("Config: store=%s | renderer=%s | mode=%s | concurrency=%d | rate=%dms",
		cfg.StoreBackend, cfg.Renderer, cfg.ExtractMode, cfg.MaxConcurrency, cfg.RateLimitMs)

	p, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for range hup {
			if err := p.lists.Reload(); err != nil {
				logger.Error("Trust list reload failed, keeping previous lists: %v", err)
				continue
			}
			trusted, fraud := p.lists.Counts()
			logger.Info("Trust lists reloaded: %d trusted, %d fraudulent hosts", trusted, fraud)
		}
	}()

	h := api.NewHandler(p.pre, services.NewReportService(p.store, logger), p.lists, logger)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening on %s", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutting down, waiting for running extractions...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP shutdown: %v", err)
		}
	}
	return nil
}

func runExtract(ctx context.Context, cfg *config.Config, logger *utils.Logger, args []string) error {
	var target string
	force := false
	for _, a := range args {
		switch a {
		case "--force", "-f":
			force = true
		default:
			target = a
		}
	}
	if target == "" {
		return fmt.Errorf("missing listing url\n%s", usage)
	}

	// A one-shot command waits for its own extraction.
	cfg.ExtractMode = "sync"
	p, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	rec, err := p.pre.GetOrExtract(ctx, target, force)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if rec.Status == models.ResponseFailed {
		logger.Warn("Extraction failed: %s", rec.Message)
	}
	return nil
}

func runReport(ctx context.Context, cfg *config.Config, logger *utils.Logger, args []string) error {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	svc := services.NewReportService(store, logger)
	rep, err := svc.Report(ctx)
	if err != nil {
		return err
	}
	svc.Print(os.Stdout, rep)

	if len(args) == 0 {
		return nil
	}
	logs, err := store.ListExtractions(ctx, models.ExtractionLogFilter{})
	if err != nil {
		return fmt.Errorf("report: list extractions: %w", err)
	}
	w, err := storage.NewCSVWriter(args[0])
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.WriteLogs(logs); err != nil {
		return err
	}
	logger.Info("Exported %d extraction logs to %s", len(logs), args[0])
	return nil
}
