// Command arkdocd runs the document classification service: it loads the
// classifier in the background, probes the optional ERPNext backend, and
// serves the REST and websocket APIs until interrupted.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/arkeyez/arkdoc/archive"
	"github.com/arkeyez/arkdoc/config"
	"github.com/arkeyez/arkdoc/erp"
	"github.com/arkeyez/arkdoc/model"
	"github.com/arkeyez/arkdoc/model/linear"
	"github.com/arkeyez/arkdoc/observability"
	"github.com/arkeyez/arkdoc/ocr"
	"github.com/arkeyez/arkdoc/ocr/tesseract"
	"github.com/arkeyez/arkdoc/pipeline"
	"github.com/arkeyez/arkdoc/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "arkdocd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	log := observability.NewSlog(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := archive.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer store.Close()

	connector := probeERP(ctx, cfg, log)

	modelOpts := []model.Option{model.WithLogger(log)}
	if cfg.SimulationSeed != 0 {
		modelOpts = append(modelOpts, model.WithSeed(cfg.SimulationSeed))
	}
	mgr := model.NewManager(linear.New(cfg.ModelPath), modelOpts...)
	defer mgr.Close()

	engine := tesseract.New(tesseract.WithLanguages(cfg.OCRLanguages...))
	extractor := ocr.NewExtractor(engine, ocr.WithLogger(log))

	pipe := pipeline.New(mgr, extractor,
		pipeline.WithLogger(log),
		pipeline.WithTopKeywords(cfg.TopKeywords))

	srv, err := server.New(cfg, server.Deps{
		Pipeline: pipe,
		Model:    mgr,
		Store:    store,
		ERP:      connector,
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// The model loads while the server already answers in simulation
		// mode; requests switch to the real classifier once it is ready.
		mgr.Load(ctx)
		if mgr.WaitReady(ctx, cfg.LoadTimeout) {
			log.Info("classifier ready")
		} else {
			log.Warn("classifier not ready, serving in simulation mode",
				observability.String("state", mgr.State().String()))
		}
		return nil
	})
	g.Go(func() error { return srv.Run(ctx) })

	return g.Wait()
}

// probeERP builds the ERPNext connector when configured and reachable.
// An unreachable backend downgrades to local-only mode with a warning
// instead of failing startup.
func probeERP(ctx context.Context, cfg config.Config, log observability.Logger) *erp.Connector {
	if !cfg.ERPEnabled() {
		log.Info("erpnext not configured, using local archive only")
		return nil
	}
	connector := erp.New(cfg.ERPNextURL, cfg.ERPNextKey, cfg.ERPNextSecret, erp.WithLogger(log))
	if err := connector.TestConnection(ctx); err != nil {
		log.Warn("erpnext unreachable, using local archive only",
			observability.String("url", cfg.ERPNextURL),
			observability.Error("err", err))
		return nil
	}
	log.Info("erpnext connected", observability.String("url", cfg.ERPNextURL))
	return connector
}
