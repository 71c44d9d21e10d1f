package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/xhad/thinktank/internal/models"
	"github.com/xhad/thinktank/pkg/chat"
	cfgPkg "github.com/xhad/thinktank/pkg/config"
	"github.com/xhad/thinktank/pkg/document"
	"github.com/xhad/thinktank/pkg/gateway"
	"github.com/xhad/thinktank/pkg/logger"
	"github.com/xhad/thinktank/pkg/scraper"
	"github.com/xhad/thinktank/pkg/session"
	"github.com/xhad/thinktank/server"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	BackendURL       string
	Timeout          time.Duration
	RateLimit        float64
	Mode             models.Mode
	Serve            bool
	Addr             string
	AllowedExts      []string
	MaxUploadBytes   int64
	PreviewSentences int
	LogLevel         string
	LogDevelopment   bool
}

func main() {
	config, err := parseFlags()
	if err != nil {
		log.Fatal(err)
	}

	if err := run(config); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() (Config, error) {
	var (
		configPath string
		backendURL string
		timeout    time.Duration
		mode       string
		serve      bool
		addr       string
		debug      bool
	)

	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.StringVar(&backendURL, "backend-url", "", "Backend base URL (overrides BACKEND_URL)")
	flag.DurationVar(&timeout, "timeout", 0, "Timeout for each backend request")
	flag.StringVar(&mode, "mode", "", "Start in mode: indexed or document")
	flag.BoolVar(&serve, "serve", false, "Serve the web page instead of the terminal chat")
	flag.StringVar(&addr, "addr", "", "Listen address for -serve")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := cfgPkg.LoadConfig(configPath)
	if err != nil {
		return Config{}, err
	}

	// Command line flags win over the config file
	if backendURL != "" {
		cfg.Backend.URL = backendURL
	}
	if timeout != 0 {
		cfg.Backend.Timeout = timeout
	}
	if mode != "" {
		cfg.UI.DefaultMode = mode
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if debug {
		cfg.Log.Level = "debug"
		cfg.Log.Development = true
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, e.Error())
		}
		return Config{}, fmt.Errorf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
	}

	startMode, _ := models.ParseMode(cfg.UI.DefaultMode)

	return Config{
		BackendURL:       cfg.Backend.URL,
		Timeout:          cfg.Backend.Timeout,
		RateLimit:        cfg.Backend.RateLimit,
		Mode:             startMode,
		Serve:            serve,
		Addr:             cfg.Server.Addr,
		AllowedExts:      cfg.Upload.AllowedExtensions,
		MaxUploadBytes:   cfg.Upload.MaxBytes,
		PreviewSentences: cfg.UI.PreviewSentences,
		LogLevel:         cfg.Log.Level,
		LogDevelopment:   cfg.Log.Development,
	}, nil
}

func run(config Config) error {
	// Initialize components
	zlog, err := logger.New(config.LogLevel, config.LogDevelopment)
	if err != nil {
		return err
	}
	defer zlog.Sync()

	gw, err := gateway.NewWithConfig(gateway.Config{
		BaseURL:   config.BackendURL,
		Timeout:   config.Timeout,
		RateLimit: config.RateLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize backend gateway: %w", err)
	}

	processor := document.NewWithConfig(document.ProcessorConfig{
		AllowedExtensions: config.AllowedExts,
		MaxBytes:          config.MaxUploadBytes,
		PreviewSentences:  config.PreviewSentences,
	})

	pages := scraper.NewWithConfig(scraper.ScraperConfig{
		Timeout:  config.Timeout,
		MaxBytes: config.MaxUploadBytes,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if config.Serve {
		return serve(ctx, config, gw, processor, pages, zlog)
	}

	sess := session.New()
	sess.SetMode(config.Mode)

	t := newTerminal(os.Stdin, os.Stdout, processor, pages)
	t.controller = chat.New(sess, gw,
		chat.WithLogger(zlog),
		chat.WithValidator(processor.Validate),
		chat.WithPresenter(t),
	)
	zlog.Debug("terminal session started", zap.String("backend", gw.BaseURL()), zap.String("session", sess.ID()))
	return t.Run(ctx)
}

func serve(ctx context.Context, config Config, gw *gateway.Client, processor document.Processor, pages *scraper.Scraper, zlog *zap.Logger) error {
	srv := server.NewWSServer(server.Config{
		Addr:        config.Addr,
		DefaultMode: config.Mode,
	}, gw, processor, pages, zlog)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		zlog.Info("shutting down")
		return nil
	})
	return g.Wait()
}
