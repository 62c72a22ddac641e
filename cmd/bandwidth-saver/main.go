// Command bandwidth-saver is the image delivery resilience daemon.
//
// Usage:
//
//	bandwidth-saver -config watch.yaml       # watch pages from YAML config
//	bandwidth-saver -url https://shop.tld/   # quick single-page watch (stdout sink)
//	bandwidth-saver -audit rendered.html     # audit rewriter output and exit
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

	"github.com/img-pro/bandwidth-saver-sub002/audit"
	"github.com/img-pro/bandwidth-saver-sub002/event"
	"github.com/img-pro/bandwidth-saver-sub002/journal"
	"github.com/img-pro/bandwidth-saver-sub002/watch"
)

func main() {
	configPath := flag.String("config", "", "path to watch.yaml config file")
	singleURL := flag.String("url", "", "watch a single URL (stdout sink)")
	auditPath := flag.String("audit", "", "audit a rendered HTML file and exit")
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
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *singleURL, *auditPath); err != nil {
		logger.Error("bandwidth-saver: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, singleURL, auditPath string) error {
	if auditPath != "" {
		return runAudit(auditPath)
	}
	if singleURL != "" {
		return runSingle(ctx, logger, singleURL)
	}
	if configPath != "" {
		return runConfig(ctx, logger, configPath)
	}

	fmt.Fprintln(os.Stderr, "usage: bandwidth-saver -config <file> | -url <url> | -audit <file>")
	os.Exit(1)
	return nil
}

func runAudit(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	defer f.Close()

	rep, err := audit.Scan(f)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return err
	}
	if !rep.Clean() {
		return fmt.Errorf("audit: %d problem(s) found", len(rep.Problems))
	}
	return nil
}

func runSingle(ctx context.Context, logger *slog.Logger, url string) error {
	cfg := &watch.Config{
		Pages: []watch.PageConfig{{URL: url}},
	}

	w := watch.New(cfg, logger, event.NewStdout(nil))
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	<-ctx.Done()
	w.Stop()
	return nil
}

func runConfig(ctx context.Context, logger *slog.Logger, path string) error {
	cfg, err := watch.LoadConfigFile(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var sinks []event.Sink
	for _, sc := range cfg.Sinks {
		switch sc.Type {
		case "stdout":
			sinks = append(sinks, event.NewStdout(nil))
		case "webhook":
			sinks = append(sinks, event.NewWebhook(sc.URL, event.WithWebhookLogger(logger)))
		default:
			logger.Warn("unknown sink type, skipping", "type", sc.Type)
		}
	}

	var j *journal.Journal
	if cfg.Journal.Path != "" {
		j, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer j.Close()
		sinks = append(sinks, j.Sink())
	}

	if len(sinks) == 0 {
		sinks = append(sinks, event.NewStdout(nil))
	}

	w := watch.New(cfg, logger, sinks...)

	if cfg.Admin.Listen != "" {
		go serveAdmin(ctx, cfg.Admin.Listen, w, j, logger)
	}

	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	<-ctx.Done()
	w.Stop()
	return nil
}
