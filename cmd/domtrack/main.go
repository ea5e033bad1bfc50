// CLAUDE:SUMMARY CLI entry point for domtrack: one-shot page scans, or live tracking from a YAML config with optional HTTP status and MCP stdio.
// Command domtrack detects structural entities in HTML pages.
//
// Usage:
//
//	domtrack -scan page.html [-entity overlay,compose]   # scan once, print JSON
//	domtrack -config domtrack.yaml                       # track a live page
//	domtrack -config domtrack.yaml -http :8090           # plus status API
//	domtrack -config domtrack.yaml -mcp                  # plus MCP over stdio
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/domsense/domtrack"
	"github.com/hazyhaar/domsense/entity"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "path to domtrack.yaml config file")
	scanPath := flag.String("scan", "", "scan an HTML file once and exit (- for stdin)")
	entities := flag.String("entity", "", "comma-separated entities for -scan (default: all)")
	httpAddr := flag.String("http", "", "status API listen address (overrides http.addr)")
	mcpStdio := flag.Bool("mcp", false, "serve MCP tools over stdio")
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

	var err error
	switch {
	case *scanPath != "":
		err = runScan(*scanPath, *entities)
	case *configPath != "":
		err = runConfig(ctx, logger, *configPath, *httpAddr, *mcpStdio)
	default:
		fmt.Fprintln(os.Stderr, "usage: domtrack -scan <file> [-entity a,b] | -config <file> [-http addr] [-mcp]")
		os.Exit(2)
	}
	if err != nil {
		logger.Error("domtrack: fatal", "error", err)
		os.Exit(1)
	}
}

func runScan(path, entities string) error {
	f := os.Stdin
	if path != "-" {
		var err error
		if f, err = os.Open(path); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		defer f.Close()
	}
	var names []string
	if entities != "" {
		names = strings.Split(entities, ",")
	}
	ms, err := domtrack.Scan(entity.NewRegistry(), f, names...)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(ms)
}

func runConfig(ctx context.Context, logger *slog.Logger, path, httpAddr string, mcpStdio bool) error {
	cfg, err := domtrack.LoadConfigFile(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if mcpStdio {
		for _, sc := range cfg.Sinks {
			if sc.Type == "stdout" {
				return errors.New("a stdout sink cannot share stdout with -mcp; configure a webhook or sqlite sink")
			}
		}
	}

	sinks, store, err := domtrack.BuildSinks(cfg, logger)
	if err != nil {
		return err
	}
	tr := domtrack.New(cfg, entity.NewRegistry(), logger, sinks...)
	if store != nil {
		tr.SetStore(store)
	}
	if err := tr.Start(ctx); err != nil {
		for _, s := range sinks {
			s.Close()
		}
		return fmt.Errorf("start: %w", err)
	}
	defer tr.Stop()

	if httpAddr == "" {
		httpAddr = cfg.HTTP.Addr
	}
	if httpAddr != "" {
		srv := &http.Server{
			Addr:              httpAddr,
			Handler:           tr.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("domtrack: http listening", "addr", httpAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("domtrack: http server", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	if mcpStdio {
		srv := mcp.NewServer(&mcp.Implementation{Name: "domtrack", Version: version}, nil)
		tr.RegisterMCP(srv)
		logger.Info("domtrack: mcp serving on stdio")
		if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
			return fmt.Errorf("mcp: %w", err)
		}
		return nil
	}

	<-ctx.Done()
	return nil
}
