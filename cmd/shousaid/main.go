package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btcsuite/btclog"
	btclogv2 "github.com/btcsuite/btclog/v2"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/roasbeef/shousai/internal/build"
	"github.com/roasbeef/shousai/internal/coordinator"
	"github.com/roasbeef/shousai/internal/db"
	"github.com/roasbeef/shousai/internal/failstore"
	"github.com/roasbeef/shousai/internal/mcp"
	"github.com/roasbeef/shousai/internal/upstream"
	"github.com/roasbeef/shousai/internal/web"
)

func main() {
	var (
		dbPath = flag.String("db", "",
			"Path to SQLite database "+
				"(default ~/.shousai/shousai.db)")
		apiURL = flag.String("api", "http://localhost:8787",
			"Base URL of the upstream content API")
		webAddr = flag.String("web", ":8080",
			"Web server address (empty to disable)")
		pollInterval = flag.Duration("poll-interval",
			0, "Override the detail poll interval (0 for default)")
		logDir = flag.String("logdir", "",
			"Directory for rotating log files (empty to disable)")
		logLevel = flag.String("loglevel", "info",
			"Log level: trace, debug, info, warn, error")
		webOnly = flag.Bool("web-only", false,
			"Run the web server only (no MCP stdio)")
	)
	flag.Parse()

	logger, logCleanup, err := setupLogging(*logDir, *logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logCleanup()
	slog.SetDefault(logger)

	dbPathExpanded := *dbPath
	if dbPathExpanded == "" {
		dbPathExpanded, err = db.DefaultDBPath()
	} else {
		dbPathExpanded, err = expandPath(dbPathExpanded)
	}
	if err != nil {
		logger.Error("Failed to resolve database path", "error", err)
		os.Exit(1)
	}

	// Open the database with migrations.
	sqliteStore, err := db.NewSqliteStore(&db.SqliteConfig{
		DatabaseFileName: dbPathExpanded,
	}, logger)
	if err != nil {
		logger.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer sqliteStore.Close()

	failures := failstore.NewStore(
		sqliteStore.Store, failstore.DefaultConfig(), logger,
	)

	upstreamClient := upstream.NewHTTPClient(*apiURL, nil)

	coordCfg := coordinator.DefaultConfig()
	if *pollInterval > 0 {
		coordCfg.Poll.Interval = *pollInterval
	}

	coord := coordinator.NewCoordinator(
		coordCfg, upstreamClient, failures, logger,
	)
	defer coord.Close()

	// Set up signal handling for graceful shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("Shutting down...")
		cancel()
	}()

	// Sweep expired failure rows in the background. Reads already treat
	// them as misses, the sweep just keeps the table small.
	go func() {
		ticker := time.NewTicker(failstore.DefaultFailureTTL)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := failures.PurgeExpired(ctx); n > 0 {
					logger.Debug("Purged expired failure "+
						"records", "count", n)
				}
			}
		}
	}()

	// Warm the record cache so the dashboard has something to show
	// before the first manual refresh.
	refreshCtx, refreshCancel := context.WithTimeout(ctx, 30*time.Second)
	if _, err := coord.RefreshClusters(refreshCtx); err != nil {
		logger.Warn("Initial cluster refresh failed", "error", err)
	}
	refreshCancel()

	// Start the web server if enabled.
	if *webAddr != "" {
		webCfg := web.DefaultConfig()
		webCfg.Addr = *webAddr

		webServer, err := web.NewServer(webCfg, coord, logger)
		if err != nil {
			logger.Error("Failed to create web server", "error", err)
			os.Exit(1)
		}

		go func() {
			err := webServer.Start()
			if err != nil && err != http.ErrServerClosed {
				logger.Error("Web server error", "error", err)
			}
		}()

		// Shut down web server on context cancellation.
		go func() {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(
				context.Background(), 10*time.Second,
			)
			defer shutdownCancel()
			_ = webServer.Shutdown(shutdownCtx)
		}()
	}

	// Run the MCP server on stdio transport, unless web-only mode.
	if *webOnly {
		logger.Info("Running in web-only mode (no MCP stdio)")
		<-ctx.Done()
		return
	}

	logger.Info("Starting shousaid MCP server", "version", build.Version())
	mcpServer := mcp.NewServer(coord, logger)
	if err := mcpServer.Run(ctx, &sdkmcp.StdioTransport{}); err != nil {
		logger.Error("MCP server error", "error", err)
		os.Exit(1)
	}
}

// setupLogging builds the process logger: console output on stderr,
// plus a rotating log file when logDir is set. Stdout stays clean for
// the MCP stdio transport.
func setupLogging(logDir, level string) (*slog.Logger, func(), error) {
	handlers := []btclogv2.Handler{
		btclogv2.NewDefaultHandler(os.Stderr),
	}
	cleanup := func() {}

	if logDir != "" {
		dirExpanded, err := expandPath(logDir)
		if err != nil {
			return nil, nil, err
		}

		logWriter := build.NewRotatingLogWriter()
		rotatorCfg := build.DefaultLogRotatorConfig()
		rotatorCfg.LogDir = dirExpanded

		if err := logWriter.InitLogRotator(rotatorCfg); err != nil {
			return nil, nil, err
		}

		handlers = append(
			handlers, btclogv2.NewDefaultHandler(logWriter),
		)
		cleanup = func() { _ = logWriter.Close() }
	}

	handlerSet := build.NewHandlerSet(handlers...)
	if lvl, ok := btclog.LevelFromString(level); ok {
		handlerSet.SetLevel(lvl)
	}

	return slog.New(handlerSet), cleanup, nil
}

// expandPath expands a leading ~ and any environment variables in path.
func expandPath(path string) (string, error) {
	expanded := os.ExpandEnv(path)
	if len(expanded) > 0 && expanded[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		expanded = home + expanded[1:]
	}
	return expanded, nil
}
