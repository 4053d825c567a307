package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/dshills/codegraph-mcp/internal/config"
	"github.com/dshills/codegraph-mcp/internal/graph"
	"github.com/dshills/codegraph-mcp/internal/indexer"
	"github.com/dshills/codegraph-mcp/internal/mcp"
	"github.com/dshills/codegraph-mcp/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	app := &cli.App{
		Name:    "codegraph",
		Usage:   "Incremental code graph indexing for Python and JavaScript/TypeScript repositories",
		Version: fmt.Sprintf("%s (built %s, %s, driver %s)", version, buildTime, storage.BuildMode, storage.DriverName),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "TOML config file path",
				EnvVars: []string{"CODEGRAPH_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "Graph database path (overrides config and CODEGRAPH_DB_PATH)",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Log per-file events",
			},
		},
		Before: func(c *cli.Context) error {
			level := slog.LevelInfo
			if c.Bool("verbose") {
				level = slog.LevelDebug
			}
			// stdout is reserved for command output and the MCP protocol
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "index",
				Aliases:   []string{"i"},
				Usage:     "Index one or more repositories and print the run summaries as JSON",
				ArgsUsage: "<path...>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "full",
						Usage: "Clear the repository graph and re-index every file",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Repositories indexed concurrently",
					},
				},
				Action: indexCommand,
			},
			{
				Name:      "status",
				Usage:     "Print the last run and graph statistics of a repository",
				ArgsUsage: "<path>",
				Action:    statusCommand,
			},
			{
				Name:   "serve",
				Usage:  "Run the MCP server on stdio",
				Action: serveCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the config file and applies the --db override
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if db := c.String("db"); db != "" {
		cfg.DBPath = db
	}
	return cfg, nil
}

func openStorage(cfg *config.Config) (*storage.SQLiteStorage, error) {
	dbPath := config.ExpandHome(cfg.DBPath)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	return storage.NewSQLiteStorage(dbPath)
}

func indexCommand(c *cli.Context) error {
	paths := c.Args().Slice()
	if len(paths) == 0 {
		return cli.Exit("at least one repository path is required", 2)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	idx := indexer.New(cfg, store, indexer.WithLogger(slog.Default()), indexer.WithWorkers(c.Int("workers")))
	summaries, runErr := idx.IndexRepositories(ctx, paths, !c.Bool("full"))

	out := make([]*indexer.RunSummary, 0, len(summaries))
	for _, s := range summaries {
		if s != nil {
			out = append(out, s)
		}
	}
	if err := printJSON(out); err != nil {
		return err
	}
	return runErr
}

func statusCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("exactly one repository path is required", 2)
	}
	repo, err := filepath.Abs(config.ExpandHome(c.Args().First()))
	if err != nil {
		return err
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := c.Context
	run, err := store.LastRun(ctx, repo)
	if errors.Is(err, storage.ErrNotFound) {
		return cli.Exit(fmt.Sprintf("%s has not been indexed", repo), 1)
	}
	if err != nil {
		return err
	}

	status := map[string]interface{}{
		"repository": repo,
		"last_run": map[string]interface{}{
			"run_id":        run.ID,
			"status":        run.Status,
			"incremental":   run.Incremental,
			"indexed_files": run.IndexedFiles,
			"skipped_files": run.SkippedFiles,
			"errors":        run.Errors,
			"started_at":    run.StartedAt,
			"duration":      run.Duration.String(),
		},
	}
	// A skipped run leaves the graph of an earlier run in place
	var rootID graph.NodeID
	if run.RootID != nil {
		rootID = *run.RootID
	} else if rootID, err = store.FindRoot(ctx, repo); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if rootID != 0 {
		stats, err := store.Stats(ctx, rootID)
		if err != nil {
			return err
		}
		status["root_id"] = rootID
		status["statistics"] = stats
	}
	return printJSON(status)
}

func serveCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	slog.Info("codegraph MCP server starting",
		"version", version, "build_mode", storage.BuildMode, "driver", storage.DriverName, "db", cfg.DBPath)

	server, err := mcp.NewServer(cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Serve(ctx)
	}()

	select {
	case sig := <-sigChan:
		slog.Info("shutting down", "signal", sig.String())
		cancel()
		return nil
	case err := <-errChan:
		return err
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
