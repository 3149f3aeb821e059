package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/promptkeep/internal/config"
	"github.com/hpungsan/promptkeep/internal/db"
	"github.com/hpungsan/promptkeep/internal/library"
	"github.com/hpungsan/promptkeep/internal/logger"
	"github.com/hpungsan/promptkeep/internal/mcp"
	"github.com/hpungsan/promptkeep/internal/redisstore"
	"github.com/hpungsan/promptkeep/internal/storage"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"add": true, "list": true, "show": true, "update": true, "delete": true,
	"undo": true, "versions": true, "version-delete": true, "version-restore": true,
	"reorder": true, "copy": true, "category": true,
	"export": true, "import": true, "theme": true, "serve": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode(args []string) bool {
	if len(args) < 2 {
		return false
	}
	arg := args[1]
	if cliCommands[arg] {
		return true
	}
	return isHelpOrVersion(args)
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion(args []string) bool {
	if len(args) < 2 {
		return false
	}
	arg := args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   ___                     _   _  __
  | _ \_ _ ___ _ __  _ __ | |_| |/ /___ ___ _ __
  |  _/ '_/ _ \ '  \| '_ \|  _| ' </ -_) -_) '_ \
  |_| |_| \___/_|_|_| .__/ \__|_|\_\___\___| .__/
                    |_|                    |_|

  Local prompt library

  Usage: promptkeep <command> [options]
         promptkeep --help

  MCP server mode requires piped input.`)
}

// openBackend picks the persistence backend named in cfg.
func openBackend(ctx context.Context, baseDir string, cfg *config.Config, log logger.Logger) (storage.Backend, error) {
	switch strings.ToLower(cfg.Backend) {
	case config.BackendMemory:
		log.Warn("memory backend selected; nothing will be kept after exit")
		return storage.NewMemoryBackend(), nil
	case config.BackendRedis:
		opts := redisstore.DefaultConnectOptions(cfg.RedisAddr)
		opts.Password = cfg.RedisPassword
		opts.DB = cfg.RedisDB
		opts.KeyPrefix = cfg.RedisKeyPrefix
		opts.ConnectTimeout = cfg.RedisConnectTimeout()
		return redisstore.Connect(ctx, opts, log)
	case config.BackendSQLite, "":
		return db.Open(baseDir, cfg)
	}
	return nil, fmt.Errorf("unknown backend %q (expected sqlite, redis or memory)", cfg.Backend)
}

// openStore builds the library over the configured backend and loads it.
func openStore(ctx context.Context, baseDir string, cfg *config.Config, log logger.Logger) (*library.Store, error) {
	backend, err := openBackend(ctx, baseDir, cfg, log)
	if err != nil {
		return nil, err
	}

	adapter := storage.NewAdapter(backend, log, storage.RetryPolicy{
		Retries: cfg.PersistRetries,
		Delay:   cfg.PersistRetryDelay(),
	})
	store := library.New(adapter, library.Options{
		Logger:         log,
		PersistTimeout: cfg.PersistTimeout(),
		ExportsDir:     filepath.Join(baseDir, "exports"),
		Config:         cfg,
	})
	if err := store.Load(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	// No args + interactive terminal → show banner and exit
	if len(args) < 2 && isTerminal() {
		printBanner()
		return 0
	}

	// Handle --help/--version before opening the store
	if isHelpOrVersion(args) {
		app := newCLIApp(nil, nil, nil)
		if err := app.Run(args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		return 0
	}

	baseDir, err := config.BaseDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: could not determine home directory: %v\n", err)
		return 1
	}

	cwd, err := os.Getwd()
	if err != nil {
		cwd = baseDir
	}
	cfg, err := config.LoadWithProject(baseDir, cwd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		return 1
	}

	log := logger.New(cfg.LogLevel, cfg.PrettyLog)
	defer func() { _ = log.Sync() }()

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(args) >= 2 && !isCLIMode(args) && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", args[1])
		fmt.Fprintf(os.Stderr, "Run 'promptkeep --help' for usage.\n")
		return 1
	}

	ctx := context.Background()
	store, err := openStore(ctx, baseDir, cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to open library: %v\n", err)
		return 1
	}
	defer store.Close()

	if isCLIMode(args) {
		app := newCLIApp(store, cfg, log)
		if err := app.Run(args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		return 0
	}

	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		log.Warn("unknown tools in disabled_tools", logger.String("tools", strings.Join(unknown, ",")))
	}
	if unknown := mcp.ValidateDisabledTypes(cfg.DisabledTypes); len(unknown) > 0 {
		log.Warn("unknown types in disabled_types", logger.String("types", strings.Join(unknown, ",")))
	}

	// MCP server mode (default)
	if err := mcp.Run(store, cfg, Version); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
