package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/natefinch/atomic"

	"github.com/CTAG07/Glossolalia/pkg/charmarkov"
	"github.com/CTAG07/Glossolalia/pkg/modelstore"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func usage() {
	fmt.Fprintf(os.Stderr, `glossolalia - character-level Markov text generation

Usage:
  glossolalia [-config path] <command> [args]

Commands:
  train <model> <corpus-file>   train a model from a text file and save it
  generate <model>              sample text from a saved model to stdout
  list                          list saved models
  stats <model>                 print statistics for a saved model
  prune <model> <min-count>     drop stored transitions rarer than min-count
  delete <model>                remove a saved model
  export <model> <out-file>     write a model's counts as JSON
  import <model> <json-file>    load exported counts and save them
  version                       print build information
`)
}

func main() {
	configPath := flag.String("config", "./config.json", "path to the config file")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	config, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	var logLevel slog.Level
	switch strings.ToLower(config.LogLevel) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, config, flag.Args()); err != nil {
		logger.Error("Command failed", "command", flag.Arg(0), "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, config *Config, args []string) error {
	command := args[0]
	if command == "version" {
		fmt.Printf("glossolalia %s (commit %s, built %s)\n", Version, Commit, BuildDate)
		return nil
	}

	if err := os.MkdirAll(config.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	db, err := initDB(config.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err = modelstore.SetupSchema(db); err != nil {
		return fmt.Errorf("failed to set up schema: %w", err)
	}
	store, err := modelstore.NewStore(db)
	if err != nil {
		return fmt.Errorf("failed to create model store: %w", err)
	}
	defer store.Close()
	store.SetLogger(logger)

	switch command {
	case "train":
		if len(args) != 3 {
			return fmt.Errorf("usage: train <model> <corpus-file>")
		}
		return cmdTrain(ctx, logger, config, store, args[1], args[2])
	case "generate":
		if len(args) != 2 {
			return fmt.Errorf("usage: generate <model>")
		}
		return cmdGenerate(ctx, logger, config, store, args[1])
	case "list":
		return cmdList(ctx, store)
	case "stats":
		if len(args) != 2 {
			return fmt.Errorf("usage: stats <model>")
		}
		return cmdStats(ctx, store, args[1])
	case "prune":
		if len(args) != 3 {
			return fmt.Errorf("usage: prune <model> <min-count>")
		}
		minCount, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid min-count %q: %w", args[2], err)
		}
		return store.Prune(ctx, args[1], minCount)
	case "delete":
		if len(args) != 2 {
			return fmt.Errorf("usage: delete <model>")
		}
		return store.Delete(ctx, args[1])
	case "export":
		if len(args) != 3 {
			return fmt.Errorf("usage: export <model> <out-file>")
		}
		return cmdExport(ctx, store, args[1], args[2])
	case "import":
		if len(args) != 3 {
			return fmt.Errorf("usage: import <model> <json-file>")
		}
		return cmdImport(ctx, store, args[1], args[2])
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func cmdTrain(ctx context.Context, logger *slog.Logger, config *Config, store *modelstore.Store, name, corpusPath string) error {
	f, err := os.Open(corpusPath)
	if err != nil {
		return fmt.Errorf("failed to open corpus: %w", err)
	}
	defer func() { _ = f.Close() }()

	model, err := charmarkov.Build(f, config.Order,
		charmarkov.WithMinCount(config.MinCount),
		charmarkov.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("training failed: %w", err)
	}

	stats := model.Stats()
	logger.Info("Training completed",
		slog.String("model_name", name),
		slog.Int("order", config.Order),
		slog.Int("histories", stats.Histories),
		slog.Int("transitions", stats.Transitions),
	)

	return store.Save(ctx, name, model)
}

func cmdGenerate(ctx context.Context, logger *slog.Logger, config *Config, store *modelstore.Store, name string) error {
	model, err := store.Load(ctx, name)
	if err != nil {
		return err
	}
	model.SetLogger(logger)

	emitted := 0
	for char := range model.GenerateStream(ctx, config.SampleLength) {
		fmt.Print(string(char))
		emitted++
	}
	fmt.Println()

	if emitted < config.SampleLength && ctx.Err() == nil {
		logger.Warn("Generation ended early at an unseen history",
			slog.String("model_name", name),
			slog.Int("generated_length", emitted),
			slog.Int("requested_length", config.SampleLength),
		)
	}
	return nil
}

func cmdList(ctx context.Context, store *modelstore.Store) error {
	models, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(models) == 0 {
		fmt.Println("no models saved")
		return nil
	}
	for _, info := range models {
		fmt.Printf("%s (order %d)\n", info.Name, info.Order)
	}
	return nil
}

func cmdStats(ctx context.Context, store *modelstore.Store, name string) error {
	model, err := store.Load(ctx, name)
	if err != nil {
		return err
	}
	stats := model.Stats()
	fmt.Printf("order:        %d\n", model.Order())
	fmt.Printf("histories:    %d\n", stats.Histories)
	fmt.Printf("transitions:  %d\n", stats.Transitions)
	fmt.Printf("alphabet:     %d\n", stats.AlphabetSize)
	fmt.Printf("observations: %d\n", stats.TotalCount)
	return nil
}

func cmdExport(ctx context.Context, store *modelstore.Store, name, outPath string) error {
	model, err := store.Load(ctx, name)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err = model.Export(&buf); err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	if err = atomic.WriteFile(outPath, &buf); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	return nil
}

func cmdImport(ctx context.Context, store *modelstore.Store, name, inPath string) error {
	f, err := os.Open(inPath)
	if err != nil {
		return fmt.Errorf("failed to open import file: %w", err)
	}
	defer func() { _ = f.Close() }()

	model, err := charmarkov.Import(f)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	return store.Save(ctx, name, model)
}
