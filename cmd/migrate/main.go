// Command migrate rewrites legacy flat-named uploads into the
// hierarchical key layout.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/tomliptrot/handwriting-app/internal/migrate"
	"github.com/tomliptrot/handwriting-app/internal/storage"
)

func main() {
	var (
		root    = flag.String("root", "data/objects", "object store root directory")
		prefix  = flag.String("prefix", "images/", "key prefix holding uploads")
		dryRun  = flag.Bool("dry-run", false, "report planned moves without changing anything")
		verify  = flag.Bool("verify", false, "only check for remaining legacy objects")
		verbose = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	store, err := storage.NewFSStore(*root)
	if err != nil {
		logger.Error("failed to open object store", "error", err)
		os.Exit(1)
	}

	m := migrate.New(store, *prefix, logger)
	ctx := context.Background()

	if *verify {
		remaining, err := m.Verify(ctx)
		if err != nil {
			logger.Error("verify failed", "error", err)
			os.Exit(1)
		}
		if len(remaining) > 0 {
			for _, key := range remaining {
				fmt.Println(key)
			}
			logger.Error("legacy objects remain", "count", len(remaining))
			os.Exit(1)
		}
		logger.Info("no legacy objects found")
		return
	}

	report, err := m.Run(ctx, *dryRun)
	if err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}

	logger.Info("migration finished",
		"migrated", report.Migrated,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"dry_run", *dryRun)

	if report.Failed > 0 {
		os.Exit(1)
	}
}
