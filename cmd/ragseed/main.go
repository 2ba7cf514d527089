// Command ragseed loads local markdown files into the Retriever's index.
//
// It is a thin wrapper, not a pipeline feature: the chunking policy itself
// (section-boundary splitting with a fixed-window fallback) is part of the
// Retriever's documented contract (spec §4.C); this command exists only to
// invoke retriever.ChunkText and retriever.AddTexts against local files for
// development seeding.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/finquery/dispatcher/internal/adapter/retriever"
	"github.com/finquery/dispatcher/internal/config"
	"github.com/finquery/dispatcher/internal/observability"
)

func main() {
	dir := flag.String("dir", "", "directory of .md files to ingest")
	flag.Parse()

	if *dir == "" {
		fmt.Fprintln(os.Stderr, "usage: ragseed -dir <path>")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	ctx := context.Background()
	ret := retriever.New(ctx, cfg)

	entries, err := os.ReadDir(*dir)
	if err != nil {
		slog.Error("read dir failed", slog.Any("error", err))
		os.Exit(1)
	}

	total := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".md" {
			continue
		}
		path := filepath.Join(*dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("skipping unreadable file", slog.String("path", path), slog.Any("error", err))
			continue
		}

		chunks := retriever.ChunkText(string(raw))
		if len(chunks) == 0 {
			continue
		}
		metas := make([]map[string]string, len(chunks))
		for i := range chunks {
			metas[i] = map[string]string{"source": entry.Name()}
		}
		if err := ret.AddTexts(ctx, chunks, metas); err != nil {
			slog.Warn("add_texts failed", slog.String("path", path), slog.Any("error", err))
			continue
		}
		total += len(chunks)
		slog.Info("ingested file", slog.String("path", path), slog.Int("chunks", len(chunks)))
	}

	slog.Info("ragseed complete", slog.Int("total_chunks", total))
}
