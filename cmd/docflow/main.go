// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/docflow"
	"github.com/poiesic/docflow/ai"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/pipeline"
	"github.com/poiesic/docflow/reembed"
	"github.com/poiesic/docflow/search"
	"github.com/poiesic/docflow/watch"
)

func main() {
	app := &cli.App{
		Name:   "docflow",
		Usage:  "Document processing pipeline for storage-terminal archives",
		Before: setupLogger,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Watch a folder and process incoming documents",
				Action: runCommand,
				Flags: append(commonFlags(),
					&cli.StringFlag{
						Name:     "watch-dir",
						Aliases:  []string{"w"},
						Usage:    "Folder to watch for incoming documents",
						Required: true,
					},
					&cli.StringSliceFlag{
						Name:  "pattern",
						Usage: "Glob pattern for file names (repeatable; default: supported extensions)",
					},
					&cli.DurationFlag{
						Name:  "settle-delay",
						Usage: "How long writes must be quiet before a file is processed",
						Value: watch.DefaultSettleDelay,
					},
				),
			},
			{
				Name:      "ingest",
				Usage:     "Process one or more files and exit",
				ArgsUsage: "FILE...",
				Action:    ingestCommand,
				Flags:     commonFlags(),
			},
			{
				Name:      "search",
				Usage:     "Search processed documents",
				ArgsUsage: "QUERY",
				Action:    searchCommand,
				Flags: append(aiFlags(),
					dbFlag(),
					&cli.IntFlag{
						Name:  "max-hits",
						Usage: "Maximum number of results",
						Value: search.DefaultMaxHits,
					},
					&cli.StringFlag{
						Name:  "category",
						Usage: "Restrict results to one category",
					},
					&cli.BoolFlag{
						Name:  "similar",
						Usage: "Plain vector similarity, no keyword signal",
					},
				),
			},
			{
				Name:   "reembed",
				Usage:  "Rebuild vectors for all completed documents with the configured embedding model",
				Action: reembedCommand,
				Flags: append(aiFlags(),
					dbFlag(),
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Chunk texts per embedding API call",
						Value: 16,
					},
					&cli.BoolFlag{
						Name:  "reclassify",
						Usage: "Also re-run classification and entity extraction before reembedding",
					},
				),
			},
			{
				Name:  "jobs",
				Usage: "Inspect and control processing jobs",
				Subcommands: []*cli.Command{
					{
						Name:      "status",
						Usage:     "Show one job",
						ArgsUsage: "JOB-ID",
						Action:    jobStatusCommand,
						Flags:     []cli.Flag{dbFlag()},
					},
					{
						Name:   "list",
						Usage:  "List jobs",
						Action: jobListCommand,
						Flags: []cli.Flag{
							dbFlag(),
							&cli.StringFlag{
								Name:  "status",
								Usage: "Filter by status (pending, processing, completed, failed)",
							},
							&cli.IntFlag{
								Name:  "limit",
								Usage: "Maximum number of jobs to show",
								Value: 50,
							},
						},
					},
					{
						Name:      "retry",
						Usage:     "Restart a failed job",
						ArgsUsage: "JOB-ID",
						Action:    jobRetryCommand,
						Flags:     commonFlags(),
					},
					{
						Name:      "cancel",
						Usage:     "Cancel a running job",
						ArgsUsage: "JOB-ID",
						Action:    jobCancelCommand,
						Flags: append(commonFlags(),
							&cli.StringFlag{
								Name:  "reason",
								Usage: "Reason recorded on the job",
							},
						),
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func dbFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "db",
		Aliases: []string{"d"},
		Usage:   "Path to BadgerDB database directory",
		Value:   "./docflow_db",
	}
}

func aiFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "embedding-host",
			Usage: "Embedding service host URL",
			Value: "http://localhost:11434/v1",
		},
		&cli.StringFlag{
			Name:  "embedding-model",
			Usage: "Embedding model name",
			Value: "embeddinggemma",
		},
		&cli.StringFlag{
			Name:  "chat-host",
			Usage: "Chat completion host URL (defaults to embedding-host)",
		},
		&cli.StringFlag{
			Name:  "chat-model",
			Usage: "Chat model used for classification and entity extraction",
			Value: "qwen2.5:3b",
		},
	}
}

func commonFlags() []cli.Flag {
	return append(aiFlags(),
		dbFlag(),
		&cli.StringFlag{
			Name:  "processed-dir",
			Usage: "Directory completed source files move to (empty disables)",
		},
		&cli.StringFlag{
			Name:  "failed-dir",
			Usage: "Directory failed source files move to (empty disables)",
		},
		&cli.IntFlag{
			Name:  "workers",
			Usage: "Concurrent processing jobs (0 = half the CPUs)",
		},
		&cli.IntFlag{
			Name:  "chunk-size",
			Usage: "Chunk window size in bytes",
			Value: 1000,
		},
		&cli.IntFlag{
			Name:  "chunk-overlap",
			Usage: "Chunk overlap in bytes",
			Value: 200,
		},
		&cli.IntFlag{
			Name:  "max-attempts",
			Usage: "Attempt budget per pipeline stage",
			Value: 3,
		},
		&cli.DurationFlag{
			Name:  "stage-timeout",
			Usage: "Deadline per stage execution",
			Value: 2 * time.Minute,
		},
	)
}

func buildAIConfig(c *cli.Context) *ai.Config {
	chatHost := c.String("chat-host")
	if chatHost == "" {
		chatHost = c.String("embedding-host")
	}
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.String("embedding-host")),
		ai.WithEmbeddingModel(c.String("embedding-model")),
		ai.WithChatHost(chatHost),
		ai.WithChatModel(c.String("chat-model")),
	)
}

func openDatabase(c *cli.Context) (*docflow.Database, error) {
	db, err := docflow.NewDatabase(c.String("db"), docflow.WithAIConfig(buildAIConfig(c)))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func buildPipeline(c *cli.Context, db *docflow.Database) (*pipeline.Pipeline, error) {
	config := pipeline.DefaultConfig(
		pipeline.WithChunking(c.Int("chunk-size"), c.Int("chunk-overlap")),
		pipeline.WithMaxAttempts(c.Int("max-attempts")),
		pipeline.WithStageTimeout(c.Duration("stage-timeout")),
		pipeline.WithRelocation(c.String("processed-dir"), c.String("failed-dir")),
	)

	opts := []pipeline.Option{pipeline.WithConfig(config)}
	if workers := c.Int("workers"); workers > 0 {
		opts = append(opts, pipeline.WithPoolSize(workers))
	}
	return db.NewPipeline(opts...)
}

func runCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	p, err := buildPipeline(c, db)
	if err != nil {
		return err
	}
	defer p.Release()

	watcher, err := watch.NewWatcher(watch.Config{
		Path:        c.String("watch-dir"),
		Patterns:    c.StringSlice("pattern"),
		SettleDelay: c.Duration("settle-delay"),
	}, func(event watch.IngestionEvent) {
		job, err := p.Submit(context.Background(), event.Path)
		if err != nil {
			slog.Error("submission failed", "path", event.Path, "err", err)
			return
		}
		slog.Info("submitted document", "path", event.Path, "jobId", job.Id)
	})
	if err != nil {
		return err
	}
	if err := watcher.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	slog.Info("shutting down")
	if err := watcher.Stop(); err != nil {
		slog.Error("error stopping watcher", "err", err)
	}
	p.Wait()
	return nil
}

func ingestCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one file is required")
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	p, err := buildPipeline(c, db)
	if err != nil {
		return err
	}
	defer p.Release()

	ctx := context.Background()
	jobIds := make([]string, 0, c.NArg())
	for _, path := range c.Args().Slice() {
		job, err := p.Submit(ctx, path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			continue
		}
		jobIds = append(jobIds, job.Id)
	}
	p.Wait()

	failures := 0
	for _, id := range jobIds {
		job, err := p.JobStatus(ctx, id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", id, err)
			failures++
			continue
		}
		printJob(job)
		if job.Status != core.JobCompleted {
			failures++
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d jobs did not complete", failures, len(jobIds))
	}
	return nil
}

func searchCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("a query is required")
	}
	query := strings.Join(c.Args().Slice(), " ")

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	searcher, err := db.NewSearcher()
	if err != nil {
		return err
	}

	ctx := context.Background()
	var results []*search.Result
	if c.Bool("similar") {
		results, err = searcher.FindSimilar(ctx, query, c.Int("max-hits"))
	} else {
		results, err = searcher.Search(ctx, query, search.Options{
			MaxHits:  c.Int("max-hits"),
			Category: c.String("category"),
		})
	}
	if err != nil {
		return err
	}

	fmt.Printf("Found %d hits\n", len(results))
	for i, hit := range results {
		fmt.Printf("%d: %s [%s] (chunk %d) [%0.3f]\n",
			i, hit.Document.Filename, hit.Document.Category, hit.Chunk.Ordinal, hit.Score)
		fmt.Printf("   %s\n", excerpt(hit.Chunk.Text, 160))
	}
	return nil
}

func reembedCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	config := reembed.DefaultConfig()
	config.BatchSize = c.Int("batch-size")

	ctx := context.Background()
	provider := db.Provider()

	if c.Bool("reclassify") {
		reclassifier, err := reembed.NewReclassifier(
			db.DocumentRepository(), provider.Classifier(), provider.EntityExtractor(), config, os.Stderr)
		if err != nil {
			return err
		}
		if err := reclassifier.Run(ctx); err != nil {
			return err
		}
	}

	reembedder, err := reembed.NewReembedder(
		db.DocumentRepository(), db.ChunkRepository(), db.VectorStore(), provider.Embedder(), config, os.Stderr)
	if err != nil {
		return err
	}
	return reembedder.Run(ctx)
}

func jobStatusCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("a job id is required")
	}

	db, err := docflow.NewDatabase(c.String("db"))
	if err != nil {
		return err
	}
	defer db.Close()

	job, err := db.JobRepository().GetJob(context.Background(), c.Args().First())
	if err != nil {
		return err
	}
	printJob(job)
	if job.Error != "" {
		fmt.Printf("   error: %s\n", job.Error)
	}
	for stage, attempts := range job.Attempts {
		fmt.Printf("   %s: %d attempt(s)\n", stage, attempts)
	}
	return nil
}

func jobListCommand(c *cli.Context) error {
	db, err := docflow.NewDatabase(c.String("db"))
	if err != nil {
		return err
	}
	defer db.Close()

	status, err := parseJobStatus(c.String("status"))
	if err != nil {
		return err
	}

	jobs, err := db.JobRepository().ListJobs(context.Background(), status, c.Int("limit"))
	if err != nil {
		return err
	}
	for _, job := range jobs {
		printJob(job)
	}
	return nil
}

func jobRetryCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("a job id is required")
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	p, err := buildPipeline(c, db)
	if err != nil {
		return err
	}
	defer p.Release()

	job, err := p.RetryJob(context.Background(), c.Args().First())
	if err != nil {
		return err
	}
	p.Wait()

	job, err = p.JobStatus(context.Background(), job.Id)
	if err != nil {
		return err
	}
	printJob(job)
	return nil
}

func jobCancelCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("a job id is required")
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	p, err := buildPipeline(c, db)
	if err != nil {
		return err
	}
	defer p.Release()

	return p.CancelJob(context.Background(), c.Args().First(), c.String("reason"))
}

func printJob(job *core.ProcessingJob) {
	fmt.Printf("%s  doc=%d  %s  stage=%s  %d%%\n",
		job.Id, job.DocumentId, job.Status, job.Stage, job.Progress)
}

func parseJobStatus(s string) (core.JobStatus, error) {
	switch strings.ToLower(s) {
	case "":
		return 0, nil
	case "pending":
		return core.JobPending, nil
	case "processing":
		return core.JobProcessing, nil
	case "completed":
		return core.JobCompleted, nil
	case "failed":
		return core.JobFailed, nil
	}
	return 0, fmt.Errorf("invalid status %q: must be one of pending, processing, completed, failed", s)
}

func excerpt(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "..."
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
