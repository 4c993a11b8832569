// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline builds knowledgebase articles end to end: it drafts
// an article per topic, generates search queries, fetches supporting
// literature, integrates the papers as cited references, and persists
// the cleaned result. Topics run concurrently under a bounded limit;
// a failed topic is recorded in the run ledger and never aborts its
// siblings.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/article-engine/internal/fetch"
	"github.com/pdiddy/article-engine/internal/ledger"
	"github.com/pdiddy/article-engine/internal/refs"
	"github.com/pdiddy/article-engine/pkg/types"
)

// defaultConcurrency bounds parallel topic builds when the
// configuration does not.
const defaultConcurrency = 3

// BatchSummary holds counts from one batch run.
type BatchSummary struct {
	// RunID is the ledger row for this batch, empty without a ledger.
	RunID string

	Succeeded int
	Failed    int
}

// Total returns the number of topics processed.
func (s BatchSummary) Total() int {
	return s.Succeeded + s.Failed
}

// HasFailures reports whether any topics failed.
func (s BatchSummary) HasFailures() bool {
	return s.Failed > 0
}

// Runner executes article builds. Generator and Config must be set;
// the rest are optional: without Sources articles keep only their
// drafted references, without a Ledger nothing is recorded, and a nil
// Logger or Out discards that stream.
type Runner struct {
	Generator Generator
	Sources   []fetch.Source
	Ledger    *ledger.Ledger
	Config    types.PipelineConfig
	Logger    *zap.Logger
	Out       io.Writer

	// TopicsLabel names the topic list in the run ledger, usually the
	// topics file path.
	TopicsLabel string
}

// Run builds every topic and returns the batch summary. Individual
// topic failures are reported in the summary and the ledger; the
// returned error covers batch-level problems only.
func (r *Runner) Run(ctx context.Context, topics []string) (BatchSummary, error) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	out := r.Out
	if out == nil {
		out = io.Discard
	}

	concurrency := r.Config.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	var summary BatchSummary
	if r.Ledger != nil {
		runID, err := r.Ledger.BeginRun(ctx, r.TopicsLabel, len(topics))
		if err != nil {
			return summary, fmt.Errorf("starting run ledger entry: %w", err)
		}
		summary.RunID = runID
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(concurrency)

	for _, topic := range topics {
		g.Go(func() error {
			mu.Lock()
			fmt.Fprintf(out, "building %s\n", topic)
			mu.Unlock()

			start := time.Now()
			path, err := r.buildTopic(ctx, topic)
			elapsed := time.Since(start)

			mu.Lock()
			defer mu.Unlock()
			rec := ledger.TopicRecord{
				RunID:    summary.RunID,
				Topic:    topic,
				Duration: elapsed,
			}
			if err != nil {
				summary.Failed++
				rec.Status = ledger.StatusFailed
				rec.Error = err.Error()
				fmt.Fprintf(out, "failed  %s: %v\n", topic, err)
				logger.Error("topic build failed",
					zap.String("topic", topic),
					zap.Error(err))
			} else {
				summary.Succeeded++
				rec.Status = ledger.StatusSucceeded
				rec.ArticlePath = path
				fmt.Fprintf(out, "saved   %s -> %s\n", topic, path)
			}
			if r.Ledger != nil {
				if err := r.Ledger.RecordTopic(ctx, rec); err != nil {
					logger.Error("recording topic outcome",
						zap.String("topic", topic),
						zap.Error(err))
				}
			}
			return nil
		})
	}
	g.Wait()

	if r.Ledger != nil {
		if err := r.Ledger.FinishRun(ctx, summary.RunID); err != nil {
			return summary, fmt.Errorf("closing run ledger entry: %w", err)
		}
	}
	return summary, nil
}

// buildTopic runs the per-topic sequence: draft, absorb the drafted
// references, clean, fetch literature, integrate it, clean, final
// edit, clean, validate, save. The store and cleaner are per-topic;
// only the fetch throttle is shared across builds.
func (r *Runner) buildTopic(ctx context.Context, topic string) (string, error) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("topic", topic))

	store := refs.NewStore(logger)
	cleaner := refs.NewCleaner(logger)

	article, err := r.Generator.Draft(ctx, topic)
	if err != nil {
		return "", err
	}
	cleaner.Reconcile(article, store)
	cleaner.Clean(article)

	queries, err := r.Generator.Queries(ctx, article)
	if err != nil {
		return "", err
	}

	papers := r.fetchPapers(ctx, queries, logger)
	if len(papers) > 0 {
		article, err = r.Generator.Integrate(ctx, topic, article, papers)
		if err != nil {
			return "", err
		}
		added := cleaner.Reconcile(article, store)
		cleaner.Clean(article)
		logger.Info("integrated papers",
			zap.Int("fetched", len(papers)),
			zap.Int("references_added", added))
	}

	article, err = r.Generator.Edit(ctx, topic, article)
	if err != nil {
		return "", err
	}
	cleaner.Clean(article)

	if err := ValidateArticle(article); err != nil {
		return "", err
	}
	return SaveArticle(article, r.Config.OutputDir, topic, time.Now())
}

// fetchPapers fans the queries out to every source and reduces the
// merged results: drop papers without abstracts, drop duplicated
// content, keep the most cited papers per query. Fetch problems never
// fail the topic; they degrade to fewer papers.
func (r *Runner) fetchPapers(ctx context.Context, queries []fetch.Query, logger *zap.Logger) []types.Paper {
	if len(queries) == 0 || len(r.Sources) == 0 {
		return nil
	}

	papers, failures := fetch.Gather(ctx, r.Sources, queries, logger)
	papers = fetch.FormatResults(papers, logger)
	papers, dropped := fetch.DedupePapers(papers)
	papers = fetch.SelectTop(papers, r.Config.Search.MaxPapersPerQuery)

	logger.Info("fetched candidate papers",
		zap.Int("queries", len(queries)),
		zap.Int("kept", len(papers)),
		zap.Int("duplicates", dropped),
		zap.Int("source_failures", len(failures)))
	return papers
}
