package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/article-engine/internal/fetch"
	"github.com/pdiddy/article-engine/internal/ledger"
	"github.com/pdiddy/article-engine/internal/pipeline"
)

// --- generate subcommand ---

var generateCmd = &cobra.Command{
	Use:   "generate [topics...]",
	Short: "Build referenced articles for a batch of topics",
	Long: `Generate drafts an article per topic, fetches supporting literature for
its claims, integrates the papers as numbered references, and saves each
cleaned article as JSON under the output directory.

Topics come from arguments, from --topics-file, or from --retry, which
re-runs only the failed topics of a previous run.`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().String("topics-file", "", "YAML file listing topics to build")
	generateCmd.Flags().String("retry", "", "run id whose failed topics should be re-run")
	generateCmd.Flags().Int("concurrency", 0, "parallel topic builds (default from config)")
	generateCmd.Flags().String("output-dir", "", "directory for finished articles (default from config)")
	generateCmd.Flags().String("model", "", "model identifier (default from config)")
	generateCmd.Flags().Bool("no-fetch", false, "skip literature fetching and keep drafted references as-is")

	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	if c, _ := cmd.Flags().GetInt("concurrency"); c > 0 {
		cfg.Concurrency = c
	}
	if dir, _ := cmd.Flags().GetString("output-dir"); dir != "" {
		cfg.OutputDir = dir
	}
	if model, _ := cmd.Flags().GetString("model"); model != "" {
		cfg.AI.Model = model
	}
	if cfg.AI.APIKey == "" {
		return fmt.Errorf("claude API key required: set ai.api_key, ARTICLE_ENGINE_CLAUDE_API_KEY, or .secrets/claude_api_key")
	}

	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	led, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		return err
	}
	defer led.Close()

	topics, label, err := resolveTopics(cmd, args, led)
	if err != nil {
		return err
	}

	var sources []fetch.Source
	if noFetch, _ := cmd.Flags().GetBool("no-fetch"); !noFetch {
		sources, err = buildSources(cfg, logger)
		if err != nil {
			return err
		}
	}

	runner := &pipeline.Runner{
		Generator: &pipeline.ClaudeBackend{
			APIKey:     cfg.AI.APIKey,
			Model:      cfg.AI.Model,
			MaxRetries: cfg.AI.MaxRetries,
		},
		Sources:     sources,
		Ledger:      led,
		Config:      cfg,
		Logger:      logger,
		Out:         cmd.OutOrStdout(),
		TopicsLabel: label,
	}

	summary, err := runner.Run(context.Background(), topics)
	if err != nil {
		return err
	}

	fmt.Printf("\nRun %s: %d of %d topic(s) succeeded\n",
		shortID(summary.RunID), summary.Succeeded, summary.Total())
	if summary.HasFailures() {
		return fmt.Errorf("%d topic(s) failed; re-run them with: article-engine generate --retry %s",
			summary.Failed, shortID(summary.RunID))
	}
	return nil
}

// resolveTopics picks the topic list for a generate invocation. The
// returned label names the source for the run ledger.
func resolveTopics(cmd *cobra.Command, args []string, led *ledger.Ledger) ([]string, string, error) {
	retryID, _ := cmd.Flags().GetString("retry")
	topicsFile, _ := cmd.Flags().GetString("topics-file")

	switch {
	case retryID != "":
		run, err := led.FindRun(context.Background(), retryID)
		if err != nil {
			return nil, "", err
		}
		topics, err := led.FailedTopics(context.Background(), run.ID)
		if err != nil {
			return nil, "", err
		}
		if len(topics) == 0 {
			return nil, "", fmt.Errorf("run %s has no failed topics", shortID(run.ID))
		}
		return topics, fmt.Sprintf("retry of %s", shortID(run.ID)), nil
	case topicsFile != "":
		topics, err := pipeline.LoadTopics(topicsFile)
		if err != nil {
			return nil, "", err
		}
		return topics, topicsFile, nil
	case len(args) > 0:
		return args, "command line", nil
	}
	return nil, "", fmt.Errorf("provide topics as arguments, --topics-file, or --retry")
}
