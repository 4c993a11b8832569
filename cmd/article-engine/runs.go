// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/article-engine/internal/ledger"
)

// --- runs subcommand ---

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect past batch runs",
	Long: `Runs reads the run ledger. Each batch run records one row per topic
with its outcome, so failures can be inspected and retried.`,
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show per-topic outcomes for a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var runsFailedCmd = &cobra.Command{
	Use:   "failed <run-id>",
	Short: "List the failed topics of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsFailed,
}

func init() {
	runsCmd.PersistentFlags().String("ledger", "", "run ledger path (default from config)")
	runsListCmd.Flags().Int("limit", 20, "maximum runs to list")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsFailedCmd)
	rootCmd.AddCommand(runsCmd)
}

func openLedger(cmd *cobra.Command) (*ledger.Ledger, error) {
	path, _ := cmd.Flags().GetString("ledger")
	if path == "" {
		path = loadConfig().LedgerPath
	}
	return ledger.Open(path)
}

func runRunsList(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	led, err := openLedger(cmd)
	if err != nil {
		return err
	}
	defer led.Close()

	runs, err := led.Runs(context.Background(), limit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	fmt.Fprintf(out, "%-8s  %-16s  %-7s  %6s  %6s  %s\n",
		"ID", "Started", "Status", "OK", "Failed", "Topics")
	fmt.Fprintln(out, strings.Repeat("-", 70))
	for _, r := range runs {
		status := "done"
		if r.FinishedAt.IsZero() {
			status = "running"
		}
		fmt.Fprintf(out, "%-8s  %-16s  %-7s  %6d  %6d  %s\n",
			shortID(r.ID), r.StartedAt.Format("2006-01-02 15:04"), status,
			r.Succeeded, r.Failed, truncateCell(r.TopicsFile, 30))
	}
	fmt.Fprintf(out, "\n%d run(s)\n", len(runs))
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	led, err := openLedger(cmd)
	if err != nil {
		return err
	}
	defer led.Close()

	run, err := led.FindRun(context.Background(), args[0])
	if err != nil {
		return err
	}
	topics, err := led.Topics(context.Background(), run.ID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s (%s): %d of %d topic(s) succeeded\n\n",
		shortID(run.ID), run.TopicsFile, run.Succeeded, run.Total)

	fmt.Fprintf(out, "%-9s  %-30s  %8s  %s\n", "Status", "Topic", "Duration", "Article")
	fmt.Fprintln(out, strings.Repeat("-", 80))
	for _, t := range topics {
		detail := t.ArticlePath
		if t.Status == ledger.StatusFailed {
			detail = truncateCell(t.Error, 40)
		}
		fmt.Fprintf(out, "%-9s  %-30s  %8s  %s\n",
			t.Status, truncateCell(t.Topic, 30), t.Duration.Round(100*time.Millisecond), detail)
	}
	fmt.Fprintf(out, "\n%d topic(s)\n", len(topics))
	return nil
}

func runRunsFailed(cmd *cobra.Command, args []string) error {
	led, err := openLedger(cmd)
	if err != nil {
		return err
	}
	defer led.Close()

	run, err := led.FindRun(context.Background(), args[0])
	if err != nil {
		return err
	}
	topics, err := led.FailedTopics(context.Background(), run.ID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(topics) == 0 {
		fmt.Fprintf(out, "Run %s has no failed topics.\n", shortID(run.ID))
		return nil
	}
	for _, topic := range topics {
		fmt.Fprintln(out, topic)
	}
	return nil
}

// shortID abbreviates a run UUID for display. FindRun accepts the
// prefix back.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncateCell(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
