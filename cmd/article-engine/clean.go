package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/article-engine/internal/pipeline"
	"github.com/pdiddy/article-engine/internal/refs"
)

// --- clean subcommand ---

var cleanCmd = &cobra.Command{
	Use:   "clean <file...>",
	Short: "Restore citation consistency in saved article files",
	Long: `Clean reconciles inline citation markers with the reference list in
saved article JSON files. Orphaned markers and unused or incomplete
references are pruned and the survivors renumbered from 1. Without
--write, clean only reports what would change.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().Bool("write", false, "rewrite files in place")
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	write, _ := cmd.Flags().GetBool("write")

	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	cleaner := refs.NewCleaner(logger)
	failed := 0
	for _, path := range args {
		if err := cleanFile(cmd, cleaner, path, write); err != nil {
			fmt.Fprintf(os.Stderr, "failed  %s: %v\n", path, err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d file(s) failed cleaning", failed)
	}
	return nil
}

func cleanFile(cmd *cobra.Command, cleaner *refs.Cleaner, path string, write bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	article, err := pipeline.ParseArticle(string(data))
	if err != nil {
		return err
	}

	report := cleaner.Clean(article)
	out := cmd.OutOrStdout()
	switch {
	case !report.Changed():
		fmt.Fprintf(out, "clean   %s\n", path)
		return nil
	case !write:
		fmt.Fprintf(out, "dirty   %s: %d orphaned, %d unused, %d incomplete\n",
			path, len(report.Orphaned), len(report.Unused), len(report.Bad))
		return nil
	}

	buf, err := json.MarshalIndent(article, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(buf, '\n'), 0o644); err != nil {
		return err
	}
	fmt.Fprintf(out, "cleaned %s: %d orphaned, %d unused, %d incomplete\n",
		path, len(report.Orphaned), len(report.Unused), len(report.Bad))
	return nil
}
