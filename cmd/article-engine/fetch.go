package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/article-engine/internal/fetch"
	"github.com/pdiddy/article-engine/internal/httputil"
	"github.com/pdiddy/article-engine/pkg/types"
)

// --- fetch subcommand ---

var fetchCmd = &cobra.Command{
	Use:   "fetch <query>",
	Short: "Search bibliographic sources for candidate papers",
	Long: `Fetch runs a literature query against the configured sources (Semantic
Scholar, optionally PubMed), drops papers without abstracts, dedupes,
and prints the survivors ranked by citation count.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().String("section", "", "article section the query serves")
	fetchCmd.Flags().Int("top", 0, "papers to keep (default from config)")
	fetchCmd.Flags().Bool("json", false, "print results as JSON")
	fetchCmd.Flags().Bool("pubmed", false, "query PubMed regardless of config")

	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	if enable, _ := cmd.Flags().GetBool("pubmed"); enable {
		cfg.Search.EnablePubMed = true
	}
	if top, _ := cmd.Flags().GetInt("top"); top > 0 {
		cfg.Search.MaxPapersPerQuery = top
	}

	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	sources, err := buildSources(cfg, logger)
	if err != nil {
		return err
	}

	section, _ := cmd.Flags().GetString("section")
	queries := []fetch.Query{{Section: section, Text: strings.Join(args, " ")}}

	papers, failures := fetch.Gather(context.Background(), sources, queries, logger)
	for _, f := range failures {
		fmt.Fprintf(os.Stderr, "warning: %s\n", f)
	}
	papers = fetch.FormatResults(papers, logger)
	papers, _ = fetch.DedupePapers(papers)
	papers = fetch.SelectTop(papers, cfg.Search.MaxPapersPerQuery)

	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		return fetch.FormatJSON(papers, cmd.OutOrStdout())
	}
	fetch.FormatTable(papers, cmd.OutOrStdout())
	return nil
}

// buildSources assembles the bibliographic sources: Semantic Scholar
// always, PubMed when enabled. The sources share one throttle so
// concurrent topic builds still respect the request-interval floor.
func buildSources(cfg types.PipelineConfig, logger *zap.Logger) ([]fetch.Source, error) {
	throttle := httputil.NewThrottle(cfg.Fetch.MinInterval())

	filter := fetch.NewFilter(cfg.Search.SJRThreshold, cfg.Search.MinCitationCount, logger)
	if cfg.Search.SJRTablePath != "" {
		if err := filter.LoadSJRTable(cfg.Search.SJRTablePath); err != nil {
			return nil, err
		}
	}

	sources := []fetch.Source{
		fetch.NewSemanticClient(cfg.Search, cfg.Fetch, throttle, filter, logger),
	}
	if cfg.Search.EnablePubMed {
		sources = append(sources, fetch.NewPubMedClient(cfg.Search.PubMedAPIKey, cfg.Fetch, throttle, logger))
	}
	return sources, nil
}
