// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the article-engine CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/article-engine/internal/secrets"
	"github.com/pdiddy/article-engine/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys read from .secrets/ at startup.
var loadedSecrets map[string]string

var rootCmd = &cobra.Command{
	Use:   "article-engine",
	Short: "Build referenced patient knowledgebase articles",
	Long: `article-engine generates patient-facing medical knowledgebase articles.
A generative model drafts each article, bibliographic APIs (Semantic
Scholar, PubMed) supply supporting literature, and a consistency pass
keeps inline citation markers and the reference list in lockstep.

Batch runs are recorded in a SQLite ledger so failed topics can be
retried without redoing the whole batch.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./article-engine.yaml or ~/.config/article-engine/)")
	rootCmd.PersistentFlags().Bool("verbose", false, "structured logging to stderr")
}

func initConfig() {
	// A .env file may carry API keys in deployments; load it before
	// viper reads the environment.
	_ = godotenv.Load()

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("article-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "article-engine"))
		}
	}

	viper.SetEnvPrefix("ARTICLE_ENGINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setConfigDefaults()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// setConfigDefaults seeds viper with the pipeline defaults so config
// file, environment, and defaults all resolve through one lookup.
func setConfigDefaults() {
	def := types.DefaultPipelineConfig()

	viper.SetDefault("fetch.timeout", def.Fetch.Timeout)
	viper.SetDefault("fetch.user_agent", def.Fetch.UserAgent)
	viper.SetDefault("fetch.min_interval_seconds", def.Fetch.MinIntervalSeconds)
	viper.SetDefault("fetch.max_retries", def.Fetch.MaxRetries)
	viper.SetDefault("fetch.base_delay", def.Fetch.BaseDelay)
	viper.SetDefault("fetch.max_delay", def.Fetch.MaxDelay)

	viper.SetDefault("search.search_limit", def.Search.SearchLimit)
	viper.SetDefault("search.max_papers_per_query", def.Search.MaxPapersPerQuery)
	viper.SetDefault("search.sjr_threshold", def.Search.SJRThreshold)
	viper.SetDefault("search.min_citation_count", def.Search.MinCitationCount)
	viper.SetDefault("search.sjr_table_path", def.Search.SJRTablePath)
	viper.SetDefault("search.enable_pubmed", def.Search.EnablePubMed)

	viper.SetDefault("ai.model", def.AI.Model)
	viper.SetDefault("ai.max_retries", def.AI.MaxRetries)

	viper.SetDefault("concurrency", def.Concurrency)
	viper.SetDefault("output_dir", def.OutputDir)
	viper.SetDefault("ledger_path", def.LedgerPath)
}

// loadConfig assembles the pipeline configuration from viper's resolved
// view, then fills still-empty API keys from the loaded secrets.
func loadConfig() types.PipelineConfig {
	var cfg types.PipelineConfig

	cfg.Fetch.Timeout = viper.GetDuration("fetch.timeout")
	cfg.Fetch.UserAgent = viper.GetString("fetch.user_agent")
	cfg.Fetch.MinIntervalSeconds = viper.GetFloat64("fetch.min_interval_seconds")
	cfg.Fetch.MaxRetries = viper.GetInt("fetch.max_retries")
	cfg.Fetch.BaseDelay = viper.GetFloat64("fetch.base_delay")
	cfg.Fetch.MaxDelay = viper.GetFloat64("fetch.max_delay")

	cfg.Search.SearchLimit = viper.GetInt("search.search_limit")
	cfg.Search.MaxPapersPerQuery = viper.GetInt("search.max_papers_per_query")
	cfg.Search.SJRThreshold = viper.GetFloat64("search.sjr_threshold")
	cfg.Search.MinCitationCount = viper.GetInt("search.min_citation_count")
	cfg.Search.SJRTablePath = viper.GetString("search.sjr_table_path")
	cfg.Search.EnablePubMed = viper.GetBool("search.enable_pubmed")
	cfg.Search.SemanticScholarAPIKey = viper.GetString("search.semantic_scholar_api_key")
	cfg.Search.PubMedAPIKey = viper.GetString("search.pubmed_api_key")

	cfg.AI.Model = viper.GetString("ai.model")
	cfg.AI.APIKey = viper.GetString("ai.api_key")
	cfg.AI.MaxRetries = viper.GetInt("ai.max_retries")

	cfg.Concurrency = viper.GetInt("concurrency")
	cfg.OutputDir = viper.GetString("output_dir")
	cfg.LedgerPath = viper.GetString("ledger_path")

	if cfg.AI.APIKey == "" {
		cfg.AI.APIKey = secrets.Resolve(loadedSecrets, "claude_api_key")
	}
	if cfg.Search.SemanticScholarAPIKey == "" {
		cfg.Search.SemanticScholarAPIKey = secrets.Resolve(loadedSecrets, "semantic_scholar_api_key")
	}
	if cfg.Search.PubMedAPIKey == "" {
		cfg.Search.PubMedAPIKey = secrets.Resolve(loadedSecrets, "pubmed_api_key")
	}
	return cfg
}

// newLogger returns the CLI logger: zap production output behind
// --verbose, a nop logger otherwise.
func newLogger(cmd *cobra.Command) (*zap.Logger, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if !verbose {
		return zap.NewNop(), nil
	}
	return zap.NewProduction()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
