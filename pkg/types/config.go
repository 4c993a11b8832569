package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "article-engine/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// FetchConfig holds rate-limit and retry settings shared by every
// bibliographic client in the process.
type FetchConfig struct {
	HTTPConfig `yaml:",inline"`

	// MinIntervalSeconds is the floor between any two outbound requests
	// process-wide (default 1.0).
	MinIntervalSeconds float64 `json:"min_interval_seconds" yaml:"min_interval_seconds"`

	// MaxRetries bounds backoff attempts before a request gives up (default 10).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// BaseDelay is the initial backoff delay in seconds (default 1.0).
	BaseDelay float64 `json:"base_delay" yaml:"base_delay"`

	// MaxDelay caps the backoff delay in seconds (default 16.0).
	MaxDelay float64 `json:"max_delay" yaml:"max_delay"`
}

// MinInterval returns the request-spacing floor as a duration.
func (c FetchConfig) MinInterval() time.Duration {
	return time.Duration(c.MinIntervalSeconds * float64(time.Second))
}

// BaseDelayDuration returns the initial backoff delay as a duration.
func (c FetchConfig) BaseDelayDuration() time.Duration {
	return time.Duration(c.BaseDelay * float64(time.Second))
}

// MaxDelayDuration returns the backoff cap as a duration.
func (c FetchConfig) MaxDelayDuration() time.Duration {
	return time.Duration(c.MaxDelay * float64(time.Second))
}

// SearchConfig holds settings for bibliographic search.
type SearchConfig struct {
	// SearchLimit is the number of results requested per search query (default 100).
	SearchLimit int `json:"search_limit" yaml:"search_limit"`

	// MaxPapersPerQuery caps how many papers survive selection for one
	// query, ranked by citation count (default 5).
	MaxPapersPerQuery int `json:"max_papers_per_query" yaml:"max_papers_per_query"`

	// SJRThreshold is the minimum venue SJR score for a paper to be kept
	// (default 1.0). Papers from venues absent from the SJR table are dropped
	// when a table is loaded.
	SJRThreshold float64 `json:"sjr_threshold" yaml:"sjr_threshold"`

	// MinCitationCount is the minimum citation count for a paper to be kept
	// (default 50).
	MinCitationCount int `json:"min_citation_count" yaml:"min_citation_count"`

	// SJRTablePath points at the journal-rankings CSV. Empty disables
	// venue filtering.
	SJRTablePath string `json:"sjr_table_path,omitempty" yaml:"sjr_table_path,omitempty"`

	// SemanticScholarAPIKey is an optional API key for higher rate limits.
	SemanticScholarAPIKey string `json:"semantic_scholar_api_key,omitempty" yaml:"semantic_scholar_api_key,omitempty"`

	// PubMedAPIKey is an optional NCBI API key.
	PubMedAPIKey string `json:"pubmed_api_key,omitempty" yaml:"pubmed_api_key,omitempty"`

	// EnablePubMed controls whether the PubMed source is queried alongside
	// Semantic Scholar.
	EnablePubMed bool `json:"enable_pubmed" yaml:"enable_pubmed"`
}

// AIConfig holds shared settings for stages that call a Generative AI API.
type AIConfig struct {
	// Model is the AI model identifier (e.g. "claude-sonnet-4-5-20250929").
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// MaxRetries is the number of retry attempts for failed API calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// PipelineConfig groups the settings for a batch article run.
type PipelineConfig struct {
	Fetch  FetchConfig  `json:"fetch" yaml:"fetch"`
	Search SearchConfig `json:"search" yaml:"search"`
	AI     AIConfig     `json:"ai" yaml:"ai"`

	// Concurrency bounds how many topic pipelines run in parallel (default 3).
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// OutputDir is the directory for finished articles (default "output/articles").
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// LedgerPath is the SQLite run-ledger location (default "output/runs.db").
	LedgerPath string `json:"ledger_path" yaml:"ledger_path"`
}

// DefaultPipelineConfig returns the pipeline defaults. Callers overlay
// config-file and flag values on top.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Fetch: FetchConfig{
			HTTPConfig:         HTTPConfig{Timeout: 30 * time.Second, UserAgent: "article-engine/0.1"},
			MinIntervalSeconds: 1.0,
			MaxRetries:         10,
			BaseDelay:          1.0,
			MaxDelay:           16.0,
		},
		Search: SearchConfig{
			SearchLimit:       100,
			MaxPapersPerQuery: 5,
			SJRThreshold:      1.0,
			MinCitationCount:  50,
		},
		AI: AIConfig{
			Model:      "claude-sonnet-4-5-20250929",
			MaxRetries: 3,
		},
		Concurrency: 3,
		OutputDir:   "output/articles",
		LedgerPath:  "output/runs.db",
	}
}
