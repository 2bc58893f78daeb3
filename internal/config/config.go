// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with literal defaults.
// - Load layers defaults, an optional YAML file and TINYMERIT_ env vars.
// - External errors are wrapped with this package's sentinel kinds.
package config

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text, json, console.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// MeritAPIKey is used when no key has been saved through the settings store.
	MeritAPIKey string `koanf:"merit_api_key"`

	// MeritBaseURL is the payments API root.
	MeritBaseURL string `koanf:"merit_base_url"`

	// MeritCheckoutURL is the checkout page that payee lists are encoded into.
	MeritCheckoutURL string `koanf:"merit_checkout_url"`

	// DefaultSenderID and DefaultSenderLogin seed the selected account when
	// nothing has been persisted yet. Zero/empty means no default.
	DefaultSenderID    int64  `koanf:"default_sender_id"`
	DefaultSenderLogin string `koanf:"default_sender_login"`

	// RedirectURL is appended to checkout URLs as the redirect parameter.
	RedirectURL string `koanf:"redirect_url"`

	// GitHubToken authenticates GitHub API calls; empty means anonymous.
	GitHubToken string `koanf:"github_token"`

	// GitHubBaseURL overrides the GitHub API root (tests, enterprise).
	GitHubBaseURL string `koanf:"github_base_url"`

	// HTTPTimeoutMS bounds every upstream HTTP call.
	HTTPTimeoutMS int `koanf:"http_timeout_ms"`

	// SearchLimit caps user and repo search results.
	SearchLimit int `koanf:"search_limit"`

	// AccountSearchLimit caps account search results.
	AccountSearchLimit int `koanf:"account_search_limit"`

	// SearchDebounceMS is the quiet period before an account search fires.
	SearchDebounceMS int `koanf:"search_debounce_ms"`

	// HistoryPageSize is the number of payments per history page.
	HistoryPageSize int `koanf:"history_page_size"`

	// EnrichWorkers caps concurrent per-row GitHub lookups.
	EnrichWorkers int `koanf:"enrich_workers"`

	// EnrichQueueSize bounds pending enrichment jobs.
	EnrichQueueSize int `koanf:"enrich_queue_size"`

	// EnrichTimeoutMS bounds how long a history request waits for row enrichment.
	EnrichTimeoutMS int `koanf:"enrich_timeout_ms"`

	// SettingsPath is the SQLite file for persisted settings; empty keeps them in memory.
	SettingsPath string `koanf:"settings_path"`

	// SessionTTLMinutes expires idle cart sessions.
	SessionTTLMinutes int `koanf:"session_ttl_minutes"`

	// CORSAllowedOrigins lists origins allowed to call the API from a browser.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":9080",
		MeritAPIKey:        "your-api-key",
		MeritBaseURL:       "https://api.merit.systems",
		MeritCheckoutURL:   "https://terminal.merit.systems/checkout",
		HTTPTimeoutMS:      15_000,
		SearchLimit:        10,
		AccountSearchLimit: 5,
		SearchDebounceMS:   300,
		HistoryPageSize:    20,
		EnrichWorkers:      8,
		EnrichQueueSize:    1024,
		EnrichTimeoutMS:    5_000,
		SessionTTLMinutes:  24 * 60,
		CORSAllowedOrigins: []string{"*"},
	}
}
