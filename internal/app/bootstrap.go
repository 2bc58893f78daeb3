package service

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/tinymerit/internal/adapters/github"
	"github.com/okian/tinymerit/internal/adapters/merit"
	"github.com/okian/tinymerit/internal/adapters/repository"
	"github.com/okian/tinymerit/internal/config"
	"github.com/okian/tinymerit/pkg/logger"
)

// FromConfig builds an unstarted Service with its clients and settings store
// wired from cfg.
func FromConfig(ctx context.Context, cfg *config.Config, log logger.Logger) (*Service, error) {
	timeout := time.Duration(cfg.HTTPTimeoutMS) * time.Millisecond

	var settings repository.Store = repository.NewMemoryStore()
	if cfg.SettingsPath != "" {
		st, err := repository.NewSQLiteStore(ctx, cfg.SettingsPath)
		if err != nil {
			return nil, fmt.Errorf("open settings: %w", err)
		}
		settings = st
		log.Info(ctx, "using sqlite settings", logger.String("path", cfg.SettingsPath))
	}

	ghOpts := []github.Option{
		github.WithToken(cfg.GitHubToken),
		github.WithTimeout(timeout),
		github.WithLogger(log.Named("github")),
	}
	if cfg.GitHubBaseURL != "" {
		ghOpts = append(ghOpts, github.WithBaseURL(cfg.GitHubBaseURL))
	}
	gh, err := github.New(ghOpts...)
	if err != nil {
		_ = settings.Close()
		return nil, fmt.Errorf("github client: %w", err)
	}

	// The payments client reads the key on every call so saved keys apply
	// without a restart.
	var svc *Service
	payments := merit.New(
		merit.WithBaseURL(cfg.MeritBaseURL),
		merit.WithCheckoutURL(cfg.MeritCheckoutURL),
		merit.WithAPIKeySource(func(ctx context.Context) string { return svc.APIKey(ctx) }),
		merit.WithTimeout(timeout),
		merit.WithLogger(log.Named("merit")),
	)

	svc = New(
		WithLogger(log),
		WithGitHub(gh),
		WithPayments(payments),
		WithSettings(settings),
		WithWorkerCount(cfg.EnrichWorkers),
		WithQueueSize(cfg.EnrichQueueSize),
		WithEnrichWait(time.Duration(cfg.EnrichTimeoutMS)*time.Millisecond),
		WithSearchLimits(cfg.SearchLimit, cfg.AccountSearchLimit),
		WithDebounce(time.Duration(cfg.SearchDebounceMS)*time.Millisecond),
		WithPageSize(cfg.HistoryPageSize),
		WithSessionTTL(time.Duration(cfg.SessionTTLMinutes)*time.Minute),
		WithCheckoutURLs(cfg.MeritCheckoutURL, cfg.RedirectURL),
		WithDefaultAPIKey(cfg.MeritAPIKey),
		WithDefaultAccount(cfg.DefaultSenderID, cfg.DefaultSenderLogin),
	)
	return svc, nil
}
