// Package service provides the core business service that implements
// the dependencies required by the HTTP API and the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/okian/tinymerit/internal/adapters/mq/queue"
	"github.com/okian/tinymerit/internal/adapters/mq/worker"
	"github.com/okian/tinymerit/internal/adapters/repository"
	"github.com/okian/tinymerit/internal/domain/checkout"
	"github.com/okian/tinymerit/internal/domain/enrich"
	"github.com/okian/tinymerit/internal/domain/history"
	"github.com/okian/tinymerit/internal/domain/model"
	"github.com/okian/tinymerit/internal/domain/payee"
	"github.com/okian/tinymerit/pkg/logger"
	"github.com/okian/tinymerit/pkg/metrics"
)

const (
	sweepInterval   = time.Minute
	shutdownTimeout = 10 * time.Second
)

// GitHub is the lookup client used for search and row enrichment.
type GitHub interface {
	worker.Resolver
	Search(ctx context.Context, query string, limit int) (model.SearchResults, error)
	SearchUsers(ctx context.Context, query string, limit int) ([]model.UserProfile, error)
}

// Payments is the payments API facade.
type Payments interface {
	history.Source
	checkout.URLGenerator
}

// Service implements the API dependencies for tinymerit.
type Service struct {
	mu sync.RWMutex

	// Collaborators
	github   GitHub
	payments Payments
	settings repository.Store

	// Components built on Start
	store     *Store
	sessions  *Sessions
	debouncer *Debouncer
	jobs      *queue.InMemoryQueue
	pool      *worker.Pool
	enricher  *enrich.Enricher

	// Configuration
	workerCount        int
	queueSize          int
	enrichWait         time.Duration
	searchLimit        int
	accountSearchLimit int
	debounce           time.Duration
	pageSize           int
	sessionTTL         time.Duration
	checkoutURL        string
	redirectURL        string
	defaultAPIKey      string
	defaultAccount     *model.UserProfile

	// State
	started     bool
	stopCh      chan struct{}
	unsubscribe func()

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithGitHub sets the GitHub client.
func WithGitHub(g GitHub) Option {
	return func(s *Service) { s.github = g }
}

// WithPayments sets the payments facade.
func WithPayments(p Payments) Option {
	return func(s *Service) { s.payments = p }
}

// WithSettings sets the settings store. The service closes it on Stop.
func WithSettings(st repository.Store) Option {
	return func(s *Service) { s.settings = st }
}

// WithWorkerCount sets the number of enrichment workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of pending enrichment lookups.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithEnrichWait bounds how long a history request waits for row lookups.
func WithEnrichWait(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.enrichWait = d
		}
	}
}

// WithSearchLimits caps payee search and account search results.
func WithSearchLimits(search, account int) Option {
	return func(s *Service) {
		if search > 0 {
			s.searchLimit = search
		}
		if account > 0 {
			s.accountSearchLimit = account
		}
	}
}

// WithDebounce sets the account search quiet period.
func WithDebounce(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.debounce = d
		}
	}
}

// WithPageSize sets the history page size.
func WithPageSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithSessionTTL expires idle sessions.
func WithSessionTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.sessionTTL = d
		}
	}
}

// WithCheckoutURLs sets the manual checkout page and the redirect target.
func WithCheckoutURLs(checkoutURL, redirectURL string) Option {
	return func(s *Service) {
		if checkoutURL != "" {
			s.checkoutURL = checkoutURL
		}
		s.redirectURL = redirectURL
	}
}

// WithDefaultAPIKey is used until a key is saved.
func WithDefaultAPIKey(key string) Option {
	return func(s *Service) { s.defaultAPIKey = key }
}

// WithDefaultAccount is used until an account is saved. A zero id means none.
func WithDefaultAccount(id int64, login string) Option {
	return func(s *Service) {
		if id > 0 {
			s.defaultAccount = &model.UserProfile{ID: id, Login: login}
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:        runtime.NumCPU() * 2,
		queueSize:          1024,
		enrichWait:         5 * time.Second,
		searchLimit:        10,
		accountSearchLimit: 5,
		debounce:           300 * time.Millisecond,
		pageSize:           history.DefaultPageSize,
		sessionTTL:         24 * time.Hour,
		checkoutURL:        checkout.DefaultBaseURL,
		stopCh:             make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.github == nil || s.payments == nil {
		return fmt.Errorf("%w: github and payments clients are required", ErrNotStarted)
	}

	s.logger.Info(ctx, "starting tinymerit service...")

	if s.settings == nil {
		s.settings = repository.NewMemoryStore()
		s.logger.Info(ctx, "using in-memory settings")
	}
	store, err := NewStore(ctx, s.settings,
		WithFallbackAPIKey(s.defaultAPIKey),
		WithFallbackAccount(s.defaultAccount),
		WithStoreLogger(s.logger.Named("store")),
	)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	s.store = store
	s.sessions = NewSessions(s.sessionTTL)
	s.debouncer = NewDebouncer(s.debounce)

	s.jobs = queue.NewInMemoryQueue(
		queue.WithCapacity(s.queueSize),
		queue.WithBufferSize(s.queueSize),
	)
	s.pool = worker.NewPool(s.workerCount, s.jobs, s.github)
	s.pool.Start(ctx)
	s.enricher = enrich.New(s.jobs,
		enrich.WithWait(s.enrichWait),
		enrich.WithLogger(s.logger.Named("enrich")),
	)

	// History fetched with the old key is no longer trustworthy.
	s.unsubscribe = s.store.Subscribe(TopicAPIKeyChanged, func() {
		s.sessions.ResetHistory()
		s.logger.Info(context.Background(), "api key changed, history views reset")
	})

	s.stopCh = make(chan struct{})
	go s.sessions.Run(ctx, sweepInterval, s.stopCh)

	s.started = true
	s.logger.Info(ctx, "tinymerit service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("pageSize", s.pageSize),
	)

	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping tinymerit service...")

	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if s.pool != nil {
		if err := s.pool.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
		}
	}
	if s.settings != nil {
		if err := s.settings.Close(); err != nil {
			s.logger.Warn(ctx, "closing settings", logger.Error(err))
		}
	}

	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}

	s.started = false
	s.logger.Info(ctx, "tinymerit service stopped")
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// Store returns the account and API key store. Nil before Start.
func (s *Service) Store() *Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store
}

// APIKey returns the key payments calls should use.
func (s *Service) APIKey(ctx context.Context) string {
	if st := s.Store(); st != nil {
		return st.APIKey(ctx)
	}
	return s.defaultAPIKey
}

// Session returns the session for id, creating one when needed.
func (s *Service) Session(id string) (*Session, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.sessions.Get(id), nil
}

// Search finds GitHub users and repos to pay.
func (s *Service) Search(ctx context.Context, query string) (model.SearchResults, error) {
	if err := s.ready(); err != nil {
		return model.SearchResults{}, err
	}
	if strings.TrimSpace(query) == "" {
		return model.SearchResults{}, nil
	}
	return s.github.Search(ctx, query, s.searchLimit)
}

// SearchAccounts finds GitHub users to use as the sender account. Calls from
// the same session are debounced; a call overtaken by a newer one returns
// ErrSuperseded.
func (s *Service) SearchAccounts(ctx context.Context, sess *Session, query string) ([]model.UserProfile, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	fire, err := s.debouncer.Wait(ctx, sess.ID())
	if err != nil {
		return nil, err
	}
	if !fire {
		return nil, ErrSuperseded
	}
	return s.github.SearchUsers(ctx, query, s.accountSearchLimit)
}

// AccountByLogin looks up a GitHub user by exact login.
func (s *Service) AccountByLogin(ctx context.Context, login string) (model.UserProfile, error) {
	if err := s.ready(); err != nil {
		return model.UserProfile{}, err
	}
	login = strings.TrimSpace(login)
	if login == "" {
		return model.UserProfile{}, ErrInvalidAccount
	}
	if g, ok := s.github.(interface {
		UserByLogin(ctx context.Context, login string) (model.UserProfile, error)
	}); ok {
		return g.UserByLogin(ctx, login)
	}
	users, err := s.github.SearchUsers(ctx, login, s.accountSearchLimit)
	if err != nil {
		return model.UserProfile{}, err
	}
	for _, u := range users {
		if strings.EqualFold(u.Login, login) {
			return u, nil
		}
	}
	return model.UserProfile{}, fmt.Errorf("%w: %s", ErrUnknownLogin, login)
}

// TogglePayee selects item or, if already selected, removes it.
func (s *Service) TogglePayee(sess *Session, item payee.Item) (payee.List, bool) {
	var added bool
	list, _ := sess.UpdateCart(func(l payee.List) (payee.List, error) {
		var next payee.List
		next, added = l.Toggle(item)
		return next, nil
	})
	op := "remove"
	if added {
		op = "add"
	}
	metrics.RecordPayeeOperation(op)
	return list, added
}

// RemovePayee drops the payee with key ("u:42", "r:7") from the cart.
func (s *Service) RemovePayee(sess *Session, key string) payee.List {
	list, _ := sess.UpdateCart(func(l payee.List) (payee.List, error) {
		return l.Remove(key), nil
	})
	metrics.RecordPayeeOperation("remove")
	return list
}

// SetAmount parses amount and assigns it to the payee with key.
func (s *Service) SetAmount(sess *Session, key, amount string) (payee.List, error) {
	d, err := payee.ParseAmount(amount)
	if err != nil {
		return sess.Cart(), err
	}
	list, err := sess.UpdateCart(func(l payee.List) (payee.List, error) {
		return l.UpdateAmount(key, d)
	})
	if err == nil {
		metrics.RecordPayeeOperation("update_amount")
	}
	return list, err
}

// Checkout builds the checkout URL for the session's cart.
func (s *Service) Checkout(ctx context.Context, sess *Session) (checkout.Result, error) {
	if err := s.ready(); err != nil {
		return checkout.Result{}, err
	}
	opts := []checkout.Option{
		checkout.WithGenerator(s.payments),
		checkout.WithBaseURL(s.checkoutURL),
		checkout.WithRedirectURL(s.redirectURL),
		checkout.WithLogger(s.logger.Named("checkout")),
	}
	if acct, ok := s.store.Account(); ok {
		opts = append(opts, checkout.WithSender(acct.ID))
	}
	if g, ok := s.payments.(interface{ GenerateGroupID() string }); ok {
		opts = append(opts, checkout.WithGroupIDGenerator(g.GenerateGroupID))
	}
	return checkout.NewBuilder(opts...).Build(ctx, sess.Cart())
}

// HistoryRequest selects what History loads.
type HistoryRequest struct {
	Page    int
	Refresh bool
	Enrich  bool
}

// HistoryResult is a history view ready for display.
type HistoryResult struct {
	Snapshot history.Snapshot
	Groups   []history.Group
	// Rows follow Snapshot.Items order; nil unless enrichment was requested.
	Rows  []enrich.Row
	Error *history.ErrorInfo
}

// History loads the selected account's balance and payments. The view is
// only re-fetched when the page or account changes or Refresh is set.
func (s *Service) History(ctx context.Context, sess *Session, req HistoryRequest) (HistoryResult, error) {
	if err := s.ready(); err != nil {
		return HistoryResult{}, err
	}
	acct, ok := s.store.Account()
	if !ok {
		return HistoryResult{}, ErrNoAccount
	}
	if req.Page < 1 {
		req.Page = 1
	}

	loader := sess.historyLoader(func() *history.Loader {
		return history.NewLoader(s.payments,
			history.WithPageSize(s.pageSize),
			history.WithLoaderLogger(s.logger.Named("history")),
		)
	})
	key := history.Key{SenderID: acct.ID, Login: acct.Login, Page: req.Page}

	snap := loader.Snapshot()
	var err error
	if req.Refresh || snap.Key != key || snap.State != history.StateSuccess {
		snap, err = loader.Load(ctx, key)
		if errors.Is(err, history.ErrStale) {
			snap, err = loader.Snapshot(), nil
		}
	}

	res := HistoryResult{Snapshot: snap, Groups: snap.Groups()}
	if snap.State == history.StateError {
		info := history.DescribeError(snap.Err)
		res.Error = &info
	}
	if req.Enrich && len(snap.Items) > 0 {
		res.Rows = s.enricher.Enrich(ctx, snap.Items)
	}
	return res, err
}

// ToggleGroup folds or unfolds a history group.
func (s *Service) ToggleGroup(sess *Session, groupID string) bool {
	return sess.ToggleGroup(groupID)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"pageSize":    s.pageSize,
	}

	if s.started {
		queueLen := s.jobs.Len(ctx)
		stats["queueLength"] = queueLen
		stats["sessions"] = s.sessions.Len()
		stats["enriched"] = s.pool.Processed()
		_, hasAccount := s.store.Account()
		stats["accountSelected"] = hasAccount
		stats["apiKeyStored"] = s.store.HasStoredAPIKey()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(s.workerCount)
		metrics.UpdateActiveSessions(s.sessions.Len())
	}

	return stats
}
