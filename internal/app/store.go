package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/okian/tinymerit/internal/adapters/repository"
	"github.com/okian/tinymerit/internal/domain/model"
	"github.com/okian/tinymerit/pkg/logger"
	"github.com/okian/tinymerit/pkg/metrics"
)

// Topic names a kind of store change.
type Topic string

// Store topics.
const (
	TopicAccountChanged Topic = "merit-sender-user-changed"
	TopicAPIKeyChanged  Topic = "merit-api-key-changed"
)

// Store is the single source of truth for the selected account and the
// payments API key. Changes are persisted to settings and then announced to
// subscribers.
type Store struct {
	settings   repository.Store
	defaultKey string
	fallback   *model.UserProfile
	logger     logger.Logger

	mu      sync.RWMutex
	account *model.UserProfile
	apiKey  string

	subMu  sync.Mutex
	subs   map[Topic]map[uint64]func()
	nextID uint64
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithFallbackAPIKey is used while no key has been saved.
func WithFallbackAPIKey(key string) StoreOption {
	return func(s *Store) { s.defaultKey = key }
}

// WithFallbackAccount is used while no account has been saved.
func WithFallbackAccount(p *model.UserProfile) StoreOption {
	return func(s *Store) {
		if p != nil && p.ID > 0 {
			cp := *p
			s.fallback = &cp
		}
	}
}

// WithStoreLogger sets a custom logger.
func WithStoreLogger(l logger.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore loads persisted settings. A saved account that no longer decodes
// is removed.
func NewStore(ctx context.Context, settings repository.Store, opts ...StoreOption) (*Store, error) {
	s := &Store{
		settings: settings,
		logger:   logger.Nop(),
		subs:     make(map[Topic]map[uint64]func()),
	}
	for _, opt := range opts {
		opt(s)
	}

	var acct model.UserProfile
	switch err := repository.GetJSON(ctx, settings, repository.KeyAccount, &acct); {
	case err == nil:
		s.account = &acct
	case errors.Is(err, repository.ErrCorruptValue):
		s.logger.Warn(ctx, "removing corrupt saved account", logger.Error(err))
		if derr := settings.Delete(ctx, repository.KeyAccount); derr != nil {
			return nil, derr
		}
	case !repository.IsNotFound(err):
		return nil, err
	}

	switch key, err := settings.Get(ctx, repository.KeyAPIKey); {
	case err == nil:
		s.apiKey = key
	case !repository.IsNotFound(err):
		return nil, err
	}

	return s, nil
}

// Account returns the selected account, falling back to the configured default.
func (s *Store) Account() (model.UserProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case s.account != nil:
		return *s.account, true
	case s.fallback != nil:
		return *s.fallback, true
	}
	return model.UserProfile{}, false
}

// SetAccount persists p as the selected account.
func (s *Store) SetAccount(ctx context.Context, p model.UserProfile) error {
	p.Login = strings.TrimSpace(p.Login)
	if p.ID <= 0 || p.Login == "" {
		return ErrInvalidAccount
	}
	s.mu.Lock()
	if err := repository.SetJSON(ctx, s.settings, repository.KeyAccount, p); err != nil {
		s.mu.Unlock()
		return err
	}
	s.account = &p
	s.mu.Unlock()

	s.publish(ctx, TopicAccountChanged)
	return nil
}

// ClearAccount forgets the selected account.
func (s *Store) ClearAccount(ctx context.Context) error {
	s.mu.Lock()
	if err := s.settings.Delete(ctx, repository.KeyAccount); err != nil {
		s.mu.Unlock()
		return err
	}
	s.account = nil
	s.mu.Unlock()

	s.publish(ctx, TopicAccountChanged)
	return nil
}

// APIKey returns the saved key or the default.
func (s *Store) APIKey(_ context.Context) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.apiKey != "" {
		return s.apiKey
	}
	return s.defaultKey
}

// HasStoredAPIKey reports whether a key has been saved.
func (s *Store) HasStoredAPIKey() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.apiKey != ""
}

// SetAPIKey persists key.
func (s *Store) SetAPIKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyAPIKey
	}
	s.mu.Lock()
	if err := s.settings.Set(ctx, repository.KeyAPIKey, key); err != nil {
		s.mu.Unlock()
		return err
	}
	s.apiKey = key
	s.mu.Unlock()

	s.publish(ctx, TopicAPIKeyChanged)
	return nil
}

// ClearAPIKey removes the saved key so the default applies again.
func (s *Store) ClearAPIKey(ctx context.Context) error {
	s.mu.Lock()
	if err := s.settings.Delete(ctx, repository.KeyAPIKey); err != nil {
		s.mu.Unlock()
		return err
	}
	s.apiKey = ""
	s.mu.Unlock()

	s.publish(ctx, TopicAPIKeyChanged)
	return nil
}

// Subscribe calls fn after every change on topic. The returned func removes
// the subscription.
func (s *Store) Subscribe(topic Topic, fn func()) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.nextID++
	id := s.nextID
	if s.subs[topic] == nil {
		s.subs[topic] = make(map[uint64]func())
	}
	s.subs[topic][id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs[topic], id)
	}
}

func (s *Store) publish(ctx context.Context, topic Topic) {
	s.subMu.Lock()
	fns := make([]func(), 0, len(s.subs[topic]))
	for _, fn := range s.subs[topic] {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	metrics.RecordSettingsChange(string(topic))
	s.logger.Debug(ctx, "settings changed", logger.String("topic", string(topic)), logger.Int("subscribers", len(fns)))
	for _, fn := range fns {
		fn()
	}
}
