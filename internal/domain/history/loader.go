// Package history loads a sender's balance and payments and shapes them for
// display: grouping by checkout, pagination and error descriptions.
//
// A load cycle fetches the balance (when a login is known) and then one page
// of payments. A balance failure ends the cycle without fetching payments.
// Every cycle carries a generation number; a cycle that finishes after a
// newer one has started is discarded.
package history

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/tinymerit/internal/domain/model"
	"github.com/okian/tinymerit/pkg/logger"
	"github.com/okian/tinymerit/pkg/metrics"
)

// State of the history view.
type State int

// Load states.
const (
	StateIdle State = iota
	StateLoading
	StateSuccess
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Source is the payments facade.
type Source interface {
	BalanceByLogin(ctx context.Context, login string) (model.Balance, error)
	PaymentsBySender(ctx context.Context, senderID int64, params model.PageParams) (model.PaymentPage, error)
}

// Key identifies what a cycle loads.
type Key struct {
	SenderID int64
	Login    string
	Page     int
}

// Snapshot is a copy of the view state.
type Snapshot struct {
	State      State
	Refreshing bool
	Key        Key
	Generation uint64
	Balance    *model.Balance
	Items      []model.PaymentRecord
	Page       Page
	Err        error
}

// Groups groups the current page.
func (s Snapshot) Groups() []Group { return GroupRecords(s.Items) }

// Loader runs load cycles for one history view. Safe for concurrent use.
type Loader struct {
	source   Source
	pageSize int
	logger   logger.Logger

	mu   sync.Mutex
	snap Snapshot
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithPageSize sets the page size. Non-positive values are ignored.
func WithPageSize(n int) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.pageSize = n
		}
	}
}

// WithLoaderLogger sets a custom logger.
func WithLoaderLogger(lg logger.Logger) LoaderOption {
	return func(l *Loader) {
		if lg != nil {
			l.logger = lg
		}
	}
}

// NewLoader creates an idle Loader.
func NewLoader(source Source, opts ...LoaderOption) *Loader {
	l := &Loader{
		source:   source,
		pageSize: DefaultPageSize,
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Snapshot returns the current state.
func (l *Loader) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.copySnap()
}

// Load starts a cycle for key. Data from a different key is dropped and the
// view shows loading; reloading the key on display keeps the data and sets
// Refreshing instead. Returns ErrStale if a newer cycle started meanwhile.
func (l *Loader) Load(ctx context.Context, key Key) (Snapshot, error) {
	if key.Page < 1 {
		key.Page = 1
	}
	if key.SenderID <= 0 {
		return Snapshot{}, ErrNoSender
	}

	l.mu.Lock()
	l.snap.Generation++
	gen := l.snap.Generation
	if l.snap.Key == key && l.snap.State == StateSuccess {
		l.snap.Refreshing = true
	} else {
		l.snap = Snapshot{State: StateLoading, Key: key, Generation: gen}
	}
	l.snap.Err = nil
	l.mu.Unlock()

	balance, page, err := l.fetch(ctx, key)

	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.snap.Generation {
		metrics.RecordStaleResult()
		l.logger.Debug(ctx, "discarding stale history result",
			logger.Int64("sender", key.SenderID),
			logger.Int("page", key.Page),
		)
		return l.copySnap(), ErrStale
	}

	l.snap.Refreshing = false
	if err != nil {
		metrics.RecordHistoryLoad(metrics.OutcomeError)
		l.logger.Warn(ctx, "history load failed",
			logger.Int64("sender", key.SenderID),
			logger.Int("page", key.Page),
			logger.Error(err),
		)
		l.snap.State = StateError
		l.snap.Err = err
		return l.copySnap(), err
	}

	metrics.RecordHistoryLoad(metrics.OutcomeOK)
	l.snap.State = StateSuccess
	l.snap.Balance = balance
	l.snap.Items = page.Items
	l.snap.Page = Page{
		Number:     key.Page,
		Size:       l.pageSize,
		TotalCount: page.TotalCount,
		HasNext:    page.HasNext,
	}
	return l.copySnap(), nil
}

// Refresh reloads the key on display.
func (l *Loader) Refresh(ctx context.Context) (Snapshot, error) {
	l.mu.Lock()
	key := l.snap.Key
	l.mu.Unlock()
	return l.Load(ctx, key)
}

func (l *Loader) fetch(ctx context.Context, key Key) (*model.Balance, model.PaymentPage, error) {
	var balance *model.Balance
	if key.Login != "" {
		b, err := l.source.BalanceByLogin(ctx, key.Login)
		if err != nil {
			return nil, model.PaymentPage{}, fmt.Errorf("fetch balance for %s: %w", key.Login, err)
		}
		balance = &b
	}

	page, err := l.source.PaymentsBySender(ctx, key.SenderID, model.PageParams{Page: key.Page, PageSize: l.pageSize})
	if err != nil {
		return nil, model.PaymentPage{}, fmt.Errorf("fetch payments for sender %d: %w", key.SenderID, err)
	}
	return balance, page, nil
}

func (l *Loader) copySnap() Snapshot {
	s := l.snap
	if s.Items != nil {
		s.Items = append([]model.PaymentRecord(nil), s.Items...)
	}
	if s.Balance != nil {
		b := *s.Balance
		s.Balance = &b
	}
	return s
}
