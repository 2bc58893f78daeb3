// Package enrich attaches GitHub profile data to payment history rows.
//
// Each row is looked up independently through the enrichment queue. A failed
// or slow lookup only affects its own row, which falls back to a
// "User <id>" or "Repo <id>" label.
package enrich

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/okian/tinymerit/internal/adapters/mq/queue"
	"github.com/okian/tinymerit/internal/domain/model"
	"github.com/okian/tinymerit/pkg/logger"
)

const defaultWait = 5 * time.Second

// ErrRejected marks rows whose lookup could not be queued.
var ErrRejected = errors.New("enrichment queue rejected lookup")

// Status of a row's lookup.
type Status string

// Row statuses.
const (
	StatusPending Status = "pending"
	StatusLoaded  Status = "loaded"
	StatusFailed  Status = "failed"
)

// Row is a payment record with whatever profile data has arrived.
type Row struct {
	Record      model.PaymentRecord `json:"record"`
	Status      Status              `json:"status"`
	DisplayName string              `json:"display_name"`
	AvatarURL   string              `json:"avatar_url,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// FallbackName labels a record whose profile is unavailable.
func FallbackName(rec model.PaymentRecord) string {
	if rec.IsRepo() {
		return "Repo " + rec.RepoID.String()
	}
	return "User " + rec.RecipientID.String()
}

// PendingRow is a row whose lookup has not finished.
func PendingRow(rec model.PaymentRecord) Row {
	return Row{Record: rec, Status: StatusPending, DisplayName: "Loading..."}
}

// FailedRow is a row whose lookup failed.
func FailedRow(rec model.PaymentRecord, err error) Row {
	row := Row{Record: rec, Status: StatusFailed, DisplayName: FallbackName(rec)}
	if err != nil {
		row.Error = err.Error()
	}
	return row
}

// Apply folds a lookup result into a row.
func Apply(rec model.PaymentRecord, res queue.Result) Row {
	switch {
	case res.Err != nil:
		return FailedRow(rec, res.Err)
	case rec.IsRepo() && res.Repo != nil:
		return Row{Record: rec, Status: StatusLoaded, DisplayName: res.Repo.FullName, AvatarURL: res.Repo.OwnerAvatarURL}
	case !rec.IsRepo() && res.User != nil:
		return Row{Record: rec, Status: StatusLoaded, DisplayName: res.User.Login, AvatarURL: res.User.AvatarURL}
	}
	return FailedRow(rec, nil)
}

// Enqueuer is the producing side of the enrichment queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, j queue.Job) bool
}

// Enricher fans rows out to the enrichment workers and collects results.
type Enricher struct {
	queue  Enqueuer
	wait   time.Duration
	logger logger.Logger
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithWait bounds how long Enrich waits for lookups.
func WithWait(d time.Duration) Option {
	return func(e *Enricher) {
		if d > 0 {
			e.wait = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Enricher) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Enricher over q.
func New(q Enqueuer, opts ...Option) *Enricher {
	e := &Enricher{queue: q, wait: defaultWait, logger: logger.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich returns one row per record in the same order. Rows whose lookup has
// not finished when the wait expires stay pending.
func (e *Enricher) Enrich(ctx context.Context, records []model.PaymentRecord) []Row {
	rows := make([]Row, len(records))
	if len(records) == 0 {
		return rows
	}

	ctx, cancel := context.WithTimeout(ctx, e.wait)
	defer cancel()

	results := make(chan queue.Result, len(records))
	outstanding := 0
	for i, rec := range records {
		rows[i] = PendingRow(rec)
		ok := e.queue.Enqueue(ctx, queue.Job{
			ID:     strconv.Itoa(i),
			Record: rec,
			Ctx:    ctx,
			Done:   func(r queue.Result) { results <- r },
		})
		if !ok {
			rows[i] = FailedRow(rec, ErrRejected)
			continue
		}
		outstanding++
	}

	for outstanding > 0 {
		select {
		case res := <-results:
			outstanding--
			i, err := strconv.Atoi(res.JobID)
			if err != nil || i < 0 || i >= len(rows) {
				continue
			}
			rows[i] = Apply(records[i], res)
		case <-ctx.Done():
			e.logger.Debug(ctx, "enrichment wait expired", logger.Int("pending", outstanding))
			return rows
		}
	}
	return rows
}
