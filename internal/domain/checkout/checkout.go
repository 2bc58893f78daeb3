// Package checkout turns a payee list into a checkout URL.
//
// The payments facade builds the URL when available. If it fails, or the
// URL it returns does not parse, the builder falls back to the manual
// encoding: a JSON array of "u_<id>_<amount>" and "r_<id>_<amount>" tokens
// in the items query parameter of the checkout page.
package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"github.com/okian/tinymerit/internal/domain/payee"
	"github.com/okian/tinymerit/pkg/logger"
	"github.com/okian/tinymerit/pkg/metrics"
	"github.com/shopspring/decimal"
)

// DefaultBaseURL is the checkout page for manually encoded URLs.
const DefaultBaseURL = "https://terminal.merit.systems/checkout"

// Path tells which encoder produced a URL.
type Path string

// Encoder paths.
const (
	PathSDK      Path = "sdk"
	PathFallback Path = "fallback"
)

// LineItem is a payee in the shape the payments facade expects.
type LineItem struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Amount decimal.Decimal `json:"amount"`
}

// Request is passed to the payments facade.
type Request struct {
	Items          []LineItem
	GroupID        string
	SenderGitHubID int64
}

// URLGenerator builds checkout URLs on the primary path.
type URLGenerator interface {
	GenerateCheckoutURL(ctx context.Context, req Request) (string, error)
}

// Result is a built checkout URL.
type Result struct {
	URL     string `json:"url"`
	Path    Path   `json:"path"`
	GroupID string `json:"group_id,omitempty"`
}

// Builder builds checkout URLs.
type Builder struct {
	generator   URLGenerator
	groupID     func() string
	senderID    int64
	redirectURL string
	baseURL     string
	logger      logger.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		groupID: uuid.NewString,
		baseURL: DefaultBaseURL,
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Items maps a payee list into facade line items.
func Items(list payee.List) []LineItem {
	items := list.Items()
	out := make([]LineItem, 0, len(items))
	for _, it := range items {
		out = append(out, LineItem{Type: it.Kind.String(), ID: it.ID, Amount: it.Amount})
	}
	return out
}

// Build returns the checkout URL for list.
func (b *Builder) Build(ctx context.Context, list payee.List) (Result, error) {
	if !list.CanCheckout() {
		return Result{}, ErrCheckoutDisabled
	}

	if b.generator != nil {
		res, err := b.buildSDK(ctx, list)
		if err == nil {
			metrics.RecordCheckoutURL(string(PathSDK))
			return res, nil
		}
		metrics.RecordErrorByComponent("checkout", "sdk_failed")
		b.logger.Warn(ctx, "checkout url generation failed, using manual encoding",
			logger.Int("items", list.Len()),
			logger.Error(err),
		)
	}

	u, err := ManualURL(b.baseURL, list)
	if err != nil {
		metrics.RecordErrorByComponent("checkout", "fallback_failed")
		b.logger.Error(ctx, "manual checkout url failed", logger.Error(err))
		return Result{}, err
	}
	metrics.RecordCheckoutURL(string(PathFallback))
	return Result{URL: u, Path: PathFallback}, nil
}

func (b *Builder) buildSDK(ctx context.Context, list payee.List) (Result, error) {
	groupID := b.groupID()
	raw, err := b.generator.GenerateCheckoutURL(ctx, Request{
		Items:          Items(list),
		GroupID:        groupID,
		SenderGitHubID: b.senderID,
	})
	if err != nil {
		return Result{}, err
	}
	u, err := parseAbsolute(raw)
	if err != nil {
		return Result{}, err
	}
	if b.redirectURL != "" {
		q := u.Query()
		q.Set("redirect", b.redirectURL)
		u.RawQuery = q.Encode()
	}
	return Result{URL: u.String(), Path: PathSDK, GroupID: groupID}, nil
}

// ManualURL encodes list into the items parameter of base.
func ManualURL(base string, list payee.List) (string, error) {
	u, err := parseAbsolute(base)
	if err != nil {
		return "", err
	}
	tokens := make([]string, 0, list.Len())
	for _, it := range list.Items() {
		tokens = append(tokens, it.Token())
	}
	encoded, err := json.Marshal(tokens)
	if err != nil {
		return "", fmt.Errorf("encode items: %w", err)
	}
	q := u.Query()
	q.Set("items", string(encoded))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func parseAbsolute(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedURL, err)
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrMalformedURL, raw)
	}
	return u, nil
}
