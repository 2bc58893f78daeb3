// Package merit is a client for the Merit payments API: balances, sent
// payments and checkout URLs.
package merit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/okian/tinymerit/internal/domain/checkout"
	"github.com/okian/tinymerit/internal/domain/model"
	"github.com/okian/tinymerit/pkg/logger"
	"github.com/okian/tinymerit/pkg/metrics"
)

// Defaults used when no option overrides them.
const (
	DefaultBaseURL = "https://api.merit.systems"
	defaultTimeout = 15 * time.Second
	maxErrorBody   = 4 << 10
)

// ErrNoItems is returned when a checkout URL is requested for nothing.
var ErrNoItems = errors.New("checkout needs at least one item")

// Client talks to the payments API.
type Client struct {
	baseURL     string
	checkoutURL string
	apiKey      func(context.Context) string
	http        *http.Client
	timeout     time.Duration
	logger      logger.Logger
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:     DefaultBaseURL,
		checkoutURL: checkout.DefaultBaseURL,
		apiKey:      func(context.Context) string { return "" },
		timeout:     defaultTimeout,
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout}
	}
	c.baseURL = strings.TrimRight(c.baseURL, "/")
	return c
}

type balanceResponse struct {
	Balance model.Balance `json:"balance"`
}

// BalanceByLogin returns the available balance of a GitHub login.
func (c *Client) BalanceByLogin(ctx context.Context, login string) (model.Balance, error) {
	var out balanceResponse
	p := "/balances/login/" + url.PathEscape(strings.TrimSpace(login))
	if err := c.get(ctx, "get_balance", p, nil, &out); err != nil {
		return model.Balance{}, err
	}
	return out.Balance, nil
}

// PaymentsBySender returns one page of payments sent by a GitHub user id.
func (c *Client) PaymentsBySender(ctx context.Context, senderID int64, params model.PageParams) (model.PaymentPage, error) {
	q := url.Values{}
	if params.Page > 0 {
		q.Set("page", strconv.Itoa(params.Page))
	}
	if params.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(params.PageSize))
	}
	var out model.PaymentPage
	p := "/payments/sender/" + strconv.FormatInt(senderID, 10)
	if err := c.get(ctx, "get_payments", p, q, &out); err != nil {
		return model.PaymentPage{}, err
	}
	return out, nil
}

// GenerateGroupID mints an id linking the payments of one checkout.
func (c *Client) GenerateGroupID() string { return uuid.NewString() }

// GenerateCheckoutURL encodes req into a checkout page URL.
func (c *Client) GenerateCheckoutURL(_ context.Context, req checkout.Request) (string, error) {
	if len(req.Items) == 0 {
		return "", ErrNoItems
	}
	u, err := url.Parse(c.checkoutURL)
	if err != nil {
		return "", fmt.Errorf("checkout url: %w", err)
	}

	tokens := make([]string, 0, len(req.Items))
	for _, it := range req.Items {
		if it.Amount.IsNegative() {
			return "", fmt.Errorf("item %s: negative amount %s", it.ID, it.Amount)
		}
		var prefix string
		switch it.Type {
		case "user":
			prefix = "u"
		case "repo":
			prefix = "r"
		default:
			return "", fmt.Errorf("item %s: unknown type %q", it.ID, it.Type)
		}
		tokens = append(tokens, prefix+"_"+it.ID+"_"+it.Amount.StringFixed(2))
	}
	encoded, err := json.Marshal(tokens)
	if err != nil {
		return "", fmt.Errorf("encode items: %w", err)
	}

	q := u.Query()
	q.Set("items", string(encoded))
	if req.GroupID != "" {
		q.Set("group_id", req.GroupID)
	}
	if req.SenderGitHubID > 0 {
		q.Set("sender_github_id", strconv.FormatInt(req.SenderGitHubID, 10))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) get(ctx context.Context, op, path string, query url.Values, out any) error {
	start := time.Now()
	err := c.do(ctx, op, path, query, out)
	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = metrics.OutcomeError
		c.logger.Debug(ctx, "merit call failed", logger.String("op", op), logger.Error(err))
	}
	metrics.RecordMeritCall(op, outcome, metrics.Since(start))
	return err
}

func (c *Client) do(ctx context.Context, op, path string, query url.Values, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if key := c.apiKey(ctx); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(op, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func decodeError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(body))
	var eb errorBody
	if json.Unmarshal(body, &eb) == nil {
		switch {
		case eb.Message != "":
			msg = eb.Message
		case eb.Error != "":
			msg = eb.Error
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &model.APIError{
		Op:      op,
		Status:  resp.StatusCode,
		Kind:    model.KindForStatus(resp.StatusCode),
		Message: msg,
	}
}
