// Package github looks up GitHub users and repositories for payee search and
// payment history rows.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v66/github"
	"github.com/okian/tinymerit/internal/domain/model"
	"github.com/okian/tinymerit/pkg/logger"
	"github.com/okian/tinymerit/pkg/metrics"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

const (
	defaultTimeout = 15 * time.Second
	maxSearchLimit = 100
)

// Client wraps the GitHub REST API.
type Client struct {
	gh         *gh.Client
	token      string
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	logger     logger.Logger
}

// New creates a Client.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		timeout: defaultTimeout,
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	hc := c.httpClient
	if hc == nil {
		hc = &http.Client{}
	}
	if c.token != "" {
		base := hc.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		hc = &http.Client{
			Transport: &oauth2.Transport{
				Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.token}),
				Base:   base,
			},
			Timeout: hc.Timeout,
		}
	}
	if hc.Timeout == 0 {
		clone := *hc
		clone.Timeout = c.timeout
		hc = &clone
	}

	c.gh = gh.NewClient(hc)
	if c.baseURL != "" {
		u, err := url.Parse(c.baseURL)
		if err != nil {
			return nil, fmt.Errorf("github base url: %w", err)
		}
		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
		c.gh.BaseURL = u
	}
	return c, nil
}

// SearchUsers returns up to limit users matching query.
func (c *Client) SearchUsers(ctx context.Context, query string, limit int) ([]model.UserProfile, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	start := time.Now()
	res, _, err := c.gh.Search.Users(ctx, query, searchOptions(limit))
	c.observe(ctx, "search_users", start, err)
	if err != nil {
		return nil, wrap("failed to search users", err)
	}
	out := make([]model.UserProfile, 0, len(res.Users))
	for _, u := range res.Users {
		out = append(out, toUser(u))
	}
	return truncate(out, limit), nil
}

// SearchRepos returns up to limit repositories matching query.
func (c *Client) SearchRepos(ctx context.Context, query string, limit int) ([]model.RepoProfile, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	start := time.Now()
	res, _, err := c.gh.Search.Repositories(ctx, query, searchOptions(limit))
	c.observe(ctx, "search_repos", start, err)
	if err != nil {
		return nil, wrap("failed to search repositories", err)
	}
	out := make([]model.RepoProfile, 0, len(res.Repositories))
	for _, r := range res.Repositories {
		out = append(out, toRepo(r))
	}
	return truncate(out, limit), nil
}

// Search runs the user and repo searches in parallel. Either failure fails
// the whole search.
func (c *Client) Search(ctx context.Context, query string, limit int) (model.SearchResults, error) {
	var res model.SearchResults
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		users, err := c.SearchUsers(gctx, query, limit)
		res.Users = users
		return err
	})
	g.Go(func() error {
		repos, err := c.SearchRepos(gctx, query, limit)
		res.Repos = repos
		return err
	})
	if err := g.Wait(); err != nil {
		return model.SearchResults{}, err
	}
	return res, nil
}

// UserByID fetches a user by numeric id.
func (c *Client) UserByID(ctx context.Context, id int64) (model.UserProfile, error) {
	start := time.Now()
	u, _, err := c.gh.Users.GetByID(ctx, id)
	c.observe(ctx, "user_by_id", start, err)
	if err != nil {
		return model.UserProfile{}, wrap(fmt.Sprintf("failed to fetch user %d", id), err)
	}
	return toUser(u), nil
}

// RepoByID fetches a repository by numeric id.
func (c *Client) RepoByID(ctx context.Context, id int64) (model.RepoProfile, error) {
	start := time.Now()
	r, _, err := c.gh.Repositories.GetByID(ctx, id)
	c.observe(ctx, "repo_by_id", start, err)
	if err != nil {
		return model.RepoProfile{}, wrap(fmt.Sprintf("failed to fetch repo %d", id), err)
	}
	return toRepo(r), nil
}

// UserByLogin fetches a user by login.
func (c *Client) UserByLogin(ctx context.Context, login string) (model.UserProfile, error) {
	login = strings.TrimSpace(login)
	start := time.Now()
	u, _, err := c.gh.Users.Get(ctx, login)
	c.observe(ctx, "user_by_login", start, err)
	if err != nil {
		return model.UserProfile{}, wrap("failed to fetch user "+login, err)
	}
	return toUser(u), nil
}

// RepoByName fetches owner/name.
func (c *Client) RepoByName(ctx context.Context, owner, name string) (model.RepoProfile, error) {
	owner, name = strings.TrimSpace(owner), strings.TrimSpace(name)
	start := time.Now()
	r, _, err := c.gh.Repositories.Get(ctx, owner, name)
	c.observe(ctx, "repo_by_name", start, err)
	if err != nil {
		return model.RepoProfile{}, wrap(fmt.Sprintf("failed to fetch repo %s/%s", owner, name), err)
	}
	return toRepo(r), nil
}

func (c *Client) observe(ctx context.Context, op string, start time.Time, err error) {
	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = metrics.OutcomeError
		c.logger.Debug(ctx, "github call failed", logger.String("op", op), logger.Error(err))
	}
	metrics.RecordGitHubCall(op, outcome, metrics.Since(start))
}

func wrap(msg string, err error) error {
	var rate *gh.RateLimitError
	if errors.As(err, &rate) {
		return fmt.Errorf("%s: %w: %w", msg, ErrRateLimited, err)
	}
	var abuse *gh.AbuseRateLimitError
	if errors.As(err, &abuse) {
		return fmt.Errorf("%s: %w: %w", msg, ErrRateLimited, err)
	}
	var resp *gh.ErrorResponse
	if errors.As(err, &resp) && resp.Response != nil && resp.Response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w: %w", msg, ErrNotFound, err)
	}
	return fmt.Errorf("%s: %w: %w", msg, ErrFetch, err)
}

func searchOptions(limit int) *gh.SearchOptions {
	if limit < 1 || limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	return &gh.SearchOptions{ListOptions: gh.ListOptions{PerPage: limit}}
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func toUser(u *gh.User) model.UserProfile {
	return model.UserProfile{
		ID:        u.GetID(),
		Login:     u.GetLogin(),
		Name:      u.GetName(),
		AvatarURL: u.GetAvatarURL(),
		HTMLURL:   u.GetHTMLURL(),
	}
}

func toRepo(r *gh.Repository) model.RepoProfile {
	return model.RepoProfile{
		ID:             r.GetID(),
		Name:           r.GetName(),
		FullName:       r.GetFullName(),
		Description:    r.GetDescription(),
		OwnerLogin:     r.GetOwner().GetLogin(),
		OwnerAvatarURL: r.GetOwner().GetAvatarURL(),
		Stars:          r.GetStargazersCount(),
		HTMLURL:        r.GetHTMLURL(),
	}
}
