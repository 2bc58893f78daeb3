package github

import (
	"net/http"
	"time"

	"github.com/okian/tinymerit/pkg/logger"
)

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithToken authenticates requests with a personal access token.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithBaseURL points the client at another API root, e.g. a test server or
// GitHub Enterprise.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithHTTPClient sets the underlying HTTP client. A token, if any, is layered
// on top of its transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}
