package merit

import (
	"context"
	"net/http"
	"time"

	"github.com/okian/tinymerit/pkg/logger"
)

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithBaseURL sets the payments API root.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithCheckoutURL sets the checkout page URLs are generated for.
func WithCheckoutURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.checkoutURL = u
		}
	}
}

// WithAPIKey uses a fixed API key.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = func(context.Context) string { return key }
	}
}

// WithAPIKeySource reads the API key on every request, so a key saved at
// runtime takes effect without rebuilding the client.
func WithAPIKeySource(fn func(context.Context) string) Option {
	return func(c *Client) {
		if fn != nil {
			c.apiKey = fn
		}
	}
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout bounds every request made with the default HTTP client.
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
