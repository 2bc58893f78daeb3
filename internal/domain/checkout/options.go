package checkout

import "github.com/okian/tinymerit/pkg/logger"

// Option applies a configuration option to the Builder.
type Option func(*Builder)

// WithGenerator sets the payments facade used on the primary path.
// Without one every checkout uses the manual encoding.
func WithGenerator(g URLGenerator) Option {
	return func(b *Builder) {
		b.generator = g
	}
}

// WithGroupIDGenerator overrides how checkout group ids are minted.
func WithGroupIDGenerator(fn func() string) Option {
	return func(b *Builder) {
		if fn != nil {
			b.groupID = fn
		}
	}
}

// WithSender attaches the sender's GitHub id. Zero means unknown.
func WithSender(id int64) Option {
	return func(b *Builder) {
		b.senderID = id
	}
}

// WithRedirectURL sets the page the checkout returns to.
func WithRedirectURL(u string) Option {
	return func(b *Builder) {
		b.redirectURL = u
	}
}

// WithBaseURL sets the checkout page used by the manual encoding.
func WithBaseURL(u string) Option {
	return func(b *Builder) {
		if u != "" {
			b.baseURL = u
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}
