package github

import "errors"

// Sentinel kinds for GitHub lookups.
var (
	ErrFetch       = errors.New("github request failed")
	ErrNotFound    = errors.New("github resource not found")
	ErrRateLimited = errors.New("github rate limit exceeded")
)
