package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted     = errors.New("service not started")
	ErrSuperseded     = errors.New("superseded by a newer request")
	ErrEmptyAPIKey    = errors.New("api key must not be empty")
	ErrInvalidAccount = errors.New("account needs a positive id and a login")
	ErrNoAccount      = errors.New("no account selected")
	ErrUnknownLogin   = errors.New("no github user with that login")
)
