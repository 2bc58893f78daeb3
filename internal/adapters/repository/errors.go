package repository

import "errors"

// Sentinel kinds for settings errors.
var (
	ErrNotFound     = errors.New("setting not found")
	ErrCorruptValue = errors.New("setting value is corrupt")
	ErrEmptyKey     = errors.New("setting key must not be empty")
)
