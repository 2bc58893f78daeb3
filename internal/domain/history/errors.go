package history

import (
	"errors"

	"github.com/okian/tinymerit/internal/domain/model"
)

// Sentinel kinds for history loading.
var (
	ErrStale    = errors.New("result superseded by a newer request")
	ErrNoSender = errors.New("no sender account selected")
)

// ErrorInfo is what the history view shows for a failed load.
type ErrorInfo struct {
	Title    string `json:"title"`
	Message  string `json:"message"`
	ShowHint bool   `json:"show_hint"`
}

// DescribeError maps a load failure to user-facing text.
func DescribeError(err error) ErrorInfo {
	if err == nil {
		return ErrorInfo{Title: "Error", Message: "An unexpected error occurred"}
	}

	msg := err.Error()
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		msg = apiErr.Message
	}

	switch {
	case errors.Is(err, model.ErrUnauthorized):
		return ErrorInfo{
			Title:    "Authentication Error",
			Message:  "Invalid API key. Please check your Merit API key in Account Settings.",
			ShowHint: true,
		}
	case errors.Is(err, model.ErrBadRequest):
		return ErrorInfo{Title: "Request Error", Message: "Bad request: " + msg}
	case errors.Is(err, model.ErrNotFound):
		return ErrorInfo{Title: "Not Found", Message: "Resource not found: " + msg}
	case errors.Is(err, model.ErrInternalServer):
		return ErrorInfo{Title: "Server Error", Message: "Server error: " + msg}
	}
	return ErrorInfo{Title: "Error", Message: msg}
}
