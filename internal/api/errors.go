package api

import (
	"fmt"

	"github.com/valyala/fasthttp"

	"github.com/tOgg1/sitesync/internal/models"
)

// Error is a non-2xx response from the backend. Callers can use errors.As
// to get the status, or errors.Is with models.ErrNotFound and
// models.ErrUnauthorized:
//
//	var apiErr *api.Error
//	if errors.As(err, &apiErr) && apiErr.StatusCode == 429 { ... }
type Error struct {
	StatusCode int
	Method     string
	Path       string

	// Message is the server's error text, redacted.
	Message string `json:"error"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: %s %s: %d %s", e.Method, e.Path, e.StatusCode, fasthttp.StatusMessage(e.StatusCode))
	}
	return fmt.Sprintf("api: %s %s: %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// Is maps status codes onto the shared sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case models.ErrNotFound:
		return e.StatusCode == fasthttp.StatusNotFound
	case models.ErrUnauthorized:
		return e.StatusCode == fasthttp.StatusUnauthorized || e.StatusCode == fasthttp.StatusForbidden
	}
	return false
}
