package fetch

import (
	"errors"
	"fmt"

	"github.com/coldpath/gitalarm/retry"
)

// ErrServerUnavailable is returned when the git server responds with
// a 5xx status code or 429 Too Many Requests. It wraps retry.ErrTransient
// so a Retrier installed via retry.ToContext retries it automatically.
var ErrServerUnavailable = fmt.Errorf("fetch: server unavailable: %w", retry.ErrTransient)

// ErrUnauthorized is returned on HTTP 401.
var ErrUnauthorized = errors.New("fetch: unauthorized")

// ErrPermissionDenied is returned on HTTP 403.
var ErrPermissionDenied = errors.New("fetch: permission denied")

// ErrNotFound is returned on HTTP 404.
var ErrNotFound = errors.New("fetch: repository not found")
