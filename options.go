package gitalarm

import (
	"net/http"

	"github.com/coldpath/gitalarm/log"
	"github.com/coldpath/gitalarm/retry"
)

// defaultFilesMax is the largest number of prefetched blob ids passed
// as "have" lines on a single upload-pack negotiation.
const defaultFilesMax = 200

// prefetchRefs is how many advertised refs the file prefetch walks:
// only the first ref is wanted, so only its tree is useful.
const prefetchRefs = 1

// defaultIndexName is the index filename created under a data
// directory when no explicit path is given.
const defaultIndexName = "index.json"

// Config holds everything an Acquirer needs beyond the archive name
// and repository list themselves.
type Config struct {
	DataDir   string
	IndexPath string
	UserAgent string
	FilesMax  int
	Resume    bool

	httpClient *http.Client
	tokenAuth  *string
	logger     log.Logger
	retrier    retry.Retrier
}

// Option configures a Config, mirroring the teacher's functional
// options shape (options.go's Option over a *client.RawClient,
// generalized here over a *Config).
type Option func(*Config) error

// WithDataDir sets the directory archives and the index file live
// under. Required.
func WithDataDir(dir string) Option {
	return func(c *Config) error {
		c.DataDir = dir
		return nil
	}
}

// WithIndexPath overrides the index file location, which otherwise
// defaults to "index.json" under the data directory.
func WithIndexPath(path string) Option {
	return func(c *Config) error {
		c.IndexPath = path
		return nil
	}
}

// WithUserAgent sets the user agent reported on the want line and in
// the upload-pack request's headers.
func WithUserAgent(ua string) Option {
	return func(c *Config) error {
		c.UserAgent = ua
		return nil
	}
}

// WithFilesMax caps how many prefetched blob ids are sent as "have"
// lines.
func WithFilesMax(n int) Option {
	return func(c *Config) error {
		c.FilesMax = n
		return nil
	}
}

// WithResume requests that an existing archive at the target path be
// resumed (§4.9) rather than rotated to a backup (§11.2).
func WithResume(resume bool) Option {
	return func(c *Config) error {
		c.Resume = resume
		return nil
	}
}

// WithHTTPClient overrides the default *http.Client used for both the
// smart-HTTP fetcher and the hosted API client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Config) error {
		c.httpClient = httpClient
		return nil
	}
}

// WithTokenAuth sets the token sent as the Authorization header to
// both the git server and the hosted API.
func WithTokenAuth(token string) Option {
	return func(c *Config) error {
		if token == "" {
			return nil
		}
		c.tokenAuth = &token
		return nil
	}
}

// WithLogger installs a Logger, overriding the no-op default.
func WithLogger(logger log.Logger) Option {
	return func(c *Config) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithRetrier installs a Retrier used for the hosted API and fetch
// negotiation round trips, overriding the default NoopRetrier.
func WithRetrier(retrier retry.Retrier) Option {
	return func(c *Config) error {
		if retrier != nil {
			c.retrier = retrier
		}
		return nil
	}
}
