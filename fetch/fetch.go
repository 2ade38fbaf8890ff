// Package fetch implements the smart-HTTP protocol v1 client: the
// two-round-trip advertisement/upload-pack negotiation against a
// hosted git server, yielding a side-band-demultiplexed packfile
// reader ready for packscan.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/coldpath/gitalarm/log"
	"github.com/coldpath/gitalarm/pktline"
	"github.com/coldpath/gitalarm/retry"
	"github.com/coldpath/gitalarm/sideband"
)

var errNoFlush = errors.New("fetch: frame was not a flush packet")

// Capabilities is the capability list the client advertises on its
// first "want" line.
const Capabilities = "multi_ack_detailed no-done side-band-64k thin-pack ofs-delta"

// Ref describes one entry from the advertisement response.
type Ref struct {
	ID   string
	Name string
}

// Client negotiates smart-HTTP v1 fetches against a single repository
// base URL.
type Client struct {
	base      *url.URL
	http      *http.Client
	userAgent string
	basicAuth *struct{ Username, Password string }
	tokenAuth *string
}

// Option configures a Client, mirroring the teacher's functional
// options shape.
type Option func(*Client) error

// New creates a Client for the given repository URL, which must be
// an http(s) URL pointing at the ".git"-suffixed (or bare) path, e.g.
// "https://github.com/owner/repo".
func New(repo string, opts ...Option) (*Client, error) {
	if repo == "" {
		return nil, fmt.Errorf("fetch: repository URL cannot be empty")
	}
	u, err := url.Parse(repo)
	if err != nil {
		return nil, fmt.Errorf("fetch: parsing url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("fetch: only http and https URLs are supported")
	}
	u.Path = strings.TrimRight(u.Path, "/")
	if !strings.HasSuffix(u.Path, ".git") {
		u.Path += ".git"
	}

	c := &Client{
		base:      u,
		http:      &http.Client{},
		userAgent: "gitalarm/0",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// WithHTTPClient overrides the default *http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) error {
		if h != nil {
			c.http = h
		}
		return nil
	}
}

// WithTokenAuth sets the Authorization header verbatim on every
// request; callers are responsible for any "Bearer"/"token" prefix.
func WithTokenAuth(token string) Option {
	return func(c *Client) error {
		if token == "" {
			return fmt.Errorf("fetch: token cannot be empty")
		}
		c.tokenAuth = &token
		return nil
	}
}

// WithUserAgent overrides the default "gitalarm/0" user agent string
// sent in request headers and on the want line's agent= capability.
func WithUserAgent(ua string) Option {
	return func(c *Client) error {
		if ua != "" {
			c.userAgent = ua
		}
		return nil
	}
}

// WithBasicAuth sets HTTP basic auth credentials.
func WithBasicAuth(username, password string) Option {
	return func(c *Client) error {
		if username == "" {
			return fmt.Errorf("fetch: username cannot be empty")
		}
		c.basicAuth = &struct{ Username, Password string }{username, password}
		return nil
	}
}

func (c *Client) addHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	if c.basicAuth != nil {
		req.SetBasicAuth(c.basicAuth.Username, c.basicAuth.Password)
	} else if c.tokenAuth != nil {
		req.Header.Set("Authorization", *c.tokenAuth)
	}
}

// Advertisement fetches and parses the info/refs advertisement,
// returning every ref line (capabilities on the first line are parsed
// off and discarded, since this client only ever uses its own fixed
// capability set on the want line).
func (c *Client) Advertisement(ctx context.Context) ([]Ref, error) {
	logger := log.FromContextOrNoop(ctx)

	u := c.base.JoinPath("info/refs")
	q := u.Query()
	q.Set("service", "git-upload-pack")
	u.RawQuery = q.Encode()

	logger.Debug("fetch advertisement", "url", u.String())
	body, err := retry.Do(ctx, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		c.addHeaders(req)

		res, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch: requesting advertisement: %w", err)
		}
		defer res.Body.Close()

		if err := checkStatus(res); err != nil {
			return nil, err
		}

		body, err := io.ReadAll(res.Body)
		if err != nil {
			return nil, fmt.Errorf("fetch: reading advertisement: %w", err)
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}

	return parseAdvertisement(body)
}

// parseAdvertisement walks the advertisement body frame by frame,
// the way alarm.py's pkt_line generator does (yielding nil for each
// flush rather than stopping at the first one): service line, flush,
// then one ref line per frame until the body is exhausted.
func parseAdvertisement(body []byte) ([]Ref, error) {
	r := bytes.NewReader(body)

	service, err := pktline.ReadString(r)
	if err != nil {
		return nil, fmt.Errorf("fetch: reading service line: %w", err)
	}
	if got := strings.TrimRight(service, "\n"); got != "# service=git-upload-pack" {
		return nil, fmt.Errorf("fetch: unexpected service announcement %q", got)
	}

	if _, err := pktline.Read(r); !errors.Is(err, pktline.ErrFlush) {
		return nil, fmt.Errorf("fetch: expected flush after service announcement: %w", firstErr(err, errNoFlush))
	}

	var refs []Ref
	first := true
	for {
		line, err := pktline.ReadString(r)
		if errors.Is(err, pktline.ErrFlush) {
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("fetch: reading ref line: %w", err)
		}

		line = strings.TrimRight(line, "\n")
		if first {
			if idx := strings.IndexByte(line, 0); idx >= 0 {
				line = line[:idx]
			}
			first = false
		}
		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("fetch: malformed ref line %q", line)
		}
		refs = append(refs, Ref{ID: parts[0], Name: parts[1]})
	}

	if len(refs) == 0 {
		return nil, fmt.Errorf("fetch: advertisement contained no refs")
	}
	return refs, nil
}

// Pack negotiates an upload-pack request for want (the single ref to
// fetch) against have (ids of objects already present locally, used
// purely as a negotiation hint), and returns a reader over the
// resulting packfile with side-band framing already stripped.
func (c *Client) Pack(ctx context.Context, want string, have []string) (io.ReadCloser, error) {
	logger := log.FromContextOrNoop(ctx)

	body, err := buildUploadPackRequest(want, have, c.userAgent)
	if err != nil {
		return nil, err
	}

	u := c.base.JoinPath("git-upload-pack").String()
	logger.Debug("fetch upload-pack", "url", u, "wantCount", 1, "haveCount", len(have))

	// Retry only covers the request/negotiation round trip, up through
	// the ACK/NAK preamble: once side-band pack bytes start flowing
	// there is no clean point to restart from.
	resBody, err := retry.Do(ctx, func() (io.ReadCloser, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-git-upload-pack-request")
		req.Header.Set("Accept", "application/x-git-upload-pack-result")
		c.addHeaders(req)

		res, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch: requesting upload-pack: %w", err)
		}
		if err := checkStatus(res); err != nil {
			res.Body.Close()
			return nil, err
		}
		if err := consumeAckPreamble(res.Body); err != nil {
			res.Body.Close()
			return nil, err
		}
		return res.Body, nil
	})
	if err != nil {
		return nil, err
	}

	return packReadCloser{Reader: sideband.NewReader(resBody), Closer: resBody}, nil
}

type packReadCloser struct {
	io.Reader
	io.Closer
}

// buildUploadPackRequest builds the pkt-line body of an upload-pack
// POST: a single capability-bearing want line, a flush, one have line
// per prefetched object id, and a trailing done.
func buildUploadPackRequest(want string, have []string, userAgent string) ([]byte, error) {
	var buf bytes.Buffer

	first := fmt.Sprintf("want %s %s agent=%s\n", want, Capabilities, userAgent)
	if err := pktline.WriteString(&buf, first); err != nil {
		return nil, err
	}
	if err := pktline.WriteFlush(&buf); err != nil {
		return nil, err
	}
	for _, h := range have {
		if err := pktline.WriteString(&buf, fmt.Sprintf("have %s\n", h)); err != nil {
			return nil, err
		}
	}
	if err := pktline.WriteString(&buf, "done\n"); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// consumeAckPreamble reads ACK/NAK pkt-lines directly off r (not
// through a flush-terminated Scanner: the negotiation preamble ends
// on NAK or a two-token ACK, after which the stream becomes raw
// side-band bytes with no further pkt-line framing) until either a
// bare NAK or a two-token ACK is seen, per multi_ack_detailed.
func consumeAckPreamble(r io.Reader) error {
	for {
		line, err := pktline.ReadString(r)
		if errors.Is(err, pktline.ErrFlush) {
			continue
		}
		if err != nil {
			return fmt.Errorf("fetch: reading ACK/NAK preamble: %w", err)
		}

		line = strings.TrimRight(line, "\n")
		fields := strings.Fields(line)
		if len(fields) == 0 {
			return fmt.Errorf("fetch: empty ACK/NAK line")
		}
		switch fields[0] {
		case "NAK":
			return nil
		case "ACK":
			if len(fields) >= 2 {
				return nil
			}
		default:
			return fmt.Errorf("fetch: unexpected negotiation line %q", line)
		}
	}
}

func checkStatus(res *http.Response) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}
	switch res.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("fetch: %w: %s", ErrUnauthorized, res.Status)
	case http.StatusForbidden:
		return fmt.Errorf("fetch: %w: %s", ErrPermissionDenied, res.Status)
	case http.StatusNotFound:
		return fmt.Errorf("fetch: %w: %s", ErrNotFound, res.Status)
	default:
		if res.StatusCode >= 500 || res.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("fetch: %w: %s", ErrServerUnavailable, res.Status)
		}
		return fmt.Errorf("fetch: unexpected status %s", res.Status)
	}
}

func firstErr(errs ...error) error {
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}
