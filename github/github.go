// Package github implements the hosted-API client used for the
// best-effort file-prefetch tree walk, repository discovery
// (top-starred-by-language and small-by-size search), and rate-limit
// bookkeeping.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/coldpath/gitalarm/log"
	"github.com/coldpath/gitalarm/retry"
)

const apiBase = "https://api.github.com"

// RateLimit tracks the remaining core/search API quota, refreshed
// from the X-RateLimit-* response headers of every request.
type RateLimit struct {
	CoreLeft    int
	CoreReset   time.Time
	SearchLeft  int
	SearchReset time.Time
}

// HasLeft reports whether at least core and search requests remain
// in the current (or an already-expired) window.
func (l RateLimit) HasLeft(core, search int) bool {
	now := time.Now()
	coreOK := l.CoreLeft >= core || l.CoreReset.Before(now)
	searchOK := l.SearchLeft >= search || l.SearchReset.Before(now)
	return coreOK && searchOK
}

// Client talks to the GitHub REST API with a token and tracks rate
// limit state across calls.
type Client struct {
	http  *http.Client
	token string
	limit RateLimit
}

// New creates a Client authenticated with token (sent as
// "Authorization: token <token>", matching the hosted API's classic
// PAT scheme).
func New(token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{http: httpClient, token: token}
}

// RateLimit returns the most recently observed quota snapshot.
func (c *Client) RateLimit() RateLimit { return c.limit }

// File is one blob entry discovered while walking a tree: its size
// (for sort-by-size prefetch ordering) and its object id.
type File struct {
	Size int64
	ID   string
}

// Files walks the trees of the first maxRefs refs of owner/repo
// (recursively) and returns every blob's (size, id), largest first. Any failure is
// swallowed and reported as an empty slice: this is a best-effort
// negotiation hint, not a hard dependency (§4.7).
func (c *Client) Files(ctx context.Context, owner, repo string, maxRefs int) []File {
	files, err := c.files(ctx, owner, repo, maxRefs)
	if err != nil {
		log.FromContextOrNoop(ctx).Warn("file prefetch failed, continuing without haves", "owner", owner, "repo", repo, "error", err)
		return nil
	}
	return files
}

func (c *Client) files(ctx context.Context, owner, repo string, maxRefs int) ([]File, error) {
	if !c.limit.HasLeft(1+2*maxRefs, 0) {
		return nil, fmt.Errorf("github: insufficient core rate limit remaining for tree walk")
	}

	var refs []struct {
		Object struct {
			SHA string `json:"sha"`
		} `json:"object"`
	}
	if err := c.get(ctx, fmt.Sprintf("/repos/%s/%s/git/refs", owner, repo), &refs); err != nil {
		return nil, err
	}
	if len(refs) > maxRefs {
		refs = refs[:maxRefs]
	}

	seenCommits := make(map[string]bool)
	seenTrees := make(map[string]bool)
	seenFiles := make(map[string]File)

	for _, r := range refs {
		sha := r.Object.SHA
		if seenCommits[sha] {
			continue
		}
		seenCommits[sha] = true

		var commit struct {
			Tree struct {
				SHA string `json:"sha"`
			} `json:"tree"`
		}
		if err := c.get(ctx, fmt.Sprintf("/repos/%s/%s/git/commits/%s", owner, repo, sha), &commit); err != nil {
			return nil, err
		}
		if seenTrees[commit.Tree.SHA] {
			continue
		}
		seenTrees[commit.Tree.SHA] = true

		var tree struct {
			Tree []struct {
				Type string `json:"type"`
				SHA  string `json:"sha"`
				Size int64  `json:"size"`
			} `json:"tree"`
		}
		if err := c.get(ctx, fmt.Sprintf("/repos/%s/%s/git/trees/%s?recursive=1", owner, repo, commit.Tree.SHA), &tree); err != nil {
			return nil, err
		}
		for _, entry := range tree.Tree {
			if entry.Type != "blob" {
				continue
			}
			seenFiles[entry.SHA] = File{Size: entry.Size, ID: entry.SHA}
		}
	}

	files := make([]File, 0, len(seenFiles))
	for _, f := range seenFiles {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Size > files[j].Size })
	return files, nil
}

// Repo identifies a repository for acquisition.
type Repo struct {
	Owner string
	Name  string
}

// TopByLanguage returns up to the top 100 repositories for lang,
// sorted by star count descending.
func (c *Client) TopByLanguage(ctx context.Context, lang string) ([]Repo, error) {
	q := url.Values{
		"q":        {fmt.Sprintf("language:%q", lang)},
		"sort":     {"stars"},
		"per_page": {"100"},
	}
	return c.searchRepos(ctx, q)
}

// SizeWindow is the [min, max] byte-size range (in GitHub's
// kilobyte-reported `size` field) small-repository discovery searches.
type SizeWindow struct {
	Min, Max int
}

// SmallReposPagesPerSector is how many pages SmallRepos walks within
// one star-count sector before it needs the sector's last page's star
// count (via sectorMaxStars) to continue into the next, narrower one.
const SmallReposPagesPerSector = 10

// SmallRepos paginates through repositories whose reported size falls
// in [min, max], newest-stars-first, the way the original crawler's
// sector/page scheme avoids GitHub's 1000-result search cap: once a
// page's last item's star count is known, the next sector searches
// "stars:<=N" to continue past the cap. sectorMaxStars is both read
// and written in place: if page lands in a sector whose max star count
// isn't known yet, SmallRepos backfills it first by recursively
// walking the missing earlier sectors' final pages, matching
// original_source/alarm.py:171-178's get_small_repos_helper recursion
// (`if sector not in global_sector_max_stars: get_small_repos_helper(sector - 1, ...)`)
// — this is what lets a caller resume discovery at an arbitrary start
// page (spec.md:187) instead of only ever walking sectors in order.
func (c *Client) SmallRepos(ctx context.Context, win SizeWindow, page int, sectorMaxStars map[int]int) ([]Repo, error) {
	sector := (page - 1) / SmallReposPagesPerSector
	pageInSector := page - sector*SmallReposPagesPerSector
	return c.smallReposSector(ctx, win, sector, pageInSector, sectorMaxStars)
}

func (c *Client) smallReposSector(ctx context.Context, win SizeWindow, sector, pageInSector int, sectorMaxStars map[int]int) ([]Repo, error) {
	suffix := ""
	if sector > 0 {
		maxStars, ok := sectorMaxStars[sector]
		if !ok {
			if _, err := c.smallReposSector(ctx, win, sector-1, SmallReposPagesPerSector, sectorMaxStars); err != nil {
				return nil, fmt.Errorf("github: backfilling sector %d to reach sector %d: %w", sector-1, sector, err)
			}
			maxStars, ok = sectorMaxStars[sector]
			if !ok {
				return nil, fmt.Errorf("github: sector %d has no max star count even after backfilling sector %d", sector, sector-1)
			}
		}
		suffix = fmt.Sprintf(" stars:<=%d", maxStars)
	}

	q := url.Values{
		"q":        {fmt.Sprintf("size:%d..%d%s", win.Min, win.Max, suffix)},
		"sort":     {"stars"},
		"per_page": {"100"},
		"page":     {strconv.Itoa(pageInSector)},
	}

	var resp struct {
		Items []struct {
			Owner struct {
				Login string `json:"login"`
			} `json:"owner"`
			Name            string `json:"name"`
			StargazersCount int    `json:"stargazers_count"`
		} `json:"items"`
	}
	if err := c.getSearch(ctx, q, &resp); err != nil {
		return nil, err
	}

	if pageInSector == SmallReposPagesPerSector && len(resp.Items) > 0 {
		sectorMaxStars[sector+1] = resp.Items[len(resp.Items)-1].StargazersCount
	}

	repos := make([]Repo, 0, len(resp.Items))
	for _, it := range resp.Items {
		repos = append(repos, Repo{Owner: it.Owner.Login, Name: it.Name})
	}
	return repos, nil
}

func (c *Client) searchRepos(ctx context.Context, q url.Values) ([]Repo, error) {
	var resp struct {
		Items []struct {
			Owner struct {
				Login string `json:"login"`
			} `json:"owner"`
			Name string `json:"name"`
		} `json:"items"`
	}
	if err := c.getSearch(ctx, q, &resp); err != nil {
		return nil, err
	}
	repos := make([]Repo, 0, len(resp.Items))
	for _, it := range resp.Items {
		repos = append(repos, Repo{Owner: it.Owner.Login, Name: it.Name})
	}
	return repos, nil
}

func (c *Client) getSearch(ctx context.Context, q url.Values, out any) error {
	return c.request(ctx, "/search/repositories?"+q.Encode(), true, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.request(ctx, path, false, out)
}

// request performs one authenticated GET, waiting out the rate-limit
// reset window first if the relevant quota is exhausted, and updates
// the tracked RateLimit from the response headers afterward.
func (c *Client) request(ctx context.Context, path string, isSearch bool, out any) error {
	logger := log.FromContextOrNoop(ctx)

	left, reset := c.limit.CoreLeft, c.limit.CoreReset
	if isSearch {
		left, reset = c.limit.SearchLeft, c.limit.SearchReset
	}
	if left == 0 {
		if wait := time.Until(reset); wait > 0 {
			logger.Info("no api requests remaining, waiting for reset", "wait", wait.String())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}

	u := apiBase + path
	return retry.DoVoid(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/vnd.github.v3+json")
		req.Header.Set("Authorization", "token "+c.token)

		res, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("github: requesting %s: %w", path, err)
		}
		defer res.Body.Close()

		c.updateRateLimit(isSearch, res.Header)

		if res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500 {
			return fmt.Errorf("github: %s: status %s: %w", path, res.Status, retry.ErrTransient)
		}
		if res.StatusCode < 200 || res.StatusCode >= 300 {
			return fmt.Errorf("github: %s: status %s", path, res.Status)
		}

		if out != nil {
			if err := json.NewDecoder(res.Body).Decode(out); err != nil {
				return fmt.Errorf("github: decoding %s response: %w", path, err)
			}
		}
		return nil
	})
}

func (c *Client) updateRateLimit(isSearch bool, h http.Header) {
	remaining, errR := strconv.Atoi(h.Get("X-RateLimit-Remaining"))
	resetUnix, errE := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64)
	if errR != nil || errE != nil {
		return
	}
	reset := time.Unix(resetUnix+2, 0)

	if isSearch {
		c.limit.SearchLeft = remaining
		c.limit.SearchReset = reset
	} else {
		c.limit.CoreLeft = remaining
		c.limit.CoreReset = reset
	}
}
