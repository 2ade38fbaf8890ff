// Package gitalarm ties the fetcher, streaming pack parser, archive
// writer and on-disk index together into the single per-repository
// and per-repository-list operations a caller actually wants, the way
// original_source/alarm.py's acquire_metadata does for its own
// process.
package gitalarm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/errgroup"

	"github.com/coldpath/gitalarm/archive"
	"github.com/coldpath/gitalarm/fetch"
	"github.com/coldpath/gitalarm/github"
	"github.com/coldpath/gitalarm/index"
	"github.com/coldpath/gitalarm/internal/signalctl"
	"github.com/coldpath/gitalarm/log"
	"github.com/coldpath/gitalarm/packscan"
	"github.com/coldpath/gitalarm/retry"
)

// Repo names one repository to acquire.
type Repo struct {
	Owner string
	Name  string
}

// Fetcher is the negotiation surface Acquirer needs from a fetch.Client,
// narrowed to an interface so tests can substitute a fake (§11.8).
type Fetcher interface {
	Advertisement(ctx context.Context) ([]fetch.Ref, error)
	Pack(ctx context.Context, want string, have []string) (io.ReadCloser, error)
}

// FetcherFactory builds a Fetcher scoped to one owner/name, since
// fetch.Client is bound to a single repository's base URL.
type FetcherFactory func(owner, name string) (Fetcher, error)

// FilePrefetcher is the surface Acquirer needs from a github.Client
// for the best-effort tree walk (§4.7).
type FilePrefetcher interface {
	Files(ctx context.Context, owner, repo string, maxRefs int) []github.File
}

// RepoResult reports one repository's outcome from AcquireAll: the
// object counts packscan.Stats produced if it was acquired, whether it
// was skipped because it was already indexed, or the error if the
// acquisition failed. Callers use this to surface real per-repository
// progress and summary counts (spec.md:201) instead of guessing them
// from the run's final error alone.
type RepoResult struct {
	Owner          string
	Name           string
	Stats          packscan.Stats
	AlreadyIndexed bool
	Err            error
}

// Acquirer drives repository acquisition into a single archive file,
// grounded on original_source/alarm.py's acquire_metadata.
type Acquirer struct {
	cfg Config

	archiveName string
	archivePath string

	idx    *index.Index
	logger log.Logger

	newFetcher FetcherFactory
	prefetch   FilePrefetcher

	f *os.File
	w *archive.Writer
}

// New opens (creating, rotating, or resuming as needed) the archive
// named archiveName under cfg.DataDir and loads the index, ready for
// Acquire/AcquireAll calls.
func New(ctx context.Context, archiveName string, cfg Config, opts ...Option) (*Acquirer, error) {
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("gitalarm: data directory is required")
	}
	if cfg.FilesMax <= 0 {
		cfg.FilesMax = defaultFilesMax
	}
	if cfg.IndexPath == "" {
		cfg.IndexPath = filepath.Join(cfg.DataDir, defaultIndexName)
	}
	if cfg.logger == nil {
		cfg.logger = log.Noop()
	}
	if cfg.retrier == nil {
		cfg.retrier = &retry.NoopRetrier{}
	}
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{}
	}

	idx, err := index.Load(cfg.IndexPath)
	if err != nil {
		return nil, err
	}
	idx.Prune(cfg.DataDir)

	archivePath := filepath.Join(cfg.DataDir, archiveName)
	f, w, err := openArchive(archivePath, archiveName, idx, cfg.Resume, cfg.logger)
	if err != nil {
		return nil, err
	}

	gh := github.New(tokenValue(cfg.tokenAuth), cfg.httpClient)

	a := &Acquirer{
		cfg:         cfg,
		archiveName: archiveName,
		archivePath: archivePath,
		idx:         idx,
		logger:      cfg.logger,
		prefetch:    gh,
		f:           f,
		w:           w,
	}
	a.newFetcher = func(owner, name string) (Fetcher, error) {
		repoURL := fmt.Sprintf("https://github.com/%s/%s", owner, name)
		fetchOpts := []fetch.Option{fetch.WithHTTPClient(cfg.httpClient)}
		if cfg.tokenAuth != nil {
			fetchOpts = append(fetchOpts, fetch.WithTokenAuth("token "+*cfg.tokenAuth))
		}
		if cfg.UserAgent != "" {
			fetchOpts = append(fetchOpts, fetch.WithUserAgent(cfg.UserAgent))
		}
		return fetch.New(repoURL, fetchOpts...)
	}
	return a, nil
}

func tokenValue(tok *string) string {
	if tok == nil {
		return ""
	}
	return *tok
}

// openArchive implements the backup-rotation/resume decision of
// §11.2/§4.9: a fresh path is created outright; an existing path is
// either rotated to "<name>.bak.<n>" and started over, or (if resume
// is requested) rescanned and its confirmed-complete prefix copied
// into a fresh file before appending continues.
func openArchive(path, filename string, idx *index.Index, resume bool, logger log.Logger) (*os.File, *archive.Writer, error) {
	_, statErr := os.Stat(path)
	if errors.Is(statErr, os.ErrNotExist) {
		f, err := os.Create(path)
		if err != nil {
			return nil, nil, fmt.Errorf("gitalarm: creating archive %s: %w", path, err)
		}
		w, err := archive.Create(f)
		if err != nil {
			f.Close()
			return nil, nil, err
		}
		return f, w, nil
	}
	if statErr != nil {
		return nil, nil, fmt.Errorf("gitalarm: stat %s: %w", path, statErr)
	}

	if !resume {
		bak, err := nextBackupPath(path)
		if err != nil {
			return nil, nil, err
		}
		if err := os.Rename(path, bak); err != nil {
			return nil, nil, fmt.Errorf("gitalarm: renaming %s to %s: %w", path, bak, err)
		}
		logger.Info("existing archive preserved as backup", "file", path, "backup", bak)

		f, err := os.Create(path)
		if err != nil {
			return nil, nil, fmt.Errorf("gitalarm: creating archive %s: %w", path, err)
		}
		w, err := archive.Create(f)
		if err != nil {
			f.Close()
			return nil, nil, err
		}
		return f, w, nil
	}

	records, offset, err := scanArchive(path)
	if err != nil {
		return nil, nil, fmt.Errorf("gitalarm: scanning %s for resume: %w", path, err)
	}
	logger.Info("resuming archive", "file", path, "repositories", len(records), "offset", offset)

	bak, err := nextBackupPath(path)
	if err != nil {
		return nil, nil, err
	}
	if err := os.Rename(path, bak); err != nil {
		return nil, nil, fmt.Errorf("gitalarm: renaming %s to %s: %w", path, bak, err)
	}

	old, err := os.Open(bak)
	if err != nil {
		return nil, nil, fmt.Errorf("gitalarm: reopening %s: %w", bak, err)
	}
	oldGz, err := gzip.NewReader(old)
	if err != nil {
		old.Close()
		return nil, nil, fmt.Errorf("gitalarm: gunzipping %s: %w", bak, err)
	}

	f, err := os.Create(path)
	if err != nil {
		old.Close()
		return nil, nil, fmt.Errorf("gitalarm: creating archive %s: %w", path, err)
	}
	w, err := archive.Resume(f)
	if err != nil {
		old.Close()
		f.Close()
		return nil, nil, err
	}
	if err := w.CopyPrefix(oldGz, int64(len(archive.Magic))+offset); err != nil {
		old.Close()
		f.Close()
		return nil, nil, fmt.Errorf("gitalarm: copying surviving prefix of %s: %w", bak, err)
	}
	old.Close()

	if err := os.Remove(bak); err != nil {
		logger.Warn("could not remove superseded backup", "backup", bak, "error", err)
	}

	repoKeys := make([]string, len(records))
	for i, r := range records {
		repoKeys[i] = index.RepoKey(r.Owner, r.Name)
	}
	if info, err := os.Stat(path); err == nil {
		idx.SetFile(logger, filename, info.Size(), offset, repoKeys)
	}

	return f, w, nil
}

// scanArchive gunzips path, validates the magic header, and runs the
// resume scanner over it (§4.9).
func scanArchive(path string) ([]archive.RepoRecord, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, 0, err
	}

	var magic [4]byte
	if _, err := io.ReadFull(gz, magic[:]); err != nil {
		return nil, 0, fmt.Errorf("gitalarm: reading magic header: %w", err)
	}
	if magic != archive.Magic {
		return nil, 0, ErrBadMagic
	}

	return archive.Scan(gz)
}

// nextBackupPath returns "<path>.bak.<n>" for the smallest n whose
// path does not already exist, matching original_source/alarm.py's
// backup-numbering loop in acquire_metadata.
func nextBackupPath(path string) (string, error) {
	for n := 0; ; n++ {
		candidate := fmt.Sprintf("%s.bak.%d", path, n)
		if _, err := os.Stat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		} else if err != nil {
			return "", fmt.Errorf("gitalarm: checking %s: %w", candidate, err)
		}
	}
}

// withRetrier installs the configured Retrier (§10.4) into ctx so
// every retry.Do/DoVoid call fetch and github make underneath this
// Acquirer actually retries according to it, instead of each silently
// falling back to FromContextOrNoop's NoopRetrier because nothing ever
// injected one.
func (a *Acquirer) withRetrier(ctx context.Context) context.Context {
	return retry.ToContext(ctx, a.cfg.retrier)
}

// Acquire runs the single-repository pipeline (§11.1): skip if
// already indexed, prefetch (best-effort), negotiate a pack, parse it,
// and re-emit retained objects into the open archive.
func (a *Acquirer) Acquire(ctx context.Context, owner, name string) error {
	ctx = a.withRetrier(ctx)
	_, err := a.acquireOne(ctx, owner, name, func() []github.File {
		return a.prefetch.Files(ctx, owner, name, prefetchRefs)
	})
	return err
}

// acquireOne runs the single-repository pipeline and returns the full
// RepoResult. haveFn is called (at most once, lazily) to obtain the
// prefetched have-IDs only if the repository isn't already indexed;
// AcquireAll passes a thunk returning its already-fetched overlap
// result instead of prefetching again.
func (a *Acquirer) acquireOne(ctx context.Context, owner, name string, haveFn func() []github.File) (RepoResult, error) {
	result := RepoResult{Owner: owner, Name: name}
	if a.alreadyIndexed(owner, name) {
		result.AlreadyIndexed = true
		return result, nil
	}
	var have []github.File
	if haveFn != nil {
		have = haveFn()
	}
	stats, err := a.acquireWithHaves(ctx, owner, name, have)
	result.Stats = stats
	result.Err = err
	return result, err
}

func (a *Acquirer) alreadyIndexed(owner, name string) bool {
	key := index.RepoKey(owner, name)
	if _, ok := a.idx.Repos[key]; ok {
		a.logger.Info("repository already archived, skipping", "repo", key)
		return true
	}
	return false
}

func (a *Acquirer) acquireWithHaves(ctx context.Context, owner, name string, have []github.File) (packscan.Stats, error) {
	key := index.RepoKey(owner, name)

	if len(have) > a.cfg.FilesMax {
		have = have[:a.cfg.FilesMax]
	}
	haveIDs := make([]string, 0, len(have))
	for _, f := range have {
		haveIDs = append(haveIDs, f.ID)
	}

	fetcher, err := a.newFetcher(owner, name)
	if err != nil {
		return packscan.Stats{}, fmt.Errorf("gitalarm: building fetcher for %s: %w", key, err)
	}

	refs, err := fetcher.Advertisement(ctx)
	if err != nil {
		return packscan.Stats{}, fmt.Errorf("gitalarm: fetching advertisement for %s: %w", key, err)
	}
	if len(refs) == 0 {
		return packscan.Stats{}, fmt.Errorf("gitalarm: %s: %w", key, ErrNoRefs)
	}
	want := refs[0].ID

	pack, err := fetcher.Pack(ctx, want, haveIDs)
	if err != nil {
		return packscan.Stats{}, fmt.Errorf("gitalarm: negotiating pack for %s: %w", key, err)
	}
	defer pack.Close()

	parser, err := packscan.NewParser(pack)
	if err != nil {
		return packscan.Stats{}, fmt.Errorf("gitalarm: opening pack for %s: %w", key, err)
	}

	stats, err := a.w.WriteRepo(owner, name, parser)
	a.logger.Info("acquired repository", "repo", key,
		"commits", stats.Commits, "trees", stats.Trees, "skipped", stats.Skipped, "total", stats.Total)
	if err != nil {
		return stats, fmt.Errorf("gitalarm: writing archive record for %s: %w", key, err)
	}
	return stats, nil
}

// AcquireAll runs Acquire over every repo in the list, overlapping
// each repository's file prefetch with the previous repository's core
// pipeline (§5.1) via golang.org/x/sync/errgroup. A stop request
// (internal/signalctl) is honored only between repositories, never
// mid-repository, since a half-written record would corrupt resume
// (§5). On the first repository-level failure, the run stops (writing
// a well-formed record after a corrupted one would make that
// corruption unrecoverable by the resume scanner) and ErrStopped wraps
// the underlying cause.
//
// onResult, if non-nil, is called once per repository actually reached
// (skipped-as-already-indexed, acquired, or failed) with its RepoResult,
// so a caller can surface real per-repository progress and summary
// counts (spec.md:201) instead of guessing them from the run's single
// aggregate error.
func (a *Acquirer) AcquireAll(ctx context.Context, repos []Repo, onResult func(RepoResult)) error {
	ctx = a.withRetrier(ctx)

	var g errgroup.Group
	var nextHave []github.File

	startPrefetch := func(i int) {
		if i >= len(repos) {
			return
		}
		r := repos[i]
		g.Go(func() error {
			nextHave = a.prefetch.Files(ctx, r.Owner, r.Name, prefetchRefs)
			return nil
		})
	}

	startPrefetch(0)
	for i, r := range repos {
		if signalctl.StopRequested() {
			a.logger.Info("stop requested, halting before next repository", "remaining", len(repos)-i)
			_ = g.Wait()
			return ErrStopped
		}

		_ = g.Wait()
		have := nextHave
		startPrefetch(i + 1)

		result, err := a.acquireOne(ctx, r.Owner, r.Name, func() []github.File { return have })
		if onResult != nil {
			onResult(result)
		}
		if result.AlreadyIndexed {
			continue
		}
		if err != nil {
			a.logger.Error("acquisition failed, stopping run", "repo", index.RepoKey(r.Owner, r.Name), "error", err)
			_ = g.Wait()
			return fmt.Errorf("%w: %w", ErrStopped, err)
		}
	}
	_ = g.Wait()
	return nil
}

// Finish closes the archive writer, rescans the finished file to
// determine exactly which repositories' records are complete (§4.9),
// records them in the index, and saves the index (§4.10). Finish must
// be called exactly once, whether or not AcquireAll/Acquire returned
// an error, so a repository-level failure still leaves a resumable
// archive and an up-to-date index.
func (a *Acquirer) Finish() error {
	closeErr := a.w.Close()
	if fErr := a.f.Close(); closeErr == nil {
		closeErr = fErr
	}
	if closeErr != nil {
		return fmt.Errorf("gitalarm: closing archive %s: %w", a.archivePath, closeErr)
	}

	records, offset, err := scanArchive(a.archivePath)
	if err != nil {
		return fmt.Errorf("gitalarm: rescanning %s: %w", a.archivePath, err)
	}
	info, err := os.Stat(a.archivePath)
	if err != nil {
		return fmt.Errorf("gitalarm: stat %s: %w", a.archivePath, err)
	}

	repoKeys := make([]string, len(records))
	for i, r := range records {
		repoKeys[i] = index.RepoKey(r.Owner, r.Name)
	}
	a.idx.SetFile(a.logger, a.archiveName, info.Size(), offset, repoKeys)

	if err := index.Save(a.cfg.IndexPath, a.idx); err != nil {
		return err
	}
	return nil
}
