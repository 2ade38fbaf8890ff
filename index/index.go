// Package index implements the on-disk JSON index tracking which
// archive file holds which repository, and the last byte offset each
// file is known to be good up to (§4.10).
package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/coldpath/gitalarm/log"
)

// FileEntry records one tracked archive file's on-disk size (used to
// detect staleness between runs) and the byte offset, within its
// gunzipped content and counted from just after the magic header,
// that the last acquire run confirmed complete.
type FileEntry struct {
	Size   int64 `json:"size"`
	Offset int64 `json:"offset"`
}

// Index maps archive filenames to FileEntry and repositories (keyed
// "owner/name") to the filename that holds them.
type Index struct {
	Files map[string]FileEntry
	Repos map[string]string
}

// New returns an empty Index.
func New() *Index {
	return &Index{Files: map[string]FileEntry{}, Repos: map[string]string{}}
}

// RepoKey formats the "owner/name" key used in Repos.
func RepoKey(owner, name string) string {
	return owner + "/" + name
}

type onDisk struct {
	Files map[string]FileEntry `json:"files"`
	Repos map[string]string    `json:"repos"`
}

// Load reads the index file at path, returning a fresh empty Index if
// it does not yet exist.
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("index: opening %s: %w", path, err)
	}
	defer f.Close()

	var data onDisk
	if err := json.NewDecoder(f).Decode(&data); err != nil {
		return nil, fmt.Errorf("index: decoding %s: %w", path, err)
	}

	idx := New()
	if data.Files != nil {
		idx.Files = data.Files
	}
	if data.Repos != nil {
		idx.Repos = data.Repos
	}
	return idx, nil
}

// Save writes idx to path as indented JSON.
func Save(path string, idx *Index) error {
	data := onDisk{Files: idx.Files, Repos: idx.Repos}
	buf, err := json.MarshalIndent(data, "", "    ")
	if err != nil {
		return fmt.Errorf("index: encoding: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("index: writing %s: %w", path, err)
	}
	return nil
}

// SetFile records that filename holds size bytes, confirmed good up
// to offset, and covers repos (each formatted via RepoKey). A repo
// already mapped to a different file is left untouched and logged,
// rather than silently reassigned.
func (idx *Index) SetFile(logger log.Logger, filename string, size, offset int64, repos []string) {
	idx.Files[filename] = FileEntry{Size: size, Offset: offset}
	for _, repo := range repos {
		if existing, ok := idx.Repos[repo]; ok && existing != filename {
			logger.Warn("repository present in two archive files", "repo", repo, "file", filename, "existing", existing)
			continue
		}
		idx.Repos[repo] = filename
	}
}

// Prune drops any file entry whose recorded size no longer matches
// its current size under dataDir (the file was modified or removed
// out from under the index since it was last written), along with any
// repo entries that pointed only at a pruned file.
func (idx *Index) Prune(dataDir string) {
	keep := make(map[string]bool, len(idx.Files))
	for name, entry := range idx.Files {
		info, err := os.Stat(filepath.Join(dataDir, name))
		if err != nil || info.Size() != entry.Size {
			delete(idx.Files, name)
			continue
		}
		keep[name] = true
	}
	for repo, file := range idx.Repos {
		if !keep[file] {
			delete(idx.Repos, repo)
		}
	}
}
