package gitalarm

import (
	"os"
	"path/filepath"

	"github.com/coldpath/gitalarm/index"
	"github.com/coldpath/gitalarm/log"
)

// RebuildIndex walks dataDir and rescans every regular file in it with
// the resume scanner (§4.9), discarding files that are not valid
// archives, and returns a fresh Index built entirely from what the
// scan confirms is on disk. This is the `genindex` command's
// operation (§11.5/§4.10): it never trusts a previously saved index,
// only the archives themselves.
func RebuildIndex(dataDir string, logger log.Logger) (*index.Index, error) {
	if logger == nil {
		logger = log.Noop()
	}

	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, err
	}

	idx := index.New()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		path := filepath.Join(dataDir, name)

		records, offset, err := scanArchive(path)
		if err != nil {
			logger.Warn("skipping file that is not a valid archive", "file", name, "error", err)
			continue
		}
		info, err := entry.Info()
		if err != nil {
			logger.Warn("stat failed, skipping", "file", name, "error", err)
			continue
		}

		repoKeys := make([]string, len(records))
		for i, r := range records {
			repoKeys[i] = index.RepoKey(r.Owner, r.Name)
		}
		idx.SetFile(logger, name, info.Size(), offset, repoKeys)
		logger.Info("indexed archive", "file", name, "repositories", len(records))
	}

	return idx, nil
}
