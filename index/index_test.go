package index_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coldpath/gitalarm/index"
	"github.com/coldpath/gitalarm/log"
)

func TestLoadMissingFileReturnsEmptyIndex(t *testing.T) {
	idx, err := index.Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	require.Empty(t, idx.Files)
	require.Empty(t, idx.Repos)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")

	idx := index.New()
	idx.SetFile(log.Noop(), "a.alarm.gz", 1024, 512, []string{index.RepoKey("acme", "widgets")})
	require.NoError(t, index.Save(path, idx))

	loaded, err := index.Load(path)
	require.NoError(t, err)
	require.Equal(t, int64(1024), loaded.Files["a.alarm.gz"].Size)
	require.Equal(t, int64(512), loaded.Files["a.alarm.gz"].Offset)
	require.Equal(t, "a.alarm.gz", loaded.Repos["acme/widgets"])
}

func TestSetFileDoesNotReassignRepoToADifferentFile(t *testing.T) {
	idx := index.New()
	idx.SetFile(log.Noop(), "a.alarm.gz", 10, 10, []string{"acme/widgets"})
	idx.SetFile(log.Noop(), "b.alarm.gz", 20, 20, []string{"acme/widgets"})
	require.Equal(t, "a.alarm.gz", idx.Repos["acme/widgets"])
}

func TestPruneDropsStaleFilesAndTheirRepos(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "current.alarm.gz"), []byte("1234"), 0o644))

	idx := index.New()
	idx.SetFile(log.Noop(), "current.alarm.gz", 4, 4, []string{"acme/current"})
	idx.SetFile(log.Noop(), "stale.alarm.gz", 999, 999, []string{"acme/stale"})

	idx.Prune(dir)

	require.Contains(t, idx.Files, "current.alarm.gz")
	require.NotContains(t, idx.Files, "stale.alarm.gz")
	require.Contains(t, idx.Repos, "acme/current")
	require.NotContains(t, idx.Repos, "acme/stale")
}
