package cmd

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/coldpath/gitalarm"
	"github.com/coldpath/gitalarm/index"
)

var genindexCmd = &cobra.Command{
	Use:   "genindex",
	Short: "Rebuild the index by rescanning every archive file in the data directory",
	Long: `genindex trusts no previously saved index: it rescans every file in
the data directory with the resume scanner and writes a fresh index
reflecting exactly what is confirmed on disk.`,
	Args: cobra.NoArgs,
	RunE: runGenindex,
}

func init() {
	rootCmd.AddCommand(genindexCmd)
}

func runGenindex(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	idx, err := gitalarm.RebuildIndex(dataDir, logger)
	if err != nil {
		return err
	}

	path := indexPath
	if path == "" {
		path = filepath.Join(dataDir, "index.json")
	}
	if err := index.Save(path, idx); err != nil {
		return err
	}

	f := newFormatter()
	f.Summary(len(idx.Repos), 0, 0)
	return nil
}
