// Package cmd implements the gitalarm CLI, grounded on the teacher
// CLI's cli/cmd package layering: a cobra root command carrying
// persistent flags, with one file per subcommand (§11.5).
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/coldpath/gitalarm"
	"github.com/coldpath/gitalarm/cmd/gitalarm/internal/auth"
	"github.com/coldpath/gitalarm/cmd/gitalarm/internal/output"
	"github.com/coldpath/gitalarm/log"
	"github.com/coldpath/gitalarm/retry"
)

var (
	dataDir   string
	indexPath string
	token     string
	userAgent string
	filesMax  int
	resume    bool
	jsonOut   bool
	debug     bool
)

var rootCmd = &cobra.Command{
	Use:   "gitalarm",
	Short: "Acquire and archive git repository metadata",
	Long: `gitalarm fetches commit and tree metadata from hosted git repositories
and archives it into a single compressed file per run.

A token can be provided via --token or the environment:
  - GITALARM_TOKEN: general token
  - GITHUB_TOKEN:   GitHub-specific token`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", ".", "Directory holding archive files and the index")
	rootCmd.PersistentFlags().StringVar(&indexPath, "index", "", "Index file path (defaults to <data-dir>/index.json)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "Authentication token")
	rootCmd.PersistentFlags().StringVar(&userAgent, "user-agent", "", "User-Agent header sent on outgoing requests")
	rootCmd.PersistentFlags().IntVar(&filesMax, "files-max", 0, "Maximum number of prefetched blob ids sent as have lines (0 = default)")
	rootCmd.PersistentFlags().BoolVar(&resume, "resume", false, "Resume an existing archive instead of rotating it to a backup")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if debug {
			if err := os.Setenv("GITALARM_LOG_LEVEL", "debug"); err != nil {
				return fmt.Errorf("failed to set debug log level: %w", err)
			}
		}
		return nil
	}
}

// getOutputFormat returns "json" if the --json flag is set, otherwise "human".
func getOutputFormat() string {
	if jsonOut {
		return "json"
	}
	return "human"
}

// resolvedToken applies --token over the environment fallback chain.
func resolvedToken() string {
	return auth.ResolveToken(token)
}

// newLogger builds a slog-backed log.Logger at debug or info level
// depending on --debug / GITALARM_LOG_LEVEL, matching the teacher
// CLI's --debug toggle.
func newLogger() log.Logger {
	level := slog.LevelInfo
	if debug || os.Getenv("GITALARM_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return log.NewSlog(slog.New(handler))
}

// newFormatter returns the Formatter selected by --json.
func newFormatter() output.Formatter {
	return output.Get(getOutputFormat())
}

// newAcquirer builds an Acquirer from the persistent flags shared by
// every subcommand that opens an archive.
func newAcquirer(ctx context.Context, archiveName string, logger log.Logger) (*gitalarm.Acquirer, error) {
	opts := []gitalarm.Option{
		gitalarm.WithLogger(logger),
		gitalarm.WithResume(resume),
		gitalarm.WithRetrier(retry.NewExponentialBackoffRetrier()),
	}
	if indexPath != "" {
		opts = append(opts, gitalarm.WithIndexPath(indexPath))
	}
	if userAgent != "" {
		opts = append(opts, gitalarm.WithUserAgent(userAgent))
	}
	if filesMax > 0 {
		opts = append(opts, gitalarm.WithFilesMax(filesMax))
	}
	if t := resolvedToken(); t != "" {
		opts = append(opts, gitalarm.WithTokenAuth(t))
	}
	return gitalarm.New(ctx, archiveName, gitalarm.Config{DataDir: dataDir}, opts...)
}
