package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coldpath/gitalarm"
	"github.com/coldpath/gitalarm/internal/signalctl"
	"github.com/coldpath/gitalarm/log"
)

var acquireCmd = &cobra.Command{
	Use:   "acquire <archive> <owner>/<repo>...",
	Short: "Acquire commit and tree metadata for one or more repositories into an archive",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runAcquire,
}

func init() {
	rootCmd.AddCommand(acquireCmd)
}

func runAcquire(cmd *cobra.Command, args []string) error {
	archiveName := args[0]

	repos, err := parseRepoArgs(args[1:])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	logger := newLogger()
	ctx = log.ToContext(ctx, logger)

	stop := signalctl.Install()
	defer stop()

	a, err := newAcquirer(ctx, archiveName, logger)
	if err != nil {
		return err
	}

	reporter := newResultReporter(newFormatter())
	runErr := a.AcquireAll(ctx, repos, reporter.onResult)

	finishErr := a.Finish()
	reporter.summary()
	if finishErr != nil {
		if runErr != nil {
			return fmt.Errorf("%w (after acquisition error: %v)", finishErr, runErr)
		}
		return finishErr
	}
	return runErr
}

// parseRepoArgs splits each "owner/repo" argument.
func parseRepoArgs(args []string) ([]gitalarm.Repo, error) {
	repos := make([]gitalarm.Repo, 0, len(args))
	for _, r := range args {
		owner, name, ok := strings.Cut(r, "/")
		if !ok || owner == "" || name == "" {
			return nil, fmt.Errorf("invalid repository %q, expected owner/repo", r)
		}
		repos = append(repos, gitalarm.Repo{Owner: owner, Name: name})
	}
	return repos, nil
}

