package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/coldpath/gitalarm"
	"github.com/coldpath/gitalarm/github"
	"github.com/coldpath/gitalarm/internal/signalctl"
	"github.com/coldpath/gitalarm/log"
)

var (
	smallMin int
	smallMax int
)

var smallCmd = &cobra.Command{
	Use:   "small [<start-page>]",
	Short: "Discover and acquire small repositories by size, sector search",
	Long: `small walks GitHub's search results for repositories whose reported
size falls in [--small-min, --small-max] kilobytes, in sectors of
decreasing star count once a sector is exhausted against the search
API's 1000-result cap, and acquires everything it finds. Starting at a
page beyond the first sector backfills every earlier sector's max star
count first, so discovery can resume at an arbitrary page.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSmall,
}

func init() {
	smallCmd.Flags().IntVar(&smallMin, "small-min", 10000, "Minimum repository size in kilobytes")
	smallCmd.Flags().IntVar(&smallMax, "small-max", 100000, "Maximum repository size in kilobytes")
	rootCmd.AddCommand(smallCmd)
}

func runSmall(cmd *cobra.Command, args []string) error {
	startPage := 1
	if len(args) == 1 {
		p, err := strconv.Atoi(args[0])
		if err != nil || p < 1 {
			return fmt.Errorf("invalid start page %q", args[0])
		}
		startPage = p
	}

	ctx := cmd.Context()
	logger := newLogger()
	ctx = log.ToContext(ctx, logger)

	stop := signalctl.Install()
	defer stop()

	gh := github.New(resolvedToken(), nil)
	win := github.SizeWindow{Min: smallMin, Max: smallMax}
	sectorMaxStars := map[int]int{}

	var repos []gitalarm.Repo
	for page := startPage; ; page++ {
		if signalctl.StopRequested() {
			logger.Info("stop requested, ending discovery early", "page", page)
			break
		}
		found, err := gh.SmallRepos(ctx, win, page, sectorMaxStars)
		if err != nil {
			logger.Warn("small-repository search failed, stopping discovery", "page", page, "error", err)
			break
		}
		if len(found) == 0 {
			break
		}
		for _, r := range found {
			repos = append(repos, gitalarm.Repo{Owner: r.Owner, Name: r.Name})
		}
		logger.Info("small-repository search page complete", "page", page, "found", len(found))
	}

	a, err := newAcquirer(ctx, "small.garc", logger)
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
