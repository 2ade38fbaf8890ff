package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coldpath/gitalarm"
	"github.com/coldpath/gitalarm/github"
	"github.com/coldpath/gitalarm/internal/signalctl"
	"github.com/coldpath/gitalarm/log"
)

var byLanguageCmd = &cobra.Command{
	Use:   "by-language <file>",
	Short: "Acquire the top starred repositories for each language listed in a file",
	Long: `by-language reads a newline-separated list of language names from
<file>, queries the top 100 starred repositories for each, and acquires
all of them into an archive named after the input file.`,
	Args: cobra.ExactArgs(1),
	RunE: runByLanguage,
}

func init() {
	rootCmd.AddCommand(byLanguageCmd)
}

func runByLanguage(cmd *cobra.Command, args []string) error {
	languages, err := readLines(args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	logger := newLogger()
	ctx = log.ToContext(ctx, logger)

	stop := signalctl.Install()
	defer stop()

	gh := github.New(resolvedToken(), nil)

	var repos []gitalarm.Repo
	for _, lang := range languages {
		found, err := gh.TopByLanguage(ctx, lang)
		if err != nil {
			logger.Warn("language search failed, skipping", "language", lang, "error", err)
			continue
		}
		for _, r := range found {
			repos = append(repos, gitalarm.Repo{Owner: r.Owner, Name: r.Name})
		}
		logger.Info("language search complete", "language", lang, "found", len(found))
	}

	archiveName := strings.TrimSuffix(args[0], ".txt") + ".garc"
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

// readLines returns every non-blank, non-comment line of path.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return lines, nil
}
