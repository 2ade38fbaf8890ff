package output

import (
	"fmt"
	"os"
)

// humanFormatter writes plain text to stdout/stderr. The teacher CLI's
// human writer colorizes with github.com/fatih/color, but that
// dependency lives only in the teacher's separate cli/go.mod, not in
// this module's go.mod, so this prints uncolored text instead.
type humanFormatter struct{}

// NewHumanFormatter returns the default, human-readable Formatter.
func NewHumanFormatter() Formatter {
	return humanFormatter{}
}

func (humanFormatter) Progress(msg string) {
	fmt.Fprintln(os.Stderr, msg)
}

func (humanFormatter) RepoResult(r Result) {
	if r.Err != nil {
		fmt.Fprintf(os.Stderr, "%s/%s: failed: %v\n", r.Owner, r.Name, r.Err)
		return
	}
	fmt.Printf("%s/%s: %d commits, %d trees, %d skipped, %d total\n",
		r.Owner, r.Name, r.Commits, r.Trees, r.Skipped, r.Total)
}

func (humanFormatter) Summary(acquired, skipped, failed int) {
	fmt.Printf("done: %d acquired, %d already indexed, %d failed\n", acquired, skipped, failed)
}
