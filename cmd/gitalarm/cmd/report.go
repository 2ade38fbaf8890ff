package cmd

import (
	"sync"
	"time"

	"github.com/coldpath/gitalarm"
	"github.com/coldpath/gitalarm/cmd/gitalarm/internal/output"
)

// resultReporter wires Acquirer.AcquireAll's per-repository callback to
// a Formatter: every RepoResult becomes one Formatter.RepoResult call
// plus a (throttled) Formatter.Progress line, and the repo-level
// acquired/already-indexed/failed counts are tallied for one final
// Summary call, replacing the binary all-or-nothing guess the CLI
// previously reported (spec.md:201).
type resultReporter struct {
	f output.Formatter

	mu       sync.Mutex
	lastProg time.Time

	acquired int
	skipped  int
	failed   int
}

func newResultReporter(f output.Formatter) *resultReporter {
	return &resultReporter{f: f}
}

// onResult is the gitalarm.AcquireAll callback.
func (r *resultReporter) onResult(res gitalarm.RepoResult) {
	r.progress(res.Owner + "/" + res.Name)

	switch {
	case res.AlreadyIndexed:
		r.skipped++
	case res.Err != nil:
		r.failed++
	default:
		r.acquired++
	}

	r.f.RepoResult(output.Result{
		Owner:   res.Owner,
		Name:    res.Name,
		Commits: res.Stats.Commits,
		Trees:   res.Stats.Trees,
		Skipped: res.Stats.Skipped,
		Total:   res.Stats.Total,
		Err:     res.Err,
	})
}

// progress forwards msg to the Formatter at most once per wall-clock
// second (spec.md:201); calls arriving sooner are dropped rather than
// queued, since Progress is a transient status line, not a log.
func (r *resultReporter) progress(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.lastProg.IsZero() && time.Since(r.lastProg) < time.Second {
		return
	}
	r.lastProg = time.Now()
	r.f.Progress(msg)
}

// summary reports the tallied repo-level outcomes once.
func (r *resultReporter) summary() {
	r.f.Summary(r.acquired, r.skipped, r.failed)
}
