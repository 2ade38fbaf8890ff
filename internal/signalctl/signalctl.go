// Package signalctl implements the global, single-producer
// single-consumer stop flag described in SPEC_FULL.md §5/§11.4:
// a first SIGINT asks the acquisition loop to stop between
// repositories, a second terminates the process immediately, matching
// original_source/alarm.py's request_stop_handler/global_stop_flag.
package signalctl

import (
	"os"
	"os/signal"
	"sync/atomic"
)

// hardAbortExitCode matches the prior implementation's exit code for
// a forced, second-interrupt abort.
const hardAbortExitCode = 5

var stopRequested atomic.Bool

// StopRequested reports whether a stop has been requested. Callers
// check this between repositories, never mid-repository.
func StopRequested() bool {
	return stopRequested.Load()
}

// Install starts a goroutine that sets the stop flag on the first
// os.Interrupt and calls os.Exit(5) on a second one. It returns a
// stop function that releases the signal notification; call it (e.g.
// via defer) once the caller no longer wants interrupts intercepted.
func Install() (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ch:
				if stopRequested.Swap(true) {
					os.Exit(hardAbortExitCode)
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(ch)
		close(done)
	}
}

// reset clears the stop flag; used by tests that install the handler
// more than once within a process.
func reset() {
	stopRequested.Store(false)
}
