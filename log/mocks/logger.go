// Written by hand in the shape counterfeiter generates; see FakeLogger.
package mocks

import (
	"sync"

	"github.com/coldpath/gitalarm/log"
)

// FakeLogger is a hand-written stand-in for a counterfeiter-generated
// fake of log.Logger, recording every call for test assertions since
// the generator itself cannot be run here.
type FakeLogger struct {
	DebugStub        func(string, ...any)
	DebugMutex       sync.Mutex
	DebugArgsForCall []struct {
		Msg           string
		KeysAndValues []any
	}

	InfoStub        func(string, ...any)
	InfoMutex       sync.Mutex
	InfoArgsForCall []struct {
		Msg           string
		KeysAndValues []any
	}

	WarnStub        func(string, ...any)
	WarnMutex       sync.Mutex
	WarnArgsForCall []struct {
		Msg           string
		KeysAndValues []any
	}

	ErrorStub        func(string, ...any)
	ErrorMutex       sync.Mutex
	ErrorArgsForCall []struct {
		Msg           string
		KeysAndValues []any
	}
}

var _ log.Logger = &FakeLogger{}

func (f *FakeLogger) Debug(msg string, keysAndValues ...any) {
	f.DebugMutex.Lock()
	defer f.DebugMutex.Unlock()
	f.DebugArgsForCall = append(f.DebugArgsForCall, struct {
		Msg           string
		KeysAndValues []any
	}{msg, keysAndValues})
	if f.DebugStub != nil {
		f.DebugStub(msg, keysAndValues...)
	}
}

func (f *FakeLogger) Info(msg string, keysAndValues ...any) {
	f.InfoMutex.Lock()
	defer f.InfoMutex.Unlock()
	f.InfoArgsForCall = append(f.InfoArgsForCall, struct {
		Msg           string
		KeysAndValues []any
	}{msg, keysAndValues})
	if f.InfoStub != nil {
		f.InfoStub(msg, keysAndValues...)
	}
}

func (f *FakeLogger) Warn(msg string, keysAndValues ...any) {
	f.WarnMutex.Lock()
	defer f.WarnMutex.Unlock()
	f.WarnArgsForCall = append(f.WarnArgsForCall, struct {
		Msg           string
		KeysAndValues []any
	}{msg, keysAndValues})
	if f.WarnStub != nil {
		f.WarnStub(msg, keysAndValues...)
	}
}

func (f *FakeLogger) Error(msg string, keysAndValues ...any) {
	f.ErrorMutex.Lock()
	defer f.ErrorMutex.Unlock()
	f.ErrorArgsForCall = append(f.ErrorArgsForCall, struct {
		Msg           string
		KeysAndValues []any
	}{msg, keysAndValues})
	if f.ErrorStub != nil {
		f.ErrorStub(msg, keysAndValues...)
	}
}

// WarnCallCount returns how many times Warn was called.
func (f *FakeLogger) WarnCallCount() int {
	f.WarnMutex.Lock()
	defer f.WarnMutex.Unlock()
	return len(f.WarnArgsForCall)
}
