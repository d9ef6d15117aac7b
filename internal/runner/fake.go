package runner

import (
	"context"
	"strings"
	"sync"

	"github.com/coldsentry-io/coldsentry/internal/faults"
)

// FakeRunner is a scripted Runner for tests. Responses are keyed by command
// prefix; unmatched commands succeed with empty output. Every invocation is
// recorded in order.
type FakeRunner struct {
	mu sync.Mutex

	// Responses maps a command-line prefix to the scripted result.
	Responses map[string]FakeResponse

	// Calls holds the command lines in invocation order.
	Calls []string
}

// FakeResponse is one scripted command outcome.
type FakeResponse struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

var _ Runner = (*FakeRunner)(nil)

func NewFake() *FakeRunner {
	return &FakeRunner{Responses: map[string]FakeResponse{}}
}

// Script registers a response for any command line starting with prefix.
func (f *FakeRunner) Script(prefix string, resp FakeResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Responses[prefix] = resp
}

// CallLines returns a copy of the recorded command lines.
func (f *FakeRunner) CallLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Calls...)
}

// CallsWithPrefix counts recorded commands starting with prefix.
func (f *FakeRunner) CallsWithPrefix(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (f *FakeRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	return f.invoke(true, name, args...)
}

func (f *FakeRunner) Probe(ctx context.Context, name string, args ...string) (Result, error) {
	return f.invoke(false, name, args...)
}

func (f *FakeRunner) invoke(check bool, name string, args ...string) (Result, error) {
	cmdline := strings.Join(append([]string{name}, args...), " ")

	f.mu.Lock()
	f.Calls = append(f.Calls, cmdline)
	var resp FakeResponse
	var found bool
	// Longest matching prefix wins so specific scripts can shadow broad ones.
	best := -1
	for prefix, r := range f.Responses {
		if strings.HasPrefix(cmdline, prefix) && len(prefix) > best {
			resp, found = r, true
			best = len(prefix)
		}
	}
	f.mu.Unlock()

	if !found {
		return Result{Command: cmdline}, nil
	}

	res := Result{
		Command:  cmdline,
		Stdout:   resp.Stdout,
		Stderr:   resp.Stderr,
		ExitCode: resp.ExitCode,
	}
	if resp.Err != nil {
		return res, resp.Err
	}
	if check && resp.ExitCode != 0 {
		return res, &faults.CommandError{Command: cmdline, ExitCode: resp.ExitCode, Stderr: resp.Stderr}
	}
	return res, nil
}
