package scheduler

import (
	"errors"
	"sync"
	"sync/atomic"
)

var errKilled = errors.New("signal: killed")

type fakeProcess struct {
	pid   int
	exit  chan error
	once  sync.Once
	kills atomic.Int32
}

func newFakeProcess(pid int) *fakeProcess {
	return &fakeProcess{pid: pid, exit: make(chan error, 1)}
}

func (p *fakeProcess) Wait() error {
	return <-p.exit
}

func (p *fakeProcess) Kill() error {
	p.kills.Add(1)
	p.Exit(errKilled)
	return nil
}

func (p *fakeProcess) PID() int {
	return p.pid
}

// Exit simulates the process terminating on its own.
func (p *fakeProcess) Exit(err error) {
	p.once.Do(func() {
		p.exit <- err
	})
}

type fakeLauncher struct {
	mu       sync.Mutex
	procs    map[string][]*fakeProcess
	specs    []ProcessSpec
	failures map[string]error
	attempts map[string]int
	nextPID  int
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{
		procs:    make(map[string][]*fakeProcess),
		failures: make(map[string]error),
		attempts: make(map[string]int),
		nextPID:  1000,
	}
}

func (l *fakeLauncher) Launch(spec ProcessSpec) (Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.attempts[spec.Function]++
	if err := l.failures[spec.Function]; err != nil {
		return nil, err
	}

	l.nextPID++
	proc := newFakeProcess(l.nextPID)
	l.procs[spec.Function] = append(l.procs[spec.Function], proc)
	l.specs = append(l.specs, spec)
	return proc, nil
}

func (l *fakeLauncher) fail(function string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.failures, function)
		return
	}
	l.failures[function] = err
}

func (l *fakeLauncher) launched(function string) []*fakeProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*fakeProcess(nil), l.procs[function]...)
}

func (l *fakeLauncher) attemptCount(function string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attempts[function]
}

func (l *fakeLauncher) lastSpec() ProcessSpec {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.specs[len(l.specs)-1]
}

type fakeResolver struct {
	env    map[string]string
	memory int
	err    error
}

func (r *fakeResolver) Resolve(function string) (*Command, error) {
	if r.err != nil {
		return nil, r.err
	}
	return &Command{
		Args:     []string{"run-function", function},
		Env:      r.env,
		MemoryMB: r.memory,
	}, nil
}
