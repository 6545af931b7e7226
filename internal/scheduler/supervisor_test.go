package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type supervisorHarness struct {
	launcher *fakeLauncher
	gc       chan string
	reload   chan struct{}
	cancel   context.CancelFunc
	result   chan error
}

func runSupervisor(t *testing.T, resolver CommandResolver, identity Identity, configure func(*fakeLauncher)) *supervisorHarness {
	t.Helper()

	h := &supervisorHarness{
		launcher: newFakeLauncher(),
		gc:       make(chan string, 2),
		reload:   make(chan struct{}, 1),
		result:   make(chan error, 1),
	}
	if configure != nil {
		configure(h.launcher)
	}

	activation := Activation{Function: "hello", RuntimeAPI: "127.0.0.1:9001/hello"}
	sup := NewSupervisor(activation, identity, resolver, h.launcher, nil, h.gc, h.reload)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	t.Cleanup(cancel)

	go func() {
		h.result <- sup.Run(ctx)
	}()
	return h
}

func (h *supervisorHarness) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.result:
		return err
	case <-time.After(waitFor):
		t.Fatal("supervisor did not return")
		return nil
	}
}

func TestSupervisor_ExitNotifiesOnce(t *testing.T) {
	h := runSupervisor(t, &fakeResolver{}, Identity{}, nil)

	require.Eventually(t, func() bool { return len(h.launcher.launched("hello")) == 1 }, waitFor, tick)
	h.launcher.launched("hello")[0].Exit(errors.New("exit status 1"))

	require.NoError(t, h.wait(t))
	assert.Equal(t, "hello", <-h.gc)
	assert.Empty(t, h.gc)
}

func TestSupervisor_ShutdownKillsWithoutNotify(t *testing.T) {
	h := runSupervisor(t, &fakeResolver{}, Identity{}, nil)

	require.Eventually(t, func() bool { return len(h.launcher.launched("hello")) == 1 }, waitFor, tick)
	h.cancel()

	require.NoError(t, h.wait(t))
	assert.Equal(t, int32(1), h.launcher.launched("hello")[0].kills.Load())
	assert.Empty(t, h.gc, "shutdown must not be reported as an exit")
}

func TestSupervisor_SpawnError(t *testing.T) {
	h := runSupervisor(t, &fakeResolver{}, Identity{}, func(l *fakeLauncher) {
		l.fail("hello", errors.New("no such file or directory"))
	})

	err := h.wait(t)
	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.Equal(t, "hello", spawnErr.Function)
	assert.Contains(t, err.Error(), "no such file or directory")
	assert.Empty(t, h.gc)
}

func TestSupervisor_ResolveError(t *testing.T) {
	h := runSupervisor(t, &fakeResolver{err: errors.New("function hello is not defined")}, Identity{}, nil)

	var spawnErr *SpawnError
	require.ErrorAs(t, h.wait(t), &spawnErr)
	assert.Equal(t, 0, h.launcher.attemptCount("hello"))
}

func TestSupervisor_Environment(t *testing.T) {
	t.Setenv("LAMBDEV_TEST_INHERITED", "yes")

	resolver := &fakeResolver{env: map[string]string{"GREETING": "hi"}}
	h := runSupervisor(t, resolver, Identity{Region: "eu-west-1"}, nil)

	require.Eventually(t, func() bool { return len(h.launcher.launched("hello")) == 1 }, waitFor, tick)
	spec := h.launcher.lastSpec()

	assert.Equal(t, "hello", spec.Function)
	assert.Equal(t, []string{"run-function", "hello"}, spec.Args)
	assert.Contains(t, spec.Env, "LAMBDEV_TEST_INHERITED=yes")
	assert.Contains(t, spec.Env, "GREETING=hi")
	assert.Contains(t, spec.Env, "AWS_LAMBDA_RUNTIME_API=127.0.0.1:9001/hello")
	assert.Contains(t, spec.Env, "AWS_LAMBDA_FUNCTION_NAME=hello")
	assert.Contains(t, spec.Env, "AWS_LAMBDA_FUNCTION_VERSION=1")
	assert.Contains(t, spec.Env, "AWS_LAMBDA_FUNCTION_MEMORY_SIZE=4096")
	assert.Contains(t, spec.Env, "AWS_REGION=eu-west-1")
	assert.Contains(t, spec.Env, "AWS_DEFAULT_REGION=eu-west-1")
}

func TestSupervisor_MemoryOverride(t *testing.T) {
	h := runSupervisor(t, &fakeResolver{memory: 512}, Identity{MemoryMB: 1024}, nil)

	require.Eventually(t, func() bool { return len(h.launcher.launched("hello")) == 1 }, waitFor, tick)
	assert.Contains(t, h.launcher.lastSpec().Env, "AWS_LAMBDA_FUNCTION_MEMORY_SIZE=512")
}

func TestSupervisor_Reload(t *testing.T) {
	h := runSupervisor(t, &fakeResolver{}, Identity{}, nil)

	require.Eventually(t, func() bool { return len(h.launcher.launched("hello")) == 1 }, waitFor, tick)
	h.reload <- struct{}{}

	require.Eventually(t, func() bool { return len(h.launcher.launched("hello")) == 2 }, waitFor, tick)
	procs := h.launcher.launched("hello")
	assert.Equal(t, int32(1), procs[0].kills.Load())
	assert.Empty(t, h.gc, "a reload is not an exit")

	// The replacement process is supervised like the first.
	procs[1].Exit(nil)
	require.NoError(t, h.wait(t))
	assert.Equal(t, "hello", <-h.gc)
}
