package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"LinkTerm/internal/device"
	"LinkTerm/internal/keys"
	"LinkTerm/internal/model"
)

type transitionLog struct {
	mu    sync.Mutex
	steps [][2]model.Mode
}

func (l *transitionLog) record(from, to model.Mode) {
	l.mu.Lock()
	l.steps = append(l.steps, [2]model.Mode{from, to})
	l.mu.Unlock()
}

func (l *transitionLog) get() [][2]model.Mode {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][2]model.Mode(nil), l.steps...)
}

func (l *transitionLog) into(m model.Mode) int {
	n := 0
	for _, s := range l.get() {
		if s[1] == m {
			n++
		}
	}
	return n
}

type sessionFixture struct {
	s     *Session
	con   *recordingConsole
	in    *scriptedInput
	hooks *fakeHooks
	log   *transitionLog
	host  *device.PipeEnd
	dev   *device.PipeEnd
}

func newSessionFixture(t *testing.T, cfg *model.Config, lines ...string) *sessionFixture {
	t.Helper()
	host, dev := device.Pipe()
	f := &sessionFixture{
		con:   &recordingConsole{},
		in:    newScriptedInput(lines...),
		hooks: &fakeHooks{},
		log:   &transitionLog{},
		host:  host,
		dev:   dev,
	}
	f.s = NewSession(cfg, host, NewReadOwnership(), f.con, f.in, zaptest.NewLogger(t))
	f.s.installHook = f.hooks.install
	f.s.OnTransition(f.log.record)
	return f
}

// start runs the session in the background; the returned func waits for it.
func (f *sessionFixture) start(t *testing.T) func() {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- f.s.Run(context.Background()) }()
	return func() {
		t.Helper()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("session did not end")
		}
	}
}

func TestTerminalEscSendsNothing(t *testing.T) {
	f := newSessionFixture(t, testConfig(t), "1", "hello", "esc", "exit")
	require.NoError(t, f.s.Run(context.Background()))

	assert.Equal(t, []string{"hello"}, drainLines(t, f.dev))
	assert.Equal(t, []string{"hello"}, f.con.snapshot(&f.con.outbound))
	assert.Equal(t, [][2]model.Mode{
		{model.Menu, model.Terminal},
		{model.Terminal, model.Menu},
	}, f.log.get())
	assert.Equal(t, model.Menu, f.s.Mode())
	assert.Equal(t, 0, f.s.ActiveSenders())
}

func TestTerminalClearAndWriteFailure(t *testing.T) {
	f := newSessionFixture(t, testConfig(t), "Terminal Mode", "cls", "boom", "Q", "exit")
	f.host.FailWrites(assert.AnError)
	require.NoError(t, f.s.Run(context.Background()))

	assert.Equal(t, 1, f.con.clears)
	assert.Contains(t, f.con.joined(&f.con.failures), "Send failed")
	assert.Equal(t, 1, f.log.into(model.Menu))
	assert.Empty(t, drainLines(t, f.dev))
}

func TestTerminalCtrlCReturnsToMenu(t *testing.T) {
	f := newSessionFixture(t, testConfig(t), "1", ctrlC, "exit")
	require.NoError(t, f.s.Run(context.Background()))
	assert.Equal(t, [][2]model.Mode{
		{model.Menu, model.Terminal},
		{model.Terminal, model.Menu},
	}, f.log.get())
}

func TestMenuInvalidAndClear(t *testing.T) {
	f := newSessionFixture(t, testConfig(t), "9", "", "CLS", "exit")
	require.NoError(t, f.s.Run(context.Background()))

	assert.Equal(t, []string{`Invalid selection "9". Please try again.`}, f.con.snapshot(&f.con.failures))
	assert.Equal(t, 3, f.con.clears)
	assert.Empty(t, f.log.get())
}

func TestMenuEndOfInput(t *testing.T) {
	f := newSessionFixture(t, testConfig(t))
	f.in.close()
	assert.NoError(t, f.s.Run(context.Background()))
}

func TestMenuCtrlCExits(t *testing.T) {
	f := newSessionFixture(t, testConfig(t), ctrlC)
	assert.NoError(t, f.s.Run(context.Background()))
}

func TestKeyboardDoubleEscapeReturnsOnce(t *testing.T) {
	f := newSessionFixture(t, testConfig(t), "2")
	wait := f.start(t)

	require.Eventually(t, func() bool { _, _, n := f.hooks.counts(); return n == 1 }, time.Second, time.Millisecond)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.hooks.press("esc")
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool { return f.log.into(model.Menu) >= 1 }, time.Second, time.Millisecond)
	f.in.send("exit")
	wait()

	assert.Equal(t, 1, f.log.into(model.Menu))
	assert.Equal(t, model.Menu, f.s.Mode())
	assert.Equal(t, 0, f.s.ActiveSenders())
	live, _, _ := f.hooks.counts()
	assert.Zero(t, live)

	exited := 0
	for _, n := range f.con.snapshot(&f.con.notices) {
		if n == "Exited keyboard listening mode." {
			exited++
		}
	}
	assert.Equal(t, 1, exited)
}

func TestKeyboardHookCountAcrossCycles(t *testing.T) {
	f := newSessionFixture(t, testConfig(t))
	wait := f.start(t)

	for i := 1; i <= 5; i++ {
		f.in.send("keyboard_mode")
		require.Eventually(t, func() bool { _, _, n := f.hooks.counts(); return n == i }, time.Second, time.Millisecond)
		f.hooks.press("esc")
		require.Eventually(t, func() bool { return f.log.into(model.Menu) == i }, time.Second, time.Millisecond)
	}
	f.in.send("exit")
	wait()

	live, maxLive, installs := f.hooks.counts()
	assert.Zero(t, live)
	assert.Equal(t, 1, maxLive)
	assert.Equal(t, 5, installs)
}

func TestKeyboardStreamsKeyState(t *testing.T) {
	cfg := testConfig(t)
	cfg.Keyboard.TickInterval = 4 * time.Millisecond
	f := newSessionFixture(t, cfg, "2")
	wait := f.start(t)

	var seen []string
	collect := func(want string) func() bool {
		return func() bool {
			seen = append(seen, drainLines(t, f.dev)...)
			for _, l := range seen {
				if l == want {
					return true
				}
			}
			return false
		}
	}

	require.Eventually(t, collect("none"), time.Second, time.Millisecond)
	f.hooks.press("w")
	f.hooks.press("a")
	require.Eventually(t, collect("a+w"), time.Second, time.Millisecond)

	f.in.send("hello device")
	require.Eventually(t, collect("hello device"), time.Second, time.Millisecond)

	f.in.send("exit_keyboard_mode")
	require.Eventually(t, func() bool { return f.log.into(model.Menu) == 1 }, time.Second, time.Millisecond)
	f.in.send("exit")
	wait()

	assert.Contains(t, f.con.snapshot(&f.con.keyStates), "a+w")
	assert.NotContains(t, f.con.snapshot(&f.con.keyStates), "none")
	assert.NotContains(t, append(seen, drainLines(t, f.dev)...), "exit_keyboard_mode")
}

func TestKeyboardHookFailure(t *testing.T) {
	f := newSessionFixture(t, testConfig(t), "2", "exit")
	f.hooks.failWith = keys.ErrHookActive
	require.NoError(t, f.s.Run(context.Background()))

	assert.Contains(t, f.con.joined(&f.con.failures), "Keyboard Mode failed")
	assert.Equal(t, 1, f.log.into(model.Menu))
	assert.Equal(t, 0, f.s.ActiveSenders())
}

func TestLatencyCancelledFromInput(t *testing.T) {
	cfg := testConfig(t)
	cfg.Link.ReadTimeout = time.Second
	f := newSessionFixture(t, cfg, "4")
	wait := f.start(t)

	require.Eventually(t, func() bool { return f.s.Mode() == model.LatencyTest }, time.Second, time.Millisecond)
	f.in.send("esc")
	require.Eventually(t, func() bool { return f.s.Mode() == model.Menu }, 2*time.Second, time.Millisecond)
	f.in.send("exit")
	wait()

	assert.Contains(t, f.con.joined(&f.con.notices), "Latency test cancelled")
	assert.Equal(t, 1, f.log.into(model.Menu))
}

func TestSessionStopsWithContext(t *testing.T) {
	f := newSessionFixture(t, testConfig(t), "1")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.s.Run(ctx) }()

	require.Eventually(t, func() bool { return f.s.Mode() == model.Terminal }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("session ignored cancellation")
	}
	assert.Equal(t, model.Menu, f.s.Mode())
}
