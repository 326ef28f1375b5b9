package core

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"LinkTerm/internal/config"
	"LinkTerm/internal/console"
	"LinkTerm/internal/device"
	"LinkTerm/internal/keys"
	"LinkTerm/internal/model"
)

func testConfig(t *testing.T) *model.Config {
	t.Helper()
	l, err := config.Load("")
	require.NoError(t, err)
	cfg := *l.Get()
	cfg.Menu.InvalidDelay = time.Millisecond
	cfg.Link.ReadTimeout = 200 * time.Millisecond
	cfg.Latency.PreDelay = 0
	return &cfg
}

// recordingConsole keeps everything printed.
type recordingConsole struct {
	mu        sync.Mutex
	inbound   []model.InboundLine
	outbound  []string
	keyStates []string
	notices   []string
	progress  []string
	successes []string
	failures  []string
	clears    int
	menus     int
	lists     [][]string
}

func (c *recordingConsole) Inbound(l model.InboundLine) {
	c.mu.Lock()
	c.inbound = append(c.inbound, l)
	c.mu.Unlock()
}

func (c *recordingConsole) Outbound(_ time.Time, text string) {
	c.mu.Lock()
	c.outbound = append(c.outbound, text)
	c.mu.Unlock()
}

func (c *recordingConsole) KeyState(p string) {
	c.mu.Lock()
	c.keyStates = append(c.keyStates, p)
	c.mu.Unlock()
}

func (c *recordingConsole) add(dst *[]string, format string, args ...any) {
	c.mu.Lock()
	*dst = append(*dst, fmt.Sprintf(format, args...))
	c.mu.Unlock()
}

func (c *recordingConsole) Notice(f string, a ...any)   { c.add(&c.notices, f, a...) }
func (c *recordingConsole) Progress(f string, a ...any) { c.add(&c.progress, f, a...) }
func (c *recordingConsole) Success(f string, a ...any)  { c.add(&c.successes, f, a...) }
func (c *recordingConsole) Failure(f string, a ...any)  { c.add(&c.failures, f, a...) }

func (c *recordingConsole) Clear() {
	c.mu.Lock()
	c.clears++
	c.mu.Unlock()
}

func (c *recordingConsole) Menu(model.ModeTable) {
	c.mu.Lock()
	c.menus++
	c.mu.Unlock()
}

func (c *recordingConsole) Candidates(labels []string) {
	c.mu.Lock()
	c.lists = append(c.lists, labels)
	c.mu.Unlock()
}

func (c *recordingConsole) inboundTexts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.inbound))
	for i, l := range c.inbound {
		out[i] = l.Text
	}
	return out
}

func (c *recordingConsole) snapshot(src *[]string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), (*src)...)
}

func (c *recordingConsole) joined(src *[]string) string {
	return strings.Join(c.snapshot(src), "\n")
}

const ctrlC = "^C"

// scriptedInput hands out queued lines; an empty queue blocks like a terminal would.
// The line ctrlC yields console.ErrInterrupt; after close the reader gets io.EOF.
type scriptedInput struct {
	lines chan string
}

func newScriptedInput(lines ...string) *scriptedInput {
	in := &scriptedInput{lines: make(chan string, 64)}
	for _, l := range lines {
		in.lines <- l
	}
	return in
}

func (s *scriptedInput) send(lines ...string) {
	for _, l := range lines {
		s.lines <- l
	}
}

func (s *scriptedInput) close() { close(s.lines) }

func (s *scriptedInput) ReadLine(ctx context.Context, _ string) (string, error) {
	select {
	case l, ok := <-s.lines:
		if !ok {
			return "", io.EOF
		}
		if l == ctrlC {
			return "", console.ErrInterrupt
		}
		return l, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// fakeHooks stands in for the OS key hook and tracks how many are live.
type fakeHooks struct {
	mu       sync.Mutex
	live     int
	maxLive  int
	installs int
	state    *keys.State
	onKey    func(keys.Event)
	failWith error
}

type fakeHook struct {
	h    *fakeHooks
	once sync.Once
}

func (f *fakeHook) Close() error {
	f.once.Do(func() {
		f.h.mu.Lock()
		f.h.live--
		f.h.onKey = nil
		f.h.mu.Unlock()
	})
	return nil
}

func (h *fakeHooks) install(state *keys.State, onKey func(keys.Event)) (io.Closer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failWith != nil {
		return nil, h.failWith
	}
	if h.live > 0 {
		return nil, keys.ErrHookActive
	}
	h.live++
	h.installs++
	h.maxLive = max(h.maxLive, h.live)
	h.state, h.onKey = state, onKey
	return &fakeHook{h: h}, nil
}

// press delivers a key press as the hook would.
func (h *fakeHooks) press(name string) {
	h.mu.Lock()
	state, onKey := h.state, h.onKey
	h.mu.Unlock()
	if onKey == nil {
		return
	}
	state.Press(name)
	onKey(keys.Event{Name: name, Down: true})
}

func (h *fakeHooks) counts() (live, maxLive, installs int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.live, h.maxLive, h.installs
}

// fakeClock is advanced by clockLink instead of wall time.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type pendingReply struct {
	line  []byte
	delay time.Duration
}

// clockLink is a Link whose replies take simulated time on a fakeClock.
type clockLink struct {
	clock *fakeClock
	// echoDelay returns how long probe n (1-based) takes to come back; negative never echoes.
	echoDelay func(n int) time.Duration
	// noise is queued, with no delay, in front of every echo.
	noise []string
	// chunkCost is the simulated time of one Write.
	chunkCost time.Duration
	// failAt makes the nth WriteLine fail.
	failAt int

	mu      sync.Mutex
	pending []pendingReply
	lines   int
	written int
	resets  int
}

func (l *clockLink) ReadLine(timeout time.Duration) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.pending) == 0 {
		if timeout > 0 {
			l.clock.Advance(timeout)
		}
		return nil, device.ErrNoData
	}
	next := &l.pending[0]
	if next.delay > timeout {
		if timeout > 0 {
			l.clock.Advance(timeout)
			next.delay -= timeout
		}
		return nil, device.ErrNoData
	}
	l.clock.Advance(next.delay)
	line := next.line
	l.pending = l.pending[1:]
	return line, nil
}

func (l *clockLink) WriteLine(s string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines++
	if l.failAt > 0 && l.lines == l.failAt {
		return fmt.Errorf("device unplugged")
	}
	for _, n := range l.noise {
		l.pending = append(l.pending, pendingReply{line: []byte(n + "\n")})
	}
	if l.echoDelay != nil {
		if d := l.echoDelay(l.lines); d >= 0 {
			l.pending = append(l.pending, pendingReply{line: []byte(s + "\r\n"), delay: d})
		}
	}
	return nil
}

func (l *clockLink) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clock.Advance(l.chunkCost)
	l.written += len(p)
	return len(p), nil
}

func (l *clockLink) Flush() error { return nil }

func (l *clockLink) ResetInputBuffer() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resets++
	l.pending = nil
	return nil
}

func (l *clockLink) ResetOutputBuffer() error { return nil }
func (l *clockLink) Close() error             { return nil }

func (l *clockLink) resetCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resets
}

// drainLines reads every line currently waiting on l.
func drainLines(t *testing.T, l device.Link) []string {
	t.Helper()
	var out []string
	for {
		raw, err := l.ReadLine(0)
		if err != nil {
			return out
		}
		out = append(out, strings.TrimRight(string(raw), "\r\n"))
	}
}
