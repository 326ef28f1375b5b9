package console

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	lines chan string

	mu      sync.Mutex
	prompts []string
	closed  chan struct{}
	once    sync.Once
}

func newFakeSource() *fakeSource {
	return &fakeSource{lines: make(chan string), closed: make(chan struct{})}
}

func (f *fakeSource) Readline() (string, error) {
	select {
	case l := <-f.lines:
		return l, nil
	case <-f.closed:
		return "", io.EOF
	}
}

func (f *fakeSource) SetPrompt(p string) {
	f.mu.Lock()
	f.prompts = append(f.prompts, p)
	f.mu.Unlock()
}

func (f *fakeSource) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

func (f *fakeSource) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func TestInputReadLine(t *testing.T) {
	src := newFakeSource()
	in := NewInput(src)
	defer in.Close()

	go func() { src.lines <- "hello" }()
	line, err := in.ReadLine(context.Background(), "> ")
	require.NoError(t, err)
	assert.Equal(t, "hello", line)
	assert.Equal(t, "> ", src.lastPrompt())
}

func TestInputKeepsLineAcrossCancelledWait(t *testing.T) {
	src := newFakeSource()
	in := NewInput(src)
	defer in.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := in.ReadLine(ctx, "terminal> ")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// the read is still in flight; its line goes to the next waiter
	go func() { src.lines <- "2" }()
	line, err := in.ReadLine(context.Background(), "menu> ")
	require.NoError(t, err)
	assert.Equal(t, "2", line)
	assert.Equal(t, "menu> ", src.lastPrompt())
}

func TestInputEOFAndClose(t *testing.T) {
	src := newFakeSource()
	in := NewInput(src)

	require.NoError(t, src.Close())
	_, err := in.ReadLine(context.Background(), "> ")
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, in.Close())
	require.NoError(t, in.Close())
	_, err = in.ReadLine(context.Background(), "> ")
	assert.ErrorIs(t, err, ErrClosed)
}
