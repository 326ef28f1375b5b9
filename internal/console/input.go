package console

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/chzyer/readline"
)

// ErrInterrupt is returned by ReadLine when the operator pressed Ctrl-C.
var ErrInterrupt = readline.ErrInterrupt

// ErrClosed is returned by ReadLine after Close.
var ErrClosed = errors.New("input closed")

// LineSource is a blocking line reader such as a readline instance.
type LineSource interface {
	Readline() (string, error)
	SetPrompt(prompt string)
	Close() error
}

type refresher interface {
	Refresh()
}

type inputResult struct {
	line string
	err  error
}

// Input hands out operator lines to whichever mode is waiting.
// A single pump goroutine owns the blocking Readline call; a waiter that gives up
// (context cancelled on a mode change) leaves the read in flight, and its line goes
// to the next waiter instead of being lost.
type Input struct {
	src     LineSource
	reqs    chan string
	results chan inputResult

	readMu  sync.Mutex
	pending bool

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInput starts the pump over src.
func NewInput(src LineSource) *Input {
	in := &Input{
		src:     src,
		reqs:    make(chan string),
		results: make(chan inputResult),
		done:    make(chan struct{}),
	}
	in.wg.Add(1)
	go in.pump()
	return in
}

// NewTerminal opens a readline console on the process terminal. The returned writer
// prints above the prompt without garbling the line being edited.
func NewTerminal(prompt string) (*Input, io.Writer, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		UniqueEditLine:  false,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, nil, err
	}
	return NewInput(rl), rl.Stdout(), nil
}

func (in *Input) pump() {
	defer in.wg.Done()
	for {
		var prompt string
		select {
		case <-in.done:
			return
		case prompt = <-in.reqs:
		}
		in.src.SetPrompt(prompt)
		line, err := in.src.Readline()
		select {
		case in.results <- inputResult{line: line, err: err}:
		case <-in.done:
			return
		}
	}
}

// ReadLine waits for the next operator line. If a read is already in flight its
// prompt is replaced. ctx only bounds the wait, never the read itself.
func (in *Input) ReadLine(ctx context.Context, prompt string) (string, error) {
	in.readMu.Lock()
	defer in.readMu.Unlock()

	if !in.pending {
		select {
		case in.reqs <- prompt:
			in.pending = true
		case <-ctx.Done():
			return "", ctx.Err()
		case <-in.done:
			return "", ErrClosed
		}
	} else {
		in.src.SetPrompt(prompt)
		if r, ok := in.src.(refresher); ok {
			r.Refresh()
		}
	}

	select {
	case r := <-in.results:
		in.pending = false
		return r.line, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-in.done:
		return "", ErrClosed
	}
}

// Close stops the pump and closes the source.
func (in *Input) Close() error {
	var err error
	in.closeOnce.Do(func() {
		close(in.done)
		err = in.src.Close()
		in.wg.Wait()
	})
	return err
}
