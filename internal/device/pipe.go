package device

import (
	"sync"
	"sync/atomic"
	"time"

	"LinkTerm/internal/fault"
)

// PipeEnd is one side of an in-memory link pair. Whatever one end writes,
// the other end reads, split into lines the same way a serial stream is.
type PipeEnd struct {
	in   *lineQueue
	peer *PipeEnd
	name string

	mu       sync.Mutex
	writeErr error
	written  atomic.Int64
	flushes  atomic.Int64

	closeOnce sync.Once
	closed    atomic.Bool
}

// Pipe returns two connected ends. The host uses one, a Simulator (or a test) drives the other.
func Pipe() (*PipeEnd, *PipeEnd) {
	a := &PipeEnd{in: newLineQueue(), name: "loopback (host)"}
	b := &PipeEnd{in: newLineQueue(), name: "loopback (device)"}
	a.peer, b.peer = b, a
	return a, b
}

// Name implements Named.
func (p *PipeEnd) Name() string { return p.name }

// FailWrites makes every following write return err; nil restores normal operation.
func (p *PipeEnd) FailWrites(err error) {
	p.mu.Lock()
	p.writeErr = err
	p.mu.Unlock()
}

// Written reports the number of bytes accepted by this end.
func (p *PipeEnd) Written() int64 { return p.written.Load() }

// Flushes reports how many times Flush was called.
func (p *PipeEnd) Flushes() int64 { return p.flushes.Load() }

// ReadLine implements Link.
func (p *PipeEnd) ReadLine(timeout time.Duration) ([]byte, error) {
	return p.in.next(timeout)
}

// WriteLine implements Link.
func (p *PipeEnd) WriteLine(s string) error {
	_, err := p.Write(append([]byte(s), '\n'))
	return err
}

// Write implements Link.
func (p *PipeEnd) Write(b []byte) (int, error) {
	if p.closed.Load() || p.peer.closed.Load() {
		return 0, fault.Wrap(ErrClosed, fault.IO, "pipe write")
	}
	p.mu.Lock()
	err := p.writeErr
	p.mu.Unlock()
	if err != nil {
		return 0, fault.Wrap(err, fault.IO, "pipe write")
	}
	p.peer.in.feed(b)
	p.written.Add(int64(len(b)))
	return len(b), nil
}

// Flush implements Link; delivery is synchronous so there is nothing to drain.
func (p *PipeEnd) Flush() error {
	p.flushes.Add(1)
	return nil
}

// ResetInputBuffer implements Link.
func (p *PipeEnd) ResetInputBuffer() error {
	p.in.reset()
	return nil
}

// ResetOutputBuffer implements Link.
func (p *PipeEnd) ResetOutputBuffer() error { return nil }

// Close closes this end. The peer sees ErrClosed once it has drained what was sent.
func (p *PipeEnd) Close() error {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		p.in.close()
		p.peer.in.close()
	})
	return nil
}
