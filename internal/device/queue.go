package device

import (
	"bytes"
	"sync"
	"time"
)

// maxPartial bounds an unterminated line; longer runs are delivered as one line.
const maxPartial = 64 * 1024

// lineQueue splits an inbound byte stream into lines and hands them out with
// non-blocking or bounded-wait semantics. Transports feed it from their receive path.
type lineQueue struct {
	mu      sync.Mutex
	partial []byte
	lines   [][]byte
	err     error
	closed  bool
	notify  chan struct{}
}

func newLineQueue() *lineQueue {
	return &lineQueue{notify: make(chan struct{}, 1)}
}

// feed appends a chunk of the byte stream.
func (q *lineQueue) feed(p []byte) {
	if len(p) == 0 {
		return
	}
	q.mu.Lock()
	q.partial = append(q.partial, p...)
	for {
		i := bytes.IndexByte(q.partial, '\n')
		if i < 0 {
			break
		}
		line := make([]byte, i+1)
		copy(line, q.partial[:i+1])
		q.lines = append(q.lines, line)
		q.partial = q.partial[i+1:]
	}
	if len(q.partial) >= maxPartial {
		q.lines = append(q.lines, q.partial)
		q.partial = nil
	}
	if len(q.partial) == 0 {
		q.partial = nil
	}
	q.mu.Unlock()
	q.wake()
}

// feedFrame appends a message-framed payload (BLE notification, WebSocket frame):
// a frame that does not end a line is terminated, so each frame yields at least one line.
func (q *lineQueue) feedFrame(p []byte) {
	if len(p) == 0 {
		return
	}
	if p[len(p)-1] != '\n' {
		p = append(append(make([]byte, 0, len(p)+1), p...), '\n')
	}
	q.feed(p)
}

// fail records a receive error; the next read returns it once.
func (q *lineQueue) fail(err error) {
	q.mu.Lock()
	q.err = err
	q.mu.Unlock()
	q.wake()
}

func (q *lineQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

func (q *lineQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// next returns the next line, waiting at most timeout.
func (q *lineQueue) next(timeout time.Duration) ([]byte, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	for {
		q.mu.Lock()
		if len(q.lines) > 0 {
			line := q.lines[0]
			q.lines[0] = nil
			q.lines = q.lines[1:]
			q.mu.Unlock()
			return line, nil
		}
		if q.err != nil {
			err := q.err
			q.err = nil
			q.mu.Unlock()
			return nil, err
		}
		if q.closed {
			q.mu.Unlock()
			return nil, ErrClosed
		}
		q.mu.Unlock()

		if deadline == nil {
			return nil, ErrNoData
		}
		select {
		case <-q.notify:
		case <-deadline:
			return nil, ErrNoData
		}
	}
}

// reset drops buffered lines, the partial line and any pending error.
func (q *lineQueue) reset() {
	q.mu.Lock()
	q.lines = nil
	q.partial = nil
	q.err = nil
	q.mu.Unlock()
}

// buffered reports how many complete lines are waiting.
func (q *lineQueue) buffered() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lines)
}
