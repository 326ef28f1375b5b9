package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"LinkTerm/internal/device"
	"LinkTerm/internal/model"
	"LinkTerm/internal/parser"
)

// LineSink receives what the Reader Loop emits.
type LineSink interface {
	Inbound(line model.InboundLine)
	Failure(format string, args ...any)
}

// ReaderStats counts what the Reader Loop did with the lines it read.
type ReaderStats struct {
	Emitted   uint64
	Filtered  uint64
	Malformed uint64
	Errors    uint64
}

// Reader is the Reader Loop: for the whole session it drains the link on every tick,
// decodes and classifies lines, drops sentinels and hands the rest to the sink.
// It never writes to the link.
type Reader struct {
	link     device.Link
	own      *ReadOwnership
	sink     LineSink
	interval time.Duration
	log      *zap.Logger
	now      func() time.Time

	rulesMu sync.RWMutex
	rules   parser.Rules

	errs errorFilter

	emitted   atomic.Uint64
	filtered  atomic.Uint64
	malformed atomic.Uint64
	failures  atomic.Uint64
}

// NewReader creates a Reader polling link every interval.
func NewReader(link device.Link, own *ReadOwnership, rules parser.Rules, sink LineSink, interval time.Duration, log *zap.Logger) *Reader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reader{
		link:     link,
		own:      own,
		sink:     sink,
		interval: interval,
		rules:    rules,
		log:      log,
		now:      time.Now,
	}
}

// SetRules replaces the classification rules, e.g. after a config reload.
func (r *Reader) SetRules(rules parser.Rules) {
	r.rulesMu.Lock()
	r.rules = rules
	r.rulesMu.Unlock()
}

func (r *Reader) currentRules() parser.Rules {
	r.rulesMu.RLock()
	defer r.rulesMu.RUnlock()
	return r.rules
}

// Stats returns a snapshot of the counters.
func (r *Reader) Stats() ReaderStats {
	return ReaderStats{
		Emitted:   r.emitted.Load(),
		Filtered:  r.filtered.Load(),
		Malformed: r.malformed.Load(),
		Errors:    r.failures.Load(),
	}
}

// Run polls until ctx is done or the link is closed. Read errors never end the loop;
// a link closed by the peer is reported to the operator before it returns.
func (r *Reader) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	r.log.Info("reader loop started", zap.Duration("interval", r.interval))
	defer r.log.Info("reader loop stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		// a diagnostic owns the link, skip this tick
		if !r.own.TryAcquire() {
			continue
		}
		closed := r.drain()
		r.own.Release()
		if closed {
			if ctx.Err() == nil {
				r.log.Warn("link closed by peer")
				r.sink.Failure("Link lost: %v. Exit and reconnect.", device.ErrClosed)
			}
			return
		}
	}
}

// drain reads every buffered line. It reports whether the link is closed.
func (r *Reader) drain() bool {
	rules := r.currentRules()
	for {
		raw, err := r.link.ReadLine(0)
		switch {
		case errors.Is(err, device.ErrNoData):
			return false
		case errors.Is(err, device.ErrClosed):
			return true
		case err != nil:
			r.failures.Add(1)
			if r.errs.first(err) {
				r.log.Warn("link read failed", zap.Error(err))
				r.sink.Failure("Read error: %v", err)
			}
			return false
		}
		r.errs.reset()

		line, err := rules.Decode(raw, r.now())
		if err != nil {
			r.malformed.Add(1)
			r.log.Debug("skipping malformed line", zap.Error(err), zap.Int("bytes", len(raw)))
			continue
		}
		if rules.IsSentinel(line.Text) {
			r.filtered.Add(1)
			continue
		}
		r.emitted.Add(1)
		r.sink.Inbound(line)
	}
}

// errorFilter lets the first of a run of identical errors through.
type errorFilter struct {
	mu   sync.Mutex
	last string
}

func (f *errorFilter) first(err error) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := err.Error()
	if msg == f.last {
		return false
	}
	f.last = msg
	return true
}

func (f *errorFilter) reset() {
	f.mu.Lock()
	f.last = ""
	f.mu.Unlock()
}
