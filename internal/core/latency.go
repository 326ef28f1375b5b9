package core

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"LinkTerm/internal/device"
	"LinkTerm/internal/fault"
	"LinkTerm/internal/model"
	"LinkTerm/internal/parser"
)

// readSlice bounds each blocking read so cancellation is noticed promptly.
const readSlice = 50 * time.Millisecond

var errNoEcho = errors.New("no echo within read timeout")

// Diagnostics runs the latency and throughput tests. Both take read ownership
// for their whole run and clear the input buffer when they finish.
type Diagnostics struct {
	link        device.Link
	own         *ReadOwnership
	con         Console
	readTimeout time.Duration
	log         *zap.Logger
	now         func() time.Time
}

// NewDiagnostics creates the diagnostics runner.
func NewDiagnostics(link device.Link, own *ReadOwnership, con Console, readTimeout time.Duration, log *zap.Logger) *Diagnostics {
	if log == nil {
		log = zap.NewNop()
	}
	return &Diagnostics{link: link, own: own, con: con, readTimeout: readTimeout, log: log, now: time.Now}
}

// hold takes read ownership. The returned func resets the input buffer and releases it.
func (d *Diagnostics) hold(ctx context.Context) (func(), error) {
	if err := d.own.Acquire(ctx); err != nil {
		return nil, err
	}
	return func() {
		if err := d.link.ResetInputBuffer(); err != nil {
			d.log.Warn("reset input buffer", zap.Error(err))
		}
		d.own.Release()
	}, nil
}

// Latency sends cfg.Iterations probes, one at a time, and times each echo.
// A probe without an echo within the read timeout is not counted. An I/O fault or
// cancellation stops the run; samples taken so far are still summarised.
func (d *Diagnostics) Latency(ctx context.Context, sender *Sender, cfg model.LatencyConfig) model.LatencyReport {
	var rep model.LatencyReport
	release, err := d.hold(ctx)
	if err != nil {
		rep.Err = err
		rep.NoData = true
		return rep
	}
	defer release()

	d.con.Notice("Test message size: %d bytes", len(cfg.Probe)+1)

	for i := 1; i <= cfg.Iterations; i++ {
		if !sleepCtx(ctx, cfg.PreDelay) {
			rep.Err = ctx.Err()
			break
		}
		start := d.now()
		if err := sender.SendLine(cfg.Probe); err != nil {
			rep.Err = err
			break
		}
		rep.Iterations++

		rtt, mismatched, err := d.awaitEcho(ctx, cfg, start)
		rep.Mismatched += mismatched
		if errors.Is(err, errNoEcho) {
			d.log.Debug("probe timed out", zap.Int("iteration", i))
		} else if err != nil {
			rep.Err = err
			break
		} else {
			rep.Samples = append(rep.Samples, float64(rtt)/float64(time.Millisecond))
		}

		if cfg.ProgressEvery > 0 && i%cfg.ProgressEvery == 0 {
			d.con.Progress("Progress: %d/%d", i, cfg.Iterations)
		}
	}

	summarize(&rep)
	d.log.Info("latency test finished",
		zap.Int("iterations", rep.Iterations), zap.Int("valid", rep.Valid),
		zap.Float64("mean_ms", rep.Mean), zap.Int("mismatched", rep.Mismatched), zap.Error(rep.Err))
	return rep
}

// awaitEcho reads until a line matches the probe or the read timeout, measured from start, elapses.
func (d *Diagnostics) awaitEcho(ctx context.Context, cfg model.LatencyConfig, start time.Time) (time.Duration, int, error) {
	deadline := start.Add(d.readTimeout)
	mismatched := 0
	for {
		if ctx.Err() != nil {
			return 0, mismatched, ctx.Err()
		}
		remaining := deadline.Sub(d.now())
		if remaining <= 0 {
			return 0, mismatched, errNoEcho
		}
		raw, err := d.link.ReadLine(min(remaining, readSlice))
		if errors.Is(err, device.ErrNoData) {
			continue
		}
		if err != nil {
			return 0, mismatched, fault.Wrap(err, fault.IO, "read echo")
		}
		rtt := d.now().Sub(start)

		text, err := parser.DecodeText(raw)
		if err == nil && probeMatches(cfg.Match, cfg.Probe, text) {
			return rtt, mismatched, nil
		}
		mismatched++
		d.log.Debug("dropping line while waiting for echo",
			zap.Error(fault.Wrap(errors.New("unexpected response"), fault.ProtocolMismatch, "await echo")),
			zap.ByteString("line", raw))
	}
}

func probeMatches(policy, probe, text string) bool {
	if policy == "exact" {
		return text == probe
	}
	return strings.Contains(text, probe)
}

func summarize(rep *model.LatencyReport) {
	rep.Valid = len(rep.Samples)
	if rep.Valid == 0 {
		rep.NoData = true
		return
	}
	rep.Min, rep.Max = math.Inf(1), math.Inf(-1)
	var sum float64
	for _, s := range rep.Samples {
		sum += s
		rep.Min = math.Min(rep.Min, s)
		rep.Max = math.Max(rep.Max, s)
	}
	rep.Mean = sum / float64(rep.Valid)
}

// ReportLatency prints the summary of a latency run.
func (d *Diagnostics) ReportLatency(rep model.LatencyReport) {
	if rep.Err != nil && !errors.Is(rep.Err, context.Canceled) {
		d.con.Failure("Latency test aborted: %v", rep.Err)
	} else if rep.Err != nil {
		d.con.Notice("Latency test cancelled after %d probes.", rep.Iterations)
	}
	if rep.NoData {
		d.con.Failure("No data: none of %d probes was answered.", rep.Iterations)
		return
	}
	d.con.Success("Valid samples: %d/%d", rep.Valid, rep.Iterations)
	d.con.Success("Average latency: %.3f ms (min %.3f ms, max %.3f ms)", rep.Mean, rep.Min, rep.Max)
}
