package core

import (
	"bytes"
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"LinkTerm/internal/device"
	"LinkTerm/internal/fault"
	"LinkTerm/internal/model"
)

// Throughput writes cfg.Chunks chunks of the fill byte and times them from the first
// write to the last flushed one (plus the acknowledgement when AwaitAck is set).
func (d *Diagnostics) Throughput(ctx context.Context, sender *Sender, cfg model.ThroughputConfig) model.ThroughputReport {
	var rep model.ThroughputReport
	release, err := d.hold(ctx)
	if err != nil {
		rep.Err = err
		return rep
	}
	defer release()

	chunk := bytes.Repeat([]byte(cfg.FillByte), cfg.ChunkSize)
	total := cfg.ChunkSize * cfg.Chunks
	d.con.Notice("Sending %d bytes in %d chunks of %d bytes.", total, cfg.Chunks, cfg.ChunkSize)

	start := d.now()
	for i := 0; i < cfg.Chunks; i++ {
		if err := ctx.Err(); err != nil {
			rep.Err = err
			break
		}
		if err := sender.WriteChunk(chunk); err != nil {
			rep.Err = err
			break
		}
		rep.Bytes += len(chunk)
	}
	if rep.Err == nil && cfg.AwaitAck {
		rep.AckReceived, rep.Err = d.awaitAck(ctx, sender)
	}
	rep.Elapsed = d.now().Sub(start)
	rep.Mbps = model.Mbps(rep.Bytes, rep.Elapsed)

	d.log.Info("throughput test finished",
		zap.Int("bytes", rep.Bytes), zap.Duration("elapsed", rep.Elapsed),
		zap.Float64("mbps", rep.Mbps), zap.Bool("ack", rep.AckReceived), zap.Error(rep.Err))
	return rep
}

// awaitAck terminates the payload with a newline and waits for one reply line.
func (d *Diagnostics) awaitAck(ctx context.Context, sender *Sender) (bool, error) {
	if err := sender.SendLine(""); err != nil {
		return false, err
	}
	deadline := d.now().Add(d.readTimeout)
	for ctx.Err() == nil {
		remaining := deadline.Sub(d.now())
		if remaining <= 0 {
			return false, nil
		}
		_, err := d.link.ReadLine(min(remaining, readSlice))
		if errors.Is(err, device.ErrNoData) {
			continue
		}
		if err != nil {
			return false, fault.Wrap(err, fault.IO, "read ack")
		}
		return true, nil
	}
	return false, ctx.Err()
}

// ReportThroughput prints the summary of a throughput run.
func (d *Diagnostics) ReportThroughput(rep model.ThroughputReport) {
	switch {
	case errors.Is(rep.Err, context.Canceled):
		d.con.Notice("Mbps test cancelled after %d bytes.", rep.Bytes)
	case rep.Err != nil:
		d.con.Failure("Mbps test aborted after %d bytes: %v", rep.Bytes, rep.Err)
		return
	}
	if rep.Bytes == 0 {
		return
	}
	d.con.Success("Sent %d bytes in %s", rep.Bytes, rep.Elapsed.Round(time.Microsecond))
	d.con.Success("Throughput: %.3f Mbps", rep.Mbps)
}
