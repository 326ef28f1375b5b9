package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"

	"LinkTerm/internal/device"
	"LinkTerm/internal/fault"
	"LinkTerm/internal/model"
)

type LatencySuite struct {
	suite.Suite
	clock *fakeClock
	con   *recordingConsole
	own   *ReadOwnership
	cfg   model.LatencyConfig
}

func (s *LatencySuite) SetupTest() {
	s.clock = newFakeClock()
	s.con = &recordingConsole{}
	s.own = NewReadOwnership()
	s.cfg = model.LatencyConfig{Iterations: 100, Probe: "ping", Match: "contains", ProgressEvery: 10}
}

func (s *LatencySuite) run(link *clockLink) model.LatencyReport {
	d := NewDiagnostics(link, s.own, s.con, 5*time.Second, zaptest.NewLogger(s.T()))
	d.now = s.clock.Now
	sender, err := NewOutbound(link).Claim()
	s.Require().NoError(err)
	return d.Latency(context.Background(), sender, s.cfg)
}

func (s *LatencySuite) TestFixedDelayEcho() {
	link := &clockLink{clock: s.clock, echoDelay: func(n int) time.Duration {
		// 2.0 to 2.4 ms
		return 2*time.Millisecond + time.Duration(n%5)*100*time.Microsecond
	}}
	rep := s.run(link)

	s.NoError(rep.Err)
	s.False(rep.NoData)
	s.Equal(100, rep.Iterations)
	s.Equal(100, rep.Valid)
	s.Len(rep.Samples, 100)
	s.GreaterOrEqual(rep.Mean, 2.0)
	s.LessOrEqual(rep.Mean, 2.5)
	s.InDelta(2.0, rep.Min, 1e-9)
	s.InDelta(2.4, rep.Max, 1e-9)

	s.Len(s.con.snapshot(&s.con.progress), 10)
	s.Contains(s.con.joined(&s.con.notices), "Test message size: 5 bytes")
	s.Equal(1, link.resetCount())
	s.False(s.own.Held())
}

func (s *LatencySuite) TestNeverEchoes() {
	link := &clockLink{clock: s.clock}
	start := s.clock.Now()
	rep := s.run(link)

	s.NoError(rep.Err)
	s.True(rep.NoData)
	s.Equal(100, rep.Iterations)
	s.Zero(rep.Valid)
	// bounded by read timeout x iterations
	s.LessOrEqual(s.clock.Now().Sub(start), 100*5*time.Second+time.Second)
	s.Equal(1, link.resetCount())
}

func (s *LatencySuite) TestMismatchedLinesAreDropped() {
	s.cfg.Iterations = 10
	link := &clockLink{
		clock:     s.clock,
		noise:     []string{"temp=21", "BT hello"},
		echoDelay: func(int) time.Duration { return 3 * time.Millisecond },
	}
	rep := s.run(link)

	s.Equal(10, rep.Valid)
	s.Equal(20, rep.Mismatched)
	s.InDelta(3.0, rep.Mean, 1e-9)
}

func (s *LatencySuite) TestExactMatch() {
	s.cfg.Iterations = 3
	s.cfg.Match = "exact"
	link := &clockLink{
		clock:     s.clock,
		noise:     []string{"BT ping"},
		echoDelay: func(int) time.Duration { return time.Millisecond },
	}
	rep := s.run(link)

	s.Equal(3, rep.Valid)
	s.Equal(3, rep.Mismatched)
}

func (s *LatencySuite) TestIOFaultAborts() {
	link := &clockLink{clock: s.clock, failAt: 5, echoDelay: func(int) time.Duration { return time.Millisecond }}
	rep := s.run(link)

	s.True(fault.Is(rep.Err, fault.IO))
	s.Equal(4, rep.Iterations)
	s.Equal(4, rep.Valid)
	s.Equal(1, link.resetCount())
	s.False(s.own.Held())
}

func (s *LatencySuite) TestCancelled() {
	link := &clockLink{clock: s.clock, echoDelay: func(int) time.Duration { return time.Millisecond }}
	d := NewDiagnostics(link, s.own, s.con, 5*time.Second, nil)
	d.now = s.clock.Now
	sender, err := NewOutbound(link).Claim()
	s.Require().NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep := d.Latency(ctx, sender, s.cfg)
	s.ErrorIs(rep.Err, context.Canceled)
	s.True(rep.NoData)
}

func (s *LatencySuite) TestReport() {
	d := NewDiagnostics(nil, s.own, s.con, time.Second, nil)
	d.ReportLatency(model.LatencyReport{Iterations: 100, NoData: true})
	s.Contains(s.con.joined(&s.con.failures), "No data")

	d.ReportLatency(model.LatencyReport{Iterations: 100, Valid: 99, Mean: 2.1, Min: 2, Max: 2.4})
	s.Contains(s.con.joined(&s.con.successes), "Valid samples: 99/100")
	s.Contains(s.con.joined(&s.con.successes), "Average latency: 2.100 ms")
}

func TestLatencySuite(t *testing.T) {
	suite.Run(t, new(LatencySuite))
}

func TestLatencyAgainstSimulator(t *testing.T) {
	host, dev := device.Pipe()
	simCfg := device.DefaultSimulatorConfig()
	simCfg.Heartbeat = 0
	sim := device.NewSimulator("latency", dev, simCfg, zaptest.NewLogger(t))
	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- sim.StartSimulation(stop) }()
	defer func() {
		close(stop)
		require.NoError(t, <-done)
	}()

	// the greeting arrives before the test starts and is consumed as a mismatch
	con := &recordingConsole{}
	d := NewDiagnostics(host, NewReadOwnership(), con, 5*time.Second, zaptest.NewLogger(t))
	sender, err := NewOutbound(host).Claim()
	require.NoError(t, err)

	rep := d.Latency(context.Background(), sender, model.LatencyConfig{
		Iterations: 100, Probe: "ping", PreDelay: time.Millisecond, Match: "contains", ProgressEvery: 10,
	})

	require.NoError(t, rep.Err)
	assert.Equal(t, 100, rep.Valid)
	assert.GreaterOrEqual(t, rep.Min, 2.0)
	assert.GreaterOrEqual(t, rep.Mean, rep.Min)
	assert.LessOrEqual(t, rep.Mean, rep.Max)
}
