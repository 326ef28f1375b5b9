package device

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// SimulatorConfig shapes the simulated firmware.
type SimulatorConfig struct {
	// ReplyDelay is applied before every reply.
	ReplyDelay time.Duration
	// Heartbeat is the "." interval; zero disables it.
	Heartbeat time.Duration
	// Probe lines (contained in the received text) are echoed back verbatim.
	Probe string
	// EchoPrefix is put in front of every other received command.
	EchoPrefix string
	// FillByte marks throughput payload; a terminated run of it is acknowledged when Ack is set.
	FillByte byte
	Ack      bool
	// Silent drops every reply except the greeting, for timeout scenarios.
	Silent bool
}

// DefaultSimulatorConfig mirrors the stock firmware.
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		ReplyDelay: 2 * time.Millisecond,
		Heartbeat:  time.Second,
		Probe:      "ping",
		EchoPrefix: "BT ",
		FillByte:   '0',
	}
}

// Simulator behaves like the peripheral firmware on the device side of a Link:
// it greets with "Online", sends "." heartbeats, echoes latency probes and
// reports every other command back with the echo prefix.
type Simulator struct {
	ID   string
	Link Link
	Cfg  SimulatorConfig

	log     *zap.Logger
	payload int
}

// NewSimulator wraps the device side of a link.
func NewSimulator(id string, link Link, cfg SimulatorConfig, log *zap.Logger) *Simulator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Simulator{ID: id, Link: link, Cfg: cfg, log: log.With(zap.String("simulator", id))}
}

// StartSimulation serves the link until stop is closed or the link closes.
func (s *Simulator) StartSimulation(stop <-chan struct{}) error {
	if err := s.Link.WriteLine("Online"); err != nil {
		return fmt.Errorf("simulator %s greet: %w", s.ID, err)
	}
	s.log.Info("simulator started")

	var heartbeat <-chan time.Time
	if s.Cfg.Heartbeat > 0 {
		t := time.NewTicker(s.Cfg.Heartbeat)
		defer t.Stop()
		heartbeat = t.C
	}

	for {
		select {
		case <-stop:
			s.log.Info("simulation stopped")
			return nil
		case <-heartbeat:
			if err := s.Link.WriteLine("."); err != nil {
				s.log.Warn("heartbeat write", zap.Error(err))
			}
			continue
		default:
		}

		raw, err := s.Link.ReadLine(5 * time.Millisecond)
		if errors.Is(err, ErrNoData) {
			continue
		}
		if errors.Is(err, ErrClosed) {
			s.log.Info("link closed")
			return nil
		}
		if err != nil {
			s.log.Warn("simulate read error", zap.Error(err))
			continue
		}
		s.handle(raw)
	}
}

func (s *Simulator) handle(raw []byte) {
	terminated := bytes.HasSuffix(raw, []byte{'\n'})
	text := strings.TrimSpace(string(raw))

	if s.isPayload(text) {
		s.payload += len(text)
		if terminated && s.Cfg.Ack {
			s.reply(fmt.Sprintf("ack %d", s.payload))
		}
		if terminated {
			s.payload = 0
		}
		return
	}
	if text == "" {
		return
	}
	if s.Cfg.Probe != "" && strings.Contains(text, s.Cfg.Probe) {
		s.reply(text)
		return
	}
	s.reply(s.Cfg.EchoPrefix + text)
}

func (s *Simulator) isPayload(text string) bool {
	if s.Cfg.FillByte == 0 || text == "" {
		return false
	}
	return strings.Trim(text, string(s.Cfg.FillByte)) == ""
}

func (s *Simulator) reply(line string) {
	if s.Cfg.Silent {
		return
	}
	if s.Cfg.ReplyDelay > 0 {
		time.Sleep(s.Cfg.ReplyDelay)
	}
	if err := s.Link.WriteLine(line); err != nil {
		s.log.Warn("simulate write error", zap.Error(err))
		return
	}
	s.log.Debug("simulate write", zap.String("line", line))
}
