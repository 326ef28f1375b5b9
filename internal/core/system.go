// Package core contains the runtime of the LinkTerm client: the Reader Loop, the mode
// controller and its modes, the diagnostics, and the System that wires them to a link.
package core

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"LinkTerm/internal/device"
	"LinkTerm/internal/fault"
	"LinkTerm/internal/model"
	"LinkTerm/internal/parser"
	"LinkTerm/internal/store"
)

// System manages the lifecycle of one client session: it opens the configured link,
// then runs the Reader Loop and the Session over it until the operator exits.
type System struct {
	cfg *model.Config
	con Console
	in  LineReader
	log *zap.Logger

	Link    device.Link
	Reader  *Reader
	Session *Session

	own     *ReadOwnership
	store   *store.Store
	session string
	address string
	simStop chan struct{}
	simDone chan error

	startLock sync.Mutex
	started   bool
}

// NewSystem creates a System. Nothing is opened until Connect.
func NewSystem(cfg *model.Config, con Console, in LineReader, log *zap.Logger) *System {
	if log == nil {
		log = zap.NewNop()
	}
	return &System{cfg: cfg, con: con, in: in, log: log, own: NewReadOwnership()}
}

// UseStore makes the System remember the device it connects to and record
// diagnostic runs of the session identified by sessionID.
func (s *System) UseStore(st *store.Store, sessionID string) {
	s.store = st
	s.session = sessionID
}

// Connect opens the link for the configured transport, asking the operator to pick a
// device where one is not configured. ok is false when the operator made no selection.
func (s *System) Connect(ctx context.Context) (bool, error) {
	var (
		link device.Link
		err  error
	)
	switch s.cfg.Link.Transport {
	case "serial":
		link, err = s.connectSerial(ctx)
	case "ble":
		link, err = s.connectBLE(ctx)
	case "websocket":
		s.address = s.cfg.WebSocket.URL
		link, err = device.NewWebSocketLink(ctx, s.cfg.WebSocket)
	case "loopback":
		s.address = "loopback"
		link = s.startLoopback()
	default:
		err = fault.Wrap(fmt.Errorf("unknown transport %q", s.cfg.Link.Transport), fault.Config, "connect")
	}
	if err != nil {
		return false, err
	}
	if link == nil {
		return false, nil
	}

	s.Attach(link)
	s.banner(link)
	s.remember()
	return true, nil
}

// lastUsed tells the operator which device was connected last time on this transport.
func (s *System) lastUsed() {
	if s.store == nil {
		return
	}
	addr, err := s.store.LastLink(s.cfg.Link.Transport)
	if err != nil {
		s.log.Warn("read last link", zap.Error(err))
		return
	}
	if addr != "" {
		s.con.Notice("Last used: %s", addr)
	}
}

func (s *System) remember() {
	if s.store == nil || s.address == "" {
		return
	}
	if err := s.store.SetLastLink(s.cfg.Link.Transport, s.address); err != nil {
		s.log.Warn("save last link", zap.Error(err))
	}
}

func (s *System) connectSerial(ctx context.Context) (device.Link, error) {
	port := s.cfg.Serial.Port
	if port == "" {
		s.lastUsed()
		c, ok, err := SelectCandidate(ctx, s.in, s.con, func(context.Context) ([]device.Candidate, error) {
			return device.SerialPorts()
		})
		if err != nil || !ok {
			return nil, err
		}
		port = c.Address
	}
	s.address = port
	return device.NewSerialDevice(port, s.cfg.Serial.BaudRate)
}

func (s *System) connectBLE(ctx context.Context) (device.Link, error) {
	s.lastUsed()
	c, ok, err := SelectCandidate(ctx, s.in, s.con, func(ctx context.Context) ([]device.Candidate, error) {
		s.con.Notice("Scanning for BLE devices (%s)...", s.cfg.BLE.ScanTimeout)
		return device.BLEPeripherals(ctx, s.cfg.BLE.ScanTimeout)
	})
	if err != nil || !ok {
		return nil, err
	}
	s.address = c.Address
	return device.NewBLELink(c, s.cfg.BLE)
}

// startLoopback connects to the built-in firmware simulator over an in-memory pipe.
func (s *System) startLoopback() device.Link {
	host, dev := device.Pipe()
	simCfg := device.DefaultSimulatorConfig()
	simCfg.ReplyDelay = s.cfg.Loopback.ReplyDelay
	simCfg.Heartbeat = s.cfg.Loopback.Heartbeat
	simCfg.Probe = s.cfg.Latency.Probe
	simCfg.EchoPrefix = s.cfg.Display.EchoPrefix
	simCfg.FillByte = s.cfg.Throughput.FillByte[0]
	simCfg.Ack = s.cfg.Throughput.AwaitAck

	sim := device.NewSimulator("loopback", dev, simCfg, s.log.Named("simulator"))
	s.simStop = make(chan struct{})
	s.simDone = make(chan error, 1)
	go func() { s.simDone <- sim.StartSimulation(s.simStop) }()
	return host
}

func (s *System) banner(link device.Link) {
	name := s.cfg.Link.Transport
	if n, ok := link.(device.Named); ok {
		name = n.Name()
	}
	s.con.Success("Connected to %s", name)
	s.log.Info("link connected", zap.String("transport", s.cfg.Link.Transport), zap.String("name", name))
}

// Attach builds the Reader Loop and the Session over an already open link.
func (s *System) Attach(link device.Link) {
	s.Link = link
	s.Reader = NewReader(link, s.own, parser.NewRules(s.cfg.Display), s.con, s.cfg.Link.PollInterval, s.log.Named("reader"))
	s.Session = NewSession(s.cfg, link, s.own, s.con, s.in, s.log.Named("session"))
	if s.store != nil {
		name := s.cfg.Link.Transport
		if n, ok := link.(device.Named); ok {
			name = n.Name()
		}
		s.Session.SetRecorder(s.store, s.session, name)
	}
}

// Run starts the Reader Loop and runs the Session in the calling goroutine.
// It returns when the operator exits or ctx is done; the Reader Loop is stopped first.
func (s *System) Run(ctx context.Context) error {
	s.startLock.Lock()
	if s.started || s.Link == nil {
		s.startLock.Unlock()
		return fault.New(fault.Connection, "run: no link or already running")
	}
	s.started = true
	s.startLock.Unlock()

	readerCtx, stopReader := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Reader.Run(readerCtx)
	}()

	err := s.Session.Run(ctx)
	stopReader()
	wg.Wait()

	st := s.Reader.Stats()
	s.log.Info("session finished",
		zap.Uint64("emitted", st.Emitted), zap.Uint64("filtered", st.Filtered),
		zap.Uint64("malformed", st.Malformed), zap.Uint64("read_errors", st.Errors))
	return err
}

// ApplyConfig takes the reloadable parts of a new configuration (display rules).
func (s *System) ApplyConfig(cfg *model.Config) {
	if s.Reader == nil {
		return
	}
	s.Reader.SetRules(parser.NewRules(cfg.Display))
	s.log.Info("display rules reloaded",
		zap.String("echo_prefix", cfg.Display.EchoPrefix), zap.Strings("sentinels", cfg.Display.Sentinels))
}

// Close closes the link and stops the loopback simulator, if any.
func (s *System) Close() error {
	var err error
	if s.Link != nil {
		err = s.Link.Close()
	}
	if s.simStop != nil {
		close(s.simStop)
		if simErr := <-s.simDone; simErr != nil {
			s.log.Warn("simulator stopped with error", zap.Error(simErr))
		}
		s.simStop = nil
	}
	return err
}
