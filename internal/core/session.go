package core

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"LinkTerm/internal/console"
	"LinkTerm/internal/device"
	"LinkTerm/internal/keys"
	"LinkTerm/internal/model"
	"LinkTerm/internal/store"
)

// Console is everything the session prints. *console.Display implements it.
type Console interface {
	LineSink
	Outbound(ts time.Time, text string)
	KeyState(payload string)
	Notice(format string, args ...any)
	Progress(format string, args ...any)
	Success(format string, args ...any)
	Clear()
	Menu(table model.ModeTable)
	Candidates(labels []string)
}

// LineReader is operator input. *console.Input implements it.
type LineReader interface {
	ReadLine(ctx context.Context, prompt string) (string, error)
}

// Recorder persists finished diagnostic runs. *store.Store implements it.
type Recorder interface {
	Record(rec store.Record) error
}

// HookInstaller installs the key hook for keyboard mode.
type HookInstaller func(state *keys.State, onKey func(keys.Event)) (io.Closer, error)

func installKeyHook(state *keys.State, onKey func(keys.Event)) (io.Closer, error) {
	return keys.Install(state, onKey)
}

// Session is the mode controller. It shows the menu, runs exactly one mode at a time
// and owns every outbound write through the Outbound claim.
type Session struct {
	cfg   *model.Config
	table model.ModeTable
	link  device.Link
	out   *Outbound
	diag  *Diagnostics
	con   Console
	in    LineReader
	log   *zap.Logger

	installHook HookInstaller
	now         func() time.Time

	history   Recorder
	sessionID string
	linkName  string

	mu        sync.Mutex
	mode      model.Mode
	observers []func(from, to model.Mode)
}

// NewSession builds the mode controller over link. own is shared with the Reader Loop.
func NewSession(cfg *model.Config, link device.Link, own *ReadOwnership, con Console, in LineReader, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		cfg:         cfg,
		table:       model.NewModeTable(*cfg),
		link:        link,
		out:         NewOutbound(link),
		diag:        NewDiagnostics(link, own, con, cfg.Link.ReadTimeout, log.Named("diag")),
		con:         con,
		in:          in,
		log:         log,
		installHook: installKeyHook,
		now:         time.Now,
		mode:        model.Menu,
	}
}

// OnTransition registers fn to be called on every mode change.
func (s *Session) OnTransition(fn func(from, to model.Mode)) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// SetRecorder makes the session persist every diagnostic report to r,
// tagged with the session id and link name.
func (s *Session) SetRecorder(r Recorder, sessionID, linkName string) {
	s.history = r
	s.sessionID = sessionID
	s.linkName = linkName
}

func (s *Session) record(rec store.Record) {
	if s.history == nil {
		return
	}
	rec.Time = s.now()
	rec.Session = s.sessionID
	rec.Link = s.linkName
	if err := s.history.Record(rec); err != nil {
		s.log.Warn("record diagnostic", zap.String("kind", rec.Kind), zap.Error(err))
	}
}

// Mode returns the active mode.
func (s *Session) Mode() model.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// ActiveSenders reports how many writers currently hold the link.
func (s *Session) ActiveSenders() int {
	return s.out.ActiveSenders()
}

func (s *Session) transition(to model.Mode) {
	s.mu.Lock()
	from := s.mode
	s.mode = to
	observers := append([]func(from, to model.Mode){}, s.observers...)
	s.mu.Unlock()

	s.log.Info("mode transition", zap.Stringer("from", from), zap.Stringer("to", to))
	for _, fn := range observers {
		fn(from, to)
	}
}

// Run shows the menu until the operator exits, input ends or ctx is done.
func (s *Session) Run(ctx context.Context) error {
	s.con.Menu(s.table)
	for {
		line, err := s.in.ReadLine(ctx, "Select mode: ")
		if err != nil {
			if endOfInput(ctx, err) {
				s.log.Info("session ended", zap.Error(err))
				return nil
			}
			return err
		}

		sel := strings.TrimSpace(line)
		if sel == "" || strings.EqualFold(sel, s.cfg.Terminal.ClearToken) {
			s.con.Clear()
			s.con.Menu(s.table)
			continue
		}

		spec, ok := s.table.Lookup(sel)
		if !ok {
			s.con.Failure("Invalid selection %q. Please try again.", sel)
			s.log.Debug("invalid menu selection", zap.String("input", sel))
			if !sleepCtx(ctx, s.cfg.Menu.InvalidDelay) {
				return nil
			}
			s.con.Clear()
			s.con.Menu(s.table)
			continue
		}
		if spec.Mode == model.Exit {
			s.con.Notice("Exiting.")
			return nil
		}

		s.activate(ctx, spec)
		if ctx.Err() != nil {
			return nil
		}
		s.con.Menu(s.table)
	}
}

// activate runs one mode. However many times the mode's exit fires, the session
// goes back to the menu once, after the mode has released the link.
func (s *Session) activate(ctx context.Context, spec model.ModeSpec) {
	sender, err := s.out.Claim()
	if err != nil {
		s.con.Failure("Cannot enter %s: %v", spec.Label, err)
		return
	}

	modeCtx, cancel := context.WithCancel(ctx)
	var once sync.Once
	exit := func() {
		once.Do(func() {
			s.log.Debug("mode exit requested", zap.Stringer("mode", spec.Mode))
			cancel()
		})
	}

	s.transition(spec.Mode)
	s.con.Notice("Entering %s (%s).", spec.Label, spec.Payload)

	var runErr error
	switch spec.Mode {
	case model.Terminal:
		runErr = s.runTerminal(modeCtx, exit, spec, sender)
	case model.Keyboard:
		runErr = s.runKeyboard(modeCtx, exit, spec, sender)
	case model.LatencyTest:
		s.runCancellable(modeCtx, exit, spec, func(ctx context.Context) {
			rep := s.diag.Latency(ctx, sender, s.cfg.Latency)
			s.diag.ReportLatency(rep)
			s.record(store.LatencyRecord(rep))
		})
	case model.MbpsTest:
		s.runCancellable(modeCtx, exit, spec, func(ctx context.Context) {
			rep := s.diag.Throughput(ctx, sender, s.cfg.Throughput)
			s.diag.ReportThroughput(rep)
			s.record(store.ThroughputRecord(rep))
		})
	}
	exit()
	sender.Revoke()

	if runErr != nil {
		s.log.Warn("mode ended with error", zap.Stringer("mode", spec.Mode), zap.Error(runErr))
		s.con.Failure("%s failed: %v", spec.Label, runErr)
	}
	s.transition(model.Menu)
}

// runCancellable runs a diagnostic while watching operator input: an escape token or
// Ctrl-C cancels it. Other input typed meanwhile is ignored.
func (s *Session) runCancellable(ctx context.Context, exit func(), spec model.ModeSpec, run func(ctx context.Context)) {
	watchCtx, stopWatch := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			line, err := s.in.ReadLine(watchCtx, "")
			if err != nil {
				if errors.Is(err, console.ErrInterrupt) {
					exit()
				}
				return
			}
			if matchesToken(line, spec.EscapeTokens) {
				s.con.Notice("Cancelling %s.", spec.Label)
				exit()
				return
			}
		}
	}()
	run(ctx)
	stopWatch()
	wg.Wait()
}

// endOfInput reports whether err means the operator is gone or asked to stop.
func endOfInput(ctx context.Context, err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, console.ErrInterrupt) ||
		errors.Is(err, console.ErrClosed) ||
		ctx.Err() != nil
}

func matchesToken(input string, tokens []string) bool {
	in := strings.TrimSpace(input)
	for _, t := range tokens {
		if strings.EqualFold(in, t) {
			return true
		}
	}
	return false
}

// sleepCtx waits d. It returns false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
