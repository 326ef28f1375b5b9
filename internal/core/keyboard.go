package core

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"LinkTerm/internal/keys"
	"LinkTerm/internal/model"
)

// runKeyboard streams the held-key state every tick while the key hook is installed.
// Typed lines are sent verbatim. The escape key, the exit token or Ctrl-C end the mode;
// the hook is removed on every path out.
func (s *Session) runKeyboard(ctx context.Context, exit func(), spec model.ModeSpec, sender *Sender) error {
	state := keys.NewState()
	hook, err := s.installHook(state, func(ev keys.Event) {
		if ev.Down && ev.Name == spec.EscapeKey {
			exit()
		}
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := hook.Close(); err != nil {
			s.log.Warn("key hook close failed", zap.Error(err))
		}
		s.con.Notice("Exited keyboard listening mode.")
	}()

	s.con.Notice("Press %s or type %s to return to the menu.", spec.EscapeKey, spec.EscapeTokens[0])

	var errs errorFilter
	sampler := &keys.Sampler{
		State: state,
		Tick:  spec.Tick,
		Sep:   s.cfg.Keyboard.Separator,
		Empty: s.cfg.Keyboard.EmptyToken,
		Send:  sender.SendLine,
		Show:  s.con.KeyState,
		OnError: func(err error) {
			if errors.Is(err, ErrRevoked) || !errs.first(err) {
				return
			}
			s.log.Warn("key state send failed", zap.Error(err))
			s.con.Failure("Send failed: %v", err)
		},
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		sampler.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		s.keyboardInput(ctx, exit, spec, sender)
	}()

	<-ctx.Done()
	sender.Revoke()
	wg.Wait()
	return nil
}

func (s *Session) keyboardInput(ctx context.Context, exit func(), spec model.ModeSpec, sender *Sender) {
	for {
		line, err := s.in.ReadLine(ctx, "")
		if err != nil {
			if ctx.Err() == nil {
				exit()
			}
			return
		}
		if matchesToken(line, spec.EscapeTokens) {
			exit()
			return
		}
		s.con.Outbound(s.now(), line)
		if err := sender.SendLine(line); err != nil && !errors.Is(err, ErrRevoked) {
			s.con.Failure("Send failed: %v", err)
		}
	}
}
