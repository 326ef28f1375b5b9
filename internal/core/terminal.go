package core

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"LinkTerm/internal/model"
)

// runTerminal forwards typed lines to the device until an exit token or Ctrl-C.
// Exit and clear tokens are never written to the link.
func (s *Session) runTerminal(ctx context.Context, exit func(), spec model.ModeSpec, sender *Sender) error {
	s.con.Notice("Type a command and press Enter. Type %s to return to the menu, %s to clear.",
		strings.Join(spec.EscapeTokens, " or "), s.cfg.Terminal.ClearToken)

	for {
		line, err := s.in.ReadLine(ctx, "")
		if err != nil {
			if endOfInput(ctx, err) {
				exit()
				return nil
			}
			return err
		}

		if matchesToken(line, spec.EscapeTokens) {
			exit()
			return nil
		}
		if matchesToken(line, []string{s.cfg.Terminal.ClearToken}) {
			s.con.Clear()
			continue
		}

		s.con.Outbound(s.now(), line)
		if err := sender.SendLine(line); err != nil {
			if errors.Is(err, ErrRevoked) {
				return nil
			}
			s.log.Warn("terminal send failed", zap.Error(err))
			s.con.Failure("Send failed: %v", err)
		}
	}
}

