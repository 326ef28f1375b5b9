package keys

import (
	"context"
	"time"
)

// Sampler serializes State on every tick and sends the payload, changed or not.
type Sampler struct {
	State *State
	Tick  time.Duration
	Sep   string
	Empty string

	// Send writes one payload to the link.
	Send func(payload string) error
	// Show echoes non-empty payloads to the display; optional.
	Show func(payload string)
	// OnError reports send failures; the sampler keeps ticking.
	OnError func(error)
}

// Run ticks until ctx is done. A send in progress when ctx ends completes first.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return
		}
		payload := s.State.Serialize(s.Sep, s.Empty)
		if err := s.Send(payload); err != nil {
			if s.OnError != nil {
				s.OnError(err)
			}
			continue
		}
		if payload != s.Empty && s.Show != nil {
			s.Show(payload)
		}
	}
}
