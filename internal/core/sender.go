package core

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"LinkTerm/internal/device"
	"LinkTerm/internal/fault"
)

var (
	// ErrRevoked is returned by a Sender after its mode has ended.
	ErrRevoked = errors.New("sender revoked")
	// ErrWriterBusy is returned when a second writer is claimed while one is active.
	ErrWriterBusy = errors.New("another writer is active")
)

// Outbound hands out the right to write to the link, one Sender at a time.
type Outbound struct {
	link   device.Link
	mu     sync.Mutex
	active *Sender
}

// NewOutbound wraps link.
func NewOutbound(link device.Link) *Outbound {
	return &Outbound{link: link}
}

// Claim returns the writer for a mode activation.
func (o *Outbound) Claim() (*Sender, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active != nil {
		return nil, ErrWriterBusy
	}
	o.active = &Sender{owner: o, link: o.link}
	return o.active, nil
}

// ActiveSenders reports how many writers hold the link (0 or 1).
func (o *Outbound) ActiveSenders() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return 0
	}
	return 1
}

func (o *Outbound) release(s *Sender) {
	o.mu.Lock()
	if o.active == s {
		o.active = nil
	}
	o.mu.Unlock()
}

// Sender serializes every write of one mode activation. Concurrent producers inside a
// mode (the key sampler and typed commands) share it.
type Sender struct {
	owner   *Outbound
	link    device.Link
	mu      sync.Mutex
	revoked bool
}

// SendLine writes text as one line and flushes it.
func (s *Sender) SendLine(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.revoked {
		return ErrRevoked
	}
	if err := s.link.WriteLine(text); err != nil {
		return fault.Wrap(err, fault.IO, "write line")
	}
	return fault.Wrap(s.link.Flush(), fault.IO, "flush")
}

// WriteChunk writes p completely and flushes it.
func (s *Sender) WriteChunk(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.revoked {
		return ErrRevoked
	}
	n, err := s.link.Write(p)
	if err != nil {
		return fault.Wrap(err, fault.IO, "write chunk")
	}
	if n != len(p) {
		return fault.Wrap(fmt.Errorf("wrote %d of %d bytes: %w", n, len(p), io.ErrShortWrite), fault.IO, "write chunk")
	}
	return fault.Wrap(s.link.Flush(), fault.IO, "flush")
}

// Revoke waits for an in-flight write to finish and rejects every later one.
func (s *Sender) Revoke() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.revoked {
		return
	}
	s.revoked = true
	s.owner.release(s)
}
