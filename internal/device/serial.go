// Package device implements SerialDevice using go.bug.st/serial,
// which provides real serial communication support for boards like the ESP32.
package device

import (
	"errors"
	"fmt"
	"sync"
	"time"

	serial "go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"LinkTerm/internal/fault"
)

// pumpTimeout bounds each blocking port read so the receive pump notices Close.
const pumpTimeout = 100 * time.Millisecond

// SerialDevice implements Link using go.bug.st/serial.
// A receive pump goroutine owns port reads and feeds the line queue.
type SerialDevice struct {
	port serial.Port
	q    *lineQueue
	dev  string
	baud int

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// NewSerialDevice opens dev at baud, clears both buffers and starts receiving.
func NewSerialDevice(dev string, baud int) (*SerialDevice, error) {
	p, err := serial.Open(dev, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fault.Wrap(fmt.Errorf("failed to open serial %s: %w", dev, err), fault.Connection, "open serial")
	}
	if err := p.SetReadTimeout(pumpTimeout); err != nil {
		_ = p.Close()
		return nil, fault.Wrap(fmt.Errorf("set read timeout on %s: %w", dev, err), fault.Connection, "open serial")
	}
	_ = p.ResetInputBuffer()
	_ = p.ResetOutputBuffer()

	s := &SerialDevice{port: p, q: newLineQueue(), dev: dev, baud: baud, done: make(chan struct{})}
	s.wg.Add(1)
	go s.pump()
	return s, nil
}

func (s *SerialDevice) pump() {
	defer s.wg.Done()
	buf := make([]byte, 4096)
	for {
		n, err := s.port.Read(buf)
		if n > 0 {
			s.q.feed(buf[:n])
		}
		if err == nil {
			continue
		}
		select {
		case <-s.done:
			return
		default:
		}
		var portErr *serial.PortError
		if errors.As(err, &portErr) && portErr.Code() == serial.PortClosed {
			s.q.close()
			return
		}
		s.q.fail(fault.Wrap(err, fault.IO, "read "+s.dev))
		// non-fatal: wait and retry, the device may come back
		select {
		case <-s.done:
			return
		case <-time.After(200 * time.Millisecond):
		}
	}
}

// Name describes the endpoint for the connection banner.
func (s *SerialDevice) Name() string {
	return fmt.Sprintf("%s at %d baud", s.dev, s.baud)
}

// ReadLine returns the next buffered line, waiting at most timeout.
func (s *SerialDevice) ReadLine(timeout time.Duration) ([]byte, error) {
	return s.q.next(timeout)
}

// WriteLine writes a single line followed by '\n' to the serial port.
func (s *SerialDevice) WriteLine(line string) error {
	_, err := s.Write(append([]byte(line), '\n'))
	return err
}

// Write writes raw bytes to the serial port.
func (s *SerialDevice) Write(p []byte) (int, error) {
	n, err := s.port.Write(p)
	if err != nil {
		return n, fault.Wrap(err, fault.IO, "write "+s.dev)
	}
	return n, nil
}

// Flush waits until the OS has transmitted everything written so far.
func (s *SerialDevice) Flush() error {
	return fault.Wrap(s.port.Drain(), fault.IO, "drain "+s.dev)
}

// ResetInputBuffer discards the driver input buffer and every queued line.
func (s *SerialDevice) ResetInputBuffer() error {
	err := s.port.ResetInputBuffer()
	s.q.reset()
	return fault.Wrap(err, fault.IO, "reset input "+s.dev)
}

// ResetOutputBuffer discards data written but not yet transmitted.
func (s *SerialDevice) ResetOutputBuffer() error {
	return fault.Wrap(s.port.ResetOutputBuffer(), fault.IO, "reset output "+s.dev)
}

// Close closes the underlying serial connection and waits for the pump to stop.
func (s *SerialDevice) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.closeErr = s.port.Close()
		s.wg.Wait()
		s.q.close()
	})
	return s.closeErr
}

// SerialPorts lists the serial ports present on the host as selection candidates.
func SerialPorts() ([]Candidate, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		// Fall back to plain names when USB details are unavailable.
		names, nerr := serial.GetPortsList()
		if nerr != nil {
			return nil, fault.Wrap(fmt.Errorf("list serial ports: %w", err), fault.Connection, "enumerate")
		}
		out := make([]Candidate, 0, len(names))
		for _, name := range names {
			out = append(out, Candidate{Label: name, Address: name})
		}
		return out, nil
	}

	out := make([]Candidate, 0, len(details))
	for _, d := range details {
		desc := "n/a"
		if d.IsUSB {
			desc = fmt.Sprintf("USB %s:%s", d.VID, d.PID)
			if d.Product != "" {
				desc = d.Product + " (" + desc + ")"
			}
		}
		out = append(out, Candidate{Label: d.Name + ": " + desc, Address: d.Name})
	}
	return out, nil
}
