// Package device defines the Link contract used by the terminal core and its transports
// (serial port, BLE characteristic, WebSocket bridge, in-memory pipe).
// It abstracts reading and writing line-based data with optional timeouts.
package device

import (
	"errors"
	"time"
)

// ErrNoData is returned by ReadLine when no complete line arrived within the timeout.
// It is an absence result, not a link failure.
var ErrNoData = errors.New("no data")

// ErrClosed is returned by operations on a closed link.
var ErrClosed = errors.New("link closed")

// Link is a duplex byte-line channel to the peripheral.
// Reads and writes are not synchronized against each other: callers partition them
// (one reader context, one writer context at a time).
type Link interface {
	// ReadLine returns the next complete line including its terminator.
	// If timeout <= 0 it only polls what is already buffered.
	// It returns ErrNoData when nothing arrived in time.
	ReadLine(timeout time.Duration) ([]byte, error)

	// WriteLine writes s followed by '\n'.
	WriteLine(s string) error

	// Write writes raw bytes, for payloads that are not lines.
	Write(p []byte) (int, error)

	// Flush blocks until written data has left the host.
	Flush() error

	// ResetInputBuffer discards everything received but not yet read.
	ResetInputBuffer() error

	// ResetOutputBuffer discards everything written but not yet transmitted.
	ResetOutputBuffer() error

	// Close closes the link and releases underlying resources.
	Close() error
}

// Named is implemented by links that can describe their endpoint for the connection banner.
type Named interface {
	Name() string
}
