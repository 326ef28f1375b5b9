// Package fault defines the error taxonomy shared by the link, the reader and the modes.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by how the caller must react to it.
type Kind int

const (
	// Unknown is any error not produced by this package.
	Unknown Kind = iota
	// Connection: the link cannot be opened. Fatal to the session.
	Connection
	// IO: a single read or write failed. Reported, the loop or mode continues.
	IO
	// Decode: malformed bytes on read. The line is skipped.
	Decode
	// UserInput: invalid menu or port selection. Reprompt.
	UserInput
	// ProtocolMismatch: a diagnostic response did not match. The sample is dropped.
	ProtocolMismatch
	// Config: configuration could not be loaded or is invalid.
	Config
)

var kindNames = map[Kind]string{
	Unknown:          "unknown",
	Connection:       "connection",
	IO:               "io",
	Decode:           "decode",
	UserInput:        "user input",
	ProtocolMismatch: "protocol mismatch",
	Config:           "config",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return kindNames[Unknown]
}

// Error is a classified error. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s error: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error without a cause.
func New(kind Kind, op string) *Error {
	return &Error{Kind: kind, Op: op}
}

// Wrap classifies err. A nil err stays nil; an already classified err keeps its kind.
func Wrap(err error, kind Kind, op string) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsFatal reports whether err must end the session.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case Connection, Config:
		return true
	default:
		return false
	}
}
