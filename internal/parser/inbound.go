// Package parser turns raw link lines into classified inbound lines.
//
// Inbound wire format: UTF-8 text terminated by '\n' (an optional '\r' is trimmed).
// Lines starting with the echo marker ("BT " by default) are echoes of what the
// device forwarded; every other line is telemetry. Sentinel lines (heartbeats)
// are recognised so the caller can drop them from display.
package parser

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"LinkTerm/internal/fault"
	"LinkTerm/internal/model"
)

// Rules configures classification and filtering.
type Rules struct {
	EchoPrefix string
	Sentinels  []string
}

// NewRules builds Rules from the display configuration.
func NewRules(cfg model.DisplayConfig) Rules {
	return Rules{EchoPrefix: cfg.EchoPrefix, Sentinels: append([]string(nil), cfg.Sentinels...)}
}

// IsSentinel reports whether text is a heartbeat line that must not be displayed.
func (r Rules) IsSentinel(text string) bool {
	for _, s := range r.Sentinels {
		if text == s {
			return true
		}
	}
	return false
}

// Classify decides how text is colored.
func (r Rules) Classify(text string) model.Classification {
	if r.EchoPrefix != "" && strings.HasPrefix(text, r.EchoPrefix) {
		return model.DeviceEcho
	}
	return model.DeviceTelemetry
}

// DecodeText validates raw as UTF-8 and trims surrounding whitespace and line terminators.
func DecodeText(raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		return "", fault.New(fault.Decode, "invalid utf-8 in line")
	}
	return strings.TrimSpace(string(raw)), nil
}

// Decode turns raw into an InboundLine stamped with now.
// Malformed lines return a Decode fault and must be skipped.
func (r Rules) Decode(raw []byte, now time.Time) (model.InboundLine, error) {
	text, err := DecodeText(raw)
	if err != nil {
		return model.InboundLine{}, err
	}
	return model.InboundLine{
		Timestamp: now,
		Text:      text,
		Class:     r.Classify(text),
	}, nil
}

// FormatTimestamp renders t with millisecond precision, e.g. 2024-05-01 13:04:05:123.
func FormatTimestamp(t time.Time) string {
	return fmt.Sprintf("%s:%03d", t.Format("2006-01-02 15:04:05"), t.Nanosecond()/int(time.Millisecond))
}
