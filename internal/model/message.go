// Package model defines shared message structures for LinkTerm.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Classification tells the display how an inbound line was produced by the device.
type Classification int

const (
	// DeviceTelemetry is a plain line emitted by the firmware.
	DeviceTelemetry Classification = iota
	// DeviceEcho is a line starting with the reserved echo marker.
	DeviceEcho
)

func (c Classification) String() string {
	switch c {
	case DeviceEcho:
		return "echo"
	default:
		return "telemetry"
	}
}

// InboundLine is a decoded line received from the link.
type InboundLine struct {
	Timestamp time.Time
	Text      string
	Class     Classification
}

// Mode is the state of the mode controller.
type Mode int

const (
	Menu Mode = iota
	Terminal
	Keyboard
	MbpsTest
	LatencyTest
	// Exit is selected from the menu to end the session; it is never an active state.
	Exit
)

func (m Mode) String() string {
	switch m {
	case Menu:
		return "menu"
	case Terminal:
		return "terminal"
	case Keyboard:
		return "keyboard"
	case MbpsTest:
		return "mbps_test"
	case LatencyTest:
		return "latency_test"
	case Exit:
		return "exit"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ModeSpec is one row of the mode table: how the mode is selected and what it needs.
type ModeSpec struct {
	Mode   Mode
	Label  string   // shown in the menu, also accepted as a token
	Tokens []string // accepted selections (case-insensitive)

	EscapeTokens []string      // typed tokens that leave the mode
	EscapeKey    string        // key name that leaves the mode (keyboard)
	Tick         time.Duration // send cadence (keyboard)
	Payload      string        // short description of what is written (shown on entry)
}

// ModeTable is the ordered set of selectable modes.
type ModeTable []ModeSpec

// NewModeTable builds the mode table from the configuration.
func NewModeTable(cfg Config) ModeTable {
	return ModeTable{
		{
			Mode:         Terminal,
			Label:        "Terminal Mode",
			Tokens:       []string{"1", "terminal"},
			EscapeTokens: cfg.Terminal.ExitTokens,
			Payload:      "typed lines",
		},
		{
			Mode:         Keyboard,
			Label:        "Keyboard Mode",
			Tokens:       []string{"2", "keyboard", "keyboard_mode"},
			EscapeTokens: []string{cfg.Keyboard.ExitToken},
			EscapeKey:    cfg.Keyboard.EscapeKey,
			Tick:         cfg.Keyboard.TickInterval,
			Payload:      "held keys joined with " + cfg.Keyboard.Separator,
		},
		{
			Mode:         MbpsTest,
			Label:        "Mbps Test",
			Tokens:       []string{"3", "mbps", "mbps_test"},
			EscapeTokens: cfg.Terminal.ExitTokens,
			Payload:      fmt.Sprintf("%d x %d bytes", cfg.Throughput.Chunks, cfg.Throughput.ChunkSize),
		},
		{
			Mode:         LatencyTest,
			Label:        "Latency Test",
			Tokens:       []string{"4", "latency", "latency_test"},
			EscapeTokens: cfg.Terminal.ExitTokens,
			Payload:      fmt.Sprintf("%d x %q", cfg.Latency.Iterations, cfg.Latency.Probe),
		},
		{
			Mode:   Exit,
			Label:  "Exit",
			Tokens: []string{"exit", "quit"},
		},
	}
}

// Lookup resolves a menu selection to a mode.
func (t ModeTable) Lookup(input string) (ModeSpec, bool) {
	sel := strings.ToLower(strings.TrimSpace(input))
	if sel == "" {
		return ModeSpec{}, false
	}
	for _, spec := range t {
		if sel == strings.ToLower(spec.Label) {
			return spec, true
		}
		for _, tok := range spec.Tokens {
			if sel == strings.ToLower(tok) {
				return spec, true
			}
		}
	}
	return ModeSpec{}, false
}

// Spec returns the row for mode m.
func (t ModeTable) Spec(m Mode) (ModeSpec, bool) {
	for _, spec := range t {
		if spec.Mode == m {
			return spec, true
		}
	}
	return ModeSpec{}, false
}

// LatencyReport summarises a latency diagnostic run.
type LatencyReport struct {
	Iterations int       // probes sent
	Valid      int       // probes answered with a matching line
	Mismatched int       // non-matching lines read while waiting for an echo
	Samples    []float64 // round trips in milliseconds, in probe order
	Mean       float64
	Min        float64
	Max        float64
	NoData     bool  // no valid sample: statistics are undefined
	Err        error // I/O fault or cancellation that ended the run early
}

// ThroughputReport summarises a throughput diagnostic run.
type ThroughputReport struct {
	Bytes       int
	Elapsed     time.Duration
	Mbps        float64
	AckReceived bool
	Err         error
}

// Mbps converts a byte count transferred over elapsed into megabits per second.
func Mbps(bytes int, elapsed time.Duration) float64 {
	secs := elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(bytes) * 8 / (secs * 1_000_000)
}
