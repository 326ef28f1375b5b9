// Package console renders link traffic for the operator and reads operator input.
package console

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"

	"LinkTerm/internal/model"
	"LinkTerm/internal/parser"
)

const clearScreen = "\033[2J\033[H"

// Display writes colored, timestamped lines. All methods are safe for concurrent use:
// the Reader Loop and the active mode print at the same time.
type Display struct {
	mu  sync.Mutex
	out io.Writer

	telemetry *color.Color
	echo      *color.Color
	outbound  *color.Color
	notice    *color.Color
	progress  *color.Color
	success   *color.Color
	failure   *color.Color
}

// NewDisplay builds a display writing to out with the colors from cfg.
func NewDisplay(out io.Writer, cfg model.DisplayConfig) *Display {
	d := &Display{
		out:       out,
		telemetry: rgb(cfg.TelemetryColor, 50, 240, 160),
		echo:      rgb(cfg.EchoColor, 50, 160, 240),
		outbound:  rgb(cfg.OutboundColor, 240, 160, 255),
		notice:    color.New(color.FgYellow),
		progress:  color.New(color.FgCyan),
		success:   color.New(color.FgGreen),
		failure:   color.New(color.FgRed),
	}
	if cfg.NoColor {
		for _, c := range []*color.Color{d.telemetry, d.echo, d.outbound, d.notice, d.progress, d.success, d.failure} {
			c.DisableColor()
		}
	}
	return d
}

func rgb(v []int, r, g, b int) *color.Color {
	if len(v) == 3 {
		r, g, b = v[0], v[1], v[2]
	}
	return color.RGB(r, g, b)
}

func (d *Display) println(c *color.Color, s string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, _ = c.Fprintln(d.out, s)
}

// Inbound prints a line received from the device.
func (d *Display) Inbound(line model.InboundLine) {
	c := d.telemetry
	if line.Class == model.DeviceEcho {
		c = d.echo
	}
	d.println(c, fmt.Sprintf("%s - %s", parser.FormatTimestamp(line.Timestamp), line.Text))
}

// Outbound prints a line the operator sent.
func (d *Display) Outbound(ts time.Time, text string) {
	d.println(d.outbound, fmt.Sprintf("%s - %s", parser.FormatTimestamp(ts), text))
}

// KeyState echoes a key payload streamed in keyboard mode.
func (d *Display) KeyState(payload string) {
	d.println(d.outbound, fmt.Sprintf("Pressed keys: %s", payload))
}

func (d *Display) Notice(format string, args ...any) {
	d.println(d.notice, fmt.Sprintf(format, args...))
}

func (d *Display) Progress(format string, args ...any) {
	d.println(d.progress, fmt.Sprintf(format, args...))
}

func (d *Display) Success(format string, args ...any) {
	d.println(d.success, fmt.Sprintf(format, args...))
}

func (d *Display) Failure(format string, args ...any) {
	d.println(d.failure, fmt.Sprintf(format, args...))
}

// Clear wipes the screen and homes the cursor.
func (d *Display) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, _ = io.WriteString(d.out, clearScreen)
}

// Menu prints the numbered mode table.
func (d *Display) Menu(table model.ModeTable) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, _ = fmt.Fprintln(d.out, "Select mode:")
	for _, spec := range table {
		if spec.Mode == model.Exit {
			continue
		}
		_, _ = fmt.Fprintf(d.out, "  %s. %s\n", spec.Tokens[0], spec.Label)
	}
	_, _ = fmt.Fprintln(d.out, "Type 'exit' to quit.")
}

// Candidates prints the numbered links the operator can connect to.
func (d *Display) Candidates(labels []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, _ = fmt.Fprintln(d.out, "Available devices:")
	for i, l := range labels {
		_, _ = fmt.Fprintf(d.out, "%3d: %s\n", i+1, l)
	}
}
