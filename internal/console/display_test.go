package console

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"LinkTerm/internal/model"
)

func newTestDisplay() (*Display, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewDisplay(&buf, model.DisplayConfig{NoColor: true}), &buf
}

func TestDisplayInboundAndOutbound(t *testing.T) {
	d, buf := newTestDisplay()
	ts := time.Date(2024, 5, 1, 13, 4, 5, 123_000_000, time.Local)

	d.Inbound(model.InboundLine{Timestamp: ts, Text: "temp=21", Class: model.DeviceTelemetry})
	d.Inbound(model.InboundLine{Timestamp: ts, Text: "BT led on", Class: model.DeviceEcho})
	d.Outbound(ts, "led on")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		"2024-05-01 13:04:05:123 - temp=21",
		"2024-05-01 13:04:05:123 - BT led on",
		"2024-05-01 13:04:05:123 - led on",
	}, lines)
}

func TestDisplayMenuAndClear(t *testing.T) {
	d, buf := newTestDisplay()
	d.Menu(model.NewModeTable(model.Config{}))
	out := buf.String()
	assert.Contains(t, out, "1. Terminal Mode")
	assert.Contains(t, out, "2. Keyboard Mode")
	assert.Contains(t, out, "3. Mbps Test")
	assert.Contains(t, out, "4. Latency Test")
	assert.NotContains(t, out, "exit. Exit")

	buf.Reset()
	d.Clear()
	assert.Equal(t, clearScreen, buf.String())
}

func TestDisplayCandidates(t *testing.T) {
	d, buf := newTestDisplay()
	d.Candidates([]string{"/dev/ttyUSB0", "/dev/ttyACM0"})
	assert.Contains(t, buf.String(), "  1: /dev/ttyUSB0")
	assert.Contains(t, buf.String(), "  2: /dev/ttyACM0")
}

func TestDisplayStatusLines(t *testing.T) {
	d, buf := newTestDisplay()
	d.Notice("Entering %s", "Terminal Mode")
	d.Progress("Progress: %d/%d", 10, 100)
	d.Success("Average latency: %.3f ms", 2.1)
	d.Failure("write failed: %v", "boom")
	d.KeyState("a+shift")

	out := buf.String()
	for _, want := range []string{"Entering Terminal Mode", "Progress: 10/100", "Average latency: 2.100 ms", "write failed: boom", "Pressed keys: a+shift"} {
		assert.Contains(t, out, want)
	}
}
