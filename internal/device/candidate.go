package device

// Candidate is one selectable endpoint: a serial port, a BLE peripheral or a URL.
type Candidate struct {
	Label   string // shown to the operator
	Address string // port path, BLE address or URL
	ref     any    // transport-specific handle captured during discovery
}
