// Package model defines shared configuration structures used to initialize LinkTerm.
// It includes link transport settings, display rules and per-mode parameters.
package model

import "time"

// Config represents the root structure loaded from linkterm.yaml.
// Every field has a default, so an empty file (or no file) yields a working client.
type Config struct {
	Link       LinkConfig       `mapstructure:"link" yaml:"link"`
	Serial     SerialConfig     `mapstructure:"serial" yaml:"serial"`
	BLE        BLEConfig        `mapstructure:"ble" yaml:"ble"`
	WebSocket  WebSocketConfig  `mapstructure:"websocket" yaml:"websocket"`
	Loopback   LoopbackConfig   `mapstructure:"loopback" yaml:"loopback"`
	Display    DisplayConfig    `mapstructure:"display" yaml:"display"`
	Menu       MenuConfig       `mapstructure:"menu" yaml:"menu"`
	Terminal   TerminalConfig   `mapstructure:"terminal" yaml:"terminal"`
	Keyboard   KeyboardConfig   `mapstructure:"keyboard" yaml:"keyboard"`
	Latency    LatencyConfig    `mapstructure:"latency" yaml:"latency"`
	Throughput ThroughputConfig `mapstructure:"throughput" yaml:"throughput"`
	Store      StoreConfig      `mapstructure:"store" yaml:"store"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
}

// LinkConfig selects the transport and the shared link timings.
type LinkConfig struct {
	Transport    string        `mapstructure:"transport" yaml:"transport"` // serial, ble, websocket, loopback
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"` // reader loop cadence
}

// SerialConfig defines the serial port connection. An empty Port means "ask the operator".
type SerialConfig struct {
	Port     string `mapstructure:"port" yaml:"port"`
	BaudRate int    `mapstructure:"baud_rate" yaml:"baud_rate"`
}

// BLEConfig defines the GATT service and characteristics used as the link.
// CharacteristicUUID is written; NotifyUUID delivers inbound lines. Equal (or empty)
// NotifyUUID means one characteristic carries both directions.
type BLEConfig struct {
	ServiceUUID        string        `mapstructure:"service_uuid" yaml:"service_uuid"`
	CharacteristicUUID string        `mapstructure:"characteristic_uuid" yaml:"characteristic_uuid"`
	NotifyUUID         string        `mapstructure:"notify_uuid" yaml:"notify_uuid"`
	ScanTimeout        time.Duration `mapstructure:"scan_timeout" yaml:"scan_timeout"`
	WriteChunk         int           `mapstructure:"write_chunk" yaml:"write_chunk"`
}

// WebSocketConfig defines a WebSocket bridge exposed by the peripheral.
type WebSocketConfig struct {
	URL              string        `mapstructure:"url" yaml:"url"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
}

// LoopbackConfig tunes the in-memory firmware simulator used by the loopback transport.
type LoopbackConfig struct {
	ReplyDelay time.Duration `mapstructure:"reply_delay" yaml:"reply_delay"`
	Heartbeat  time.Duration `mapstructure:"heartbeat" yaml:"heartbeat"`
}

// DisplayConfig holds the inbound classification rules and the console colors.
type DisplayConfig struct {
	EchoPrefix     string   `mapstructure:"echo_prefix" yaml:"echo_prefix"`
	Sentinels      []string `mapstructure:"sentinels" yaml:"sentinels"`
	NoColor        bool     `mapstructure:"no_color" yaml:"no_color"`
	TelemetryColor []int    `mapstructure:"telemetry_color" yaml:"telemetry_color"`
	EchoColor      []int    `mapstructure:"echo_color" yaml:"echo_color"`
	OutboundColor  []int    `mapstructure:"outbound_color" yaml:"outbound_color"`
}

// MenuConfig defines menu behavior.
type MenuConfig struct {
	InvalidDelay time.Duration `mapstructure:"invalid_delay" yaml:"invalid_delay"`
}

// TerminalConfig defines the terminal mode tokens.
type TerminalConfig struct {
	ExitTokens []string `mapstructure:"exit_tokens" yaml:"exit_tokens"`
	ClearToken string   `mapstructure:"clear_token" yaml:"clear_token"`
}

// KeyboardConfig defines the key state streaming parameters.
type KeyboardConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval" yaml:"tick_interval"`
	EscapeKey    string        `mapstructure:"escape_key" yaml:"escape_key"`
	ExitToken    string        `mapstructure:"exit_token" yaml:"exit_token"`
	Separator    string        `mapstructure:"separator" yaml:"separator"`
	EmptyToken   string        `mapstructure:"empty_token" yaml:"empty_token"`
}

// LatencyConfig defines the round-trip probe test.
type LatencyConfig struct {
	Iterations    int           `mapstructure:"iterations" yaml:"iterations"`
	Probe         string        `mapstructure:"probe" yaml:"probe"`
	PreDelay      time.Duration `mapstructure:"pre_delay" yaml:"pre_delay"`
	Match         string        `mapstructure:"match" yaml:"match"` // contains or exact
	ProgressEvery int           `mapstructure:"progress_every" yaml:"progress_every"`
}

// ThroughputConfig defines the raw write throughput test.
type ThroughputConfig struct {
	ChunkSize int    `mapstructure:"chunk_size" yaml:"chunk_size"`
	Chunks    int    `mapstructure:"chunks" yaml:"chunks"`
	FillByte  string `mapstructure:"fill_byte" yaml:"fill_byte"`
	AwaitAck  bool   `mapstructure:"await_ack" yaml:"await_ack"`
}

// StoreConfig locates the BoltDB file holding diagnostic history and last-used devices.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// LogConfig defines the structured log output.
type LogConfig struct {
	Level  string        `mapstructure:"level" yaml:"level"`
	Format string        `mapstructure:"format" yaml:"format"` // console or json
	Output string        `mapstructure:"output" yaml:"output"` // file, stderr, both, none
	File   LogFileConfig `mapstructure:"file" yaml:"file"`
}

// LogFileConfig defines the rotating log file.
type LogFileConfig struct {
	Path       string `mapstructure:"path" yaml:"path"`
	Filename   string `mapstructure:"filename" yaml:"filename"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}
