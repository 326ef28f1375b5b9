package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	minTick = 4 * time.Millisecond
	maxTick = 10 * time.Millisecond
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("link.transport", "serial")
	v.SetDefault("link.read_timeout", "5s")
	v.SetDefault("link.poll_interval", "1ms")

	v.SetDefault("serial.port", "")
	v.SetDefault("serial.baud_rate", 115200)

	// Nordic UART service; the RX characteristic is written, the TX one notifies.
	v.SetDefault("ble.service_uuid", "6e400001-b5a3-f393-e0a9-e50e24dcca9e")
	v.SetDefault("ble.characteristic_uuid", "6e400002-b5a3-f393-e0a9-e50e24dcca9e")
	v.SetDefault("ble.notify_uuid", "6e400003-b5a3-f393-e0a9-e50e24dcca9e")
	v.SetDefault("ble.scan_timeout", "10s")
	v.SetDefault("ble.write_chunk", 20)

	v.SetDefault("websocket.url", "ws://192.168.4.1/ws")
	v.SetDefault("websocket.handshake_timeout", "5s")

	v.SetDefault("loopback.reply_delay", "2ms")
	v.SetDefault("loopback.heartbeat", "1s")

	v.SetDefault("display.echo_prefix", "BT ")
	v.SetDefault("display.sentinels", []string{".", "Online"})
	v.SetDefault("display.no_color", false)
	v.SetDefault("display.telemetry_color", []int{50, 240, 160})
	v.SetDefault("display.echo_color", []int{50, 160, 240})
	v.SetDefault("display.outbound_color", []int{240, 160, 255})

	v.SetDefault("menu.invalid_delay", "1s")

	v.SetDefault("terminal.exit_tokens", []string{"esc", "q"})
	v.SetDefault("terminal.clear_token", "cls")

	v.SetDefault("keyboard.tick_interval", "10ms")
	v.SetDefault("keyboard.escape_key", "esc")
	v.SetDefault("keyboard.exit_token", "exit_keyboard_mode")
	v.SetDefault("keyboard.separator", "+")
	v.SetDefault("keyboard.empty_token", "none")

	v.SetDefault("latency.iterations", 100)
	v.SetDefault("latency.probe", "ping")
	v.SetDefault("latency.pre_delay", "1ms")
	v.SetDefault("latency.match", "contains")
	v.SetDefault("latency.progress_every", 10)

	v.SetDefault("throughput.chunk_size", 10000)
	v.SetDefault("throughput.chunks", 100)
	v.SetDefault("throughput.fill_byte", "0")
	v.SetDefault("throughput.await_ack", false)

	v.SetDefault("store.enabled", true)
	v.SetDefault("store.path", "./data/linkterm.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "file")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "linkterm.log")
	v.SetDefault("log.file.max_size", 10)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.compress", true)
}
