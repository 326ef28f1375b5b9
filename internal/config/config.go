// Package config loads the LinkTerm configuration with viper.
// A missing config file is not an error: every key has a default.
package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"LinkTerm/internal/fault"
	"LinkTerm/internal/model"
)

// Loader owns one viper instance and the last successfully decoded Config.
type Loader struct {
	v   *viper.Viper
	mu  sync.RWMutex
	cfg *model.Config
}

// Load reads the configuration at path (or searches the default locations when path is empty),
// applies LINKTERM_* environment overrides and decodes the result.
func Load(path string) (*Loader, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("linkterm")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	v.SetEnvPrefix("LINKTERM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fault.Wrap(err, fault.Config, "read config")
		}
	}

	l := &Loader{v: v}
	cfg, err := l.decode()
	if err != nil {
		return nil, err
	}
	l.cfg = cfg
	return l, nil
}

// Set overrides a key (used for command-line flags) and re-decodes.
func (l *Loader) Set(key string, value any) error {
	l.v.Set(key, value)
	cfg, err := l.decode()
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.cfg = cfg
	l.mu.Unlock()
	return nil
}

// Get returns the current configuration.
func (l *Loader) Get() *model.Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// File returns the config file in use, or "" when running on defaults.
func (l *Loader) File() string {
	return l.v.ConfigFileUsed()
}

// Watch reloads the file on change and hands the new config to fn.
// Invalid edits are reported through onErr and the previous config is kept.
func (l *Loader) Watch(fn func(*model.Config), onErr func(error)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := l.decode()
		if err != nil {
			if onErr != nil {
				onErr(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}
		l.mu.Lock()
		l.cfg = cfg
		l.mu.Unlock()
		if fn != nil {
			fn(cfg)
		}
	})
	l.v.WatchConfig()
}

// Dump renders cfg as YAML.
func Dump(cfg *model.Config) (string, error) {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(out), nil
}

func (l *Loader) decode() (*model.Config, error) {
	cfg := &model.Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fault.Wrap(err, fault.Config, "decode config")
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the core cannot run with.
func Validate(cfg *model.Config) error {
	switch cfg.Link.Transport {
	case "serial", "ble", "websocket", "loopback":
	default:
		return fault.Wrap(fmt.Errorf("unknown transport %q", cfg.Link.Transport), fault.Config, "validate link.transport")
	}
	if cfg.Keyboard.TickInterval < minTick || cfg.Keyboard.TickInterval > maxTick {
		return fault.Wrap(fmt.Errorf("%s outside [%s, %s]", cfg.Keyboard.TickInterval, minTick, maxTick),
			fault.Config, "validate keyboard.tick_interval")
	}
	if cfg.Latency.Iterations <= 0 || cfg.Latency.Probe == "" {
		return fault.Wrap(errors.New("iterations and probe are required"), fault.Config, "validate latency")
	}
	if cfg.Latency.Match != "contains" && cfg.Latency.Match != "exact" {
		return fault.Wrap(fmt.Errorf("unknown match policy %q", cfg.Latency.Match), fault.Config, "validate latency.match")
	}
	if cfg.Throughput.ChunkSize <= 0 || cfg.Throughput.Chunks <= 0 || len(cfg.Throughput.FillByte) != 1 {
		return fault.Wrap(errors.New("chunk_size, chunks and a single fill_byte are required"), fault.Config, "validate throughput")
	}
	if cfg.Link.ReadTimeout <= 0 || cfg.Link.PollInterval <= 0 {
		return fault.Wrap(errors.New("read_timeout and poll_interval must be positive"), fault.Config, "validate link")
	}
	return nil
}
