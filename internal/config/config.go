// Package config provides YAML-based configuration loading for vcusim.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/notnil/vcucan"
	"github.com/notnil/vcucan/canbus"
)

// Config is the root simulator configuration.
type Config struct {
	// Log holds logging configuration
	Log LogConfig `mapstructure:"log"`

	// Bus selects and configures the CAN transport
	Bus BusConfig `mapstructure:"bus"`

	// TickInterval is the period of the driver loop
	TickInterval time.Duration `mapstructure:"tick_interval"`

	// ErrorPolicy: continue or abort
	ErrorPolicy string `mapstructure:"error_policy"`

	// Status configures the HTTP status endpoint
	Status StatusConfig `mapstructure:"status"`

	// Inbound lists mailboxes filled from received frames
	Inbound []InboundConfig `mapstructure:"inbound"`

	// Outbound lists mailboxes transmitted periodically
	Outbound []OutboundConfig `mapstructure:"outbound"`

	// Peer configures the simulated remote node on a loopback bus
	Peer PeerConfig `mapstructure:"peer"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// File receives log entries instead of stderr when set
	File string `mapstructure:"file"`
	// Rotate rotates File once it grows past MaxSizeMB (0 disables rotation)
	Rotate RotateConfig `mapstructure:"rotate"`
}

// RotateConfig bounds the size and retention of a rotated log file.
type RotateConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

// BusConfig selects the transport.
type BusConfig struct {
	// Kind: loopback or socketcan
	Kind string `mapstructure:"kind"`
	// Iface is the SocketCAN interface, e.g. can0
	Iface string `mapstructure:"iface"`
	// QueueLen is the loopback receive queue capacity
	QueueLen int `mapstructure:"queue_len"`
	// Record, when set, is a file receiving a CBOR trace of all traffic
	Record string `mapstructure:"record"`
	// LogFrames logs every frame at debug level
	LogFrames bool `mapstructure:"log_frames"`
}

// StatusConfig configures the HTTP status endpoint. An empty Listen disables it.
type StatusConfig struct {
	Listen string `mapstructure:"listen"`
}

// InboundConfig registers one inbox, or a block of inboxes when IDHigh is set.
type InboundConfig struct {
	ID      uint32        `mapstructure:"id"`
	IDHigh  uint32        `mapstructure:"id_high"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// OutboundConfig registers one outbox, or a staggered block when IDHigh is set.
type OutboundConfig struct {
	ID     uint32        `mapstructure:"id"`
	IDHigh uint32        `mapstructure:"id_high"`
	Period time.Duration `mapstructure:"period"`
	// Data is the initial payload, at most 8 bytes
	Data []byte `mapstructure:"data"`
}

// PeerConfig drives a simulated node on the far side of a loopback bus. It
// transmits every inbound identifier each Period and stops after StopAfter
// (zero means never), which lets inbox timeouts be observed.
type PeerConfig struct {
	Enable    bool          `mapstructure:"enable"`
	Period    time.Duration `mapstructure:"period"`
	StopAfter time.Duration `mapstructure:"stop_after"`
}

// Range returns the identifier block [ID, IDHigh], or [ID, ID] when IDHigh is unset.
func (c InboundConfig) Range() (lo, hi uint32) { return idRange(c.ID, c.IDHigh) }

// Range returns the identifier block [ID, IDHigh], or [ID, ID] when IDHigh is unset.
func (c OutboundConfig) Range() (lo, hi uint32) { return idRange(c.ID, c.IDHigh) }

func idRange(id, high uint32) (uint32, uint32) {
	if high == 0 {
		return id, id
	}
	return id, high
}

// Policy returns the parsed error policy.
func (c *Config) Policy() vcucan.ErrorPolicy {
	p, _ := vcucan.ParseErrorPolicy(c.ErrorPolicy)
	return p
}

// Default returns a Config populated with sensible defaults: a loopback bus
// with a peer exchanging the accelerator pedal and VCU status messages.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "console",
			Rotate: RotateConfig{MaxBackups: 3, MaxAgeDays: 28},
		},
		Bus: BusConfig{
			Kind:     "loopback",
			Iface:    "can0",
			QueueLen: canbus.DefaultQueueLen,
		},
		TickInterval: 10 * time.Millisecond,
		ErrorPolicy:  "continue",
		Status:       StatusConfig{Listen: "127.0.0.1:9180"},
		Inbound: []InboundConfig{
			{ID: 0x0AA, Timeout: 500 * time.Millisecond},
		},
		Outbound: []OutboundConfig{
			{ID: 0x120, Period: 100 * time.Millisecond, Data: []byte{1}},
		},
		Peer: PeerConfig{Enable: true, Period: 100 * time.Millisecond},
	}
}

// Load reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment overrides.
// Environment variables use the prefix VCUSIM and `.`/`-` are replaced with `_`.
// Example: VCUSIM_LOG_LEVEL=debug
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("VCUSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults for viper so env-only configs work
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.rotate.max_size_mb", cfg.Log.Rotate.MaxSizeMB)
	v.SetDefault("log.rotate.max_backups", cfg.Log.Rotate.MaxBackups)
	v.SetDefault("log.rotate.max_age_days", cfg.Log.Rotate.MaxAgeDays)
	v.SetDefault("log.rotate.compress", cfg.Log.Rotate.Compress)
	v.SetDefault("bus.kind", cfg.Bus.Kind)
	v.SetDefault("bus.iface", cfg.Bus.Iface)
	v.SetDefault("bus.queue_len", cfg.Bus.QueueLen)
	v.SetDefault("bus.record", cfg.Bus.Record)
	v.SetDefault("bus.log_frames", cfg.Bus.LogFrames)
	v.SetDefault("tick_interval", cfg.TickInterval)
	v.SetDefault("error_policy", cfg.ErrorPolicy)
	v.SetDefault("status.listen", cfg.Status.Listen)
	v.SetDefault("inbound", cfg.Inbound)
	v.SetDefault("outbound", cfg.Outbound)
	v.SetDefault("peer.enable", cfg.Peer.Enable)
	v.SetDefault("peer.period", cfg.Peer.Period)
	v.SetDefault("peer.stop_after", cfg.Peer.StopAfter)

	if path == "" {
		if envPath := os.Getenv("VCUSIM_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("vcusim")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".vcusim"))
		}
	}

	// Read config file if present; if not found, continue with defaults/env
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	// Decode into a fresh value: list entries from the file must not inherit
	// fields from the default entries.
	out := &Config{}
	if err := v.Unmarshal(out); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := out.validate(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Config) validate() error {
	level := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch level {
	case "debug", "info", "warn", "error":
	case "warning":
		level = "warn"
	case "":
		level = "info"
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	c.Log.Level = level
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	switch c.Log.Format {
	case "console", "json":
	case "":
		c.Log.Format = "console"
	default:
		return fmt.Errorf("invalid log.format: %q", c.Log.Format)
	}
	if c.Log.Rotate.MaxSizeMB < 0 {
		return errors.New("log.rotate.max_size_mb must not be negative")
	}

	c.Bus.Kind = strings.ToLower(strings.TrimSpace(c.Bus.Kind))
	switch c.Bus.Kind {
	case "loopback":
	case "socketcan":
		if strings.TrimSpace(c.Bus.Iface) == "" {
			return errors.New("bus.iface is required for socketcan")
		}
	default:
		return fmt.Errorf("invalid bus.kind: %q", c.Bus.Kind)
	}
	if c.Bus.QueueLen <= 0 {
		c.Bus.QueueLen = canbus.DefaultQueueLen
	}

	if c.TickInterval <= 0 {
		return fmt.Errorf("invalid tick_interval: %v", c.TickInterval)
	}
	if _, err := vcucan.ParseErrorPolicy(strings.ToLower(c.ErrorPolicy)); err != nil {
		return fmt.Errorf("invalid error_policy: %q", c.ErrorPolicy)
	}
	c.ErrorPolicy = strings.ToLower(c.ErrorPolicy)

	for i, in := range c.Inbound {
		if err := checkRange(in.Range()); err != nil {
			return fmt.Errorf("inbound[%d]: %w", i, err)
		}
		if in.Timeout < 0 {
			return fmt.Errorf("inbound[%d]: negative timeout", i)
		}
	}
	for i, out := range c.Outbound {
		if err := checkRange(out.Range()); err != nil {
			return fmt.Errorf("outbound[%d]: %w", i, err)
		}
		if out.Period < 0 {
			return fmt.Errorf("outbound[%d]: negative period", i)
		}
		if len(out.Data) > 8 {
			return fmt.Errorf("outbound[%d]: %d data bytes, at most 8", i, len(out.Data))
		}
	}
	if c.Peer.Enable && c.Peer.Period <= 0 {
		return fmt.Errorf("invalid peer.period: %v", c.Peer.Period)
	}
	return nil
}

func checkRange(lo, hi uint32) error {
	if hi > canbus.MaxExtID {
		return fmt.Errorf("id 0x%X: %w", hi, canbus.ErrInvalidID)
	}
	if hi < lo {
		return fmt.Errorf("id_high 0x%X below id 0x%X", hi, lo)
	}
	return nil
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}
