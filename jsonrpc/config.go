// Package jsonrpc implements the front-end ingress surface: HTTP/WS
// listeners, the pending-response table, and the relay into
// admission.Batcher (spec §6).
package jsonrpc

import (
	"time"

	"github.com/BurntSushi/toml"
)

// ListenConfig is shared by HTTPConfig and WSConfig (spec §6 "HTTP/WS
// enable + listen addresses + thread counts + allow-origin").
type ListenConfig struct {
	Enable      bool     `toml:"enable"`
	Listen      string   `toml:"listen"`
	Threads     int      `toml:"threads"`
	AllowOrigin []string `toml:"allow_origin"`
}

// NewTxFlowConfig tunes the AdmissionBatcher (spec §6
// "new_tx_flow_config.{count_per_batch, buffer_duration}").
type NewTxFlowConfig struct {
	CountPerBatch  int      `toml:"count_per_batch"`
	BufferDuration Duration `toml:"buffer_duration"`
}

// ProfileConfig is the optional startup CPU profile (spec §6
// "profile_config").
type ProfileConfig struct {
	Enable           bool     `toml:"enable"`
	FlagProfStart    Duration `toml:"flag_prof_start"`
	FlagProfDuration Duration `toml:"flag_prof_duration"`
}

// Config is the full jsonrpc.toml shape (spec §6 "Configuration (TOML)").
type Config struct {
	HTTPConfig      ListenConfig    `toml:"http_config"`
	WSConfig        ListenConfig    `toml:"ws_config"`
	BacklogCapacity int             `toml:"backlog_capacity"`
	NewTxFlowConfig NewTxFlowConfig `toml:"new_tx_flow_config"`
	ProfileConfig   ProfileConfig   `toml:"profile_config"`
}

// Duration wraps time.Duration so it can be read from TOML as a Go duration
// string ("300ms", "2s"), the way the teacher's cmd/utils flags accept them.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for BurntSushi/toml.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// LoadConfig reads and decodes a jsonrpc.toml file at path.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Enabled reports whether at least one of HTTP/WS is enabled (spec §6
// "Exit code -1 when neither HTTP nor WS is enabled").
func (c Config) Enabled() bool {
	return c.HTTPConfig.Enable || c.WSConfig.Enable
}
