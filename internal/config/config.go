// Package config holds the client configuration: identity, server addresses,
// and the realtime/call timing tunables. Config is a JSON file; Watch applies
// edits live without a restart.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/campushub/realtime/internal/util"
)

type Config struct {
	Identity Identity `json:"identity"`
	Server   Server   `json:"server"`
	Realtime Realtime `json:"realtime"`
	Call     Call     `json:"call"`
	Paths    Paths    `json:"paths"`
}

type Identity struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

type Server struct {
	// BaseURL is the portal server (REST and websocket share the host).
	BaseURL string `json:"base_url"`
	// SocketPath overrides the default /ws endpoint path.
	SocketPath string `json:"socket_path"`
}

type Realtime struct {
	// ReconnectSec is the fixed delay between reconnect attempts.
	ReconnectSec int `json:"reconnect_seconds"`
	// TypingTTLSec is how long a typing entry stays visible after the most
	// recent typing event.
	TypingTTLSec int `json:"typing_ttl_seconds"`
	// StopTypingDelaySec is the sender-side stop-typing debounce.
	StopTypingDelaySec int `json:"stop_typing_delay_seconds"`
	// ScopeCap bounds the in-memory message list per conversation/group.
	ScopeCap int `json:"scope_cap"`
}

type Call struct {
	// EndedDisplaySec keeps the "Call Ended" state visible before clearing.
	EndedDisplaySec int      `json:"ended_display_seconds"`
	StunURLs        []string `json:"stun_urls"`
}

type Paths struct {
	// DataDir holds the local message archive.
	DataDir string `json:"data_dir"`
}

func Default() Config {
	return Config{
		Server: Server{
			BaseURL:    "http://localhost:8080",
			SocketPath: "/ws",
		},
		Realtime: Realtime{
			ReconnectSec:       3,
			TypingTTLSec:       3,
			StopTypingDelaySec: 2,
			ScopeCap:           500,
		},
		Call: Call{
			EndedDisplaySec: 2,
			StunURLs:        []string{"stun:stun.l.google.com:19302"},
		},
		Paths: Paths{
			DataDir: "data",
		},
	}
}

func (c *Config) Validate() error {
	if c.Identity.UserID == "" {
		return errors.New("identity.user_id is required")
	}
	if util.NormalizeURL(c.Server.BaseURL) == "" {
		return errors.New("server.base_url is required")
	}
	if c.Realtime.ReconnectSec <= 0 {
		return errors.New("realtime.reconnect_seconds must be > 0")
	}
	if c.Realtime.TypingTTLSec <= 0 {
		return errors.New("realtime.typing_ttl_seconds must be > 0")
	}
	if c.Realtime.StopTypingDelaySec <= 0 {
		return errors.New("realtime.stop_typing_delay_seconds must be > 0")
	}
	if c.Call.EndedDisplaySec < 0 {
		return errors.New("call.ended_display_seconds must be >= 0")
	}
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir is required")
	}
	return nil
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	// Strip UTF-8 BOM if present (common when editing JSON on Windows).
	b = stripBOM(b)

	// Start from defaults so missing JSON fields remain initialized.
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// stripBOM removes a UTF-8 byte order mark if present.
func stripBOM(b []byte) []byte {
	if len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		return b[3:]
	}
	return b
}

func Save(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return util.WriteJSONFile(path, cfg)
}

// Ensure loads config if it exists; otherwise creates a default config file.
// Returns (cfg, createdNew, err). The default config still needs a user id
// filled in before it validates, so Ensure writes without validating.
func Ensure(path string) (Config, bool, error) {
	if _, err := os.Stat(path); err == nil {
		cfg, err := Load(path)
		return cfg, false, err
	} else if !os.IsNotExist(err) {
		return Config{}, false, err
	}

	cfg := Default()
	if err := util.WriteJSONFile(path, cfg); err != nil {
		return Config{}, false, fmt.Errorf("create default config: %w", err)
	}
	return cfg, true, nil
}
