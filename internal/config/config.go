// Package config loads and renders spacewald's node configuration file.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const (
	// MLSCiphersuiteID is MLS_128_DHKEMX25519_AES128GCM_SHA256_Ed25519.
	MLSCiphersuiteID = 0x0001

	// Version is the spacewald node software version string.
	Version = "0.1.0"
)

// FindRoot walks up from start (or cwd) until a .spacewald directory is
// found, the way the teacher's FindGitRoot walked up looking for .git.
func FindRoot(start string) (string, error) {
	if start == "" {
		var err error
		start, err = os.Getwd()
		if err != nil {
			return "", fmt.Errorf("cannot get working directory: %w", err)
		}
	}
	p, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for {
		info, err := os.Stat(filepath.Join(p, ".spacewald"))
		if err == nil && info.IsDir() {
			return p, nil
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", fmt.Errorf("not inside a spacewald node directory")
		}
		p = parent
	}
}

// NodeConfig is the node-wide configuration read from
// .spacewald/config.toml.
type NodeConfig struct {
	Node    NodeSection    `toml:"node"`
	MLS     MLSSection     `toml:"mls"`
	Holdback HoldbackSection `toml:"holdback"`
	Logging LoggingSection `toml:"logging"`
}

type NodeSection struct {
	Version string `toml:"version"`
}

// MLSSection configures the MLS engine (spec.md §4.3, §4.9).
type MLSSection struct {
	CipherSuite    int  `toml:"cipher_suite"`
	ChannelMLSMode bool `toml:"channel_mls_mode"`
}

// HoldbackSection holds the [holdback] settings (spec.md §4.6). They are
// saved and loaded with the config file, but no other package reads them:
// the Holdback retries up to holdback.DefaultRetryBudget, and
// NewScheduler takes its queue depth as an argument.
type HoldbackSection struct {
	RetryBudget      int `toml:"retry_budget"`
	RetryIntervalMS  int `toml:"retry_interval_ms"`
	SchedulerQueueDepth int `toml:"scheduler_queue_depth"`
}

// LoggingSection configures the zap logger.
type LoggingSection struct {
	Level      string `toml:"level"`
	Encoding   string `toml:"encoding"`
	Production bool   `toml:"production"`
}

// Default returns a NodeConfig with spacewald's default values.
func Default() NodeConfig {
	return NodeConfig{
		Node: NodeSection{Version: Version},
		MLS:  MLSSection{CipherSuite: MLSCiphersuiteID, ChannelMLSMode: false},
		Holdback: HoldbackSection{
			RetryBudget:         5,
			RetryIntervalMS:     2000,
			SchedulerQueueDepth: 64,
		},
		Logging: LoggingSection{Level: "info", Encoding: "console", Production: false},
	}
}

// Load reads and parses a NodeConfig from path, filling in any field left
// unset in the file with its default value.
func Load(path string) (NodeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return NodeConfig{}, err
	}
	cfg := Default()
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return NodeConfig{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.Node.Version == "" {
		cfg.Node.Version = Version
	}
	return cfg, nil
}

// Save encodes cfg as TOML and writes it to path.
func Save(path string, cfg NodeConfig) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
