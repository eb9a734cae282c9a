// Package config holds the coordinator's tunables: the struct the core
// components read from and Load, which reads a YAML file from disk
// over the defaults. It does not merge flags or environment variables
// and does not validate the result against a schema.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable the coordinator's components consult.
type Config struct {
	// DataDir is where the bbolt metadata file lives.
	DataDir string `yaml:"data_dir"`
	// ListenAddr is the HTTP listen address, e.g. ":8080".
	ListenAddr string `yaml:"listen_addr"`

	// LivenessWindow is how long a node may go without a heartbeat
	// before the router considers it unavailable.
	LivenessWindow time.Duration `yaml:"liveness_window"`
	// OrphanTimeout is how long a pending blob may sit uncommitted
	// before the sweeper frees its row.
	OrphanTimeout time.Duration `yaml:"orphan_timeout"`
	// NodeCallTimeout is the configured bound for outbound calls to a
	// storage node. The coordinator makes no outbound calls to storage
	// nodes, so no component reads this field.
	NodeCallTimeout time.Duration `yaml:"node_call_timeout"`

	// LockStripes is the number of per-blob_id mutex stripes.
	LockStripes int `yaml:"lock_stripes"`

	// SessionTTL is the default session token lifetime.
	SessionTTL time.Duration `yaml:"session_ttl"`
	// GrantTTL is the default blob-grant lifetime.
	GrantTTL time.Duration `yaml:"grant_ttl"`

	// RebalanceInterval is how often the router's rebalance loop runs.
	RebalanceInterval time.Duration `yaml:"rebalance_interval"`
	// RebalanceThreshold is the utilisation-ratio gap that triggers a
	// move plan between the most- and least-utilised live nodes.
	RebalanceThreshold float64 `yaml:"rebalance_threshold"`

	// FacetCountTopK bounds how many terms a requested facet count
	// returns per query.
	FacetCountTopK int `yaml:"facet_count_top_k"`

	// ClusterKeyHex is the 32-byte (hex-encoded) key credentials are
	// signed with (HS256); tokens are not encrypted.
	ClusterKeyHex string `yaml:"cluster_key"`
}

// Default returns a Config with the values the coordinator ships with
// when no file overrides them.
func Default() *Config {
	return &Config{
		DataDir:            "./data",
		ListenAddr:         ":8080",
		LivenessWindow:     30 * time.Second,
		OrphanTimeout:      5 * time.Minute,
		NodeCallTimeout:    30 * time.Second,
		LockStripes:        256,
		SessionTTL:         12 * time.Hour,
		GrantTTL:           2 * time.Minute,
		RebalanceInterval:  1 * time.Minute,
		RebalanceThreshold: 0.25,
		FacetCountTopK:     10,
	}
}

// Load reads a YAML tunables file at path, falling back to Default
// for any field the file omits.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}
