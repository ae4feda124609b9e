// Package config holds the tunable options that shape a bound socket's
// reliability engine: timeouts, fragment sizing, RTT estimation inputs,
// and queue capacities. Defaults mirror the upstream reference values.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config configures every ReliabilityEngine a registry creates. It is
// cloned into each engine at connection time, so changing a live Config
// value after Bind has no effect on already-running connections.
type Config struct {
	BlockingMode bool `yaml:"blocking_mode"`

	IdleConnectionTimeout time.Duration  `yaml:"idle_connection_timeout"`
	HeartbeatInterval     *time.Duration `yaml:"heartbeat_interval"`

	MaxPacketSize                int    `yaml:"max_packet_size"`
	MaxFragments                 uint8  `yaml:"max_fragments"`
	FragmentSize                 uint16 `yaml:"fragment_size"`
	FragmentReassemblyBufferSize uint16 `yaml:"fragment_reassembly_buffer_size"`
	ReceiveBufferMaxSize         int    `yaml:"receive_buffer_max_size"`

	RTTSmoothingFactor float32 `yaml:"rtt_smoothing_factor"`
	RTTMaxValue        uint16  `yaml:"rtt_max_value"`
	GoodRTTMs          uint16  `yaml:"good_rtt_ms"`

	SocketEventBufferSize int            `yaml:"socket_event_buffer_size"`
	SocketPollingTimeout  *time.Duration `yaml:"socket_polling_timeout"`

	MaxPacketsInFlight uint16 `yaml:"max_packets_in_flight"`
}

// Default returns the configuration used when the caller supplies none,
// matching the reference implementation's own defaults, plus GoodRTTMs,
// which has no counterpart there.
func Default() Config {
	pollTimeout := time.Millisecond
	return Config{
		BlockingMode:          false,
		IdleConnectionTimeout: 5 * time.Second,
		HeartbeatInterval:     nil,

		MaxPacketSize:                16 * 1024,
		MaxFragments:                 16,
		FragmentSize:                 1024,
		FragmentReassemblyBufferSize: 64,
		ReceiveBufferMaxSize:         1452,

		RTTSmoothingFactor: 0.10,
		RTTMaxValue:        250,
		GoodRTTMs:          100,

		SocketEventBufferSize: 1024,
		SocketPollingTimeout:  &pollTimeout,

		MaxPacketsInFlight: 512,
	}
}

// Load reads path as a YAML document and overlays it onto Default,
// returning an error if the file exists but cannot be parsed. A missing
// file is not an error: Load(nonexistentPath) just returns Default().
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}
