package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultNodeManagerURL is the loopback address a component dials to reach its
	// local Node Manager transport.
	DefaultNodeManagerURL = "ws://127.0.0.1:3794/jaus"
	// DefaultProtocolVersion is the JAUS wire version advertised when none is configured.
	DefaultProtocolVersion = "3.4"
	// DefaultMaxPayloadBytes is the largest single-packet JAUS data field (spec ceiling).
	DefaultMaxPayloadBytes = 4079
	// DefaultPingInterval controls the keepalive cadence for the Node Manager link.
	DefaultPingInterval = 5 * time.Second
	// DefaultReconnectInterval controls the backoff between Node Manager reconnect attempts.
	DefaultReconnectInterval = 2 * time.Second

	// DefaultDiscoveryTTL is the standing interval at which C7 scans for stale subscriptions.
	DefaultDiscoveryTTL = 2500 * time.Millisecond
	// DefaultLoopInterval is the subscription loop's fixed polling cadence.
	DefaultLoopInterval = 3 * time.Millisecond
	// DefaultHPTThresholdHz is the rate at or above which a produced entry is
	// counted as high-rate in the loop's Stats; no dedicated timer is installed
	// for such entries, which are polled like every other.
	DefaultHPTThresholdHz = 30.0
	// DefaultReEstablish is the default policy answer for re-establishing lost subscriptions.
	DefaultReEstablish = true
	// DefaultAuthority is the authority threshold applied when none is configured: zero
	// accepts every inbound command regardless of its header priority.
	DefaultAuthority = 0

	// DefaultCompressionThresholdBytes gates optional snappy compression of outbound
	// multi-packet payloads; single-packet traffic is never compressed.
	DefaultCompressionThresholdBytes = DefaultMaxPayloadBytes

	// DefaultBandwidthLimitBytesPerSecond caps outbound throughput per peer link.
	DefaultBandwidthLimitBytesPerSecond = 256000.0 / 8.0

	// DefaultLogLevel controls verbosity for component logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "jaus-component.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true
)

// Config captures all runtime tunables for a JAUS component embedder.
//
// There is deliberately no config file and no CLI front-end: all parameters are
// environment-variable driven or supplied as constructor arguments, per the
// reference architecture's "no dynamic code loading" posture.
type Config struct {
	Address         string
	NodeManagerURL  string
	ProtocolVersion string

	MaxPayloadBytes int
	PingInterval    time.Duration
	ReconnectWindow time.Duration

	DiscoveryEnabled      bool
	DiscoveryTTL          time.Duration
	DiscoveryAllowList    []string
	LoopInterval          time.Duration
	HPTThresholdHz        float64
	ReEstablishByDefault  bool
	CompressionThreshold  int
	BandwidthLimitBPS     float64
	MaxConcurrentReceipts int
	Authority             uint8

	Logging LoggingConfig
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Load reads the component configuration from environment variables, applying
// sane defaults and returning descriptive errors for invalid overrides.
func Load() (*Config, error) {
	cfg := &Config{
		Address:               strings.TrimSpace(os.Getenv("JAUS_ADDRESS")),
		NodeManagerURL:        getString("JAUS_NODE_MANAGER_URL", DefaultNodeManagerURL),
		ProtocolVersion:       getString("JAUS_PROTOCOL_VERSION", DefaultProtocolVersion),
		MaxPayloadBytes:       DefaultMaxPayloadBytes,
		PingInterval:          DefaultPingInterval,
		ReconnectWindow:       DefaultReconnectInterval,
		DiscoveryEnabled:      true,
		DiscoveryTTL:          DefaultDiscoveryTTL,
		DiscoveryAllowList:    parseList(os.Getenv("JAUS_DISCOVERY_ALLOWLIST")),
		LoopInterval:          DefaultLoopInterval,
		HPTThresholdHz:        DefaultHPTThresholdHz,
		ReEstablishByDefault:  DefaultReEstablish,
		CompressionThreshold:  DefaultCompressionThresholdBytes,
		BandwidthLimitBPS:     DefaultBandwidthLimitBytesPerSecond,
		MaxConcurrentReceipts: 256,
		Authority:             DefaultAuthority,
		Logging: LoggingConfig{
			Level:      getString("JAUS_LOG_LEVEL", DefaultLogLevel),
			Path:       getString("JAUS_LOG_PATH", DefaultLogPath),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("JAUS_MAX_PAYLOAD_BYTES")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 || value > DefaultMaxPayloadBytes {
			problems = append(problems, fmt.Sprintf("JAUS_MAX_PAYLOAD_BYTES must be in (0, %d], got %q", DefaultMaxPayloadBytes, raw))
		} else {
			cfg.MaxPayloadBytes = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("JAUS_PING_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("JAUS_PING_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.PingInterval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("JAUS_RECONNECT_WINDOW")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("JAUS_RECONNECT_WINDOW must be a positive duration, got %q", raw))
		} else {
			cfg.ReconnectWindow = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("JAUS_DISCOVERY_ENABLED")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("JAUS_DISCOVERY_ENABLED must be a boolean value, got %q", raw))
		} else {
			cfg.DiscoveryEnabled = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("JAUS_DISCOVERY_TTL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("JAUS_DISCOVERY_TTL must be a positive duration, got %q", raw))
		} else {
			cfg.DiscoveryTTL = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("JAUS_LOOP_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("JAUS_LOOP_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.LoopInterval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("JAUS_HPT_THRESHOLD_HZ")); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("JAUS_HPT_THRESHOLD_HZ must be a positive number, got %q", raw))
		} else {
			cfg.HPTThresholdHz = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("JAUS_RE_ESTABLISH_DEFAULT")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("JAUS_RE_ESTABLISH_DEFAULT must be a boolean value, got %q", raw))
		} else {
			cfg.ReEstablishByDefault = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("JAUS_COMPRESSION_THRESHOLD_BYTES")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("JAUS_COMPRESSION_THRESHOLD_BYTES must be a non-negative integer, got %q", raw))
		} else {
			cfg.CompressionThreshold = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("JAUS_BANDWIDTH_LIMIT_BPS")); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("JAUS_BANDWIDTH_LIMIT_BPS must be a positive number, got %q", raw))
		} else {
			cfg.BandwidthLimitBPS = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("JAUS_MAX_CONCURRENT_RECEIPTS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("JAUS_MAX_CONCURRENT_RECEIPTS must be a positive integer, got %q", raw))
		} else {
			cfg.MaxConcurrentReceipts = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("JAUS_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("JAUS_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("JAUS_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("JAUS_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("JAUS_LOG_MAX_AGE_DAYS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("JAUS_LOG_MAX_AGE_DAYS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxAgeDays = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("JAUS_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("JAUS_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("JAUS_AUTHORITY")); raw != "" {
		value, err := strconv.ParseUint(raw, 10, 8)
		if err != nil {
			problems = append(problems, fmt.Sprintf("JAUS_AUTHORITY must be an integer in [0, 255], got %q", raw))
		} else {
			cfg.Authority = uint8(value)
		}
	}

	if cfg.ProtocolVersion != "2" && cfg.ProtocolVersion != "3.3" && cfg.ProtocolVersion != "3.4" {
		problems = append(problems, fmt.Sprintf("JAUS_PROTOCOL_VERSION must be one of 2, 3.3, 3.4, got %q", cfg.ProtocolVersion))
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf(strings.Join(problems, "; "))
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}
