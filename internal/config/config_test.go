package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JAUS_ADDRESS", "")
	t.Setenv("JAUS_NODE_MANAGER_URL", "")
	t.Setenv("JAUS_PROTOCOL_VERSION", "")
	t.Setenv("JAUS_MAX_PAYLOAD_BYTES", "")
	t.Setenv("JAUS_PING_INTERVAL", "")
	t.Setenv("JAUS_RECONNECT_WINDOW", "")
	t.Setenv("JAUS_DISCOVERY_ENABLED", "")
	t.Setenv("JAUS_DISCOVERY_TTL", "")
	t.Setenv("JAUS_DISCOVERY_ALLOWLIST", "")
	t.Setenv("JAUS_LOOP_INTERVAL", "")
	t.Setenv("JAUS_HPT_THRESHOLD_HZ", "")
	t.Setenv("JAUS_RE_ESTABLISH_DEFAULT", "")
	t.Setenv("JAUS_COMPRESSION_THRESHOLD_BYTES", "")
	t.Setenv("JAUS_BANDWIDTH_LIMIT_BPS", "")
	t.Setenv("JAUS_MAX_CONCURRENT_RECEIPTS", "")
	t.Setenv("JAUS_LOG_LEVEL", "")
	t.Setenv("JAUS_LOG_PATH", "")
	t.Setenv("JAUS_LOG_MAX_SIZE_MB", "")
	t.Setenv("JAUS_LOG_MAX_BACKUPS", "")
	t.Setenv("JAUS_LOG_MAX_AGE_DAYS", "")
	t.Setenv("JAUS_LOG_COMPRESS", "")
	t.Setenv("JAUS_AUTHORITY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.NodeManagerURL != DefaultNodeManagerURL {
		t.Fatalf("expected default node manager url %q, got %q", DefaultNodeManagerURL, cfg.NodeManagerURL)
	}
	if cfg.ProtocolVersion != DefaultProtocolVersion {
		t.Fatalf("expected default protocol version %q, got %q", DefaultProtocolVersion, cfg.ProtocolVersion)
	}
	if cfg.MaxPayloadBytes != DefaultMaxPayloadBytes {
		t.Fatalf("expected default max payload %d, got %d", DefaultMaxPayloadBytes, cfg.MaxPayloadBytes)
	}
	if cfg.PingInterval != DefaultPingInterval {
		t.Fatalf("expected default ping interval %v, got %v", DefaultPingInterval, cfg.PingInterval)
	}
	if !cfg.DiscoveryEnabled {
		t.Fatalf("expected discovery enabled by default")
	}
	if cfg.DiscoveryTTL != DefaultDiscoveryTTL {
		t.Fatalf("expected default discovery ttl %v, got %v", DefaultDiscoveryTTL, cfg.DiscoveryTTL)
	}
	if cfg.DiscoveryAllowList != nil {
		t.Fatalf("expected no discovery allow-list, got %#v", cfg.DiscoveryAllowList)
	}
	if cfg.HPTThresholdHz != DefaultHPTThresholdHz {
		t.Fatalf("expected default hpt threshold %v, got %v", DefaultHPTThresholdHz, cfg.HPTThresholdHz)
	}
	if !cfg.ReEstablishByDefault {
		t.Fatalf("expected re-establish default true")
	}
	if cfg.Logging.Level != DefaultLogLevel {
		t.Fatalf("expected default log level %q, got %q", DefaultLogLevel, cfg.Logging.Level)
	}
	if cfg.Authority != DefaultAuthority {
		t.Fatalf("expected default authority %d, got %d", DefaultAuthority, cfg.Authority)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JAUS_ADDRESS", "1.1.40.1")
	t.Setenv("JAUS_NODE_MANAGER_URL", "ws://127.0.0.1:4001/jaus")
	t.Setenv("JAUS_PROTOCOL_VERSION", "3.3")
	t.Setenv("JAUS_MAX_PAYLOAD_BYTES", "2048")
	t.Setenv("JAUS_PING_INTERVAL", "45s")
	t.Setenv("JAUS_DISCOVERY_TTL", "5s")
	t.Setenv("JAUS_DISCOVERY_ALLOWLIST", "1, 2, 3")
	t.Setenv("JAUS_HPT_THRESHOLD_HZ", "20")
	t.Setenv("JAUS_RE_ESTABLISH_DEFAULT", "false")
	t.Setenv("JAUS_COMPRESSION_THRESHOLD_BYTES", "1024")
	t.Setenv("JAUS_BANDWIDTH_LIMIT_BPS", "9000")
	t.Setenv("JAUS_MAX_CONCURRENT_RECEIPTS", "16")
	t.Setenv("JAUS_LOG_LEVEL", "debug")
	t.Setenv("JAUS_AUTHORITY", "8")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Address != "1.1.40.1" {
		t.Fatalf("unexpected address: %q", cfg.Address)
	}
	if cfg.NodeManagerURL != "ws://127.0.0.1:4001/jaus" {
		t.Fatalf("unexpected node manager url: %q", cfg.NodeManagerURL)
	}
	if cfg.ProtocolVersion != "3.3" {
		t.Fatalf("unexpected protocol version: %q", cfg.ProtocolVersion)
	}
	if cfg.MaxPayloadBytes != 2048 {
		t.Fatalf("expected overridden max payload, got %d", cfg.MaxPayloadBytes)
	}
	if cfg.PingInterval.String() != "45s" {
		t.Fatalf("expected ping interval 45s, got %v", cfg.PingInterval)
	}
	if cfg.DiscoveryTTL != 5*time.Second {
		t.Fatalf("expected discovery ttl 5s, got %v", cfg.DiscoveryTTL)
	}
	if len(cfg.DiscoveryAllowList) != 3 {
		t.Fatalf("expected 3 allow-list entries, got %#v", cfg.DiscoveryAllowList)
	}
	if cfg.HPTThresholdHz != 20 {
		t.Fatalf("expected hpt threshold 20, got %v", cfg.HPTThresholdHz)
	}
	if cfg.ReEstablishByDefault {
		t.Fatalf("expected re-establish default false")
	}
	if cfg.CompressionThreshold != 1024 {
		t.Fatalf("expected compression threshold 1024, got %d", cfg.CompressionThreshold)
	}
	if cfg.MaxConcurrentReceipts != 16 {
		t.Fatalf("expected max concurrent receipts 16, got %d", cfg.MaxConcurrentReceipts)
	}
	if cfg.Authority != 8 {
		t.Fatalf("expected authority 8, got %d", cfg.Authority)
	}
}

func TestLoadReturnsValidationErrors(t *testing.T) {
	t.Setenv("JAUS_MAX_PAYLOAD_BYTES", "-5")
	t.Setenv("JAUS_PING_INTERVAL", "abc")
	t.Setenv("JAUS_DISCOVERY_TTL", "-1s")
	t.Setenv("JAUS_HPT_THRESHOLD_HZ", "-1")
	t.Setenv("JAUS_RE_ESTABLISH_DEFAULT", "notabool")
	t.Setenv("JAUS_PROTOCOL_VERSION", "1.0")
	t.Setenv("JAUS_AUTHORITY", "not-a-number")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error from invalid configuration, got nil")
	}

	for _, want := range []string{
		"JAUS_MAX_PAYLOAD_BYTES",
		"JAUS_PING_INTERVAL",
		"JAUS_DISCOVERY_TTL",
		"JAUS_HPT_THRESHOLD_HZ",
		"JAUS_RE_ESTABLISH_DEFAULT",
		"JAUS_PROTOCOL_VERSION",
		"JAUS_AUTHORITY",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error to mention %s, got %q", want, err.Error())
		}
	}
}

func TestLoadRejectsOversizedPayload(t *testing.T) {
	t.Setenv("JAUS_MAX_PAYLOAD_BYTES", "5000")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "JAUS_MAX_PAYLOAD_BYTES") {
		t.Fatalf("expected oversized payload to be rejected, got %v", err)
	}
}
