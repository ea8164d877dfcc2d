package config

import (
	"strings"
	"testing"
	"time"
)

type envTestConfig struct {
	Port int `env:"CAMPAIGNLOG_TEST_PORT" envDefault:"123"`
}

type prefixedTestConfig struct {
	Interval int           `env:"TEST_INTERVAL" envDefault:"10"`
	Timeout  time.Duration `env:"TEST_TIMEOUT" envDefault:"2s"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Port != 123 {
		t.Fatalf("expected default port 123, got %d", cfg.Port)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("CAMPAIGNLOG_TEST_PORT", "not-an-int")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestParseEnvWithPrefixReadsPrefixedNames(t *testing.T) {
	t.Setenv("CAMPAIGNLOG_TEST_INTERVAL", "25")
	t.Setenv("TEST_INTERVAL", "99")

	var cfg prefixedTestConfig
	if err := ParseEnvWithPrefix(&cfg, EnvPrefix); err != nil {
		t.Fatalf("parse env with prefix: %v", err)
	}
	if cfg.Interval != 25 {
		t.Fatalf("expected prefixed interval 25, got %d", cfg.Interval)
	}
	if cfg.Timeout != 2*time.Second {
		t.Fatalf("expected default timeout 2s, got %s", cfg.Timeout)
	}
}

func TestParseEnvWithPrefixError(t *testing.T) {
	t.Setenv("CAMPAIGNLOG_TEST_TIMEOUT", "soon")

	var cfg prefixedTestConfig
	err := ParseEnvWithPrefix(&cfg, EnvPrefix)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "CAMPAIGNLOG_*") {
		t.Fatalf("expected prefix in error, got %v", err)
	}
}
