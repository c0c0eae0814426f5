package main

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PG_DSN", "postgres://fieldops@localhost/fieldops")
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DatabaseURL != "postgres://fieldops@localhost/fieldops" {
		t.Fatalf("expected PG_DSN fallback, got %q", cfg.DatabaseURL)
	}
	if cfg.commandTimeout() != 5*time.Minute {
		t.Fatalf("expected 5m command timeout, got %s", cfg.commandTimeout())
	}
	if cfg.MQTTQoS != 1 || cfg.MQTTTopicPrefix != "devices" || cfg.PublishTimeout != 5*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	t.Setenv("COMMAND_TIMEOUT_MS", "0")
	if _, err := loadConfig(); err == nil {
		t.Fatalf("expected error for zero timeout")
	}
	t.Setenv("COMMAND_TIMEOUT_MS", "1000")
	t.Setenv("MQTT_QOS", "3")
	if _, err := loadConfig(); err == nil {
		t.Fatalf("expected error for qos 3")
	}
	t.Setenv("MQTT_QOS", "1")
	t.Setenv("PUBLISH_TIMEOUT", "soon")
	if _, err := loadConfig(); err == nil {
		t.Fatalf("expected parse error")
	}
}
