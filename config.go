package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type config struct {
	DatabaseURL      string        `env:"DATABASE_URL"`
	PGDSN            string        `env:"PG_DSN"`
	HTTPAddr         string        `env:"HTTP_ADDR" envDefault:":8080"`
	TenantID         string        `env:"TENANT_ID" envDefault:"tenant-demo"`
	JWTSecret        string        `env:"AUTH_JWT_SECRET"`
	MQTTBrokerURL    string        `env:"MQTT_BROKER_URL" envDefault:"tcp://localhost:1883"`
	MQTTClientID     string        `env:"MQTT_CLIENT_ID"`
	MQTTUsername     string        `env:"MQTT_USERNAME"`
	MQTTPassword     string        `env:"MQTT_PASSWORD"`
	MQTTQoS          uint8         `env:"MQTT_QOS" envDefault:"1"`
	MQTTTopicPrefix  string        `env:"MQTT_TOPIC_PREFIX" envDefault:"devices"`
	CommandTimeoutMS int64         `env:"COMMAND_TIMEOUT_MS" envDefault:"300000"`
	PublishTimeout   time.Duration `env:"PUBLISH_TIMEOUT" envDefault:"5s"`
	StoreTimeout     time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	RetiredRetention time.Duration `env:"COMMAND_RETIRED_RETENTION" envDefault:"1h"`
	TemplateSeedFile string        `env:"TEMPLATE_SEED_FILE"`
}

func loadConfig() (config, error) {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = cfg.PGDSN
	}
	if cfg.CommandTimeoutMS <= 0 {
		return config{}, errors.New("COMMAND_TIMEOUT_MS must be positive")
	}
	if cfg.MQTTQoS > 2 {
		return config{}, fmt.Errorf("MQTT_QOS must be 0, 1 or 2, got %d", cfg.MQTTQoS)
	}
	return cfg, nil
}

func (c config) commandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutMS) * time.Millisecond
}
