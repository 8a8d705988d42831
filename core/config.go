package core

import (
	"fmt"
	"strings"
	"time"
)

type WebhookConfig struct {
	MaxAttempts      int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	SendTimeout      time.Duration `koanf:"send_timeout" mapstructure:"send_timeout"`
	MaxPayloadBytes  int64         `koanf:"max_payload_bytes" mapstructure:"max_payload_bytes"`
	ToleranceSeconds int64         `koanf:"tolerance_seconds" mapstructure:"tolerance_seconds"`
	Hardened         bool          `koanf:"hardened" mapstructure:"hardened"`
}

type Config struct {
	ServiceName string        `koanf:"service_name" mapstructure:"service_name"`
	Source      string        `koanf:"source" mapstructure:"source"`
	Webhooks    WebhookConfig `koanf:"webhooks" mapstructure:"webhooks"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "payments",
		Source:      "go-payments",
		Webhooks: WebhookConfig{
			MaxAttempts:      5,
			SendTimeout:      30 * time.Second,
			MaxPayloadBytes:  1 << 20,
			ToleranceSeconds: 300,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Webhooks.MaxAttempts < 1 {
		return fmt.Errorf("core: webhooks.max_attempts must be at least 1")
	}
	if c.Webhooks.MaxPayloadBytes <= 0 {
		return fmt.Errorf("core: webhooks.max_payload_bytes must be positive")
	}
	if c.Webhooks.ToleranceSeconds <= 0 {
		return fmt.Errorf("core: webhooks.tolerance_seconds must be positive")
	}
	return nil
}
