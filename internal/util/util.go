package util

import (
	"github.com/berfenger/teslemetry2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Teslemetry: config.TeslemetryConfig{
			AccessToken:          "test-token",
			PollIntervalMillis:   60000,
			RateLimitDelayMillis: 10,
			SetupRetryMillis:     200,
			RequestTimeoutMillis: 2000,
			CommandTimeoutMillis: 4000,
			RequestRetries:       1,
			WakeUpAttempts:       2,
			WakeUpDelayMillis:    10,
		},
		MQTT: config.MQTTConfig{
			Host:             "localhost",
			Port:             1883,
			BaseTopic:        "teslemetry",
			HADiscoveryTopic: "homeassistant",
		},
		Port: 8080,
	}
}
