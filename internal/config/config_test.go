package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validTeslemetryConfig() TeslemetryConfig {
	return TeslemetryConfig{
		AccessToken:          "token",
		PollIntervalMillis:   60000,
		RateLimitDelayMillis: 1000,
		SetupRetryMillis:     30000,
		RequestTimeoutMillis: 30000,
		CommandTimeoutMillis: 90000,
		WakeUpAttempts:       4,
		WakeUpDelayMillis:    5000,
	}
}

func TestTeslemetryConfigCheck(t *testing.T) {
	assert.NoError(t, validTeslemetryConfig().Check())

	cases := map[string]func(*TeslemetryConfig){
		"missing token":         func(c *TeslemetryConfig) { c.AccessToken = "" },
		"poll too fast":         func(c *TeslemetryConfig) { c.PollIntervalMillis = 500 },
		"no rate limit":         func(c *TeslemetryConfig) { c.RateLimitDelayMillis = 0 },
		"setup retry too fast":  func(c *TeslemetryConfig) { c.SetupRetryMillis = 10 },
		"request timeout":       func(c *TeslemetryConfig) { c.RequestTimeoutMillis = 10 },
		"command below request": func(c *TeslemetryConfig) { c.CommandTimeoutMillis = 1000 },
		"no wake up attempts":   func(c *TeslemetryConfig) { c.WakeUpAttempts = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validTeslemetryConfig()
			mutate(&cfg)
			assert.Error(t, cfg.Check())
		})
	}
}

func TestTeslemetryConfigDurations(t *testing.T) {
	cfg := validTeslemetryConfig()
	assert.Equal(t, time.Minute, cfg.PollInterval())
	assert.Equal(t, time.Second, cfg.RateLimitDelay())
	assert.Equal(t, 5*time.Second, cfg.WakeUpDelay())
}

func TestCheckMQTTTopic(t *testing.T) {
	topic, err := CheckMQTTTopic("Teslemetry")
	assert.NoError(t, err)
	assert.Equal(t, "teslemetry", topic)

	_, err = CheckMQTTTopic("tesla/fleet")
	assert.Error(t, err)
}
