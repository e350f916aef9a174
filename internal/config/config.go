package config

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel   zapcore.Level
	Teslemetry TeslemetryConfig `mapstructure:"teslemetry"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	Port       uint             `mapstructure:"port"`
	HttpLog    bool             `mapstructure:"http_log"`
}

type TeslemetryConfig struct {
	AccessToken          string `mapstructure:"access_token"`
	BaseURL              string `mapstructure:"base_url"`
	StreamURL            string `mapstructure:"stream_url"`
	StreamEnable         bool   `mapstructure:"stream_enable"`
	PollIntervalMillis   uint32 `mapstructure:"poll_interval_millis"`
	RateLimitDelayMillis uint32 `mapstructure:"rate_limit_delay_millis"`
	SetupRetryMillis     uint32 `mapstructure:"setup_retry_millis"`
	RequestTimeoutMillis uint32 `mapstructure:"request_timeout_millis"`
	CommandTimeoutMillis uint32 `mapstructure:"command_timeout_millis"`
	RequestRetries       uint   `mapstructure:"request_retries"`
	WakeUpAttempts       uint   `mapstructure:"wake_up_attempts"`
	WakeUpDelayMillis    uint32 `mapstructure:"wake_up_delay_millis"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func millis(value uint32) time.Duration {
	return time.Duration(value) * time.Millisecond
}

func (c TeslemetryConfig) PollInterval() time.Duration {
	return millis(c.PollIntervalMillis)
}

func (c TeslemetryConfig) RateLimitDelay() time.Duration {
	return millis(c.RateLimitDelayMillis)
}

func (c TeslemetryConfig) SetupRetry() time.Duration {
	return millis(c.SetupRetryMillis)
}

func (c TeslemetryConfig) RequestTimeout() time.Duration {
	return millis(c.RequestTimeoutMillis)
}

func (c TeslemetryConfig) CommandTimeout() time.Duration {
	return millis(c.CommandTimeoutMillis)
}

func (c TeslemetryConfig) WakeUpDelay() time.Duration {
	return millis(c.WakeUpDelayMillis)
}

// Check validates the bounds of the teslemetry section.
func (c TeslemetryConfig) Check() error {
	if c.AccessToken == "" {
		return errors.New("config param teslemetry.access_token is required")
	}
	if c.PollIntervalMillis < 10000 {
		return errors.New("config param teslemetry.poll_interval_millis should be >= 10000")
	}
	if c.RateLimitDelayMillis < 100 {
		return errors.New("config param teslemetry.rate_limit_delay_millis should be >= 100")
	}
	if c.SetupRetryMillis < 1000 {
		return errors.New("config param teslemetry.setup_retry_millis should be >= 1000")
	}
	if c.RequestTimeoutMillis < 1000 {
		return errors.New("config param teslemetry.request_timeout_millis should be >= 1000")
	}
	if c.CommandTimeoutMillis < c.RequestTimeoutMillis {
		return errors.New("config param teslemetry.command_timeout_millis must be >= teslemetry.request_timeout_millis")
	}
	if c.WakeUpAttempts == 0 {
		return errors.New("config param teslemetry.wake_up_attempts should be > 0")
	}
	return nil
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
