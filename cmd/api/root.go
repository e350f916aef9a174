package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/berfenger/teslemetry2mqtt/internal/config"

	"github.com/carlmjohnson/versioninfo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:     "teslemetry2mqtt",
	Short:   "Teslemetry to MQTT bridge",
	Long:    `Bridges Tesla vehicles and energy sites exposed by Teslemetry to MQTT, with Home Assistant discovery.`,
	Version: versioninfo.Short(),
	// the bridge runs when no subcommand is given
	RunE: runBridge,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd, authCmd)
}

func initConfig() (*config.Config, error) {

	// alias PORT => TESLEMETRY_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("TESLEMETRY_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("teslemetry")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	// short names for the credential
	_ = viper.BindEnv("teslemetry.access_token", "TESLEMETRY_ACCESS_TOKEN", "TESLEMETRY_TESLEMETRY_ACCESS_TOKEN")

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace", "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	// check bounds
	if err := cfg.Teslemetry.Check(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("teslemetry.access_token", "")
	viper.SetDefault("teslemetry.base_url", "")
	viper.SetDefault("teslemetry.stream_url", "")
	viper.SetDefault("teslemetry.stream_enable", true)
	viper.SetDefault("teslemetry.poll_interval_millis", 60000)
	viper.SetDefault("teslemetry.rate_limit_delay_millis", 1000)
	viper.SetDefault("teslemetry.setup_retry_millis", 30000)
	viper.SetDefault("teslemetry.request_timeout_millis", 30000)
	viper.SetDefault("teslemetry.command_timeout_millis", 90000)
	viper.SetDefault("teslemetry.request_retries", 3)
	viper.SetDefault("teslemetry.wake_up_attempts", 4)
	viper.SetDefault("teslemetry.wake_up_delay_millis", 5000)
	viper.SetDefault("mqtt.host", "localhost")
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "teslemetry")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("port", 8080)
	viper.SetDefault("http_log", false)
}

func safePrintConfig(cfg config.Config) {
	cfg.Teslemetry.AccessToken = "*redacted*"
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}

func newLogger(level zap.AtomicLevel) *zap.Logger {
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = level
	return zap.Must(zapCfg.Build())
}
