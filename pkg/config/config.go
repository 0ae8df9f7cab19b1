// Package config loads the bridge configuration from a config file and
// MESHBRIDGE_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Configuration struct {
	ListenAddr string `mapstructure:"listen_addr"`
	LogLevel   string `mapstructure:"log_level"`

	Database DatabaseSettings `mapstructure:"database"`
	Mesh     MeshSettings     `mapstructure:"mesh"`
	Chat     ChatSettings     `mapstructure:"chat"`
	Bridge   BridgeSettings   `mapstructure:"bridge"`
	Broker   BrokerSettings   `mapstructure:"broker"`
}

type DatabaseSettings struct {
	Path                 string        `mapstructure:"path"`
	PoolSize             int           `mapstructure:"pool_size"`
	Retention            time.Duration `mapstructure:"retention"`
	VacuumThresholdBytes int64         `mapstructure:"vacuum_threshold_bytes"`
	MaintenanceInterval  time.Duration `mapstructure:"maintenance_interval"`
}

type MeshSettings struct {
	BrokerURL  string `mapstructure:"broker_url"`
	ClientID   string `mapstructure:"client_id"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	TopicRoot  string `mapstructure:"topic_root"`
	Channel    string `mapstructure:"channel"`
	ChannelKey string `mapstructure:"channel_key"`
	GatewayID  string `mapstructure:"gateway_id"`
}

type ChatSettings struct {
	WebhookURL  string `mapstructure:"webhook_url"`
	ChannelName string `mapstructure:"channel_name"`
}

type BridgeSettings struct {
	QueueSize         int           `mapstructure:"queue_size"`
	BatchSize         int           `mapstructure:"batch_size"`
	DrainInterval     time.Duration `mapstructure:"drain_interval"`
	RefreshInterval   time.Duration `mapstructure:"refresh_interval"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
	MovementThreshold float64       `mapstructure:"movement_threshold_m"`
}

type BrokerSettings struct {
	// Enabled starts the embedded MQTT broker; Mesh.BrokerURL should
	// then point at it.
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// Load reads configuration from path (or the default search locations
// when path is empty). A missing config file falls back to defaults and
// environment.
func Load(path string) (*Configuration, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MESHBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/meshbridge")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("log_level", "info")

	v.SetDefault("database.path", "meshbridge.db")
	v.SetDefault("database.pool_size", 5)
	v.SetDefault("database.retention", 30*24*time.Hour)
	v.SetDefault("database.vacuum_threshold_bytes", 100*1024*1024)
	v.SetDefault("database.maintenance_interval", time.Hour)

	v.SetDefault("mesh.client_id", "meshbridge")
	v.SetDefault("mesh.topic_root", "msh/US")
	v.SetDefault("mesh.channel", "LongFast")

	v.SetDefault("chat.channel_name", "mesh")

	v.SetDefault("bridge.queue_size", 1000)
	v.SetDefault("bridge.batch_size", 10)
	v.SetDefault("bridge.drain_interval", time.Second)
	v.SetDefault("bridge.refresh_interval", time.Minute)
	v.SetDefault("bridge.cleanup_interval", 5*time.Minute)
	v.SetDefault("bridge.movement_threshold_m", 100)

	v.SetDefault("broker.enabled", false)
	v.SetDefault("broker.address", ":1883")
}
