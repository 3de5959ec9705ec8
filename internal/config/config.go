package config

import (
	"fmt"
	"net"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Config is the full configuration surface of an activity worker process.
type Config struct {
	Name             string                 `mapstructure:"name"`
	ActivityARN      string                 `mapstructure:"activity_arn"`
	Endpoint         string                 `mapstructure:"endpoint"`
	Processes        int                    `mapstructure:"processes"`
	Heartbeat        int                    `mapstructure:"heartbeat"`
	MaxTasksPerChild int                    `mapstructure:"maxtasksperchild"`
	StartMethod      string                 `mapstructure:"start_method"`
	Healthcheck      int                    `mapstructure:"healthcheck"`
	Worker           string                 `mapstructure:"worker"`
	Server           string                 `mapstructure:"server"`
	WorkerConfig     map[string]interface{} `mapstructure:"worker_config"`
	ServerConfig     map[string]interface{} `mapstructure:"server_config"`
	LogLevel         string                 `mapstructure:"loglevel"`
}

// ServerName returns "{name}-{host_ip_or_pid}", computed once at startup and
// surfaced in the remote service's monitoring UI. The host part is the first
// address the local host name resolves to, or the process id when it does
// not resolve.
func (c Config) ServerName() string {
	host := ""
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		if addrs, err := net.LookupHost(hostname); err == nil && len(addrs) > 0 {
			host = addrs[0]
		}
	}
	if host == "" {
		host = fmt.Sprintf("%d", os.Getpid())
	}
	return c.Name + "-" + host
}

// Load reads configuration from path when non-empty, otherwise from the
// usual search locations. Flag overrides are applied by the caller after
// loading.
func Load(path string) (*Config, error) {
	viper.Reset()

	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/activityworker")
	}

	setDefaults()

	viper.SetEnvPrefix("ACTIVITYWORKER")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.Name == "" {
		id, err := uuid.NewRandom()
		if err == nil {
			cfg.Name = "activityworker-" + id.String()[:8]
		} else {
			cfg.Name = "activityworker"
		}
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("name", "")
	viper.SetDefault("activity_arn", "")
	viper.SetDefault("endpoint", "")
	viper.SetDefault("processes", 0) // 0 => runtime.NumCPU()
	viper.SetDefault("heartbeat", 0)
	viper.SetDefault("maxtasksperchild", 0)
	viper.SetDefault("start_method", "")
	viper.SetDefault("healthcheck", 0)
	viper.SetDefault("worker", "echo")
	viper.SetDefault("server", "")
	viper.SetDefault("worker_config", map[string]interface{}{})
	viper.SetDefault("server_config", map[string]interface{}{})
	viper.SetDefault("loglevel", "info")
}
