// Package config loads the delivery service configuration from an optional
// YAML file, environment variables and built-in defaults, in that order of
// increasing precedence for the environment overrides the deployment relies
// on (REDIS_*, DB_*_POOL_SIZE).
package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type Config struct {
	Service ServiceConfig `mapstructure:"service"`
	Redis   RedisConfig   `mapstructure:"redis"`
	DB      DBConfig      `mapstructure:"db"`
	AMQP    AMQPConfig    `mapstructure:"amqp"`
	WS      WSConfig      `mapstructure:"ws"`
	Pump    PumpConfig    `mapstructure:"pump"`
	Log     LogConfig     `mapstructure:"log"`
}

type ServiceConfig struct {
	Name   string `mapstructure:"name"`
	Listen string `mapstructure:"listen"`

	// TLS is enabled only when both files are set and readable; otherwise
	// the server falls back to plain TCP.
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	Scheme   string `mapstructure:"scheme"`
	Cluster  bool   `mapstructure:"cluster"`
	DB       int    `mapstructure:"db"`
}

type DBConfig struct {
	DSN           string `mapstructure:"dsn"`
	ReadPoolSize  int    `mapstructure:"read_pool_size"`
	WritePoolSize int    `mapstructure:"write_pool_size"`
}

type AMQPConfig struct {
	URI string `mapstructure:"uri"`
}

type WSConfig struct {
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
	SendBuffer  int           `mapstructure:"send_buffer"`
}

type PumpConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	TaskWorkers   int           `mapstructure:"task_workers"`
	TaskQueueSize int           `mapstructure:"task_queue_size"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console or json
}

// LoadConfig reads the optional config file at path and applies environment
// overrides. An empty path means environment and defaults only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	bindEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		// Operators edit the file in place; pool sizes and timeouts picked
		// up on restart, only the log level reacts live.
		v.OnConfigChange(func(e fsnotify.Event) {
			slog.Info("configuration file changed", slog.String("file", e.Name))
		})
		v.WatchConfig()
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "notify-delivery-service")
	v.SetDefault("service.listen", "0.0.0.0:9502")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.scheme", "tcp")
	v.SetDefault("redis.cluster", false)
	v.SetDefault("redis.db", 0)

	v.SetDefault("db.read_pool_size", 15)
	v.SetDefault("db.write_pool_size", 5)

	v.SetDefault("ws.idle_timeout", 180*time.Second)
	v.SetDefault("ws.send_timeout", 500*time.Millisecond)
	v.SetDefault("ws.send_buffer", 256)

	v.SetDefault("pump.poll_interval", 15*time.Second)
	v.SetDefault("pump.task_workers", 0) // 0 means 2x CPU, resolved by the pump
	v.SetDefault("pump.task_queue_size", 1024)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// bindEnv wires the externally agreed variable names; everything else is
// reachable through the generic NOTIFY_ prefix.
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("NOTIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range map[string]string{
		"redis.host":         "REDIS_HOST",
		"redis.port":         "REDIS_PORT",
		"redis.password":     "REDIS_PASSWORD",
		"redis.scheme":       "REDIS_SCHEME",
		"redis.cluster":      "REDIS_CLUSTER",
		"db.dsn":             "DB_DSN",
		"db.read_pool_size":  "DB_READ_POOL_SIZE",
		"db.write_pool_size": "DB_WRITE_POOL_SIZE",
		"amqp.uri":           "AMQP_URI",
	} {
		v.BindEnv(key, env) //nolint:errcheck // only fails on empty input
	}
}

func (c *Config) validate() error {
	if _, _, err := net.SplitHostPort(c.Service.Listen); err != nil {
		return fmt.Errorf("config: invalid listen address %q: %w", c.Service.Listen, err)
	}
	if c.DB.ReadPoolSize <= 0 || c.DB.WritePoolSize <= 0 {
		return fmt.Errorf("config: pool sizes must be positive (read=%d write=%d)",
			c.DB.ReadPoolSize, c.DB.WritePoolSize)
	}
	if c.WS.IdleTimeout <= 0 {
		return fmt.Errorf("config: ws idle timeout must be positive")
	}
	return nil
}

// RedisAddr returns the host:port dial address for the registry client.
func (c *Config) RedisAddr() string {
	return net.JoinHostPort(c.Redis.Host, fmt.Sprint(c.Redis.Port))
}

// ServerIdentity is this instance's name in the distributed registry. Every
// binding the instance publishes carries it, so it must be unique and stable
// across the cluster for the process lifetime.
func (c *Config) ServerIdentity() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	_, port, err := net.SplitHostPort(c.Service.Listen)
	if err != nil {
		port = "9502"
	}
	return net.JoinHostPort(host, port)
}

// TLSEnabled reports whether both certificate files are configured and
// readable.
func (c *Config) TLSEnabled() bool {
	if c.Service.CertFile == "" || c.Service.KeyFile == "" {
		return false
	}
	for _, f := range []string{c.Service.CertFile, c.Service.KeyFile} {
		if _, err := os.Stat(f); err != nil {
			return false
		}
	}
	return true
}
