// Package config loads bridge settings from defaults, an optional
// actionbridge.yaml and ACTIONBRIDGE_* environment variables, in increasing
// order of precedence.
//
//	ACTIONBRIDGE_AGENT_URL=ws://neuro:8000
//	ACTIONBRIDGE_STORE_BACKEND=redis
//	ACTIONBRIDGE_STORE_REDIS_ADDR=localhost:6379
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the environment variable prefix.
const EnvPrefix = "ACTIONBRIDGE"

// Store backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// ReconnectConfig controls agent reconnection backoff.
type ReconnectConfig struct {
	Initial  time.Duration `mapstructure:"initial"`
	Max      time.Duration `mapstructure:"max"`
	Factor   float64       `mapstructure:"factor"`
	Attempts int           `mapstructure:"attempts"` // 0 retries forever
}

// AgentConfig describes how the bridge reaches the agent.
type AgentConfig struct {
	URL          string          `mapstructure:"url"`
	Game         string          `mapstructure:"game"`
	Listen       string          `mapstructure:"listen"`
	Reconnect    ReconnectConfig `mapstructure:"reconnect"`
	PingInterval time.Duration   `mapstructure:"ping_interval"`
}

// ProcedureConfig selects the procedure to run.
type ProcedureConfig struct {
	File    string `mapstructure:"file"`
	Library string `mapstructure:"library"`
	ID      string `mapstructure:"id"`
	Watch   bool   `mapstructure:"watch"`
}

// CapabilitiesConfig selects the host adapter.
type CapabilitiesConfig struct {
	File     string `mapstructure:"file"`
	Simulate bool   `mapstructure:"simulate"`
}

// ExecutorConfig bounds host calls.
type ExecutorConfig struct {
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// RedisConfig configures the Redis store.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// FileStoreConfig configures the file store.
type FileStoreConfig struct {
	Path string `mapstructure:"path"`
}

// StoreConfig selects where session snapshots live.
type StoreConfig struct {
	Backend       string          `mapstructure:"backend"`
	Redis         RedisConfig     `mapstructure:"redis"`
	File          FileStoreConfig `mapstructure:"file"`
	EncryptionKey string          `mapstructure:"encryption_key"`
	PIIKeys       []string        `mapstructure:"pii_keys"`
}

// JournalConfig locates the action journal. An empty path disables it.
type JournalConfig struct {
	Path string `mapstructure:"path"`
}

// HTTPConfig configures the operator API.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the complete bridge configuration.
type Config struct {
	Agent        AgentConfig        `mapstructure:"agent"`
	Procedure    ProcedureConfig    `mapstructure:"procedure"`
	Capabilities CapabilitiesConfig `mapstructure:"capabilities"`
	Executor     ExecutorConfig     `mapstructure:"executor"`
	Store        StoreConfig        `mapstructure:"store"`
	Journal      JournalConfig      `mapstructure:"journal"`
	HTTP         HTTPConfig         `mapstructure:"http"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// Loader wraps a viper instance.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader with every default set.
func NewLoader() *Loader {
	l := &Loader{v: viper.New()}
	l.setDefaults()
	return l
}

// Viper exposes the underlying instance, e.g. for flag binding.
func (l *Loader) Viper() *viper.Viper { return l.v }

func (l *Loader) setDefaults() {
	l.v.SetDefault("agent.url", "ws://localhost:8000")
	l.v.SetDefault("agent.game", "Neuro-Sama Surgery")
	l.v.SetDefault("agent.listen", "")
	l.v.SetDefault("agent.reconnect.initial", "1s")
	l.v.SetDefault("agent.reconnect.max", "30s")
	l.v.SetDefault("agent.reconnect.factor", 2.0)
	l.v.SetDefault("agent.reconnect.attempts", 0)
	l.v.SetDefault("agent.ping_interval", "30s")

	l.v.SetDefault("procedure.file", "")
	l.v.SetDefault("procedure.library", "")
	l.v.SetDefault("procedure.id", "")
	l.v.SetDefault("procedure.watch", false)

	l.v.SetDefault("capabilities.file", "")
	l.v.SetDefault("capabilities.simulate", false)

	l.v.SetDefault("executor.default_timeout", "30s")

	l.v.SetDefault("store.backend", BackendMemory)
	l.v.SetDefault("store.redis.addr", "localhost:6379")
	l.v.SetDefault("store.redis.password", "")
	l.v.SetDefault("store.redis.db", 0)
	l.v.SetDefault("store.redis.prefix", "actionbridge:session:")
	l.v.SetDefault("store.redis.ttl", "24h")
	l.v.SetDefault("store.file.path", ".actionbridge/sessions")
	l.v.SetDefault("store.encryption_key", "")
	l.v.SetDefault("store.pii_keys", []string{})

	l.v.SetDefault("journal.path", "")
	l.v.SetDefault("http.addr", "")

	l.v.SetDefault("logging.level", "info")
	l.v.SetDefault("logging.format", "text")
}

// Load reads cfgFile, or searches actionbridge.yaml in the usual places
// when cfgFile is empty, then applies the environment.
func (l *Loader) Load(cfgFile string) (*Config, error) {
	if cfgFile != "" {
		l.v.SetConfigFile(cfgFile)
	} else {
		l.v.SetConfigName("actionbridge")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		l.v.AddConfigPath("./configs")
		l.v.AddConfigPath("$HOME/.actionbridge")
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case cfgFile == "" && errors.As(err, &notFound):
		case cfgFile != "" && isFileNotFoundError(err):
			return nil, fmt.Errorf("config file %s not found: %w", cfgFile, err)
		default:
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Load is a convenience for NewLoader().Load(cfgFile).
func Load(cfgFile string) (*Config, error) {
	return NewLoader().Load(cfgFile)
}

// Validate checks values that would otherwise fail later and less clearly.
func Validate(cfg *Config) error {
	switch cfg.Store.Backend {
	case BackendMemory, BackendFile, BackendRedis:
	default:
		return fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	if cfg.Executor.DefaultTimeout <= 0 {
		return fmt.Errorf("executor.default_timeout must be positive")
	}
	if r := cfg.Agent.Reconnect; r.Factor < 1 || r.Initial <= 0 || r.Max < r.Initial {
		return fmt.Errorf("invalid agent.reconnect settings")
	}
	if cfg.Store.EncryptionKey != "" {
		key, err := base64.StdEncoding.DecodeString(cfg.Store.EncryptionKey)
		if err != nil || len(key) != 32 {
			return fmt.Errorf("store.encryption_key must be 32 bytes, base64 encoded")
		}
	}
	return nil
}

func isFileNotFoundError(err error) bool {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return errors.Is(pathErr, os.ErrNotExist)
	}
	return false
}
