// Package config loads the mailpoll configuration from a YAML file and
// MAILPOLL_ environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	AuthClientCredentials = "client_credentials"
	AuthBetterAuth        = "betterauth"

	StateSQLite = "sqlite"
	StateRedis  = "redis"

	PublishNone = "none"
	PublishNATS = "nats"
	PublishAMQP = "amqp"
)

// DefaultPath is used when no --config flag is given
const DefaultPath = "config.yaml"

type Config struct {
	Mailbox        string           `mapstructure:"mailbox"`
	RequestTimeout time.Duration    `mapstructure:"request_timeout"`
	Auth           AuthConfig       `mapstructure:"auth"`
	Instances      []InstanceConfig `mapstructure:"instances"`
	State          StateConfig      `mapstructure:"state"`
	Publish        PublishConfig    `mapstructure:"publish"`
	Server         ServerConfig     `mapstructure:"server"`
	Log            LogConfig        `mapstructure:"log"`
}

type AuthConfig struct {
	Mode          string `mapstructure:"mode"`
	TenantID      string `mapstructure:"tenant_id"`
	ClientID      string `mapstructure:"client_id"`
	ClientSecret  string `mapstructure:"client_secret"`
	BetterAuthURL string `mapstructure:"betterauth_url"`
	UserJWT       string `mapstructure:"user_jwt"`
}

// InstanceConfig configures one polled folder
type InstanceConfig struct {
	Name         string `mapstructure:"name"`
	Folder       string `mapstructure:"folder"`
	PublicFolder bool   `mapstructure:"public_folder"`
	MaxFetch     int    `mapstructure:"max_fetch"`
	MarkAsRead   bool   `mapstructure:"mark_as_read"`
}

type StateConfig struct {
	Driver string      `mapstructure:"driver"`
	Path   string      `mapstructure:"path"`
	Redis  RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type PublishConfig struct {
	Driver  string `mapstructure:"driver"`
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

type ServerConfig struct {
	Addr       string `mapstructure:"addr"`
	JWKSURL    string `mapstructure:"jwks_url"`
	HMACSecret string `mapstructure:"hmac_secret"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Flags registers the command line flags understood by Load
func Flags(fs *pflag.FlagSet) {
	fs.String("config", DefaultPath, "path to the configuration file")
	fs.Bool("once", false, "poll every instance once, dispatch the outbox and exit")
	fs.String("log-level", "", "override log.level")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mailbox", "")
	v.SetDefault("request_timeout", 120*time.Second)
	v.SetDefault("auth.mode", AuthClientCredentials)
	v.SetDefault("auth.tenant_id", "")
	v.SetDefault("auth.client_id", "")
	v.SetDefault("auth.client_secret", "")
	v.SetDefault("auth.betterauth_url", "")
	v.SetDefault("auth.user_jwt", "")
	v.SetDefault("state.driver", StateSQLite)
	v.SetDefault("state.path", "data/mailpoll.db")
	v.SetDefault("state.redis.addr", "localhost:6379")
	v.SetDefault("state.redis.password", "")
	v.SetDefault("state.redis.db", 0)
	v.SetDefault("publish.driver", PublishNone)
	v.SetDefault("publish.url", "")
	v.SetDefault("publish.subject", "mailpoll.incidents")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.jwks_url", "")
	v.SetDefault("server.hmac_secret", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads the configuration file at path. A missing file leaves the
// defaults and environment in effect. fs may be nil.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MAILPOLL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if fs != nil {
		if f := fs.Lookup("log-level"); f != nil && f.Changed {
			if err := v.BindPFlag("log.level", f); err != nil {
				return nil, fmt.Errorf("bind log-level flag: %w", err)
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	for i := range cfg.Instances {
		if cfg.Instances[i].Folder == "" {
			cfg.Instances[i].Folder = "Inbox"
		}
		if cfg.Instances[i].MaxFetch == 0 {
			cfg.Instances[i].MaxFetch = 50
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings Load cannot default
func (c *Config) Validate() error {
	var errs []error
	if c.Mailbox == "" {
		errs = append(errs, errors.New("mailbox is required"))
	}
	if len(c.Instances) == 0 {
		errs = append(errs, errors.New("at least one instance is required"))
	}

	seen := make(map[string]bool, len(c.Instances))
	for i, inst := range c.Instances {
		switch {
		case inst.Name == "":
			errs = append(errs, fmt.Errorf("instances[%d]: name is required", i))
		case seen[inst.Name]:
			errs = append(errs, fmt.Errorf("instances[%d]: duplicate name %q", i, inst.Name))
		}
		seen[inst.Name] = true
		if inst.PublicFolder {
			errs = append(errs, fmt.Errorf("instance %q: public folders are not reachable through Microsoft Graph", inst.Name))
		}
		if inst.MaxFetch < 0 {
			errs = append(errs, fmt.Errorf("instance %q: max_fetch must be positive", inst.Name))
		}
	}

	switch c.Auth.Mode {
	case AuthClientCredentials, AuthBetterAuth:
	default:
		errs = append(errs, fmt.Errorf("unknown auth.mode %q", c.Auth.Mode))
	}
	switch c.State.Driver {
	case StateSQLite, StateRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown state.driver %q", c.State.Driver))
	}
	switch c.Publish.Driver {
	case PublishNone:
	case PublishNATS, PublishAMQP:
		if c.Publish.URL == "" {
			errs = append(errs, fmt.Errorf("publish.url is required for %s", c.Publish.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown publish.driver %q", c.Publish.Driver))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request_timeout must be positive"))
	}
	return errors.Join(errs...)
}
