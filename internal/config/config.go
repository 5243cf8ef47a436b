package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmehdipour/wx-ci/internal/db"
	"github.com/jmehdipour/wx-ci/internal/kafka"
	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

const DefaultFileName = "ci.config.yaml"

// ---- Root ----

type Config struct {
	AppID          string             `mapstructure:"app_id"`
	ProjectPath    string             `mapstructure:"project_path"`
	PrivateKeyPath string             `mapstructure:"private_key_path"`
	Webhook        WebhookConfig      `mapstructure:"webhook"`
	Hooks          HooksConfig        `mapstructure:"hooks"`
	QRCodeUpload   QRCodeUploadConfig `mapstructure:"qrcode_upload"`
	SDK            SDKConfig          `mapstructure:"sdk"`
	Log            LogConfig          `mapstructure:"log"`
	History        DatabaseConfig     `mapstructure:"history"`
	Redis          RedisConfig        `mapstructure:"redis"`
	Kafka          KafkaConfig        `mapstructure:"kafka"`
	Recorder       RecorderConfig     `mapstructure:"recorder"`
	Metrics        MetricsConfig      `mapstructure:"metrics"`

	// Path is the absolute path of the loaded file; relative paths in the
	// file are resolved against its directory.
	Path string `mapstructure:"-"`
}

// ---- Leaf structs ----

type WebhookConfig struct {
	WorkWeixin string        `mapstructure:"work_weixin"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type HooksConfig struct {
	Prepare string `mapstructure:"prepare"` // lua script
}

type QRCodeUploadConfig struct {
	Endpoint string            `mapstructure:"endpoint"`
	Field    string            `mapstructure:"field"`
	FileName string            `mapstructure:"file_name"`
	URLPath  string            `mapstructure:"url_path"`
	Headers  map[string]string `mapstructure:"headers"`
	Timeout  time.Duration     `mapstructure:"timeout"`
	CacheTTL time.Duration     `mapstructure:"cache_ttl"`
}

type SDKConfig struct {
	Command []string      `mapstructure:"command"`
	Timeout time.Duration `mapstructure:"timeout"`
	Robot   int           `mapstructure:"robot"`
}

type LogConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite | mysql | clickhouse
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

type KafkaConfig struct {
	Brokers        []string      `mapstructure:"brokers"`
	Topic          string        `mapstructure:"topic"`
	GroupID        string        `mapstructure:"group_id"`
	MinBytes       int           `mapstructure:"min_bytes"`
	MaxBytes       int           `mapstructure:"max_bytes"`
	CommitInterval int           `mapstructure:"commit_interval_ms"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

type RecorderConfig struct {
	BatchSize int           `mapstructure:"batch_size"`
	BatchWait time.Duration `mapstructure:"batch_wait"`
}

type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// Load reads embedded defaults, merges the user YAML, then the
// `environments.<env>` and `modes.<mode>` overlays of that file, and finally
// applies env overrides (WXCI_*).
func Load(path, env, mode string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	abs, err := Resolve(path)
	if err != nil {
		return Config{}, err
	}
	v.SetConfigFile(abs)
	if err := v.MergeInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", abs, err)
	}

	for _, key := range overlayKeys(env, mode) {
		if sub := v.Sub(key); sub != nil {
			if err := v.MergeConfigMap(sub.AllSettings()); err != nil {
				return Config{}, fmt.Errorf("merge %s: %w", key, err)
			}
		}
	}

	// env override (WXCI_*), e.g. WXCI_WEBHOOK_WORK_WEIXIN
	v.SetEnvPrefix("WXCI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	cfg.Path = abs

	return cfg, cfg.Validate()
}

func overlayKeys(env, mode string) []string {
	var keys []string
	if env = strings.ToLower(strings.TrimSpace(env)); env != "" {
		keys = append(keys, "environments."+env)
	}
	if mode = strings.ToLower(strings.TrimSpace(mode)); mode != "" {
		keys = append(keys, "modes."+mode)
	}
	return keys
}

// Resolve turns the --config flag into an absolute path; empty means
// ./ci.config.yaml.
func Resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultFileName
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working dir: %w", err)
	}
	return filepath.Join(wd, path), nil
}

// ResolvePath resolves p against the directory of the config file.
func (c Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(c.Path), p)
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.AppID) == "" {
		errs = append(errs, errors.New("app_id is required"))
	}
	if strings.TrimSpace(c.ProjectPath) == "" {
		errs = append(errs, errors.New("project_path is required"))
	}
	if len(c.SDK.Command) == 0 {
		errs = append(errs, errors.New("sdk.command is required"))
	}
	switch c.History.Driver {
	case "", "sqlite", "mysql", "clickhouse":
	default:
		errs = append(errs, fmt.Errorf("history.driver %q is not supported", c.History.Driver))
	}
	return errors.Join(errs...)
}

// HistoryOpts maps the history section to connection options. A relative
// sqlite path is resolved against the config file.
func (c Config) HistoryOpts() db.Opts {
	dsn := c.History.DSN
	if c.History.Driver == "sqlite" && !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		dsn = c.ResolvePath(dsn)
	}
	return db.Opts{
		Driver:          c.History.Driver,
		DSN:             dsn,
		MaxOpenConns:    c.History.MaxOpenConns,
		MaxIdleConns:    c.History.MaxIdleConns,
		ConnMaxLifetime: c.History.ConnMaxLifetime,
		ConnMaxIdleTime: c.History.ConnMaxIdleTime,
		PingTimeout:     c.History.PingTimeout,
	}
}

func (c Config) RedisOpts() db.RedisOpts {
	return db.RedisOpts{
		Addr:        c.Redis.Addr,
		Password:    c.Redis.Password,
		DB:          c.Redis.DB,
		DialTimeout: c.Redis.DialTimeout,
		ReadTimeout: c.Redis.ReadTimeout,
	}
}

func (c Config) KafkaOpts() kafka.Config {
	return kafka.Config{
		Brokers:        c.Kafka.Brokers,
		Topic:          c.Kafka.Topic,
		GroupID:        c.Kafka.GroupID,
		MinBytes:       c.Kafka.MinBytes,
		MaxBytes:       c.Kafka.MaxBytes,
		CommitInterval: time.Duration(c.Kafka.CommitInterval) * time.Millisecond,
		WriteTimeout:   c.Kafka.WriteTimeout,
	}
}
