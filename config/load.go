package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env     string        `yaml:"env"`
	Broker  BrokerConfig  `yaml:"broker"`
	Monitor MonitorConfig `yaml:"monitor"`
	Web     WebConfig     `yaml:"web"`
	Metrics MetricsConfig `yaml:"metrics"`
	Alert   AlertConfig   `yaml:"alert"`
	Logging LoggingConfig `yaml:"logging"`
}

type BrokerConfig struct {
	AppKey      string `yaml:"appKey"`
	AppSecret   string `yaml:"appSecret"`
	CallbackURL string `yaml:"callbackURL"`
	BaseURL     string `yaml:"baseURL"`
	TokenPath   string `yaml:"tokenPath"`
}

// MonitorConfig 轮询引擎参数（检查间隔、订单缓存与忽略名单文件路径）。
type MonitorConfig struct {
	CheckIntervalMs int     `yaml:"checkIntervalMs"`
	OrdersCachePath string  `yaml:"ordersCachePath"`
	IgnoreListPath  string  `yaml:"ignoreListPath"`
	RestRate        float64 `yaml:"restRate"`
	RestBurst       int     `yaml:"restBurst"`
}

type WebConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type AlertConfig struct {
	ThrottleSeconds int `yaml:"throttleSeconds"`
}

type LoggingConfig struct {
	Level      string   `yaml:"level"`
	Outputs    []string `yaml:"outputs"`
	OutputFile string   `yaml:"output_file"`
	Format     string   `yaml:"format"`
}

// CheckInterval returns the poll interval with the 1s default applied.
func (m MonitorConfig) CheckInterval() time.Duration {
	if m.CheckIntervalMs <= 0 {
		return time.Second
	}
	return time.Duration(m.CheckIntervalMs) * time.Millisecond
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides sensitive fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("MON_BROKER_APP_KEY"); v != "" {
		cfg.Broker.AppKey = v
	}
	if v := os.Getenv("MON_BROKER_APP_SECRET"); v != "" {
		cfg.Broker.AppSecret = v
	}
	if v := os.Getenv("MON_BROKER_TOKEN_PATH"); v != "" {
		cfg.Broker.TokenPath = v
	}
	if v := os.Getenv("MON_WEB_USERNAME"); v != "" {
		cfg.Web.Username = v
	}
	if v := os.Getenv("MON_WEB_PASSWORD"); v != "" {
		cfg.Web.Password = v
	}
	return cfg, Validate(cfg)
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Broker.TokenPath == "" {
		cfg.Broker.TokenPath = "token.json"
	}
	if cfg.Monitor.OrdersCachePath == "" {
		cfg.Monitor.OrdersCachePath = "active_orders.json"
	}
	if cfg.Monitor.IgnoreListPath == "" {
		cfg.Monitor.IgnoreListPath = "ignored_items.json"
	}
	if cfg.Monitor.RestRate <= 0 {
		cfg.Monitor.RestRate = 5
	}
	if cfg.Monitor.RestBurst <= 0 {
		cfg.Monitor.RestBurst = 10
	}
	if cfg.Web.Addr == "" {
		cfg.Web.Addr = ":5001"
	}
	if cfg.Alert.ThrottleSeconds <= 0 {
		cfg.Alert.ThrottleSeconds = 300
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if len(cfg.Logging.Outputs) == 0 {
		cfg.Logging.Outputs = []string{"stdout"}
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if cfg.Broker.AppKey == "" || cfg.Broker.AppSecret == "" {
		return errors.New("broker.appKey/appSecret is required (or env overrides)")
	}
	if cfg.Broker.BaseURL == "" {
		return errors.New("broker.baseURL is required")
	}
	if cfg.Monitor.CheckIntervalMs < 0 {
		return errors.New("monitor.checkIntervalMs must be >= 0")
	}
	if (cfg.Web.Username == "") != (cfg.Web.Password == "") {
		return errors.New("web.username and web.password must be set together")
	}
	return nil
}
