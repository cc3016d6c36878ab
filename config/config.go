package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"

	"github.com/ilyakaznacheev/cleanenv"
)

type (
	Config struct {
		App          `json:"app"          toml:"app"`
		HTTP         `json:"http"         toml:"http"`
		DB           `json:"db"           toml:"db"`
		Gateway      `json:"gateway"      toml:"gateway"`
		Rates        `json:"rates"        toml:"rates"`
		Monitor      `json:"monitor"      toml:"monitor"`
		Provisioning `json:"provisioning" toml:"provisioning"`
		Log          `json:"logger"       toml:"logger"`
	}

	App struct {
		Name        string `json:"name"        toml:"name"        env:"APP_NAME"`
		Environment string `json:"environment" toml:"environment" env:"ENV_NAME" env-default:"dev"`
		Debug       bool   `json:"debug"       toml:"debug"       env:"DEBUG"    env-default:"false"`
	}

	HTTP struct {
		Port string `json:"port" toml:"port" env:"HTTP_PORT" env-default:"8080"`
	}

	DB struct {
		DatabaseURL       string `json:"database_url"        toml:"database_url"        env:"DATABASE_URL"`
		PoolMax           int32  `json:"pool_max"            toml:"pool_max"            env:"PG_POOL_MAX" env-default:"10"`
		ConnectTimeout    int    `json:"connect_timeout"     toml:"connect_timeout"     env:"PG_POOL_CONN_TIMEOUT" env-default:"5"`
		HealthCheckPeriod int    `json:"health_check_period" toml:"health_check_period" env:"PG_POOL_HEALTHCHECK" env-default:"1"`
	}

	// Gateway configures the external payment gateway that issues
	// receive-addresses and reports confirmed payments.
	Gateway struct {
		APIKey         string `json:"api_key"         toml:"api_key"         env:"GATEWAY_API_KEY"`
		APIURL         string `json:"api_url"         toml:"api_url"         env:"GATEWAY_API_URL" env-default:"https://api.blockbee.io"`
		CallbackURL    string `json:"callback_url"    toml:"callback_url"    env:"GATEWAY_CALLBACK_URL"`
		TimeoutSeconds int    `json:"timeout_seconds" toml:"timeout_seconds" env:"GATEWAY_TIMEOUT" env-default:"10"`
	}

	Rates struct {
		APIKey          string `json:"api_key"           toml:"api_key"           env:"RATES_API_KEY"`
		APIURL          string `json:"api_url"           toml:"api_url"           env:"RATES_API_URL" env-default:"https://api.fastforex.io"`
		TimeoutSeconds  int    `json:"timeout_seconds"   toml:"timeout_seconds"   env:"RATES_TIMEOUT" env-default:"5"`
		CacheTTLSeconds int    `json:"cache_ttl_seconds" toml:"cache_ttl_seconds" env:"RATES_CACHE_TTL" env-default:"60"`
	}

	Monitor struct {
		PollIntervalSeconds int `json:"poll_interval_seconds" toml:"poll_interval_seconds" env:"MONITOR_POLL_INTERVAL" env-default:"30"`
		MaxConcurrentPolls  int `json:"max_concurrent_polls"  toml:"max_concurrent_polls"  env:"MONITOR_MAX_POLLS" env-default:"50"`
		RetireGraceMinutes  int `json:"retire_grace_minutes"  toml:"retire_grace_minutes"  env:"MONITOR_RETIRE_GRACE" env-default:"10"`
		BindingTTLHours     int `json:"binding_ttl_hours"     toml:"binding_ttl_hours"     env:"MONITOR_BINDING_TTL" env-default:"24"`
		ReapIntervalMinutes int `json:"reap_interval_minutes" toml:"reap_interval_minutes" env:"MONITOR_REAP_INTERVAL" env-default:"5"`
	}

	Provisioning struct {
		APIKey         string `json:"api_key"         toml:"api_key"         env:"PROVISIONING_API_KEY"`
		APIURL         string `json:"api_url"         toml:"api_url"         env:"PROVISIONING_API_URL"`
		TimeoutSeconds int    `json:"timeout_seconds" toml:"timeout_seconds" env:"PROVISIONING_TIMEOUT" env-default:"30"`
	}

	Log struct {
		Level slog.Level `json:"level" toml:"level" env:"LOG_LEVEL"`
	}
)

func LoadConfig() (*Config, error) {
	cfg := &Config{}

	_, b, _, _ := runtime.Caller(0)
	basePath := filepath.Dir(b)

	configTomlPath := filepath.Join(basePath, "config.toml")
	err := cleanenv.ReadConfig(configTomlPath, cfg)
	if err != nil {
		configJsonPath := filepath.Join(basePath, "config.json")
		err = cleanenv.ReadConfig(configJsonPath, cfg)
		if err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	}

	err = cleanenv.ReadEnv(cfg)
	if err != nil {
		return nil, fmt.Errorf("env read error: %w", err)
	}

	return cfg, nil
}
