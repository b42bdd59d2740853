package config

import (
	"time"

	"github.com/streampulse/accounts/internal/media"
	"github.com/streampulse/accounts/internal/obs"
	pg "github.com/streampulse/accounts/internal/repository/postgres"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type Server struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
}

type OTEL struct {
	Enable       bool    `mapstructure:"enable"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

func (oc *OTEL) AsOTELConfig() *obs.OTELConfig {
	return &obs.OTELConfig{
		Enable:      oc.Enable,
		Endpoint:    oc.OTLPEndpoint,
		ServiceName: oc.ServiceName,
		SampleRatio: oc.SampleRatio,
	}
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

func (lc *Log) AsLoggerConfig(app App) *obs.LogConfig {
	return &obs.LogConfig{
		Level:  lc.Level,
		Pretty: lc.Pretty,
		App:    app.Name,
		Env:    app.Env,
		Ver:    app.Version,
	}
}

type Auth struct {
	AccessSecret      string        `mapstructure:"access_secret"`
	RefreshSecret     string        `mapstructure:"refresh_secret"`
	AccessTTL         time.Duration `mapstructure:"access_ttl"`
	RefreshTTL        time.Duration `mapstructure:"refresh_ttl"`
	BcryptCost        int           `mapstructure:"bcrypt_cost"`
	AccessCookieName  string        `mapstructure:"access_cookie_name"`
	RefreshCookieName string        `mapstructure:"refresh_cookie_name"`
	CookieDomain      string        `mapstructure:"cookie_domain"`
	CookiePath        string        `mapstructure:"cookie_path"`
	CookieSecure      bool          `mapstructure:"cookie_secure"`
}

type Kafka struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type Outbox struct {
	Workers       int           `mapstructure:"workers"`
	BatchSize     int           `mapstructure:"batch_size"`
	WaitTime      time.Duration `mapstructure:"wait_time"`
	InProgressTTL time.Duration `mapstructure:"in_progress_ttl"`
}

type Config struct {
	App    App          `mapstructure:"app"`
	Server Server       `mapstructure:"server"`
	DB     pg.Config    `mapstructure:"db"`
	OTEL   OTEL         `mapstructure:"otel"`
	Log    Log          `mapstructure:"log"`
	Auth   Auth         `mapstructure:"auth"`
	Media  media.Config `mapstructure:"media"`
	Kafka  Kafka        `mapstructure:"kafka"`
	Outbox Outbox       `mapstructure:"outbox"`
}
