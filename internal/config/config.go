package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StorageConfig struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	BucketGuest  string
	UseSSL       bool
	Region       string
}

type OTPConfig struct {
	Expiry         time.Duration
	ResendCooldown time.Duration
	MaxAttempts    int
}

type SessionConfig struct {
	Lifetime time.Duration
}

type ThrottleConfig struct {
	Threshold     int
	Window        time.Duration
	RetentionAge  time.Duration
}

type GuestConfig struct {
	MaxUploads        int
	MaxFileSizeBytes  int64
	AllowedExtensions []string
	RetentionDays     int
}

type SMSConfig struct {
	Provider string
	Endpoint string
	APIKey   string
	Sender   string
	Timeout  time.Duration
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Storage          StorageConfig
	OTP              OTPConfig
	Session          SessionConfig
	Throttle         ThrottleConfig
	Guest            GuestConfig
	SMS              SMSConfig
	AllowCORSOrigins []string
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("TASVIRBOX")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 10)
	v.SetDefault("postgres.connmaxlifetime", "30m")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.bucketguest", "tasvirbox-guest")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")

	v.SetDefault("otp.expiry", "5m")
	v.SetDefault("otp.resendcooldown", "90s")
	v.SetDefault("otp.maxattempts", 5)

	v.SetDefault("session.lifetime", "168h") // 7 days

	v.SetDefault("throttle.threshold", 5)
	v.SetDefault("throttle.window", "15m")
	v.SetDefault("throttle.retentionage", "1h")

	v.SetDefault("guest.maxuploads", 10)
	v.SetDefault("guest.maxfilesizebytes", 10<<20)
	v.SetDefault("guest.allowedextensions", "jpg,jpeg,png,gif,webp")
	v.SetDefault("guest.retentiondays", 30)

	v.SetDefault("sms.provider", "console")
	v.SetDefault("sms.timeout", "10s")
}
