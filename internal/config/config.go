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
	Endpoint      string
	AccessKey     string
	SecretKey     string
	BucketOutputs string
	BucketAvatars string
	UseSSL        bool
	Region        string
}

type SecurityConfig struct {
	JWTAccessSecret  string
	JWTRefreshSecret string
	JWTAccessTTL     time.Duration
	JWTRefreshTTL    time.Duration
	WebhookSecret    string
	MaxSessions      int
}

// ProviderConfig carries everything a single vendor adapter needs. Adapters
// receive this struct at construction and never read ambient state themselves.
type ProviderConfig struct {
	BaseURL       string
	AccessKey     string
	SecretKey     string
	APIKey        string
	Model         string
	SubmitTimeout time.Duration
	PollInterval  time.Duration
	PollBudget    int
}

type ProvidersConfig struct {
	Kling ProviderConfig
	Veo   ProviderConfig
}

type CreditsConfig struct {
	ImageCost       int64
	VideoCost       int64
	ProVideoCost    int64
	SignupGrant     int64
	RenewalGrant    int64
	ProRenewalGrant int64
}

type RetentionConfig struct {
	// DefaultHorizon is how long an unpinned output survives before the
	// sweeper may reclaim its storage.
	DefaultHorizon time.Duration
	SweepSpec      string
	CleanupStream  string
	EventStream    string
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Security         SecurityConfig
	Providers        ProvidersConfig
	Credits          CreditsConfig
	Retention        RetentionConfig
	AllowCORSOrigins []string
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("BERMY")
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

	v.SetDefault("storage.bucketoutputs", "bermy-outputs")
	v.SetDefault("storage.bucketavatars", "bermy-avatars")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")

	v.SetDefault("security.jwtaccessttl", "15m")
	v.SetDefault("security.jwtrefreshttl", "720h") // 30 days
	v.SetDefault("security.maxsessions", 10)

	v.SetDefault("providers.kling.baseurl", "https://api.klingai.com")
	v.SetDefault("providers.kling.model", "kling-v1-5")
	v.SetDefault("providers.kling.submittimeout", "30s")
	v.SetDefault("providers.kling.pollinterval", "10s")
	v.SetDefault("providers.kling.pollbudget", 60)

	v.SetDefault("providers.veo.baseurl", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("providers.veo.model", "veo-3.0-generate-preview")
	v.SetDefault("providers.veo.submittimeout", "30s")
	v.SetDefault("providers.veo.pollinterval", "10s")
	v.SetDefault("providers.veo.pollbudget", 60)

	v.SetDefault("credits.imagecost", 50)
	v.SetDefault("credits.videocost", 150)
	v.SetDefault("credits.provideocost", 300)
	v.SetDefault("credits.signupgrant", 100)
	v.SetDefault("credits.renewalgrant", 1000)
	v.SetDefault("credits.prorenewalgrant", 3000)

	v.SetDefault("retention.defaulthorizon", "168h") // 7 days
	v.SetDefault("retention.sweepspec", "0 0 * * * *")
	v.SetDefault("retention.cleanupstream", "outputs:cleanup")
	v.SetDefault("retention.eventstream", "jobs:events")
}
