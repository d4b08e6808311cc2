package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/mmdatafocus/glrecon_backend/store"
)

const (
	StoreDriverMySQL  = "mysql"
	StoreDriverMemory = "memory"

	StorageProviderGCS    = "gcs"
	StorageProviderMemory = "memory"
)

type DBSettings struct {
	User     string
	Password string
	Host     string
	Port     string
	Name     string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type Settings struct {
	Port               string `validate:"required,numeric"`
	GoEnv              string
	CORSAllowedOrigins []string

	StoreDriver    string `validate:"oneof=mysql memory"`
	DB             DBSettings
	RedisAddress   string
	ConfigCacheTTL time.Duration

	StorageProvider string `validate:"oneof=gcs memory"`
	GCS             store.GCSConfig
	SignedURLTTL    time.Duration `validate:"gt=0"`

	PubSubProjectID       string
	PubSubTopic           string
	PubSubCredentialsJSON string

	AccessTablePath    string
	SharedPasswordHash string

	Timezone                string
	Location                *time.Location `validate:"-"`
	DefaultWorkingDayOffset int            `validate:"min=1,max=31"`

	SchedulerEnabled  bool
	SchedulerInterval time.Duration `validate:"gt=0"`

	RateLimitEnabled     bool
	RateLimitMaxRequests int `validate:"min=1"`
	RateLimitWindow      time.Duration

	MaxUploadBytes int64 `validate:"gt=0"`
}

func (s *Settings) IsProduction() bool {
	return s.GoEnv == "production"
}

// LoadSettings reads .env (when present) and the process environment.
func LoadSettings() (*Settings, error) {
	godotenv.Load()

	s := &Settings{
		Port:               stringFromEnv("8080", "API_PORT", "PORT"),
		GoEnv:              stringFromEnv("", "GO_ENV"),
		CORSAllowedOrigins: listFromEnv("CORS_ALLOWED_ORIGINS"),

		StoreDriver: stringFromEnv(StoreDriverMySQL, "STORE_DRIVER"),
		DB: DBSettings{
			User:            stringFromEnv("", "DB_USER"),
			Password:        stringFromEnv("", "DB_PASSWORD"),
			Host:            stringFromEnv("127.0.0.1", "DB_HOST"),
			Port:            stringFromEnv("3306", "DB_PORT"),
			Name:            stringFromEnv("glrecon", "DB_NAME"),
			MaxOpenConns:    intFromEnv("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    intFromEnv("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: secondsFromEnv("DB_CONN_MAX_LIFETIME_SECONDS", 300),
			ConnMaxIdleTime: secondsFromEnv("DB_CONN_MAX_IDLE_TIME_SECONDS", 60),
		},
		RedisAddress:   stringFromEnv("", "REDIS_ADDRESS"),
		ConfigCacheTTL: secondsFromEnv("CONFIG_CACHE_TTL_SECONDS", 300),

		StorageProvider: stringFromEnv(StorageProviderGCS, "STORAGE_PROVIDER"),
		GCS: store.GCSConfig{
			Bucket:           stringFromEnv("", "GCS_BUCKET"),
			CredentialsJSON:  stringFromEnv("", "GCS_CREDENTIALS_JSON"),
			SignerEmail:      stringFromEnv("", "GCS_SIGNER_EMAIL"),
			SignerPrivateKey: stringFromEnv("", "GCS_SIGNER_PRIVATE_KEY"),
		},
		SignedURLTTL: time.Duration(intFromEnv("SIGNED_URL_TTL_MINUTES", 15)) * time.Minute,

		PubSubProjectID:       stringFromEnv("", "PUBSUB_PROJECT_ID", "GOOGLE_CLOUD_PROJECT", "GCP_PROJECT"),
		PubSubTopic:           stringFromEnv("", "PUBSUB_TOPIC"),
		PubSubCredentialsJSON: stringFromEnv("", "PUBSUB_CREDENTIALS_JSON"),

		AccessTablePath:    stringFromEnv("access.yaml", "ACCESS_TABLE_PATH"),
		SharedPasswordHash: stringFromEnv("", "SHARED_PASSWORD_HASH"),

		Timezone:                stringFromEnv("UTC", "APP_TIMEZONE"),
		DefaultWorkingDayOffset: intFromEnv("DEFAULT_WORKING_DAY_OFFSET", 3),

		SchedulerEnabled:  boolFromEnv("SCHEDULER_ENABLED", false),
		SchedulerInterval: time.Duration(intFromEnv("SCHEDULER_INTERVAL_MINUTES", 60)) * time.Minute,

		RateLimitEnabled:     boolFromEnv("RATE_LIMIT_ENABLED", false),
		RateLimitMaxRequests: intFromEnv("RATE_LIMIT_MAX_REQUESTS", 120),
		RateLimitWindow:      secondsFromEnv("RATE_LIMIT_WINDOW_SECONDS", 60),

		MaxUploadBytes: int64(intFromEnv("MAX_UPLOAD_SIZE_MB", 10)) << 20,
	}

	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("APP_TIMEZONE: %w", err)
	}
	s.Location = loc

	if err := validator.New().Struct(s); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	if s.StorageProvider == StorageProviderGCS && s.GCS.Bucket == "" {
		return nil, fmt.Errorf("invalid settings: GCS_BUCKET is required when STORAGE_PROVIDER=gcs")
	}
	return s, nil
}
