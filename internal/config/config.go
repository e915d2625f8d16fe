// internal/config/config.go
package config

import (
	"log"
	"os"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Dirs      DirsConfig
	Sync      SyncConfig
	Cleanup   CleanupConfig
	Transform TransformConfig
}

type ServerConfig struct {
	Port           string
	Mode           string
	AllowedOrigins []string
}

type DirsConfig struct {
	ChunkDir      string
	ProcessingDir string
	OutputDir     string
}

type SyncConfig struct {
	Driver            string // "redis" or "memory"
	MaxConcurrent     int
	MaxRetries        int
	RetryDelay        time.Duration
	DeleteAfterUpload bool
	KeyPrefix         string

	RedisURL      string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3Region    string
	S3UseSSL    bool
}

type CleanupConfig struct {
	SweepInterval    time.Duration
	ChunkMaxAge      time.Duration
	ProcessingMaxAge time.Duration
	OutputMaxAge     time.Duration
	LedgerRetention  time.Duration
}

type TransformConfig struct {
	ServiceURL     string
	DefaultType    string
	DefaultQuality int
}

var (
	once     sync.Once
	instance *Config
)

func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		viper.SetDefault("SERVER_PORT", "8080")
		viper.SetDefault("SERVER_MODE", "debug")
		viper.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})

		viper.SetDefault("APP_CHUNK_DIR", "./data/chunks")
		viper.SetDefault("APP_PROCESSING_DIR", "./data/processing")
		viper.SetDefault("APP_OUTPUT_DIR", "./data/output")

		viper.SetDefault("SYNC_DRIVER", "memory")
		viper.SetDefault("SYNC_MAX_CONCURRENT", 3)
		viper.SetDefault("SYNC_MAX_RETRIES", 3)
		viper.SetDefault("SYNC_RETRY_DELAY_SECONDS", 5)
		viper.SetDefault("SYNC_DELETE_AFTER_UPLOAD", false)
		viper.SetDefault("SYNC_KEY_PREFIX", "uploads/")
		viper.SetDefault("REDIS_URL", "")
		viper.SetDefault("REDIS_HOST", "127.0.0.1")
		viper.SetDefault("REDIS_PORT", "6379")
		viper.SetDefault("REDIS_PASSWORD", "")
		viper.SetDefault("REDIS_DB", 0)
		viper.SetDefault("S3_ENDPOINT", "")
		viper.SetDefault("S3_ACCESS_KEY", "")
		viper.SetDefault("S3_SECRET_KEY", "")
		viper.SetDefault("S3_BUCKET", "")
		viper.SetDefault("S3_REGION", "us-east-1")
		viper.SetDefault("S3_USE_SSL", true)

		viper.SetDefault("CLEANUP_SWEEP_INTERVAL_SECONDS", 600)
		viper.SetDefault("CLEANUP_CHUNK_MAX_AGE_SECONDS", 3600)
		viper.SetDefault("CLEANUP_PROCESSING_MAX_AGE_SECONDS", 3600)
		viper.SetDefault("CLEANUP_OUTPUT_MAX_AGE_SECONDS", 86400)
		viper.SetDefault("CLEANUP_LEDGER_RETENTION_SECONDS", 300)

		viper.SetDefault("TRANSFORM_SERVICE_URL", "")
		viper.SetDefault("TRANSFORM_DEFAULT_TYPE", "auto")
		viper.SetDefault("TRANSFORM_DEFAULT_QUALITY", 85)

		viper.AutomaticEnv()

		ensureDir(viper.GetString("APP_CHUNK_DIR"))
		ensureDir(viper.GetString("APP_PROCESSING_DIR"))
		ensureDir(viper.GetString("APP_OUTPUT_DIR"))

		instance = &Config{
			Server: ServerConfig{
				Port:           viper.GetString("SERVER_PORT"),
				Mode:           viper.GetString("SERVER_MODE"),
				AllowedOrigins: viper.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
			},
			Dirs: DirsConfig{
				ChunkDir:      viper.GetString("APP_CHUNK_DIR"),
				ProcessingDir: viper.GetString("APP_PROCESSING_DIR"),
				OutputDir:     viper.GetString("APP_OUTPUT_DIR"),
			},
			Sync: SyncConfig{
				Driver:            viper.GetString("SYNC_DRIVER"),
				MaxConcurrent:     viper.GetInt("SYNC_MAX_CONCURRENT"),
				MaxRetries:        viper.GetInt("SYNC_MAX_RETRIES"),
				RetryDelay:        time.Duration(viper.GetInt("SYNC_RETRY_DELAY_SECONDS")) * time.Second,
				DeleteAfterUpload: viper.GetBool("SYNC_DELETE_AFTER_UPLOAD"),
				KeyPrefix:         viper.GetString("SYNC_KEY_PREFIX"),
				RedisURL:          viper.GetString("REDIS_URL"),
				RedisHost:         viper.GetString("REDIS_HOST"),
				RedisPort:         viper.GetString("REDIS_PORT"),
				RedisPassword:     viper.GetString("REDIS_PASSWORD"),
				RedisDB:           viper.GetInt("REDIS_DB"),
				S3Endpoint:        viper.GetString("S3_ENDPOINT"),
				S3AccessKey:       viper.GetString("S3_ACCESS_KEY"),
				S3SecretKey:       viper.GetString("S3_SECRET_KEY"),
				S3Bucket:          viper.GetString("S3_BUCKET"),
				S3Region:          viper.GetString("S3_REGION"),
				S3UseSSL:          viper.GetBool("S3_USE_SSL"),
			},
			Cleanup: CleanupConfig{
				SweepInterval:    time.Duration(viper.GetInt("CLEANUP_SWEEP_INTERVAL_SECONDS")) * time.Second,
				ChunkMaxAge:      time.Duration(viper.GetInt("CLEANUP_CHUNK_MAX_AGE_SECONDS")) * time.Second,
				ProcessingMaxAge: time.Duration(viper.GetInt("CLEANUP_PROCESSING_MAX_AGE_SECONDS")) * time.Second,
				OutputMaxAge:     time.Duration(viper.GetInt("CLEANUP_OUTPUT_MAX_AGE_SECONDS")) * time.Second,
				LedgerRetention:  time.Duration(viper.GetInt("CLEANUP_LEDGER_RETENTION_SECONDS")) * time.Second,
			},
			Transform: TransformConfig{
				ServiceURL:     viper.GetString("TRANSFORM_SERVICE_URL"),
				DefaultType:    viper.GetString("TRANSFORM_DEFAULT_TYPE"),
				DefaultQuality: viper.GetInt("TRANSFORM_DEFAULT_QUALITY"),
			},
		}
	})

	return instance
}

func ensureDir(dir string) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}
}
