package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Engine   EngineConfig
	Data     DataConfig
	Policy   PolicyConfig
	Storage  StorageConfig
	Export   ExportConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Driver   string // postgres (lib/pq) or pgx
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string

	MaxOpenConns  int
	MaxConcurrent int64
}

// DSN returns the key/value connection string understood by both drivers.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type CacheConfig struct {
	Enabled       bool
	RedisURL      string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	TTLSeconds    int
	KeyPrefix     string
}

// EngineConfig controls the recommendation pipeline.
type EngineConfig struct {
	Branches           []string
	WindowSize         int
	WindowEnd          string // YYYY-MM, empty derives the window from the data
	Workers            int
	BranchTimeout      time.Duration
	SummaryFillMissing bool
	DetailFillMissing  bool
	RunRetention       int
}

// DataConfig selects where branch inputs are read from.
type DataConfig struct {
	Source        string // postgres or csv
	CSVDir        string
	Timeout       time.Duration
	DriveFolderID string // Drive folder holding one sub folder per branch
}

// PolicyConfig locates the branch policy workbook.
type PolicyConfig struct {
	Source          string // file, minio, drive or postgres
	Path            string
	ObjectKey       string
	DriveFolderID   string
	DriveFileName   string
	CredentialsFile string
	Sheet           string
}

type StorageConfig struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	Bucket       string
	UseSSL       bool
	ExportPrefix string
	Upload       bool
}

type ExportConfig struct {
	OutputDir string
	Prefix    string
}

type LogConfig struct {
	Level  string
	Format string
}

var (
	once     sync.Once
	instance *Config
)

// Load reads the configuration once from .env, the environment and defaults.
func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		v := viper.GetViper()
		setDefaults(v)

		// Read from environment variables
		v.AutomaticEnv()

		instance = FromViper(v)
	})

	return instance
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_MODE", "debug")
	v.SetDefault("SERVER_READ_TIMEOUT", 30)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 120)
	v.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})

	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "replenish")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_CONCURRENT", 10)

	v.SetDefault("CACHE_ENABLED", false)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_HOST", "127.0.0.1")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_TTL_SECONDS", 300)
	v.SetDefault("CACHE_KEY_PREFIX", "replenish")

	v.SetDefault("ENGINE_BRANCHES", []string{"0101", "0103", "0104", "0105"})
	v.SetDefault("ENGINE_WINDOW_SIZE", 5)
	v.SetDefault("ENGINE_WINDOW_END", "")
	v.SetDefault("ENGINE_WORKERS", 4)
	v.SetDefault("ENGINE_BRANCH_TIMEOUT", "5m")
	v.SetDefault("ENGINE_SUMMARY_FILL_MISSING", true)
	v.SetDefault("ENGINE_DETAIL_FILL_MISSING", false)
	v.SetDefault("ENGINE_RUN_RETENTION", 50)

	v.SetDefault("DATA_SOURCE", "postgres")
	v.SetDefault("DATA_CSV_DIR", "./data/branches")
	v.SetDefault("DATA_TIMEOUT", "2m")
	v.SetDefault("DATA_DRIVE_FOLDER_ID", "")

	v.SetDefault("POLICY_SOURCE", "file")
	v.SetDefault("POLICY_PATH", "./data/policy.xlsx")
	v.SetDefault("POLICY_OBJECT_KEY", "policy/policy.xlsx")
	v.SetDefault("POLICY_DRIVE_FOLDER_ID", "")
	v.SetDefault("POLICY_DRIVE_FILE_NAME", "policy.xlsx")
	v.SetDefault("GOOGLE_CREDENTIALS_FILE", "credentials.json")
	v.SetDefault("POLICY_SHEET", "Plan1")

	v.SetDefault("MINIO_ENDPOINT", "localhost:9000")
	v.SetDefault("MINIO_ACCESS_KEY", "")
	v.SetDefault("MINIO_SECRET_KEY", "")
	v.SetDefault("MINIO_BUCKET", "replenish")
	v.SetDefault("MINIO_USE_SSL", false)
	v.SetDefault("MINIO_EXPORT_PREFIX", "exports")
	v.SetDefault("EXPORT_UPLOAD", false)

	v.SetDefault("EXPORT_OUTPUT_DIR", "./data/output")
	v.SetDefault("EXPORT_PREFIX", "recommendations")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Port:           v.GetString("SERVER_PORT"),
			Mode:           v.GetString("SERVER_MODE"),
			ReadTimeout:    v.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout:   v.GetInt("SERVER_WRITE_TIMEOUT"),
			AllowedOrigins: splitList(v.GetStringSlice("SERVER_ALLOWED_ORIGINS")),
		},
		Database: DatabaseConfig{
			Driver:        strings.ToLower(v.GetString("DB_DRIVER")),
			Host:          v.GetString("DB_HOST"),
			Port:          v.GetString("DB_PORT"),
			User:          v.GetString("DB_USER"),
			Password:      v.GetString("DB_PASSWORD"),
			DBName:        v.GetString("DB_NAME"),
			SSLMode:       v.GetString("DB_SSLMODE"),
			MaxOpenConns:  v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxConcurrent: v.GetInt64("DB_MAX_CONCURRENT"),
		},
		Cache: CacheConfig{
			Enabled:       v.GetBool("CACHE_ENABLED"),
			RedisURL:      v.GetString("REDIS_URL"),
			RedisHost:     v.GetString("REDIS_HOST"),
			RedisPort:     v.GetString("REDIS_PORT"),
			RedisPassword: v.GetString("REDIS_PASSWORD"),
			RedisDB:       v.GetInt("REDIS_DB"),
			TTLSeconds:    v.GetInt("CACHE_TTL_SECONDS"),
			KeyPrefix:     v.GetString("CACHE_KEY_PREFIX"),
		},
		Engine: EngineConfig{
			Branches:           splitList(v.GetStringSlice("ENGINE_BRANCHES")),
			WindowSize:         v.GetInt("ENGINE_WINDOW_SIZE"),
			WindowEnd:          v.GetString("ENGINE_WINDOW_END"),
			Workers:            v.GetInt("ENGINE_WORKERS"),
			BranchTimeout:      v.GetDuration("ENGINE_BRANCH_TIMEOUT"),
			SummaryFillMissing: v.GetBool("ENGINE_SUMMARY_FILL_MISSING"),
			DetailFillMissing:  v.GetBool("ENGINE_DETAIL_FILL_MISSING"),
			RunRetention:       v.GetInt("ENGINE_RUN_RETENTION"),
		},
		Data: DataConfig{
			Source:        strings.ToLower(v.GetString("DATA_SOURCE")),
			CSVDir:        v.GetString("DATA_CSV_DIR"),
			Timeout:       v.GetDuration("DATA_TIMEOUT"),
			DriveFolderID: v.GetString("DATA_DRIVE_FOLDER_ID"),
		},
		Policy: PolicyConfig{
			Source:          strings.ToLower(v.GetString("POLICY_SOURCE")),
			Path:            v.GetString("POLICY_PATH"),
			ObjectKey:       v.GetString("POLICY_OBJECT_KEY"),
			DriveFolderID:   v.GetString("POLICY_DRIVE_FOLDER_ID"),
			DriveFileName:   v.GetString("POLICY_DRIVE_FILE_NAME"),
			CredentialsFile: v.GetString("GOOGLE_CREDENTIALS_FILE"),
			Sheet:           v.GetString("POLICY_SHEET"),
		},
		Storage: StorageConfig{
			Endpoint:     v.GetString("MINIO_ENDPOINT"),
			AccessKey:    v.GetString("MINIO_ACCESS_KEY"),
			SecretKey:    v.GetString("MINIO_SECRET_KEY"),
			Bucket:       v.GetString("MINIO_BUCKET"),
			UseSSL:       v.GetBool("MINIO_USE_SSL"),
			ExportPrefix: v.GetString("MINIO_EXPORT_PREFIX"),
			Upload:       v.GetBool("EXPORT_UPLOAD"),
		},
		Export: ExportConfig{
			OutputDir: v.GetString("EXPORT_OUTPUT_DIR"),
			Prefix:    v.GetString("EXPORT_PREFIX"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
	}
}

// NewDefault returns the configuration defaults without reading the
// environment.
func NewDefault() *Config {
	v := viper.New()
	setDefaults(v)
	return FromViper(v)
}

// splitList accepts both repeated values and a single comma separated value,
// as environment variables only carry the latter.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
