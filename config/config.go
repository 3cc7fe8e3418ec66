package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config stores the configuration for both the agent and the collector.
// Values come from the environment, optionally seeded from a .env file.
type Config struct {
	// Agent settings.
	URL        string // Collector endpoint events are POSTed to
	Secret     string // Shared HMAC signing secret
	StatusFile string // Player now-playing status file watched by the agent
	EnvFile    string // Path of the .env file (watched for live reconfiguration)

	// Logging.
	LogLevel      string
	LogFile       string
	LogMaxSize    int
	LogMaxBackups int
	LogMaxAge     int

	// Collector settings.
	ListenAddr string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	MinioEnabled   bool
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	AdminUsername string
	AdminPassword string
	JWTSecret     string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override variables already present in the
	// environment.
	envFile := getEnv("PLAYLOG_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil {
		log.Println("No .env file found, relying on existing environment variables and defaults.")
	}

	return &Config{
		URL:        os.Getenv("PLAYLOG_URL"),
		Secret:     os.Getenv("PLAYLOG_SECRET"),
		StatusFile: getEnv("PLAYLOG_STATUS_FILE", "/tmp/playlog-status.json"),
		EnvFile:    envFile,

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       os.Getenv("LOG_FILE"),
		LogMaxSize:    getEnvInt("LOG_MAX_SIZE", 50),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
		LogMaxAge:     getEnvInt("LOG_MAX_AGE", 14),

		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),
		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // no hardcoded default for passwords
		DBName:     getEnv("DB_NAME", "playlog"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MinioEnabled:   getEnvBool("MINIO_ENABLED", false),
		MinioEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "playlog-events"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
	}
}

// Endpoint holds the two values the publishing pipeline needs. Both are
// required; a missing value aborts pipeline startup.
type Endpoint struct {
	URL    string
	Secret string
}

// Endpoint extracts the delivery endpoint from the config, validating that
// both values are present.
func (c *Config) Endpoint() (Endpoint, error) {
	if c.URL == "" {
		return Endpoint{}, fmt.Errorf("PLAYLOG_URL is not set")
	}
	if c.Secret == "" {
		return Endpoint{}, fmt.Errorf("PLAYLOG_SECRET is not set")
	}
	return Endpoint{URL: c.URL, Secret: c.Secret}, nil
}

// ReadEndpoint re-reads the delivery endpoint from the .env file without
// touching the process environment. Used on live reconfiguration.
func ReadEndpoint(envFile string) (Endpoint, error) {
	values, err := godotenv.Read(envFile)
	if err != nil {
		return Endpoint{}, fmt.Errorf("read %s: %w", envFile, err)
	}
	ep := Endpoint{URL: values["PLAYLOG_URL"], Secret: values["PLAYLOG_SECRET"]}
	if ep.URL == "" {
		return Endpoint{}, fmt.Errorf("PLAYLOG_URL is not set in %s", envFile)
	}
	if ep.Secret == "" {
		return Endpoint{}, fmt.Errorf("PLAYLOG_SECRET is not set in %s", envFile)
	}
	return ep, nil
}
