package configuration

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Database    DatabaseConfig
	Backend     BackendConfig
	ClamAV      ClamAVConfig
	Server      ServerConfig
	NATSURL     string
	KeycloakURL string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// BackendConfig selects and configures the storage backend. Type is one of
// local, s3 or minio.
type BackendConfig struct {
	Type      string
	LocalPath string
	MinIO     MinIOConfig
	S3        S3Config
}

type MinIOConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	BucketName string
	UseSSL     bool
}

type S3Config struct {
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Endpoint  string // optional custom endpoint, e.g. for MinIO-compatible services
}

type ClamAVConfig struct {
	Enabled bool
	Address string
	Timeout time.Duration
}

type ServerConfig struct {
	Port string
}

func Load() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "fileguard"),
			Password: getEnv("DB_PASSWORD", "fileguard"),
			DBName:   getEnv("DB_NAME", "fileguard"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Backend: BackendConfig{
			Type:      getEnv("STORAGE_BACKEND", "local"),
			LocalPath: getEnv("STORAGE_LOCAL_PATH", "./storage"),
			MinIO: MinIOConfig{
				Endpoint:   getEnv("MINIO_ENDPOINT", "localhost:9000"),
				AccessKey:  getEnv("MINIO_ACCESS_KEY", "minioadmin"),
				SecretKey:  getEnv("MINIO_SECRET_KEY", "minioadmin"),
				BucketName: getEnv("MINIO_BUCKET", "fileguard-files"),
				UseSSL:     getEnv("MINIO_USE_SSL", "false") == "true",
			},
			S3: S3Config{
				Bucket:    getEnv("S3_BUCKET", "fileguard-files"),
				Region:    getEnv("AWS_REGION", "us-east-1"),
				AccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
				SecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
				Endpoint:  getEnv("S3_ENDPOINT_URL", ""),
			},
		},
		ClamAV: ClamAVConfig{
			Enabled: getEnv("CLAMAV_ENABLED", "true") == "true",
			Address: getEnv("CLAMAV_URL", "tcp://localhost:3310"),
			Timeout: time.Duration(getEnvInt("CLAMAV_TIMEOUT_SECONDS", 120)) * time.Second,
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
		},
		NATSURL:     getEnv("NATS_URL", "nats://localhost:4222"),
		KeycloakURL: getEnv("KEYCLOAK_URL", "http://localhost:8081/realms/fileguard"),
	}
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
