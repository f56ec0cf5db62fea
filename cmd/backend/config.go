package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Storage   StorageConfig
	NATS      NATSConfig
	Browser   BrowserConfig
	Visual    VisualConfig
	Generator GeneratorConfig
	Worker    WorkerConfig
	Log       LogConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
}

// StorageConfig holds blob storage configuration.
type StorageConfig struct {
	Type            string        // "local" or "s3"
	BaseDir         string        // For local: "./artifacts"
	S3Bucket        string        // For S3: bucket name
	S3Region        string        // For S3: AWS region
	S3PresignExpiry time.Duration // Presigned URL expiration
}

// NATSConfig holds broker configuration for dispatch and run events.
type NATSConfig struct {
	URL             string
	DispatchSubject string
	DispatchGroup   string
	EventsPrefix    string
}

// BrowserConfig holds headless browser configuration.
type BrowserConfig struct {
	Headless      bool
	ActionTimeout time.Duration
	CrawlTimeout  time.Duration
}

// VisualConfig holds visual regression configuration.
type VisualConfig struct {
	Threshold float64
}

// GeneratorConfig holds test case generation configuration.
type GeneratorConfig struct {
	BedrockRegion string
	BedrockModel  string
	MaxTokens     int
}

// WorkerConfig holds run worker configuration.
type WorkerConfig struct {
	MaxWorkers int
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.user", "root")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.database", "iqap_runner")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.base_dir", "./artifacts")
	v.SetDefault("storage.s3_bucket", "")
	v.SetDefault("storage.s3_region", "us-east-1")
	v.SetDefault("storage.s3_presign_expiry", "15m")

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.dispatch_subject", "iqap.dispatch")
	v.SetDefault("nats.dispatch_group", "iqap-workers")
	v.SetDefault("nats.events_prefix", "iqap.runs")

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.action_timeout", "10s")
	v.SetDefault("browser.crawl_timeout", "30s")

	v.SetDefault("visual.threshold", 0.99)

	v.SetDefault("generator.bedrock_region", "us-east-1")
	v.SetDefault("generator.bedrock_model", "anthropic.claude-3-5-sonnet-20241022-v2:0")
	v.SetDefault("generator.max_tokens", 4096)

	v.SetDefault("worker.max_workers", 4)

	v.SetDefault("log.level", "info")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults
	}

	var config Config

	config.Server.Host = v.GetString("server.host")
	config.Server.Port = v.GetInt("server.port")
	config.Server.ReadTimeout = v.GetDuration("server.read_timeout")
	config.Server.WriteTimeout = v.GetDuration("server.write_timeout")

	config.Database.Host = v.GetString("database.host")
	config.Database.Port = v.GetInt("database.port")
	config.Database.User = v.GetString("database.user")
	config.Database.Password = v.GetString("database.password")
	config.Database.Database = v.GetString("database.database")
	config.Database.MaxOpenConns = v.GetInt("database.max_open_conns")
	config.Database.MaxIdleConns = v.GetInt("database.max_idle_conns")

	config.Storage.Type = v.GetString("storage.type")
	config.Storage.BaseDir = v.GetString("storage.base_dir")
	config.Storage.S3Bucket = v.GetString("storage.s3_bucket")
	config.Storage.S3Region = v.GetString("storage.s3_region")
	config.Storage.S3PresignExpiry = v.GetDuration("storage.s3_presign_expiry")

	config.NATS.URL = v.GetString("nats.url")
	config.NATS.DispatchSubject = v.GetString("nats.dispatch_subject")
	config.NATS.DispatchGroup = v.GetString("nats.dispatch_group")
	config.NATS.EventsPrefix = v.GetString("nats.events_prefix")

	config.Browser.Headless = v.GetBool("browser.headless")
	config.Browser.ActionTimeout = v.GetDuration("browser.action_timeout")
	config.Browser.CrawlTimeout = v.GetDuration("browser.crawl_timeout")

	config.Visual.Threshold = v.GetFloat64("visual.threshold")

	config.Generator.BedrockRegion = v.GetString("generator.bedrock_region")
	config.Generator.BedrockModel = v.GetString("generator.bedrock_model")
	config.Generator.MaxTokens = v.GetInt("generator.max_tokens")

	config.Worker.MaxWorkers = v.GetInt("worker.max_workers")

	config.Log.Level = v.GetString("log.level")

	return &config, nil
}
