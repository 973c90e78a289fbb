package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

// APIURLEnv overrides RekaTrack.APIBaseURL when set.
const APIURLEnv = "REKATRACK_API"

const DefaultAPIBaseURL = "https://rekatrack.ptrekaindo.co.id/api"

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Log       LogConfig       `yaml:"log"`
	RekaTrack RekaTrackConfig `yaml:"rekatrack"`
	Agent     AgentConfig     `yaml:"agent"`
	Device    DeviceConfig    `yaml:"device"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	CourierEventsTopicName string `yaml:"courier_events_topic_name"`
	ConsumerGroup          string `yaml:"consumer_group"`
}

type RedisConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	KeyPrefix string `yaml:"key_prefix"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

type RekaTrackConfig struct {
	APIBaseURL       string `yaml:"api_base_url"`
	RequestTimeoutMs int    `yaml:"request_timeout_ms"`

	DetailCacheTTLSeconds int `yaml:"detail_cache_ttl_seconds"`

	CompletionTimeoutSeconds int `yaml:"completion_timeout_seconds"`

	ReportRateLimitPerMinute int `yaml:"report_rate_limit_per_minute"`
}

type AgentConfig struct {
	// BaseURL is where cmd/courier reaches the tracer agent control API.
	BaseURL     string `yaml:"base_url"`
	HTTPAddr    string `yaml:"http_addr"`
	SwaggerPath string `yaml:"swagger_path"`

	SampleIntervalSeconds   int     `yaml:"sample_interval_seconds"`
	DistanceIntervalMeters  float64 `yaml:"distance_interval_meters"`
	DeferredDistanceMeters  float64 `yaml:"deferred_distance_meters"`
	DeferredIntervalSeconds int     `yaml:"deferred_interval_seconds"`
}

// DeviceConfig описывает "устройство" курьера: разрешения и стартовую точку
// для fake-провайдера геолокации.
type DeviceConfig struct {
	ForegroundPermission string  `yaml:"foreground_permission"`
	BackgroundPermission string  `yaml:"background_permission"`
	Latitude             float64 `yaml:"latitude"`
	Longitude            float64 `yaml:"longitude"`
	StepMeters           float64 `yaml:"step_meters"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	if v := os.Getenv(APIURLEnv); v != "" {
		config.RekaTrack.APIBaseURL = v
	}
	if config.RekaTrack.APIBaseURL == "" {
		config.RekaTrack.APIBaseURL = DefaultAPIBaseURL
	}

	return &config, nil
}

// PostgresDSN returns "" when the journal database is not configured.
func (c *Config) PostgresDSN() string {
	if c.Database.Host == "" {
		return ""
	}
	sslMode := c.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.Username, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.DBName, sslMode)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// KafkaBrokers returns nil when Kafka is not configured.
func (c *Config) KafkaBrokers() []string {
	if c.Kafka.Host == "" {
		return nil
	}
	return []string{fmt.Sprintf("%s:%d", c.Kafka.Host, c.Kafka.Port)}
}
