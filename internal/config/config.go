package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything cartd needs to run.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Storage  StorageConfig  `yaml:"storage"`
	Cart     CartConfig     `yaml:"cart"`
	API      APIConfig      `yaml:"api"`
	Shipping ShippingConfig `yaml:"shipping"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Log      LogConfig      `yaml:"log"`
}

type HTTPConfig struct {
	Port            string        `yaml:"port"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// StorageConfig selects the slot backend. Path means the bolt file for
// "bolt", the directory for "file" and the DSN for "sqlite".
type StorageConfig struct {
	Backend       string `yaml:"backend"` // memory, bolt, file, redis, mongo, sqlite, postgres
	Path          string `yaml:"path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
	DatabaseURL   string `yaml:"database_url"`
}

type CartConfig struct {
	SlotKey       string `yaml:"slot_key"`
	SessionHeader string `yaml:"session_header"`
	// Watch reloads carts when another process changes their slot (file backend only).
	Watch bool `yaml:"watch"`
}

type APIConfig struct {
	BaseURL  string        `yaml:"base_url"`
	Timeout  time.Duration `yaml:"timeout"`
	TokenKey string        `yaml:"token_key"`
}

type ShippingConfig struct {
	Rule string `yaml:"rule"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

const DefaultShippingRule = `lower(address) contains "dhaka" ? 50 : 80`

func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:            "8080",
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Storage: StorageConfig{
			Backend:       "bolt",
			Path:          "cart.db",
			RedisAddr:     "localhost:6379",
			MongoURI:      "mongodb://localhost:27017",
			MongoDatabase: "cartdb",
		},
		Cart: CartConfig{
			SlotKey:       "cart",
			SessionHeader: "X-Session-ID",
		},
		API: APIConfig{
			BaseURL:  "http://localhost:8000/api",
			Timeout:  15 * time.Second,
			TokenKey: "access_token",
		},
		Shipping: ShippingConfig{Rule: DefaultShippingRule},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "checkout-outbox",
			GroupID: "cart-store",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads the YAML file at path on top of the defaults, then applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.HTTP.Port = getEnv("HTTP_PORT", c.HTTP.Port)
	c.Storage.Backend = getEnv("CART_STORAGE_BACKEND", c.Storage.Backend)
	c.Storage.Path = getEnv("CART_STORAGE_PATH", c.Storage.Path)
	c.Storage.RedisAddr = getEnv("REDIS_ADDR", c.Storage.RedisAddr)
	c.Storage.RedisPassword = getEnv("REDIS_PASSWORD", c.Storage.RedisPassword)
	c.Storage.MongoURI = getEnv("MONGO_URI", c.Storage.MongoURI)
	c.Storage.MongoDatabase = getEnv("MONGO_DB_NAME", c.Storage.MongoDatabase)
	c.Storage.DatabaseURL = getEnv("DATABASE_URL", c.Storage.DatabaseURL)
	c.API.BaseURL = getEnv("API_BASE_URL", c.API.BaseURL)
	c.Shipping.Rule = getEnv("SHIPPING_RULE", c.Shipping.Rule)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)

	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		c.Kafka.Brokers = strings.Split(brokers, ",")
		c.Kafka.Enabled = true
	}
	if watch := getEnv("CART_WATCH", ""); watch != "" {
		if v, err := strconv.ParseBool(watch); err == nil {
			c.Cart.Watch = v
		}
	}
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Backend {
	case "memory", "bolt", "file", "redis", "mongo", "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}
	if c.Cart.SlotKey == "" {
		errs = append(errs, errors.New("cart.slot_key must not be empty"))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers must not be empty when kafka is enabled"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
