package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything main.go needs to wire the service.
type Config struct {
	Port        string
	Environment string

	// Storage
	UseMemoryStore         bool
	DatabaseURL            string
	DBUser                 string
	DBPass                 string
	DBName                 string
	DBHost                 string
	InstanceConnectionName string
	SQLitePath             string
	StorageTimeout         time.Duration

	// Auth
	JWTSecret string

	// WhatsApp notifications
	TwilioAccountSID   string
	TwilioAuthToken    string
	TwilioWhatsAppFrom string

	// Event export
	RabbitMQURL      string
	RabbitMQExchange string

	NotificationWorkers   int
	NotificationQueueSize int

	PolicyFile string
	Policy     Policy
}

// Load reads .env (when present) and the environment, then the scheduling policy file.
func Load() (*Config, error) {
	if os.Getenv("INSTANCE_CONNECTION_NAME") == "" {
		if err := godotenv.Load(".env"); err != nil {
			if err := godotenv.Load("environments/.env.development"); err != nil {
				log.Println("⚠️  No .env file found - checking environment variables")
			}
		}
	}

	cfg := &Config{
		Port:                   getEnv("PORT", "8080"),
		Environment:            getEnv("ENVIRONMENT", "development"),
		UseMemoryStore:         os.Getenv("USE_MEMORY_STORE") == "true",
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		DBUser:                 getEnv("DB_USER", "postgres"),
		DBPass:                 os.Getenv("DB_PASS"),
		DBName:                 getEnv("DB_NAME", "truckpe"),
		DBHost:                 getEnv("DB_HOST", "localhost"),
		InstanceConnectionName: os.Getenv("INSTANCE_CONNECTION_NAME"),
		SQLitePath:             os.Getenv("SQLITE_PATH"),
		StorageTimeout:         getDuration("STORAGE_TIMEOUT", 5*time.Second),
		JWTSecret:              os.Getenv("JWT_SECRET"),
		TwilioAccountSID:       os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:        os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioWhatsAppFrom:     os.Getenv("TWILIO_WHATSAPP_FROM"),
		RabbitMQURL:            os.Getenv("RABBITMQ_URL"),
		RabbitMQExchange:       os.Getenv("RABBITMQ_EXCHANGE"),
		NotificationWorkers:    getInt("NOTIFICATION_WORKERS", 4),
		NotificationQueueSize:  getInt("NOTIFICATION_QUEUE_SIZE", 256),
		PolicyFile:             os.Getenv("SCHEDULING_POLICY_FILE"),
	}

	policy, err := LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return nil, err
	}
	cfg.Policy = policy

	if cfg.JWTSecret == "" {
		log.Println("⚠️  JWT_SECRET not set - API authentication is disabled")
	}
	if !cfg.TwilioConfigured() {
		log.Println("⚠️  Twilio credentials not found - notifications will only be logged")
	}

	return cfg, nil
}

// TwilioConfigured reports whether WhatsApp delivery can be enabled.
func (c *Config) TwilioConfigured() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioWhatsAppFrom != ""
}

// StorageType describes the selected backend for logs and /health.
func (c *Config) StorageType() string {
	switch {
	case c.UseMemoryStore:
		return "In-Memory (Testing)"
	case c.DatabaseURL != "" || c.InstanceConnectionName != "" || c.SQLitePath == "":
		return "PostgreSQL Database"
	default:
		return "SQLite Database"
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		log.Printf("⚠️  Invalid %s=%q, using %d", key, raw, fallback)
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		log.Printf("⚠️  Invalid %s=%q, using %s", key, raw, fallback)
		return fallback
	}
	return v
}
