package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Session store
	SessionCacheTTL       time.Duration
	SessionDurableBackend string // postgres, dynamodb, memory
	SessionsTable         string
	LockBackend           string // local, redis
	LockTTL               time.Duration
	LockWait              time.Duration

	// Turn budgets
	TurnTimeout     time.Duration
	NLUTimeout      time.Duration
	CalendarTimeout time.Duration
	StoreTimeout    time.Duration
	HistoryWindow   int

	// NLU oracle
	NLUProvider    string // bedrock, gemini, keyword
	BedrockModelID string
	GeminiAPIKey   string
	GeminiModelID  string

	// Calendar and availability
	CalendarBackend         string // postgres, google
	GoogleCredentialsFile   string
	ClinicTimezone          string
	SlotStep                time.Duration
	AvailabilityHorizonDays int
	SameDayAlternatives     int
	OtherDayAlternatives    int
	// BlockBusyOverlaps removes every slot starting inside a busy interval.
	// It defaults on for Google Calendar, whose free/busy API merges
	// back-to-back events into one period.
	BlockBusyOverlaps bool

	// Reference catalog
	CatalogFile string

	// Hand-off
	HandoffLinkBaseURL       string
	HandoffSchedulerPhone    string
	HandoffNotificationEmail string
	EmailProvider            string // sendgrid, ses
	SendGridAPIKey           string
	EmailFrom                string
	EmailFromName            string
	EmailReplyTo             string

	AdminJWTSecret     string
	CORSAllowedOrigins []string
	TurnRateLimit      float64 // requests per second per client IP, 0 disables
	TurnRateBurst      int

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Queue transport
	TurnQueueURL   string
	UseMemoryQueue bool
	WorkerCount    int
}

// Load reads configuration from environment variables
func Load() *Config {
	calendarBackend := strings.ToLower(strings.TrimSpace(getEnv("CALENDAR_BACKEND", "postgres")))
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		SessionCacheTTL:       getEnvAsDuration("SESSION_CACHE_TTL", 24*time.Hour),
		SessionDurableBackend: strings.ToLower(strings.TrimSpace(getEnv("SESSION_DURABLE_BACKEND", "postgres"))),
		SessionsTable:         getEnv("SESSIONS_TABLE", "booking_sessions"),
		LockBackend:           strings.ToLower(strings.TrimSpace(getEnv("LOCK_BACKEND", "local"))),
		LockTTL:               getEnvAsDuration("LOCK_TTL", 30*time.Second),
		LockWait:              getEnvAsDuration("LOCK_WAIT", 10*time.Second),

		TurnTimeout:     getEnvAsDuration("TURN_TIMEOUT", 20*time.Second),
		NLUTimeout:      getEnvAsDuration("NLU_TIMEOUT", 8*time.Second),
		CalendarTimeout: getEnvAsDuration("CALENDAR_TIMEOUT", 5*time.Second),
		StoreTimeout:    getEnvAsDuration("STORE_TIMEOUT", 3*time.Second),
		HistoryWindow:   getEnvAsInt("HISTORY_WINDOW", 10),

		NLUProvider:    strings.ToLower(strings.TrimSpace(getEnv("NLU_PROVIDER", "keyword"))),
		BedrockModelID: getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:  getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),

		CalendarBackend:         calendarBackend,
		GoogleCredentialsFile:   getEnv("GOOGLE_CREDENTIALS_FILE", ""),
		ClinicTimezone:          getEnv("CLINIC_TIMEZONE", "America/Sao_Paulo"),
		SlotStep:                getEnvAsDuration("SLOT_STEP", 30*time.Minute),
		AvailabilityHorizonDays: getEnvAsInt("AVAILABILITY_HORIZON_DAYS", 14),
		SameDayAlternatives:     getEnvAsInt("SAME_DAY_ALTERNATIVES", 8),
		OtherDayAlternatives:    getEnvAsInt("OTHER_DAY_ALTERNATIVES", 3),
		BlockBusyOverlaps:       getEnvAsBool("AVAILABILITY_BLOCK_OVERLAPS", calendarBackend == "google"),

		CatalogFile: getEnv("CATALOG_FILE", ""),

		HandoffLinkBaseURL:       getEnv("HANDOFF_LINK_BASE_URL", "https://wa.me"),
		HandoffSchedulerPhone:    getEnv("HANDOFF_SCHEDULER_PHONE", ""),
		HandoffNotificationEmail: getEnv("HANDOFF_NOTIFICATION_EMAIL", ""),
		EmailProvider:            strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "sendgrid"))),
		SendGridAPIKey:           getEnv("SENDGRID_API_KEY", ""),
		EmailFrom:                getEnv("EMAIL_FROM", ""),
		EmailFromName:            getEnv("EMAIL_FROM_NAME", "Clinic Assistant"),
		EmailReplyTo:             getEnv("EMAIL_REPLY_TO", ""),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "")),
		TurnRateLimit:      getEnvAsFloat("TURN_RATE_LIMIT", 5),
		TurnRateBurst:      getEnvAsInt("TURN_RATE_BURST", 10),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		TurnQueueURL:   getEnv("TURN_QUEUE_URL", ""),
		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:    getEnvAsInt("WORKER_COUNT", 2),
	}
}

// Location returns the clinic time zone, falling back to UTC when the name is unknown.
func (c *Config) Location() *time.Location {
	if c == nil || strings.TrimSpace(c.ClinicTimezone) == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
