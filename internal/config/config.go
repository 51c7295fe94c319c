package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	AdminJWTSecret string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Lead store
	LeadStore             string
	DatabaseURL           string
	SheetsSpreadsheetID   string
	SheetsWorksheet       string
	GoogleCredentialsFile string

	// Routing policy
	MaxAttempts       int
	ReplyDetection    string
	CycleConcurrency  int
	GenerationTimeout time.Duration
	CycleLockBackend  string
	CycleLockDir      string
	CycleLockTTL      time.Duration
	LeadLockTTL       time.Duration

	// Language model
	LLMProvider         string
	LLMFallbackProvider string
	LLMMaxTokens        int
	LLMTemperature      float64
	BedrockModelID      string
	GeminiAPIKey        string
	GeminiModelID       string
	OpenAIAPIKey        string
	OpenAIModelID       string
	OpenAIBaseURL       string

	// Email transport
	EmailProvider     string
	SendGridAPIKey    string
	SendersFile       string
	SenderEmail       string
	SenderName        string
	SenderSignature   string
	IMAPAddr          string
	IMAPPassword      string
	ReplyLookback     time.Duration
	ReplyFetchLimit   int
	AgencyName        string
	AgencyDescription string
	AgencyServices    []string
	CalendarLink      string

	// Briefing
	PortfolioFile      string
	PortfolioLimit     int
	CompanyCacheTTL    time.Duration
	ScrapeTimeout      time.Duration
	ScrapeRatePerHost  float64
	ScrapeMaxTextChars int

	// Triggers and scheduling
	CycleSchedule   string
	ReplySchedule   string
	UseMemoryQueue  bool
	TriggerQueueURL string

	// Cycle ledger
	CyclesTable        string
	CycleArchiveBucket string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		LeadStore:             strings.ToLower(strings.TrimSpace(getEnv("LEAD_STORE", "sheets"))),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		SheetsSpreadsheetID:   getEnv("SHEETS_SPREADSHEET_ID", ""),
		SheetsWorksheet:       getEnv("SHEETS_WORKSHEET", "Leads"),
		GoogleCredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),

		MaxAttempts:       getEnvAsInt("OUTREACH_MAX_ATTEMPTS", 3),
		ReplyDetection:    strings.ToLower(strings.TrimSpace(getEnv("OUTREACH_REPLY_DETECTION", "status"))),
		CycleConcurrency:  getEnvAsInt("OUTREACH_CYCLE_CONCURRENCY", 1),
		GenerationTimeout: getEnvAsDuration("OUTREACH_GENERATION_TIMEOUT", 90*time.Second),
		CycleLockBackend:  strings.ToLower(strings.TrimSpace(getEnv("OUTREACH_CYCLE_LOCK", "auto"))),
		CycleLockDir:      getEnv("OUTREACH_LOCK_DIR", "/tmp/outreach-locks"),
		CycleLockTTL:      getEnvAsDuration("OUTREACH_CYCLE_LOCK_TTL", 30*time.Minute),
		LeadLockTTL:       getEnvAsDuration("OUTREACH_LEAD_LOCK_TTL", 5*time.Minute),

		LLMProvider:         strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "bedrock"))),
		LLMFallbackProvider: strings.ToLower(strings.TrimSpace(getEnv("LLM_FALLBACK_PROVIDER", ""))),
		LLMMaxTokens:        getEnvAsInt("LLM_MAX_TOKENS", 1024),
		LLMTemperature:      getEnvAsFloat("LLM_TEMPERATURE", 0.7),
		BedrockModelID:      getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:       getEnv("GEMINI_MODEL_ID", "gemini-1.5-flash"),
		OpenAIAPIKey:        getEnv("OPENAI_API_KEY", ""),
		OpenAIModelID:       getEnv("OPENAI_MODEL_ID", "gpt-4o-mini"),
		OpenAIBaseURL:       getEnv("OPENAI_BASE_URL", ""),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendersFile:       getEnv("OUTREACH_SENDERS_FILE", ""),
		SenderEmail:       getEnv("SENDER_EMAIL", ""),
		SenderName:        getEnv("SENDER_NAME", ""),
		SenderSignature:   getEnv("SENDER_SIGNATURE", ""),
		IMAPAddr:          getEnv("IMAP_ADDR", "imap.gmail.com:993"),
		IMAPPassword:      getEnv("IMAP_PASSWORD", ""),
		ReplyLookback:     getEnvAsDuration("REPLY_LOOKBACK", 72*time.Hour),
		ReplyFetchLimit:   getEnvAsInt("REPLY_FETCH_LIMIT", 50),
		AgencyName:        getEnv("AGENCY_NAME", ""),
		AgencyDescription: getEnv("AGENCY_DESCRIPTION", ""),
		AgencyServices:    getEnvAsList("AGENCY_SERVICES"),
		CalendarLink:      getEnv("CALENDAR_LINK", ""),

		PortfolioFile:      getEnv("PORTFOLIO_FILE", ""),
		PortfolioLimit:     getEnvAsInt("PORTFOLIO_LIMIT", 2),
		CompanyCacheTTL:    getEnvAsDuration("COMPANY_CACHE_TTL", 7*24*time.Hour),
		ScrapeTimeout:      getEnvAsDuration("SCRAPE_TIMEOUT", 10*time.Second),
		ScrapeRatePerHost:  getEnvAsFloat("SCRAPE_RATE_PER_HOST", 0.5),
		ScrapeMaxTextChars: getEnvAsInt("SCRAPE_MAX_TEXT_CHARS", 1000),

		CycleSchedule:   getEnv("CYCLE_SCHEDULE", "*/30 * * * *"),
		ReplySchedule:   getEnv("REPLY_SCHEDULE", "*/10 * * * *"),
		UseMemoryQueue:  getEnvAsBool("USE_MEMORY_QUEUE", false),
		TriggerQueueURL: getEnv("TRIGGER_QUEUE_URL", ""),

		CyclesTable:        getEnv("CYCLES_TABLE", ""),
		CycleArchiveBucket: getEnv("CYCLE_ARCHIVE_BUCKET", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping empty items.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
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
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
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
