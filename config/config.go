package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port string

	DBDriver   string // postgres or sqlite
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	SQLitePath string

	PublicAppURL        string
	VercelURL           string
	NextPublicVercelURL string

	AdminEmail      string
	MailTransport   string // sendgrid, smtp or log
	SendGridAPIKey  string
	EmailSender     string
	EmailSenderName string
	SMTPHost        string
	SMTPPort        string
	Password        string // SMTP Password

	ApprovalSecret     string
	ApprovalTokenTTL   time.Duration
	TokenPruneSchedule string

	AssetDir     string
	AssetBaseURL string
}

// LoadConfig initializes configuration from environment variables or defaults
func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found. Using system environment variables.")
	}

	cfg := &Config{
		Port: getEnv("PORT", "3000"),

		DBDriver:   getEnv("DB_DRIVER", "postgres"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "certvault"),
		DBPort:     getEnv("DB_PORT", "5432"),
		SQLitePath: getEnv("SQLITE_PATH", "certvault.db"),

		PublicAppURL:        getEnv("PUBLIC_APP_URL", ""),
		VercelURL:           getEnv("VERCEL_URL", ""),
		NextPublicVercelURL: getEnv("NEXT_PUBLIC_VERCEL_URL", ""),

		AdminEmail:      getEnv("ADMIN_EMAIL", ""),
		MailTransport:   getEnv("MAIL_TRANSPORT", "sendgrid"),
		SendGridAPIKey:  getEnv("SENDGRID_API_KEY", ""),
		EmailSender:     getEnv("EMAIL_SENDER", "no-reply@localhost"),
		EmailSenderName: getEnv("EMAIL_SENDER_NAME", "Certificate Desk"),
		SMTPHost:        getEnv("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:        getEnv("SMTP_PORT", "587"),
		Password:        getEnv("PASSWORD", ""),

		ApprovalSecret:     getEnv("APPROVAL_SECRET", "defaultSecret"),
		ApprovalTokenTTL:   getEnvDuration("APPROVAL_TOKEN_TTL", 72*time.Hour),
		TokenPruneSchedule: getEnv("TOKEN_PRUNE_SCHEDULE", "@hourly"),

		AssetDir:     getEnv("ASSET_DIR", "./public"),
		AssetBaseURL: getEnv("ASSET_BASE_URL", ""),
	}

	// Validate critical configuration
	if cfg.ApprovalSecret == "defaultSecret" {
		log.Println("Warning: Using default APPROVAL_SECRET. Approval links can be forged; update it in your environment.")
	}
	if cfg.AdminEmail == "" {
		log.Println("Warning: ADMIN_EMAIL is empty. Locked actions cannot request approval.")
	}
	if cfg.MailTransport == "sendgrid" && cfg.SendGridAPIKey == "" {
		log.Println("Warning: MAIL_TRANSPORT is sendgrid but SENDGRID_API_KEY is empty.")
	}

	return cfg
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt retrieves an environment variable as an integer or returns the default integer value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Error converting environment variable %s to int: %v", key, err)
		return defaultValue
	}
	return intValue
}

// getEnvDuration accepts Go duration strings ("72h") or a plain number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs := getEnvInt(key, -1); secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	log.Printf("Error converting environment variable %s to duration", key)
	return defaultValue
}
