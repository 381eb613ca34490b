package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all runtime settings, loaded from environment variables.
// Callers are expected to run godotenv.Load() before Load().
type Config struct {
	Port  string `env:"PORT" envDefault:"8080"`
	Debug bool   `env:"DEBUG" envDefault:"false"`

	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL"`

	// Studio civil time. Bookings store naive local date/time strings, so
	// every duration calculation has to happen in this zone.
	Timezone string `env:"STUDIO_TIMEZONE" envDefault:"Europe/Moscow"`

	// Google Sheets is the slot availability source and the event/audit log.
	GoogleCredentialsFile string `env:"GOOGLE_SERVICE_ACCOUNT_FILE" envDefault:"service_account.json"`
	SpreadsheetID         string `env:"GOOGLE_SHEET_ID,required"`

	FirebaseCredentialsFile string   `env:"FIREBASE_CREDENTIALS_PATH" envDefault:"./firebase-service-account.json"`
	AdminUIDs               []string `env:"ADMIN_UIDS" envSeparator:","`

	MidtransServerKey    string `env:"MIDTRANS_SERVER_KEY"`
	MidtransClientKey    string `env:"MIDTRANS_CLIENT_KEY"`
	MidtransIsProduction bool   `env:"MIDTRANS_IS_PRODUCTION" envDefault:"false"`

	// Public base URL of this service, used for payment return links.
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`

	// Conversation-layer gateway that delivers reminders to users.
	NotifierBaseURL string `env:"NOTIFIER_BASE_URL" envDefault:"http://notifier:3000"`
	NotifierAPIKey  string `env:"NOTIFIER_API_KEY"`

	// Trainer calendars, "Name=calendarID;Name=calendarID".
	TrainerCalendarsRaw string `env:"TRAINER_CALENDARS"`

	SMTPHost   string `env:"SMTP_HOST"`
	SMTPPort   string `env:"SMTP_PORT"`
	SMTPUser   string `env:"SMTP_USER"`
	SMTPPass   string `env:"SMTP_PASS"`
	EmailFrom  string `env:"EMAIL_FROM"`
	AdminEmail string `env:"ADMIN_EMAIL"`

	WorkerTick time.Duration `env:"WORKER_TICK" envDefault:"1m"`
}

// placeholders that ship in .env.example; treated the same as unset so the
// service fails closed instead of running against fabricated data.
var placeholderValues = map[string]bool{
	"":              true,
	"changeme":      true,
	"your-sheet-id": true,
}

// Load parses the environment into a Config and validates the settings that
// must not fall back to defaults in production.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if placeholderValues[strings.TrimSpace(cfg.SpreadsheetID)] {
		return nil, fmt.Errorf("GOOGLE_SHEET_ID is unset or a placeholder; refusing to start without a real schedule source")
	}
	if placeholderValues[strings.TrimSpace(cfg.DatabaseURL)] {
		return nil, fmt.Errorf("DATABASE_URL is unset or a placeholder")
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid STUDIO_TIMEZONE %q: %w", cfg.Timezone, err)
	}

	return cfg, nil
}

// Location returns the studio timezone. Load has already validated it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// TrainerCalendars parses TRAINER_CALENDARS into a name -> calendar ID map.
func (c *Config) TrainerCalendars() map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(c.TrainerCalendarsRaw, ";") {
		name, id, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || name == "" || id == "" {
			continue
		}
		out[name] = id
	}
	return out
}

// IsAdmin reports whether the given auth UID is in the admin allowlist.
func (c *Config) IsAdmin(uid string) bool {
	for _, admin := range c.AdminUIDs {
		if admin != "" && admin == uid {
			return true
		}
	}
	return false
}
