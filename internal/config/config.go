// Package config handles application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"jobfinder_bot/internal/model"
)

// Supported subscriber store drivers.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	StoreDriver      string
	DatabasePath     string
	SubscribersPath  string
	LogLevel         string
	AllowedUsers     []int64

	DigestTime DigestTime
	Location   *time.Location

	Sources          []model.FeedSource
	FetchTimeout     time.Duration
	FetchConcurrency int
	SendRate         float64

	GeminiAPIKey string
	GeminiModel  string

	Limits Limits
}

// DigestTime is a wall-clock time of day.
type DigestTime struct {
	Hour   int
	Minute int
}

func (t DigestTime) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ParseDigestTime parses an "HH:MM" string.
func ParseDigestTime(s string) (DigestTime, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return DigestTime{}, fmt.Errorf("invalid time %q, use HH:MM", s)
	}
	return DigestTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// RenderLimits bounds the size of one rendered digest.
type RenderLimits struct {
	MaxEntries  int
	MaxTitleLen int
}

// Limits collects the size constants used by interactive and scheduled digests.
type Limits struct {
	Interactive   RenderLimits
	Daily         RenderLimits
	MaxSections   int
	MaxMessageLen int
}

// DefaultLimits returns the limits used unless overridden.
func DefaultLimits() Limits {
	return Limits{
		Interactive:   RenderLimits{MaxEntries: 5, MaxTitleLen: 150},
		Daily:         RenderLimits{MaxEntries: 3, MaxTitleLen: 100},
		MaxSections:   0,
		MaxMessageLen: 4096,
	}
}

// DefaultSources is the canonical feed list used when FEEDS_FILE is not set.
func DefaultSources() []model.FeedSource {
	return []model.FeedSource{
		{Key: "freejobalert", Name: "FreeJobAlert", URL: "https://www.freejobalert.com/feed/"},
		{Key: "sarkariexam", Name: "Sarkari Exam", URL: "https://www.sarkariexam.com/feed"},
		{Key: "jagranjosh", Name: "Jagran Josh Govt Jobs", URL: "https://www.jagranjosh.com/rss/jagranjosh/govt_jobs.xml"},
		{Key: "indgovtjobs", Name: "IndGovtJobs", URL: "https://www.indgovtjobs.in/feeds/posts/default?alt=rss"},
	}
}

// LoadEnvFile loads variables from a dotenv file into the process
// environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		token = os.Getenv("BOT_TOKEN")
	}
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	driver := strings.ToLower(envOrDefault("STORE_DRIVER", DriverFile))
	if driver != DriverFile && driver != DriverSQLite {
		return nil, fmt.Errorf("invalid STORE_DRIVER %q, use %s or %s", driver, DriverFile, DriverSQLite)
	}

	var allowedUsers []int64
	if raw := os.Getenv("ALLOWED_USERS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			uid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
			}
			allowedUsers = append(allowedUsers, uid)
		}
	}

	at, err := ParseDigestTime(envOrDefault("DIGEST_TIME", "08:00"))
	if err != nil {
		return nil, fmt.Errorf("DIGEST_TIME: %w", err)
	}

	loc := time.Local
	if tz := os.Getenv("TIMEZONE"); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("invalid TIMEZONE %q: %w", tz, err)
		}
	}

	sources := DefaultSources()
	if path := os.Getenv("FEEDS_FILE"); path != "" {
		sources, err = LoadSources(path)
		if err != nil {
			return nil, err
		}
	}

	timeout, err := time.ParseDuration(envOrDefault("FETCH_TIMEOUT", "15s"))
	if err != nil || timeout <= 0 {
		return nil, fmt.Errorf("invalid FETCH_TIMEOUT %q", os.Getenv("FETCH_TIMEOUT"))
	}

	concurrency, err := strconv.Atoi(envOrDefault("FETCH_CONCURRENCY", "4"))
	if err != nil || concurrency < 1 {
		return nil, fmt.Errorf("FETCH_CONCURRENCY must be a positive integer")
	}

	sendRate, err := strconv.ParseFloat(envOrDefault("SEND_RATE", "20"), 64)
	if err != nil || sendRate <= 0 {
		return nil, fmt.Errorf("SEND_RATE must be a positive number")
	}

	return &Config{
		TelegramBotToken: token,
		StoreDriver:      driver,
		DatabasePath:     envOrDefault("DATABASE_PATH", "./data/bot.db"),
		SubscribersPath:  envOrDefault("SUBSCRIBERS_PATH", "./data/subscribers.txt"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		AllowedUsers:     allowedUsers,
		DigestTime:       at,
		Location:         loc,
		Sources:          sources,
		FetchTimeout:     timeout,
		FetchConcurrency: concurrency,
		SendRate:         sendRate,
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiModel:      envOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),
		Limits:           DefaultLimits(),
	}, nil
}

type sourcesFile struct {
	Feeds []model.FeedSource `yaml:"feeds"`
}

// LoadSources reads the feed list from a YAML file.
func LoadSources(path string) ([]model.FeedSource, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("read feeds file: %w", err)
	}

	var raw sourcesFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse feeds file: %w", err)
	}
	if len(raw.Feeds) == 0 {
		return nil, fmt.Errorf("feeds file %s defines no feeds", path)
	}

	seen := make(map[string]bool, len(raw.Feeds))
	for i, src := range raw.Feeds {
		if src.Key == "" {
			return nil, fmt.Errorf("feed %d: key is required", i+1)
		}
		if seen[src.Key] {
			return nil, fmt.Errorf("feed %q: duplicate key", src.Key)
		}
		seen[src.Key] = true

		u, err := url.Parse(src.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("feed %q: invalid url %q", src.Key, src.URL)
		}
		if src.Name == "" {
			raw.Feeds[i].Name = src.Key
		}
	}
	return raw.Feeds, nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

// AssistantEnabled reports whether free-text questions are forwarded to Gemini.
func (c *Config) AssistantEnabled() bool {
	return c.GeminiAPIKey != ""
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
