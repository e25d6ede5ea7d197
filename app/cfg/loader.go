package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"

	"github.com/lysyi3m/scripta/app/story"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	Store               string `long:"store" env:"STORE" default:"sqlite" choice:"sqlite" choice:"firestore" description:"Story store backend"`
	DBPath              string `long:"db-path" env:"DB_PATH" default:"./scripta.db" description:"SQLite database file"`
	FirebaseProject     string `long:"firebase-project" env:"FIREBASE_PROJECT" description:"Firebase project ID (Firestore, auth and messaging)"`
	FirebaseCredentials string `long:"firebase-credentials" env:"GOOGLE_APPLICATION_CREDENTIALS" description:"Service account JSON file (optional on GCP)"`

	// HTTP configuration
	Port         string   `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl      string   `long:"base-url" env:"BASE_URL" default:"http://localhost:8080" description:"Public base URL for the service (e.g., https://scripta.example.com)"`
	APIAccessKey string   `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for the admin endpoints (optional)"`
	CORSOrigins  []string `long:"cors-origins" env:"CORS_ORIGINS" env-delim:"," description:"Allowed CORS origins (all when empty)"`

	// Story clock
	Timezone          string        `long:"timezone" env:"TZ" default:"Europe/Rome" description:"Timezone that defines the story day"`
	CreationTime      string        `long:"creation-time" env:"CREATION_TIME" default:"00:01" description:"Local time the daily story is created (HH:MM)"`
	ClosureTime       string        `long:"closure-time" env:"CLOSURE_TIME" default:"23:59" description:"Local time the daily story is closed (HH:MM)"`
	RecapTime         string        `long:"recap-time" env:"RECAP_TIME" default:"08:00" description:"Local time yesterday's recap is sent (HH:MM)"`
	IdleThreshold     time.Duration `long:"idle-threshold" env:"IDLE_THRESHOLD" default:"60m" description:"Inactivity after which the ghostwriter writes"`
	IdleCheckInterval time.Duration `long:"idle-check-interval" env:"IDLE_CHECK_INTERVAL" default:"30m" description:"How often idleness is checked"`
	SchedulerInterval time.Duration `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"60s" description:"Scheduler tick interval"`
	WorkerCount       int           `long:"worker-count" env:"WORKER_COUNT" default:"2" description:"Number of background workers for lifecycle tasks"`

	// Text oracle
	Oracle          string        `long:"oracle" env:"ORACLE" default:"gemini" choice:"gemini" choice:"openai" choice:"none" description:"Text oracle provider"`
	GeminiAPIKey    string        `long:"gemini-api-key" env:"GEMINI_API_KEY" description:"Gemini API key"`
	GeminiModel     string        `long:"gemini-model" env:"GEMINI_MODEL" default:"gemini-2.5-flash" description:"Gemini model"`
	OpenAIAPIKey    string        `long:"openai-api-key" env:"OPENAI_API_KEY" description:"OpenAI API key (text oracle and cover images)"`
	OpenAIModel     string        `long:"openai-model" env:"OPENAI_MODEL" default:"gpt-4o-mini" description:"OpenAI chat model"`
	OpenAIBaseURL   string        `long:"openai-base-url" env:"OPENAI_BASE_URL" description:"OpenAI compatible API base URL (optional)"`
	OracleTimeout   time.Duration `long:"oracle-timeout" env:"ORACLE_TIMEOUT" default:"30s" description:"Timeout for a single oracle request"`
	PromptsFile     string        `long:"prompts-file" env:"PROMPTS_FILE" description:"YAML file overriding the prompt templates"`
	ScreeningPolicy string        `long:"screening-policy" env:"SCREENING_POLICY" default:"fail-open" choice:"fail-open" choice:"fail-closed" description:"What to do with contributions when the content screening is unavailable"`

	// Cover art
	CoverImages         bool   `long:"cover-images" env:"COVER_IMAGES" description:"Generate cover images with the OpenAI image API"`
	CoverDir            string `long:"cover-dir" env:"COVER_DIR" default:"./covers" description:"Directory generated covers are stored in and served from"`
	CoverPlaceholderURL string `long:"cover-placeholder-url" env:"COVER_PLACEHOLDER_URL" description:"Cover image used when none is generated"`

	// Inspiration
	InspirationFeedURL  string `long:"inspiration-feed-url" env:"INSPIRATION_FEED_URL" default:"https://www.ilpost.it/feed/" description:"RSS feed the daily headline is taken from"`
	InspirationQuoteURL string `long:"inspiration-quote-url" env:"INSPIRATION_QUOTE_URL" default:"https://it.wikiquote.org/wiki/Pagina_principale" description:"Page the quote of the day is taken from"`
	UserAgent           string `long:"user-agent" env:"USER_AGENT" default:"Scripta/1.0" description:"User agent string for HTTP requests"`

	// Recap notifiers
	FCMTopic        string `long:"fcm-topic" env:"FCM_TOPIC" description:"Firebase Cloud Messaging topic for the daily recap"`
	SlackWebhookURL string `long:"slack-webhook-url" env:"SLACK_WEBHOOK_URL" description:"Slack incoming webhook for the daily recap"`

	// Application metadata
	Debug bool `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// Load reads .env (when present), then flags and environment.
func Load() (*Cfg, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := parse(os.Args[1:])
	if err != nil || cfg == nil {
		return nil, err
	}

	time.Local = cfg.Location

	return cfg, nil
}

// parse returns nil, nil when help was requested.
func parse(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		Store:               raw.Store,
		DBPath:              raw.DBPath,
		FirebaseProject:     raw.FirebaseProject,
		FirebaseCredentials: raw.FirebaseCredentials,
		Port:                raw.Port,
		BaseUrl:             raw.BaseUrl,
		APIAccessKey:        raw.APIAccessKey,
		CORSOrigins:         raw.CORSOrigins,
		Timezone:            raw.Timezone,
		IdleThreshold:       raw.IdleThreshold,
		IdleCheckInterval:   raw.IdleCheckInterval,
		SchedulerInterval:   raw.SchedulerInterval,
		WorkerCount:         raw.WorkerCount,
		Oracle:              raw.Oracle,
		GeminiAPIKey:        raw.GeminiAPIKey,
		GeminiModel:         raw.GeminiModel,
		OpenAIAPIKey:        raw.OpenAIAPIKey,
		OpenAIModel:         raw.OpenAIModel,
		OpenAIBaseURL:       raw.OpenAIBaseURL,
		OracleTimeout:       raw.OracleTimeout,
		PromptsFile:         raw.PromptsFile,
		CoverImages:         raw.CoverImages,
		CoverDir:            raw.CoverDir,
		CoverPlaceholderURL: raw.CoverPlaceholderURL,
		InspirationFeedURL:  raw.InspirationFeedURL,
		InspirationQuoteURL: raw.InspirationQuoteURL,
		UserAgent:           raw.UserAgent,
		FCMTopic:            raw.FCMTopic,
		SlackWebhookURL:     raw.SlackWebhookURL,
		Debug:               raw.Debug,
		Version:             GetVersion(),
	}

	var err error
	if cfg.Location, err = time.LoadLocation(raw.Timezone); err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", raw.Timezone, err)
	}
	if cfg.CreationTime, err = story.ParseTimeOfDay(raw.CreationTime); err != nil {
		return nil, fmt.Errorf("creation-time: %w", err)
	}
	if cfg.ClosureTime, err = story.ParseTimeOfDay(raw.ClosureTime); err != nil {
		return nil, fmt.Errorf("closure-time: %w", err)
	}
	if cfg.RecapTime, err = story.ParseTimeOfDay(raw.RecapTime); err != nil {
		return nil, fmt.Errorf("recap-time: %w", err)
	}
	if cfg.ScreeningPolicy, err = story.ParseScreeningPolicy(raw.ScreeningPolicy); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Cfg) validate() error {
	if !c.CreationTime.Before(c.ClosureTime) {
		return fmt.Errorf("creation time %s must be before closure time %s", c.CreationTime, c.ClosureTime)
	}
	if c.IdleThreshold <= 0 || c.IdleCheckInterval <= 0 || c.SchedulerInterval <= 0 {
		return errors.New("idle threshold and intervals must be positive")
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("worker count must be at least 1, got %d", c.WorkerCount)
	}
	if c.Store == StoreFirestore && c.FirebaseProject == "" {
		return errors.New("firestore store requires --firebase-project")
	}
	if c.CoverImages && c.OpenAIAPIKey == "" {
		return errors.New("cover images require --openai-api-key")
	}
	if c.CoverImages && c.CoverDir == "" {
		return errors.New("cover images require --cover-dir")
	}
	return nil
}

// ScreeningMaySkip reports whether contributions can be accepted without
// content screening under this configuration.
func (c *Cfg) ScreeningMaySkip() bool {
	return c.ScreeningPolicy == story.FailOpen
}

// NeedsFirebase reports whether any component talks to Firebase.
func (c *Cfg) NeedsFirebase() bool {
	return c.FirebaseProject != "" || c.Store == StoreFirestore || c.FCMTopic != ""
}
