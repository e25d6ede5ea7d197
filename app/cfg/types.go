package cfg

import (
	"time"

	"github.com/lysyi3m/scripta/app/story"
)

type Cfg struct {
	// Storage configuration
	Store               string
	DBPath              string
	FirebaseProject     string
	FirebaseCredentials string

	// HTTP configuration
	Port         string
	BaseUrl      string
	APIAccessKey string
	CORSOrigins  []string

	// Story clock
	Timezone          string
	Location          *time.Location
	CreationTime      story.TimeOfDay
	ClosureTime       story.TimeOfDay
	RecapTime         story.TimeOfDay
	IdleThreshold     time.Duration
	IdleCheckInterval time.Duration
	SchedulerInterval time.Duration
	WorkerCount       int

	// Text oracle
	Oracle          string
	GeminiAPIKey    string
	GeminiModel     string
	OpenAIAPIKey    string
	OpenAIModel     string
	OpenAIBaseURL   string
	OracleTimeout   time.Duration
	PromptsFile     string
	ScreeningPolicy story.ScreeningPolicy

	// Cover art
	CoverImages         bool
	CoverDir            string
	CoverPlaceholderURL string

	// Inspiration
	InspirationFeedURL  string
	InspirationQuoteURL string
	UserAgent           string

	// Recap notifiers
	FCMTopic        string
	SlackWebhookURL string

	// Application metadata
	Debug   bool
	Version string
}

const (
	StoreSQLite    = "sqlite"
	StoreFirestore = "firestore"
)
