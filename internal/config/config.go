package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is the environment configuration of the assistant
type Config struct {
	ConfigFile   string             `envconfig:"CONFIG_FILE" default:"config.yaml"`
	Log          LogConfig          `envconfig:"LOG"`
	LLM          LLMConfig          `envconfig:"LLM"`
	Embedding    EmbeddingConfig    `envconfig:"EMBEDDING"`
	Redis        RedisConfig        `envconfig:"REDIS"`
	Postgres     PostgresConfig     `envconfig:"POSTGRES"`
	Storage      StorageConfig      `envconfig:"STORAGE"`
	Orchestrator OrchestratorConfig `envconfig:"TURN"`
	Retrieval    RetrievalConfig    `envconfig:"RAG"`
	Appointment  AppointmentConfig  `envconfig:"APPOINTMENT"`
	Tools        ToolsConfig        `envconfig:"TOOLS"`
}

// LogConfig controls the zerolog setup
type LogConfig struct {
	Level      string `envconfig:"LEVEL" default:"info"`
	Format     string `envconfig:"FORMAT" default:"console"`
	Output     string `envconfig:"OUTPUT" default:"stdout"`
	TimeFormat string `envconfig:"TIME_FORMAT" default:"rfc3339"`
	FilePath   string `envconfig:"FILE_PATH" default:"logs/bizassist.log"`
}

// LLMConfig selects the chat model backend. Provider "none" disables model calls.
type LLMConfig struct {
	Provider    string        `envconfig:"PROVIDER" default:"ollama"`
	Model       string        `envconfig:"MODEL" default:"llama3.2"`
	APIKey      string        `envconfig:"API_KEY"`
	BaseURL     string        `envconfig:"BASE_URL"`
	MaxTokens   int           `envconfig:"MAX_TOKENS" default:"512"`
	Temperature float64       `envconfig:"TEMPERATURE" default:"0.1"`
	Timeout     time.Duration `envconfig:"TIMEOUT" default:"30s"`
}

// EmbeddingConfig configures the embedder. Provider "hash" runs offline.
type EmbeddingConfig struct {
	Provider   string `envconfig:"PROVIDER" default:"ollama"`
	Model      string `envconfig:"MODEL" default:"nomic-embed-text"`
	Dimensions int    `envconfig:"DIMENSIONS" default:"0"`
	CacheSize  int    `envconfig:"CACHE_SIZE" default:"512"`
}

// RedisConfig enables Redis-backed conversations and tool ledger when URL is set
type RedisConfig struct {
	URL string        `envconfig:"URL"`
	TTL time.Duration `envconfig:"TTL" default:"168h"`
}

// PostgresConfig enables Postgres stores and the pgvector index when DSN is set
type PostgresConfig struct {
	DSN          string `envconfig:"DSN"`
	MaxOpenConns int    `envconfig:"MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns int    `envconfig:"MAX_IDLE_CONNS" default:"5"`
	VectorIndex  bool   `envconfig:"VECTOR_INDEX" default:"true"`
}

// StorageConfig points at the file-backed stores
type StorageConfig struct {
	ProfilesDir string `envconfig:"PROFILES_DIR" default:"data/businesses"`
	LeadsDir    string `envconfig:"LEADS_DIR" default:"data/leads"`
}

// OrchestratorConfig bounds a turn
type OrchestratorConfig struct {
	Timeout      time.Duration `envconfig:"TIMEOUT" default:"45s"`
	ContextTurns int           `envconfig:"CONTEXT_TURNS" default:"6"`
}

// RetrievalConfig tunes the document_qa responder and ingestion
type RetrievalConfig struct {
	TopK            int     `envconfig:"TOP_K" default:"4"`
	MinScore        float64 `envconfig:"MIN_SCORE" default:"0.35"`
	MaxContextChars int     `envconfig:"MAX_CONTEXT_CHARS" default:"3000"`
	ChunkSize       int     `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap    int     `envconfig:"CHUNK_OVERLAP" default:"200"`
}

// AppointmentConfig tunes the availability responder
type AppointmentConfig struct {
	DefaultDuration     int           `envconfig:"DEFAULT_DURATION" default:"30"`
	SlotStep            int           `envconfig:"SLOT_STEP" default:"30"`
	MaxAlternatives     int           `envconfig:"MAX_ALTERNATIVES" default:"3"`
	SearchDays          int           `envconfig:"SEARCH_DAYS" default:"7"`
	RequireConfirmation bool          `envconfig:"REQUIRE_CONFIRMATION" default:"true"`
	HoldTTL             time.Duration `envconfig:"HOLD_TTL" default:"15m"`
}

// ToolsConfig selects notification backends
type ToolsConfig struct {
	Timeout          time.Duration `envconfig:"TIMEOUT" default:"10s"`
	EmailProvider    string        `envconfig:"EMAIL_PROVIDER" default:"smtp"`
	EmailFrom        string        `envconfig:"EMAIL_FROM" default:"assistant@localhost"`
	SMTPHost         string        `envconfig:"SMTP_HOST" default:"localhost"`
	SMTPPort         int           `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername     string        `envconfig:"SMTP_USERNAME"`
	SMTPPassword     string        `envconfig:"SMTP_PASSWORD"`
	MessageProvider  string        `envconfig:"MESSAGE_PROVIDER" default:"ultramsg"`
	UltraMsgInstance string        `envconfig:"ULTRAMSG_INSTANCE_ID"`
	UltraMsgToken    string        `envconfig:"ULTRAMSG_TOKEN"`
	UltraMsgBaseURL  string        `envconfig:"ULTRAMSG_BASE_URL" default:"https://api.ultramsg.com"`
	AWSRegion        string        `envconfig:"AWS_REGION" default:"us-east-1"`
	CalendarOwner    string        `envconfig:"CALENDAR_OWNER_EMAIL"`
	NotifyNewLeads   bool          `envconfig:"NOTIFY_NEW_LEADS" default:"true"`
	NotifyUploads    bool          `envconfig:"NOTIFY_DOCUMENT_UPLOADS" default:"true"`
}

// LoadConfig reads .env (when present) and processes the environment
func LoadConfig() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return nil, fmt.Errorf("error processing environment configuration: %w", err)
	}
	return &config, nil
}
