package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the service configuration. Values come from an optional YAML
// file (TRIAGE_CONFIG) overlaid by environment variables.
type Config struct {
	Port      string `yaml:"port"`
	LogLevel  string `yaml:"log_level"`
	LogPretty bool   `yaml:"log_pretty"`

	Store    StoreConfig    `yaml:"store"`
	Model    ModelConfig    `yaml:"model"`
	Triage   TriageConfig   `yaml:"triage"`
	Speech   SpeechConfig   `yaml:"speech"`
	Telegram TelegramConfig `yaml:"telegram"`
}

// StoreConfig selects the checkpoint store. An explicit IdleTTL of zero keeps
// threads forever.
type StoreConfig struct {
	// Driver is "memory" or "postgres".
	Driver        string        `yaml:"driver"`
	DatabaseURL   string        `yaml:"database_url"`
	IdleTTL       time.Duration `yaml:"idle_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`

	idleTTLSet bool
}

type ModelConfig struct {
	Provider       string  `yaml:"provider"`
	RouterModel    string  `yaml:"router_model"`
	ResponderModel string  `yaml:"responder_model"`
	Temperature    float64 `yaml:"temperature"`
	BaseURL        string  `yaml:"base_url"`

	OpenAIAPIKey    string `yaml:"-"`
	DeepSeekAPIKey  string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
	GeminiAPIKey    string `yaml:"-"`
}

type TriageConfig struct {
	ClarificationCap int `yaml:"clarification_cap"`
}

type SpeechConfig struct {
	STTURL           string `yaml:"stt_url"`
	Language         string `yaml:"language"`
	ElevenLabsAPIKey string `yaml:"-"`
	VoiceID          string `yaml:"voice_id"`
}

type TelegramConfig struct {
	BotToken     string `yaml:"-"`
	DoctorChatID int64  `yaml:"doctor_chat_id"`
}

// Load reads .env (if present), the YAML file named by TRIAGE_CONFIG (if
// set) and the environment, then applies defaults and validates.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if path := os.Getenv("TRIAGE_CONFIG"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	var explicit struct {
		Store struct {
			IdleTTL *time.Duration `yaml:"idle_ttl"`
		} `yaml:"store"`
	}
	if err := yaml.Unmarshal(data, &explicit); err == nil && explicit.Store.IdleTTL != nil {
		cfg.Store.idleTTLSet = true
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var result *multierror.Error

	cfg.Port = getEnvOrDefault("PORT", cfg.Port)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)

	cfg.Store.Driver = getEnvOrDefault("CHECKPOINT_STORE", cfg.Store.Driver)
	cfg.Store.DatabaseURL = getEnvOrDefault("DATABASE_URL", cfg.Store.DatabaseURL)

	cfg.Model.Provider = getEnvOrDefault("MODEL_PROVIDER", cfg.Model.Provider)
	cfg.Model.RouterModel = getEnvOrDefault("ROUTER_MODEL", cfg.Model.RouterModel)
	cfg.Model.ResponderModel = getEnvOrDefault("RESPONDER_MODEL", cfg.Model.ResponderModel)
	cfg.Model.BaseURL = getEnvOrDefault("MODEL_BASE_URL", cfg.Model.BaseURL)
	cfg.Model.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.Model.DeepSeekAPIKey = os.Getenv("DEEPSEEK_API_KEY")
	cfg.Model.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	cfg.Model.GeminiAPIKey = getEnvOrDefault("GEMINI_API_KEY", os.Getenv("GOOGLE_API_KEY"))

	cfg.Speech.STTURL = getEnvOrDefault("STT_URL", cfg.Speech.STTURL)
	cfg.Speech.Language = getEnvOrDefault("STT_LANGUAGE", cfg.Speech.Language)
	cfg.Speech.ElevenLabsAPIKey = os.Getenv("ELEVENLABS_API_KEY")
	cfg.Speech.VoiceID = getEnvOrDefault("TTS_VOICE_ID", cfg.Speech.VoiceID)

	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")

	if v, ok := os.LookupEnv("LOG_PRETTY"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("LOG_PRETTY: %w", err))
		}
		cfg.LogPretty = b
	}
	if v := os.Getenv("CLARIFICATION_CAP"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("CLARIFICATION_CAP: %w", err))
		}
		cfg.Triage.ClarificationCap = n
	}
	if v := os.Getenv("MODEL_TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("MODEL_TEMPERATURE: %w", err))
		}
		cfg.Model.Temperature = f
	}
	if v := os.Getenv("THREAD_IDLE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("THREAD_IDLE_TTL: %w", err))
		}
		cfg.Store.IdleTTL = d
		cfg.Store.idleTTLSet = true
	}
	if v := os.Getenv("DOCTOR_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("DOCTOR_CHAT_ID: %w", err))
		}
		cfg.Telegram.DoctorChatID = id
	}

	return result.ErrorOrNil()
}

func applyDefaults(cfg *Config) {
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "memory"
		if cfg.Store.DatabaseURL != "" {
			cfg.Store.Driver = "postgres"
		}
	}
	if cfg.Store.IdleTTL == 0 && !cfg.Store.idleTTLSet {
		cfg.Store.IdleTTL = 30 * time.Minute
	}
	if cfg.Store.SweepInterval == 0 {
		cfg.Store.SweepInterval = 5 * time.Minute
	}
	if cfg.Model.Provider == "" {
		cfg.Model.Provider = "openai"
	}
	if cfg.Model.RouterModel == "" {
		cfg.Model.RouterModel = "gpt-4o-mini"
	}
	if cfg.Model.ResponderModel == "" {
		cfg.Model.ResponderModel = cfg.Model.RouterModel
	}
	if cfg.Triage.ClarificationCap == 0 {
		cfg.Triage.ClarificationCap = 3
	}
	if cfg.Speech.Language == "" {
		cfg.Speech.Language = "pt"
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.Port == "" {
		result = multierror.Append(result, fmt.Errorf("port is required"))
	}
	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			result = multierror.Append(result, fmt.Errorf("DATABASE_URL is required for the postgres store"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("unknown checkpoint store %q", c.Store.Driver))
	}

	switch strings.ToLower(c.Model.Provider) {
	case "mock":
	case "openai", "deepseek", "anthropic", "gemini":
		if c.ModelAPIKey() == "" {
			result = multierror.Append(result, fmt.Errorf("API key for model provider %q is not set", c.Model.Provider))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("unknown model provider %q", c.Model.Provider))
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		result = multierror.Append(result, fmt.Errorf("temperature must be between 0 and 2, got %v", c.Model.Temperature))
	}

	if c.Triage.ClarificationCap < 1 {
		result = multierror.Append(result, fmt.Errorf("clarification cap must be positive, got %d", c.Triage.ClarificationCap))
	}
	if c.Store.IdleTTL < 0 {
		result = multierror.Append(result, fmt.Errorf("thread idle TTL must not be negative"))
	}
	if c.Telegram.BotToken != "" && c.Telegram.DoctorChatID == 0 {
		result = multierror.Append(result, fmt.Errorf("DOCTOR_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set"))
	}

	return result.ErrorOrNil()
}

// ModelAPIKey returns the key of the selected provider.
func (c *Config) ModelAPIKey() string {
	switch strings.ToLower(c.Model.Provider) {
	case "openai":
		return c.Model.OpenAIAPIKey
	case "deepseek":
		return c.Model.DeepSeekAPIKey
	case "anthropic":
		return c.Model.AnthropicAPIKey
	case "gemini":
		return c.Model.GeminiAPIKey
	}
	return ""
}

// EscalationEnabled reports whether emergencial outcomes are forwarded to a doctor.
func (c *Config) EscalationEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.DoctorChatID != 0
}

// getEnvOrDefault returns the environment variable value if set,
// otherwise returns the default value.
func getEnvOrDefault(envVar, defaultValue string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return defaultValue
}
