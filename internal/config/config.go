package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config is the full runtime configuration for wapipe.
// Everything comes from environment variables; required credentials make the
// process fail fast at startup rather than mid-pipeline.
type Config struct {
	// WhatsApp bridge
	BridgeWSURL   string `env:"WAPIPE_BRIDGE_WS_URL,required"`   // WebSocket event/send endpoint
	BridgeHTTPURL string `env:"WAPIPE_BRIDGE_HTTP_URL,required"` // media download + group metadata endpoint
	ClientID      string `env:"WHATSAPP_CLIENT_ID,required"`
	PhoneNumber   string `env:"WHATSAPP_PHONE_NUMBER,required"` // bot's own number, used for mention detection

	// Document store
	PostgresDSN string `env:"WAPIPE_POSTGRES_DSN,required"`

	// Telegram operator notifications (optional, disabled when unset)
	TelegramToken  string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID int64  `env:"TELEGRAM_CHAT_ID"`

	// AI collaborators
	OpenAIAPIKey     string `env:"OPENAI_API_KEY,required"`
	ElevenLabsAPIKey string `env:"ELEVENLABS_API_KEY"`
	GoogleAPIKey     string `env:"GOOGLE_API_KEY,required"`
	AnthropicAPIKey  string `env:"ANTHROPIC_API_KEY"`
	LlamaParseAPIKey string `env:"LLAMA_CLOUD_API_KEY,required"`

	// Agent-conversation service
	LangGraphAPIURL string `env:"LANGGRAPH_API_URL,required"`
	LangGraphAPIKey string `env:"LANGSMITH_API_KEY,required"`

	// Downstream webhook
	WebhookURL     string `env:"WEBHOOK_URL,required"`
	WebhookAuthKey string `env:"WEBHOOK_AUTH_KEY,required"`

	// Blob storage (optional, uploads skipped when unset)
	BlobEndpoint string `env:"WAPIPE_BLOB_ENDPOINT"`
	BlobAPIKey   string `env:"WAPIPE_BLOB_API_KEY"`

	// Media prompts
	ImagePrompt string `env:"IMAGE_PROMPT,required"`
	VideoPrompt string `env:"VIDEO_PROMPT" envDefault:"Outline this video content in full detail. Give a general concise summary and then a full chronological breakdown of different scenes/parts/events."`

	// HTTP API
	Port        int    `env:"PORT" envDefault:"3001"`
	HTTPAuthKey string `env:"WAPIPE_HTTP_AUTH_KEY,required"`

	// Pipeline tuning
	TempDir         string `env:"TEMP_DIR" envDefault:".temp"`
	TriggerToken    string `env:"WAPIPE_TRIGGER_TOKEN" envDefault:"heyai"`
	ResponseDelayMS int    `env:"WAPIPE_RESPONSE_DELAY_MS" envDefault:"10000"`
	ContextLength   int    `env:"WAPIPE_CONTEXT_LENGTH" envDefault:"25"`
}

// Load parses the environment into a Config and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var problems []string
	if c.ResponseDelayMS <= 0 {
		problems = append(problems, "WAPIPE_RESPONSE_DELAY_MS must be positive")
	}
	if c.ContextLength <= 0 {
		problems = append(problems, "WAPIPE_CONTEXT_LENGTH must be positive")
	}
	if c.Port <= 0 || c.Port > 65535 {
		problems = append(problems, "PORT must be a valid TCP port")
	}
	if !strings.HasPrefix(c.BridgeWSURL, "ws://") && !strings.HasPrefix(c.BridgeWSURL, "wss://") {
		problems = append(problems, "WAPIPE_BRIDGE_WS_URL must be a ws:// or wss:// URL")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}

// BotJID returns the bot's own WhatsApp user JID, derived from its phone number.
func (c *Config) BotJID() string {
	return c.PhoneNumber + "@s.whatsapp.net"
}
