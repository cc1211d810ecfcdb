// Package config defines the Nexus configuration tree and loads it from
// YAML (with $include merging, see loader.go), applying defaults and
// environment variable overrides before validation.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/haasonsaas/nexus/internal/mcp"
	"github.com/haasonsaas/nexus/internal/memory"
	"github.com/haasonsaas/nexus/internal/skills"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Nexus.
type Config struct {
	Server       ServerConfig        `yaml:"server"`
	Database     DatabaseConfig      `yaml:"database"`
	Workspace    WorkspaceConfig     `yaml:"workspace"`
	Channels     ChannelsConfig      `yaml:"channels"`
	LLM          LLMConfig           `yaml:"llm"`
	MCP          mcp.Config          `yaml:"mcp"`
	Marketplace  MarketplaceConfig   `yaml:"marketplace"`
	Skills       skills.SkillsConfig `yaml:"skills"`
	VectorMemory memory.Config       `yaml:"vector_memory"`
	RAG          RAGConfig           `yaml:"rag"`
	Cron         CronConfig          `yaml:"cron"`
	Artifacts    ArtifactsConfig     `yaml:"artifacts"`
}

// ServerConfig configures the gateway's listening ports.
type ServerConfig struct {
	Host        string `yaml:"host"`
	GRPCPort    int    `yaml:"grpc_port"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsPort int    `yaml:"metrics_port"`
}

// DatabaseConfig configures the main Postgres/CockroachDB connection.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxConnections  int           `yaml:"max_connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// WorkspaceConfig configures the on-disk agent workspace.
type WorkspaceConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	MaxChars   int    `yaml:"max_chars"`
	AgentsFile string `yaml:"agents_file"`
}

// ChannelsConfig configures the supported chat channel adapters.
type ChannelsConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Discord  DiscordConfig  `yaml:"discord"`
	Slack    SlackConfig    `yaml:"slack"`
	WhatsApp WhatsAppConfig `yaml:"whatsapp"`
	Matrix   MatrixConfig   `yaml:"matrix"`
}

// TelegramConfig configures the Telegram bot adapter.
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	Webhook  string `yaml:"webhook"`
}

// DiscordConfig configures the Discord bot adapter.
type DiscordConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	AppID    string `yaml:"app_id"`
}

// SlackConfig configures the Slack app adapter.
type SlackConfig struct {
	Enabled           bool   `yaml:"enabled"`
	BotToken          string `yaml:"bot_token"`
	AppToken          string `yaml:"app_token"`
	SigningSecret     string `yaml:"signing_secret"`
	UploadAttachments bool   `yaml:"upload_attachments"`
}

// WhatsAppConfig configures the WhatsApp multi-device adapter.
type WhatsAppConfig struct {
	Enabled      bool   `yaml:"enabled"`
	SessionPath  string `yaml:"session_path"`
	MediaPath    string `yaml:"media_path"`
	SyncContacts bool   `yaml:"sync_contacts"`
}

// MatrixConfig configures the Matrix homeserver client adapter.
type MatrixConfig struct {
	Enabled           bool     `yaml:"enabled"`
	Homeserver        string   `yaml:"homeserver"`
	UserID            string   `yaml:"user_id"`
	AccessToken       string   `yaml:"access_token"`
	DeviceID          string   `yaml:"device_id"`
	AllowedRooms      []string `yaml:"allowed_rooms"`
	AllowedUsers      []string `yaml:"allowed_users"`
	JoinOnInvite      bool     `yaml:"join_on_invite"`
}

// LLMConfig configures model providers and routing.
type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`
	FallbackChain   []string                     `yaml:"fallback_chain"`
	Bedrock         BedrockConfig                `yaml:"bedrock"`
}

// LLMProviderConfig configures a single LLM provider. Profiles is keyed by
// profile ID and lets a deployment override APIKey/DefaultModel/BaseURL per
// profile while inheriting everything else from the parent provider config.
type LLMProviderConfig struct {
	APIKey       string                       `yaml:"api_key"`
	DefaultModel string                       `yaml:"default_model"`
	BaseURL      string                       `yaml:"base_url"`
	APIVersion   string                       `yaml:"api_version"`
	Profiles     map[string]LLMProviderConfig `yaml:"profiles"`
}

// BedrockConfig configures AWS Bedrock model discovery.
type BedrockConfig struct {
	Enabled bool   `yaml:"enabled"`
	Region  string `yaml:"region"`
}

// MarketplaceConfig configures the plugin marketplace.
type MarketplaceConfig struct {
	Enabled     bool              `yaml:"enabled"`
	Registries  []string          `yaml:"registries"`
	TrustedKeys map[string]string `yaml:"trusted_keys"`
	AutoUpdate  bool              `yaml:"auto_update"`
	SkipVerify  bool              `yaml:"skip_verify"`
}

// RAGConfig configures the retrieval-augmented generation pipeline.
type RAGConfig struct {
	Enabled    bool                `yaml:"enabled"`
	Store      RAGStoreConfig      `yaml:"store"`
	Chunking   RAGChunkingConfig   `yaml:"chunking"`
	Embeddings RAGEmbeddingsConfig `yaml:"embeddings"`
}

// RAGStoreConfig configures the document store backend.
type RAGStoreConfig struct {
	Backend        string `yaml:"backend"`
	DSN            string `yaml:"dsn"`
	UseDatabaseURL bool   `yaml:"use_database_url"`
	Dimension      int    `yaml:"dimension"`
	RunMigrations  *bool  `yaml:"run_migrations"`
}

// RAGChunkingConfig configures document chunking.
type RAGChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// RAGEmbeddingsConfig configures the embedding provider used for RAG.
type RAGEmbeddingsConfig struct {
	Provider  string `yaml:"provider"`
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	BatchSize int    `yaml:"batch_size"`
}

// CronConfig configures the recurring job scheduler.
type CronConfig struct {
	Enabled bool      `yaml:"enabled"`
	Jobs    []CronJob `yaml:"jobs"`
}

// CronJob describes one scheduled job.
type CronJob struct {
	Name     string `yaml:"name"`
	Schedule string `yaml:"schedule"`
	AgentID  string `yaml:"agent_id"`
	Prompt   string `yaml:"prompt"`
}

// ArtifactsConfig configures artifact storage.
type ArtifactsConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	DSN     string `yaml:"dsn"`
}

// Load reads path, expanding $include directives and environment
// variables, decodes it strictly (unknown keys are an error), applies
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: expected single document")
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFromRaw decodes an already-merged raw config map (see LoadRaw),
// applying the same defaults and validation as Load.
func LoadFromRaw(raw map[string]any) (*Config, error) {
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NEXUS_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("NEXUS_TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Channels.Telegram.BotToken = v
	}
	if v := os.Getenv("NEXUS_DISCORD_BOT_TOKEN"); v != "" {
		cfg.Channels.Discord.BotToken = v
	}
	if v := os.Getenv("NEXUS_SLACK_BOT_TOKEN"); v != "" {
		cfg.Channels.Slack.BotToken = v
	}
}

func applyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyDatabaseDefaults(&cfg.Database)
	applyWorkspaceDefaults(&cfg.Workspace)
	applyLLMDefaults(&cfg.LLM)
	applyMarketplaceDefaults(&cfg.Marketplace)
	applyRAGDefaults(&cfg.RAG)
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.GRPCPort == 0 {
		cfg.GRPCPort = 50051
	}
	if cfg.HTTPPort == 0 {
		cfg.HTTPPort = 8080
	}
	if cfg.MetricsPort == 0 {
		cfg.MetricsPort = 9090
	}
}

func applyDatabaseDefaults(cfg *DatabaseConfig) {
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = 25
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
}

func applyWorkspaceDefaults(cfg *WorkspaceConfig) {
	if cfg.Path == "" {
		cfg.Path = "."
	}
	if cfg.MaxChars == 0 {
		cfg.MaxChars = 20000
	}
	if cfg.AgentsFile == "" {
		cfg.AgentsFile = "AGENTS.md"
	}
}

// DefaultWorkspaceConfig returns a workspace config with defaults applied.
func DefaultWorkspaceConfig() WorkspaceConfig {
	cfg := WorkspaceConfig{}
	applyWorkspaceDefaults(&cfg)
	return cfg
}

func applyLLMDefaults(cfg *LLMConfig) {
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = "anthropic"
	}
	if cfg.Bedrock.Region == "" {
		cfg.Bedrock.Region = "us-east-1"
	}
}

func applyMarketplaceDefaults(cfg *MarketplaceConfig) {
	if len(cfg.Registries) == 0 {
		cfg.Registries = []string{"https://registry.nexus.dev/index.json"}
	}
}

func applyRAGDefaults(cfg *RAGConfig) {
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 1000
	}
	if cfg.Chunking.ChunkOverlap == 0 {
		cfg.Chunking.ChunkOverlap = 200
	}
	if cfg.Embeddings.BatchSize == 0 {
		cfg.Embeddings.BatchSize = 100
	}
	if cfg.Store.Dimension == 0 {
		cfg.Store.Dimension = 1536
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Server.GRPCPort == cfg.Server.HTTPPort {
		return fmt.Errorf("config: server.grpc_port and server.http_port must differ")
	}
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.BotToken == "" {
		return fmt.Errorf("config: channels.telegram.bot_token is required when enabled")
	}
	if cfg.Channels.Discord.Enabled && (cfg.Channels.Discord.BotToken == "" || cfg.Channels.Discord.AppID == "") {
		return fmt.Errorf("config: channels.discord.bot_token and app_id are required when enabled")
	}
	if cfg.Channels.Slack.Enabled && (cfg.Channels.Slack.BotToken == "" || cfg.Channels.Slack.AppToken == "" || cfg.Channels.Slack.SigningSecret == "") {
		return fmt.Errorf("config: channels.slack.bot_token, app_token, and signing_secret are required when enabled")
	}
	if cfg.Channels.WhatsApp.Enabled && cfg.Channels.WhatsApp.SessionPath == "" {
		return fmt.Errorf("config: channels.whatsapp.session_path is required when enabled")
	}
	if cfg.Channels.Matrix.Enabled && (cfg.Channels.Matrix.Homeserver == "" || cfg.Channels.Matrix.UserID == "" || cfg.Channels.Matrix.AccessToken == "") {
		return fmt.Errorf("config: channels.matrix.homeserver, user_id, and access_token are required when enabled")
	}
	if cfg.RAG.Enabled && cfg.RAG.Store.Backend == "" {
		return fmt.Errorf("config: rag.store.backend is required when rag is enabled")
	}
	return nil
}
