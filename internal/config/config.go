package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Session SessionConfig `mapstructure:"session"`
	RAG     RAGConfig     `mapstructure:"rag"`
	Upload  UploadConfig  `mapstructure:"upload"`
	NapCat  NapCatConfig  `mapstructure:"napcat"`
	Bot     BotConfig     `mapstructure:"bot"`
	Log     LogConfig     `mapstructure:"log"`
}

type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LLMConfig struct {
	Provider        string        `mapstructure:"provider"` // groq / openai / gemini
	APIKey          string        `mapstructure:"api_key"`
	Model           string        `mapstructure:"model"`
	FallbackModels  []string      `mapstructure:"fallback_models"`
	BaseURL         string        `mapstructure:"base_url"`
	Temperature     float32       `mapstructure:"temperature"`
	MaxOutputTokens int32         `mapstructure:"max_output_tokens"`
	RPMLimit        int           `mapstructure:"rpm_limit"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	MaxHistoryTurns int           `mapstructure:"max_history_turns"`
}

type SessionConfig struct {
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	ContextChars int           `mapstructure:"context_chars"`
}

type RAGConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	APIKey         string  `mapstructure:"api_key"`
	EmbeddingModel string  `mapstructure:"embedding_model"`
	TopK           int     `mapstructure:"top_k"`
	MinSimilarity  float32 `mapstructure:"min_similarity"`
}

type UploadConfig struct {
	MaxBytes   int64  `mapstructure:"max_bytes"`
	DecryptKey string `mapstructure:"decrypt_key"`
}

type NapCatConfig struct {
	WSURL       string `mapstructure:"ws_url"`
	AccessToken string `mapstructure:"access_token"`
}

type BotConfig struct {
	OwnerQQ   int64   `mapstructure:"owner_qq"`
	AllowedQQ []int64 `mapstructure:"allowed_qq"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

var providerKeyEnv = map[string]string{
	"groq":   "GROQ_API_KEY",
	"openai": "OPENAI_API_KEY",
	"gemini": "GEMINI_API_KEY",
}

var providerModel = map[string]string{
	"groq":   "llama3-8b-8192",
	"openai": "gpt-4o-mini",
	"gemini": "gemini-2.5-flash",
}

const groqBaseURL = "https://api.groq.com/openai/v1"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})

	v.SetDefault("llm.provider", "groq")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.fallback_models", []string{})
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_output_tokens", 1024)
	v.SetDefault("llm.rpm_limit", 30)
	v.SetDefault("llm.timeout", "120s")
	v.SetDefault("llm.max_retries", 0)
	v.SetDefault("llm.max_history_turns", 0)

	v.SetDefault("session.idle_timeout", "60m")
	v.SetDefault("session.context_chars", 15000)

	v.SetDefault("rag.enabled", false)
	v.SetDefault("rag.api_key", "")
	v.SetDefault("rag.embedding_model", "gemini-embedding-001")
	v.SetDefault("rag.top_k", 5)
	v.SetDefault("rag.min_similarity", 0.5)

	v.SetDefault("upload.max_bytes", 20<<20)
	v.SetDefault("upload.decrypt_key", "")

	v.SetDefault("napcat.ws_url", "ws://127.0.0.1:3001")
	v.SetDefault("napcat.access_token", "")

	v.SetDefault("bot.owner_qq", 0)
	v.SetDefault("bot.allowed_qq", []int64{})

	v.SetDefault("log.level", "info")
}

// Load 读取配置；path 为空时只用默认值和环境变量
func Load(path string) (*Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	// 环境变量覆盖
	provider := strings.ToLower(v.GetString("llm.provider"))
	v.Set("llm.provider", provider)
	if env, ok := providerKeyEnv[provider]; ok {
		if key := os.Getenv(env); key != "" {
			v.Set("llm.api_key", key)
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && v.GetString("rag.api_key") == "" {
		v.Set("rag.api_key", key)
	}
	if token := os.Getenv("NAPCAT_ACCESS_TOKEN"); token != "" {
		v.Set("napcat.access_token", token)
	}
	if key := os.Getenv("DECRYPT_KEY"); key != "" {
		v.Set("upload.decrypt_key", key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if _, ok := providerModel[cfg.LLM.Provider]; !ok {
		return nil, fmt.Errorf("llm.provider must be one of groq, openai, gemini (got %q)", cfg.LLM.Provider)
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = providerModel[cfg.LLM.Provider]
	}
	if cfg.LLM.BaseURL == "" && cfg.LLM.Provider == "groq" {
		cfg.LLM.BaseURL = groqBaseURL
	}
	if cfg.Session.ContextChars <= 0 {
		return nil, fmt.Errorf("session.context_chars must be positive")
	}
	if cfg.RAG.APIKey == "" && cfg.LLM.Provider == "gemini" {
		cfg.RAG.APIKey = cfg.LLM.APIKey
	}

	return &cfg, nil
}

// LoadDotEnv 加载 .env 文件，文件不存在不算错误
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}
