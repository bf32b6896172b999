package config

import (
	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Ollama    OllamaConfig
	Storage   StorageConfig
	Retrieval RetrievalConfig
	Chunking  ChunkingConfig
	API       APIConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port    int
	MCPPort int
}

type OllamaConfig struct {
	BaseURL    string
	ChatModel  string
	EmbedModel string
}

type StorageConfig struct {
	DataDir string
	DocsDir string
}

type RetrievalConfig struct {
	TopK            int
	MaxToolRounds   int
	MinResolveScore float64
}

type ChunkingConfig struct {
	MaxChars     int
	OverlapChars int
}

type APIConfig struct {
	IngestToken string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:    4000,
			MCPPort: 4001,
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			ChatModel:  "qwen2.5",
			EmbedModel: "nomic-embed-text",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
			DocsDir: "docs",
		},
		Retrieval: RetrievalConfig{
			TopK:            5,
			MaxToolRounds:   2,
			MinResolveScore: 0.3,
		},
		Chunking: ChunkingConfig{
			MaxChars:     800,
			OverlapChars: 100,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration in ascending precedence: built-in defaults, the
// JSON file at $XDG_CONFIG_HOME/lectern/config.json, then LECTERN_*
// environment variables. A .env file in the working directory seeds the
// environment first when present.
func Load() (Config, error) {
	_ = godotenv.Load()
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()
	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}
