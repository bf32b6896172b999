package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "LECTERN_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.mcp_port", typ: kInt, env: "LECTERN_SERVER_MCP_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.MCPPort = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MCPPort },
	},
	{
		key: "ollama.base_url", typ: kString, env: "LECTERN_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.chat_model", typ: kString, env: "LECTERN_OLLAMA_CHAT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.ChatModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.ChatModel },
	},
	{
		key: "ollama.embed_model", typ: kString, env: "LECTERN_OLLAMA_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.EmbedModel },
	},
	{
		key: "storage.data_dir", typ: kString, env: "LECTERN_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.docs_dir", typ: kString, env: "LECTERN_STORAGE_DOCS_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DocsDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DocsDir },
	},
	{
		key: "retrieval.top_k", typ: kInt, env: "LECTERN_RETRIEVAL_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.TopK },
	},
	{
		key: "retrieval.max_tool_rounds", typ: kInt, env: "LECTERN_RETRIEVAL_MAX_TOOL_ROUNDS",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.MaxToolRounds = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.MaxToolRounds },
	},
	{
		key: "retrieval.min_resolve_score", typ: kFloat, env: "LECTERN_RETRIEVAL_MIN_RESOLVE_SCORE",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.MinResolveScore = v.(float64) },
		extract: func(cfg Config) any { return cfg.Retrieval.MinResolveScore },
	},
	{
		key: "chunking.max_chars", typ: kInt, env: "LECTERN_CHUNKING_MAX_CHARS",
		apply:   func(cfg *Config, v any) { cfg.Chunking.MaxChars = v.(int) },
		extract: func(cfg Config) any { return cfg.Chunking.MaxChars },
	},
	{
		key: "chunking.overlap_chars", typ: kInt, env: "LECTERN_CHUNKING_OVERLAP_CHARS",
		apply:   func(cfg *Config, v any) { cfg.Chunking.OverlapChars = v.(int) },
		extract: func(cfg Config) any { return cfg.Chunking.OverlapChars },
	},
	{
		key: "api.ingest_token", typ: kString, env: "LECTERN_API_INGEST_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.API.IngestToken = v.(string) },
		extract: func(cfg Config) any { return cfg.API.IngestToken },
	},
	{
		key: "log.level", typ: kString, env: "LECTERN_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
