package ai

import (
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.EmbeddingHost == "" || cfg.ChatHost == "" {
		t.Errorf("DefaultConfig() left hosts empty")
	}
	if cfg.EmbeddingModel == "" || cfg.ChatModel == "" {
		t.Errorf("DefaultConfig() left models empty")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig() should validate, got %v", err)
	}
}

func TestNewConfig_Options(t *testing.T) {
	cfg := NewConfig(
		WithHost("http://ai.internal:9100"),
		WithEmbeddingModel("text-embedding-3-small"),
		WithChatModel("gpt-4o-mini"),
		WithMinEntityConfidence(0.7),
	)

	if cfg.EmbeddingHost != "http://ai.internal:9100" {
		t.Errorf("WithHost() did not set embedding host: %q", cfg.EmbeddingHost)
	}
	if cfg.ChatHost != "http://ai.internal:9100" {
		t.Errorf("WithHost() did not set chat host: %q", cfg.ChatHost)
	}
	if cfg.EmbeddingModel != "text-embedding-3-small" {
		t.Errorf("WithEmbeddingModel() not applied: %q", cfg.EmbeddingModel)
	}
	if cfg.MinEntityConfidence != 0.7 {
		t.Errorf("WithMinEntityConfidence() not applied: %v", cfg.MinEntityConfidence)
	}
}

func TestConfig_Normalize(t *testing.T) {
	tests := []struct {
		name string
		host string
		want string
	}{
		{
			name: "adds v1 suffix",
			host: "http://localhost:11434",
			want: "http://localhost:11434/v1",
		},
		{
			name: "strips trailing slash before adding v1",
			host: "http://localhost:11434/",
			want: "http://localhost:11434/v1",
		},
		{
			name: "leaves v1 suffix alone",
			host: "http://localhost:11434/v1",
			want: "http://localhost:11434/v1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig(WithHost(tt.host))
			cfg.Normalize()
			if cfg.EmbeddingHost != tt.want {
				t.Errorf("Normalize() embedding host = %q, want %q", cfg.EmbeddingHost, tt.want)
			}
			if cfg.ChatHost != tt.want {
				t.Errorf("Normalize() chat host = %q, want %q", cfg.ChatHost, tt.want)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing embedding model",
			mutate:  func(c *Config) { c.EmbeddingModel = "" },
			wantErr: "EmbeddingModel",
		},
		{
			name:    "missing chat model",
			mutate:  func(c *Config) { c.ChatModel = "" },
			wantErr: "ChatModel",
		},
		{
			name:    "confidence out of range",
			mutate:  func(c *Config) { c.MinEntityConfidence = 1.5 },
			wantErr: "MinEntityConfidence",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}
