package config

import "testing"

func validConfig() *Config {
	return &Config{
		GeminiAPIKey:     "test-key",
		MaxChunkSize:     1000,
		ChunkOverlap:     200,
		MaxUploadSizeMB:  200,
		EmbedBatchSize:   100,
		TopK:             4,
		MemoryWindowSize: 3,
		PersistDir:       "./data",
	}
}

func TestValidateDefaults(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestValidateRejectsBadRanges(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing api key", func(c *Config) { c.GeminiAPIKey = "" }},
		{"zero chunk size", func(c *Config) { c.MaxChunkSize = 0 }},
		{"zero overlap", func(c *Config) { c.ChunkOverlap = 0 }},
		{"overlap equals chunk size", func(c *Config) { c.ChunkOverlap = c.MaxChunkSize }},
		{"overlap exceeds chunk size", func(c *Config) { c.ChunkOverlap = c.MaxChunkSize + 1 }},
		{"zero top_k", func(c *Config) { c.TopK = 0 }},
		{"zero window", func(c *Config) { c.MemoryWindowSize = 0 }},
		{"empty persist dir", func(c *Config) { c.PersistDir = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestMaxUploadBytes(t *testing.T) {
	cfg := validConfig()
	cfg.MaxUploadSizeMB = 2
	if got := cfg.MaxUploadBytes(); got != 2<<20 {
		t.Fatalf("expected %d bytes, got %d", 2<<20, got)
	}
}
