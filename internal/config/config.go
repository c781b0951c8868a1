// Package config holds the immutable run configuration. Values come from an
// optional YAML file loaded through viper, with CLI flags layered on top by
// the command layer; once constructed the Config is passed by reference and
// never mutated.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// ContextWindow sizes the sliding context supplied with each batch.
type ContextWindow struct {
	Before int `mapstructure:"before"`
	After  int `mapstructure:"after"`
}

// LLM configures the generative backend client.
type LLM struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKeyEnvVar   string        `mapstructure:"api_key_env_var"`
	DefaultModel   string        `mapstructure:"default_model"`
	KnowledgeModel string        `mapstructure:"knowledge_model"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// Processing holds document-level defaults that strategies may override.
type Processing struct {
	BatchSize     int           `mapstructure:"batch_size"`
	ContextWindow ContextWindow `mapstructure:"context_window"`
}

// Strategy is the per-strategy configuration section. Zero values mean the
// corresponding sub-stage is skipped entirely, not run with defaults.
type Strategy struct {
	BatchSize                int           `mapstructure:"batch_size"`
	ContextWindow            ContextWindow `mapstructure:"context_window"`
	Model                    string        `mapstructure:"model"`
	InjectFullContext        bool          `mapstructure:"inject_full_context"`
	FullContextMaxChars      int           `mapstructure:"full_context_max_chars"`
	CrossRowMerging          bool          `mapstructure:"cross_row_merging"`
	GlossaryEnforcement      string        `mapstructure:"glossary_enforcement"`
	EnableQACheck            bool          `mapstructure:"enable_qa_check"`
	EnableTranscriptionAudit bool          `mapstructure:"enable_transcription_audit"`
	GenerateStyleGuide       bool          `mapstructure:"generate_style_guide"`
	BlacklistTerms           []string      `mapstructure:"blacklist_terms"`
}

// Config is the full run configuration.
type Config struct {
	LLM        LLM                 `mapstructure:"llm"`
	Processing Processing          `mapstructure:"processing"`
	TargetLang string              `mapstructure:"target_lang"`
	Strategies map[string]Strategy `mapstructure:"strategies"`
}

// Load reads the YAML config at path. An empty path or a missing file yields
// the built-in defaults; a present but malformed file is an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, statErr := os.Stat(path); statErr == nil {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
			// Missing file: proceed on defaults.
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("llm.api_key_env_var", "GEMINI_API_KEY")
	v.SetDefault("llm.default_model", "gemini-2.5-flash")
	v.SetDefault("llm.knowledge_model", "gemini-2.5-pro")
	v.SetDefault("llm.max_attempts", 3)
	v.SetDefault("llm.timeout", "60s")

	v.SetDefault("processing.batch_size", 15)
	v.SetDefault("processing.context_window.before", 3)
	v.SetDefault("processing.context_window.after", 2)

	v.SetDefault("target_lang", "zh")

	v.SetDefault("strategies.legal.glossary_enforcement", "moderate")
	v.SetDefault("strategies.legal.context_window.before", 3)
	v.SetDefault("strategies.legal.context_window.after", 2)

	v.SetDefault("strategies.academic.cross_row_merging", true)
	v.SetDefault("strategies.academic.enable_qa_check", true)
	v.SetDefault("strategies.academic.context_window.before", 8)

	v.SetDefault("strategies.video.enable_transcription_audit", true)
	v.SetDefault("strategies.video.generate_style_guide", true)
	v.SetDefault("strategies.video.context_window.before", 5)
}

// StrategyConfig returns the merged configuration for the named strategy:
// the strategy section with processing-level defaults filled into any unset
// batch size or window.
func (c *Config) StrategyConfig(name string) Strategy {
	s := c.Strategies[name]
	if s.BatchSize <= 0 {
		s.BatchSize = c.Processing.BatchSize
	}
	if s.BatchSize <= 0 {
		s.BatchSize = 15
	}
	if s.ContextWindow.Before == 0 && s.ContextWindow.After == 0 {
		s.ContextWindow = c.Processing.ContextWindow
	}
	if s.GlossaryEnforcement == "" {
		s.GlossaryEnforcement = "moderate"
	}
	if s.FullContextMaxChars <= 0 {
		s.FullContextMaxChars = 2000
	}
	return s
}
