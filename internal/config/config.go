// Package config holds all nfpwatch configuration: a YAML file for
// tunables plus environment variables for credentials. The config is
// loaded once at startup and passed by reference into the components.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Required-credential keys accepted by Validate.
const (
	KeyPlatformLogin = "platform_login" // username + password for the automation login
	KeyPlatformAppID = "platform_app_id"
	KeyGeminiAPIKey  = "gemini_api_key"
)

// Config holds all nfpwatch configuration.
type Config struct {
	// DataDir is the root for the database, session artifact and logs.
	DataDir string `yaml:"data_dir"`

	DatabasePath string `yaml:"database_path"`
	AuthFile     string `yaml:"auth_file"`
	CorpusPath   string `yaml:"corpus_path"`

	Platform  PlatformConfig  `yaml:"platform"`
	LLM       LLMConfig       `yaml:"llm"`
	Collector CollectorConfig `yaml:"collector"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// PlatformConfig configures the session login and feed API access.
// Username, Password and AppID come from the environment only.
type PlatformConfig struct {
	Username   string `yaml:"-"`
	Password   string `yaml:"-"`
	AppID      string `yaml:"-"`
	BaseURL    string `yaml:"base_url"`
	APIBaseURL string `yaml:"api_base_url"`
	UserAgent  string `yaml:"user_agent"`
	Headless   bool   `yaml:"headless"`
	Timeout    string `yaml:"timeout"`
}

// LLMConfig configures the reasoning and transcription collaborators.
type LLMConfig struct {
	APIKey             string `yaml:"-"`
	Model              string `yaml:"model"`
	TranscriptionModel string `yaml:"transcription_model"`
	Timeout            string `yaml:"timeout"`
}

// CollectorConfig configures the acquisition engine.
type CollectorConfig struct {
	// Pacing range between per-item requests, to keep request cadence
	// human-shaped against a platform that detects automation.
	PacingMin string `yaml:"pacing_min"`
	PacingMax string `yaml:"pacing_max"`
}

// SchedulerConfig configures the daemon cadence.
type SchedulerConfig struct {
	CollectEvery   string `yaml:"collect_every"`
	AnalysisOffset string `yaml:"analysis_offset"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir:      "data",
		DatabasePath: "data/nfpwatch.db",
		AuthFile:     "data/auth.json",
		CorpusPath:   "legal_provisions.yaml",

		Platform: PlatformConfig{
			BaseURL:    "https://www.instagram.com",
			APIBaseURL: "https://i.instagram.com",
			UserAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
			Headless:   false,
			Timeout:    "30s",
		},

		LLM: LLMConfig{
			Model:              "gemini-2.5-flash",
			TranscriptionModel: "gemini-2.5-flash",
			Timeout:            "120s",
		},

		Collector: CollectorConfig{
			PacingMin: "2s",
			PacingMax: "3500ms",
		},

		Scheduler: SchedulerConfig{
			CollectEvery:   "6h",
			AnalysisOffset: "5m",
		},
	}
}

// Load reads the YAML config at path (missing file is fine, defaults apply)
// and overlays credentials from the environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults only.
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("IG_USERNAME"); v != "" {
		c.Platform.Username = v
	}
	if v := os.Getenv("IG_PASSWORD"); v != "" {
		c.Platform.Password = v
	}
	if v := os.Getenv("IG_APP_ID"); v != "" {
		c.Platform.AppID = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("NFPWATCH_DATA_DIR"); v != "" {
		c.DataDir = v
		c.DatabasePath = filepath.Join(v, "nfpwatch.db")
		c.AuthFile = filepath.Join(v, "auth.json")
	}
}

// Validate checks that every credential named in required is present.
// It reports all missing keys at once so the operator fixes them in one go.
func (c *Config) Validate(required ...string) error {
	var missing []string
	for _, key := range required {
		switch key {
		case KeyPlatformLogin:
			if c.Platform.Username == "" {
				missing = append(missing, "IG_USERNAME")
			}
			if c.Platform.Password == "" {
				missing = append(missing, "IG_PASSWORD")
			}
		case KeyPlatformAppID:
			if c.Platform.AppID == "" {
				missing = append(missing, "IG_APP_ID")
			}
		case KeyGeminiAPIKey:
			if c.LLM.APIKey == "" {
				missing = append(missing, "GEMINI_API_KEY")
			}
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Duration parses one of the duration-shaped fields, falling back to def
// when the field is empty or malformed.
func Duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return def
	}
	return d
}
