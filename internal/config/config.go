package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"quiz-widget-service/internal/domain"
)

type Config struct {
	Server struct {
		Port           string `yaml:"port"`
		BaseURL        string `yaml:"base_url"`
		RequestTimeout string `yaml:"request_timeout"`
	} `yaml:"server"`
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	Auth struct {
		// Mode is "static" (token is the subject) or "userinfo" (resolve via backend).
		Mode                 string   `yaml:"mode"`
		AuthorizationServers []string `yaml:"authorization_servers"`
		Scopes               []string `yaml:"scopes"`
	} `yaml:"auth"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	Backend struct {
		URL        string `yaml:"url"`
		AppName    string `yaml:"app_name"`
		AppVersion string `yaml:"app_version"`
		Timeout    string `yaml:"timeout"`
	} `yaml:"backend"`
	Session struct {
		TTL string `yaml:"ttl"`
	} `yaml:"session"`
	Quiz struct {
		TTL                  string `yaml:"ttl"`
		OptionsPerQuestion   *int   `yaml:"options_per_question"`
		RequireSingleCorrect *bool  `yaml:"require_single_correct"`
	} `yaml:"quiz"`
}

// Load reads YAML config from path. A missing file yields the zero config so
// the service can start on defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Rules returns the ingest validation rules, starting from the tool schema defaults.
func (c Config) Rules() domain.Rules {
	rules := domain.DefaultRules()
	if c.Quiz.OptionsPerQuestion != nil {
		rules.OptionsPerQuestion = *c.Quiz.OptionsPerQuestion
	}
	if c.Quiz.RequireSingleCorrect != nil {
		rules.RequireSingleCorrect = *c.Quiz.RequireSingleCorrect
	}
	return rules
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
