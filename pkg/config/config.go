package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ErrMissingCredential is returned when a required API key or DSN is not set.
var ErrMissingCredential = errors.New("missing credential")

type Config struct {
	Agent     string          `mapstructure:"agent" yaml:"agent,omitempty"`
	Embedding EmbeddingConfig `mapstructure:"embedding" yaml:"embedding,omitempty"`
	Corpus    CorpusConfig    `mapstructure:"corpus" yaml:"corpus,omitempty"`
	Match     MatchConfig     `mapstructure:"match" yaml:"match,omitempty"`
	Classify  ClassifyConfig  `mapstructure:"classify" yaml:"classify,omitempty"`
	Ingest    IngestConfig    `mapstructure:"ingest" yaml:"ingest,omitempty"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server,omitempty"`
	Log       LogConfig       `mapstructure:"log" yaml:"log,omitempty"`
}

type EmbeddingConfig struct {
	URL        string        `mapstructure:"url"`
	Model      string        `mapstructure:"model"`
	Dimensions int           `mapstructure:"dimensions"`
	Timeout    time.Duration `mapstructure:"timeout"`
	// RequestsPerSecond caps calls to the provider; zero disables the limit.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// CorpusConfig selects the corpus backend. Driver is "sqlite" or "postgres".
type CorpusConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// Profile is a similarity threshold and result limit for one use of the matcher.
type Profile struct {
	Threshold float64 `mapstructure:"threshold"`
	Limit     int     `mapstructure:"limit"`
}

type MatchConfig struct {
	Timeout       time.Duration      `mapstructure:"timeout"`
	IncludePrompt bool               `mapstructure:"include_prompt"`
	Profiles      map[string]Profile `mapstructure:"profiles"`
}

type ClassifyConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	PromptPath string        `mapstructure:"prompt_path"`
}

type IngestConfig struct {
	EmbedBatchSize int           `mapstructure:"embed_batch_size"`
	LoadBatchSize  int           `mapstructure:"load_batch_size"`
	RateLimitWait  time.Duration `mapstructure:"rate_limit_wait"`
	BatchPause     time.Duration `mapstructure:"batch_pause"`
	CacheDir       string        `mapstructure:"cache_dir"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Profile names used by the matcher's callers.
const (
	ProfileConversation = "conversation"
	ProfileDocument     = "document"
	ProfileSearch       = "search"
	ProfileVerify       = "verify"
)

// Profile returns the named matcher profile.
func (c *Config) Profile(name string) (Profile, error) {
	p, ok := c.Match.Profiles[strings.ToLower(name)]
	if !ok {
		names := make([]string, 0, len(c.Match.Profiles))
		for n := range c.Match.Profiles {
			names = append(names, n)
		}
		sort.Strings(names)
		return Profile{}, fmt.Errorf("unknown profile %q (valid: %s)", name, strings.Join(names, ", "))
	}
	return p, nil
}

var (
	configFile = ".solvx-config.yaml"
	v          *viper.Viper
)

func init() {
	v = newViper()
	// Try to read config file (ignore if not exists)
	_ = v.ReadInConfig()
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigFile(configFile)
	setDefaults(v)

	// Environment variables
	v.SetEnvPrefix("SOLVX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("corpus.dsn", "SOLVX_CORPUS_DSN", "DATABASE_URL")
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("agent", "claude-haiku-4-5")

	v.SetDefault("embedding.url", "https://api.openai.com/v1")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("embedding.timeout", 30*time.Second)
	v.SetDefault("embedding.requests_per_second", 5.0)

	v.SetDefault("corpus.driver", "sqlite")
	v.SetDefault("corpus.dsn", filepath.Join(".solvx", "corpus.db"))

	v.SetDefault("match.timeout", 10*time.Second)
	v.SetDefault("match.include_prompt", true)
	for name, p := range DefaultProfiles() {
		v.SetDefault("match.profiles."+name+".threshold", p.Threshold)
		v.SetDefault("match.profiles."+name+".limit", p.Limit)
	}

	v.SetDefault("classify.timeout", 10*time.Second)
	v.SetDefault("classify.prompt_path", filepath.Join(".solvx", "prompts", "classify.md"))

	v.SetDefault("ingest.embed_batch_size", 20)
	v.SetDefault("ingest.load_batch_size", 50)
	v.SetDefault("ingest.rate_limit_wait", 60*time.Second)
	v.SetDefault("ingest.batch_pause", 500*time.Millisecond)
	v.SetDefault("ingest.cache_dir", filepath.Join(os.ExpandEnv("$HOME"), ".cache", "solvx", "embeddings"))

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
}

// DefaultProfiles returns the built-in matcher profiles.
func DefaultProfiles() map[string]Profile {
	return map[string]Profile{
		ProfileConversation: {Threshold: 0.65, Limit: 3},
		ProfileDocument:     {Threshold: 0.65, Limit: 4},
		ProfileSearch:       {Threshold: 0.70, Limit: 3},
		ProfileVerify:       {Threshold: 0.50, Limit: 5},
	}
}

func Path() string {
	return configFile
}

// SetPath points the package at a different config file and re-reads it.
func SetPath(path string) error {
	configFile = path
	v = newViper()
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

type keyKind int

const (
	kindString keyKind = iota
	kindInt
	kindFloat
	kindBool
	kindDuration
	kindRate
)

// keys lists the settable config keys.
var keys = map[string]keyKind{
	"agent":                         kindString,
	"embedding.url":                 kindString,
	"embedding.model":               kindString,
	"embedding.dimensions":          kindInt,
	"embedding.timeout":             kindDuration,
	"embedding.requests_per_second": kindRate,
	"corpus.driver":                 kindString,
	"corpus.dsn":                    kindString,
	"match.timeout":                 kindDuration,
	"match.include_prompt":          kindBool,
	"classify.timeout":              kindDuration,
	"classify.prompt_path":          kindString,
	"ingest.embed_batch_size":       kindInt,
	"ingest.load_batch_size":        kindInt,
	"ingest.rate_limit_wait":        kindDuration,
	"ingest.batch_pause":            kindDuration,
	"ingest.cache_dir":              kindString,
	"server.addr":                   kindString,
	"log.level":                     kindString,
	"log.format":                    kindString,
}

func init() {
	for name := range DefaultProfiles() {
		keys["match.profiles."+name+".threshold"] = kindFloat
		keys["match.profiles."+name+".limit"] = kindInt
	}
}

// Keys returns the settable keys, sorted.
func Keys() []string {
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func Get(key string) (string, error) {
	if _, ok := keys[key]; !ok {
		return "", fmt.Errorf("unknown config key: %s", key)
	}
	return v.GetString(key), nil
}

// Set validates value for key and persists it to the config file.
// Only keys explicitly set are written; defaults stay implicit.
func Set(key, value string) error {
	kind, ok := keys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %s (run 'solvx config list' for valid keys)", key)
	}

	typed, err := parseValue(kind, value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if key == "corpus.driver" && value != "sqlite" && value != "postgres" {
		return fmt.Errorf("invalid value for %s: must be sqlite or postgres", key)
	}

	doc, err := readFile()
	if err != nil {
		return err
	}
	setNested(doc, strings.Split(key, "."), typed)

	v.Set(key, typed) // keep viper in sync
	return writeFile(doc)
}

func parseValue(kind keyKind, value string) (any, error) {
	switch kind {
	case kindInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, err
		}
		if n <= 0 {
			return nil, fmt.Errorf("must be positive")
		}
		return n, nil
	case kindFloat:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, err
		}
		if f < 0 || f > 1 {
			return nil, fmt.Errorf("must be between 0 and 1")
		}
		return f, nil
	case kindRate:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, err
		}
		if f < 0 {
			return nil, fmt.Errorf("must not be negative")
		}
		return f, nil
	case kindBool:
		return strconv.ParseBool(value)
	case kindDuration:
		if _, err := time.ParseDuration(value); err != nil {
			return nil, err
		}
		return value, nil
	default:
		return value, nil
	}
}

func readFile() (map[string]any, error) {
	doc := map[string]any{}
	data, err := os.ReadFile(configFile)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", configFile, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

func setNested(doc map[string]any, path []string, value any) {
	if len(path) == 1 {
		doc[path[0]] = value
		return
	}
	child, ok := doc[path[0]].(map[string]any)
	if !ok {
		child = map[string]any{}
		doc[path[0]] = child
	}
	setNested(child, path[1:], value)
}

func writeFile(doc map[string]any) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	if dir := filepath.Dir(configFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(configFile, buf.Bytes(), 0o644)
}

// All returns every settable key with its effective value.
func All() (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for k := range keys {
		out[k] = v.GetString(k)
	}
	return out, nil
}

// Env returns the value of an environment variable or ErrMissingCredential.
func Env(name string) (string, error) {
	val := strings.TrimSpace(os.Getenv(name))
	if val == "" {
		return "", fmt.Errorf("%w: %s is not set", ErrMissingCredential, name)
	}
	return val, nil
}

// ResetForTest resets viper for testing (only use in tests)
func ResetForTest(testPath string) {
	configFile = filepath.Join(testPath, ".solvx-config.yaml")
	v = newViper()
}
