// Package config resolves run settings from an optional .env file and the
// process environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/joho/godotenv"
)

const (
	DefaultEnvFile     = ".env"
	DefaultModel       = "gpt-4o-mini"
	DefaultMaxAttempts = 10
	DefaultMaxTokens   = 2048
)

const (
	ProviderOpenAI = "openai"
	ProviderGroq   = "groq"
	ProviderGemini = "gemini"
)

const (
	ToolchainLocal  = "local"
	ToolchainDocker = "docker"
)

// Config is populated once at startup and treated as read-only afterwards.
type Config struct {
	Provider    string
	Model       string
	MaxAttempts int
	// APIKey may be empty; the LLM client reports that lazily on first use.
	APIKey    string
	BaseURL   string
	MaxTokens int

	LLMRetries int
	LLMRPS     float64
	LLMBurst   int

	// FailFast stops the run after the first configuration error instead of
	// spending the remaining attempts on it.
	FailFast bool

	WorkDir     string
	Verilator   string
	Viewer      string
	Toolchain   string
	DockerImage string

	TranscriptDir string
	History       string
	LogLevel      string

	Archive ArchiveConfig
}

type ArchiveConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Load reads envFile (if it exists) into the process environment without
// overriding keys that are already set, then resolves the Config.
func Load(envFile string) (*Config, error) {
	if err := LoadEnvFile(envFile); err != nil {
		return nil, err
	}
	return FromEnv(), nil
}

// LoadEnvFile applies KEY=VALUE assignments from path. A missing file is not an
// error.
func LoadEnvFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultEnvFile
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat env file %s: %w", path, err)
	}
	if info.IsDir() {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read env file %s: %w", path, err)
	}
	values, err := parseEnv(raw)
	if err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	for k, v := range values {
		if _, set := os.LookupEnv(k); set {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return fmt.Errorf("set %s: %w", k, err)
		}
	}
	return nil
}

// parseEnv accepts KEY=VALUE lines. Blank lines, # comments and lines without
// '=' are skipped, a leading "export " is dropped and one pair of surrounding
// quotes is stripped. Values are otherwise literal: no $VAR expansion and no
// inline comments. The first assignment of a key wins.
func parseEnv(raw []byte) (map[string]string, error) {
	var (
		doc     strings.Builder
		seen    = map[string]bool{}
		literal = map[string]string{}
	)
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		value = unquote(strings.TrimSpace(value))
		if !dotenvSafe(key, value) {
			literal[key] = value
			continue
		}
		// Single quotes keep godotenv from expanding or cutting the value.
		doc.WriteString(key + "='" + value + "'\n")
	}

	values, err := godotenv.Unmarshal(doc.String())
	if err != nil {
		return nil, err
	}
	for k, v := range literal {
		values[k] = v
	}
	return values, nil
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}

// dotenvSafe reports whether KEY='value' round-trips through godotenv.
func dotenvSafe(key, value string) bool {
	for _, r := range key {
		if r != '_' && r != '.' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return !strings.ContainsRune(value, '\'') && !strings.HasSuffix(value, `\`)
}

// FromEnv builds a Config from the current process environment.
func FromEnv() *Config {
	provider := strings.ToLower(getEnv("SV_AGENT_PROVIDER", ProviderOpenAI))
	maxAttempts := getEnvInt("SV_AGENT_MAX_ATTEMPTS", DefaultMaxAttempts)
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	maxTokens := getEnvInt("SV_AGENT_MAX_TOKENS", DefaultMaxTokens)
	if maxTokens < 1 {
		maxTokens = DefaultMaxTokens
	}
	retries := getEnvInt("SV_AGENT_LLM_RETRIES", 1)
	if retries < 1 {
		retries = 1
	}
	toolchain := strings.ToLower(getEnv("SV_AGENT_TOOLCHAIN", ToolchainLocal))

	return &Config{
		Provider:      provider,
		Model:         getEnv("SV_AGENT_MODEL", defaultModelFor(provider)),
		MaxAttempts:   maxAttempts,
		APIKey:        firstNonEmpty(getEnv("SV_AGENT_API_KEY", ""), getEnv(credentialKeyFor(provider), "")),
		BaseURL:       getEnv("SV_AGENT_BASE_URL", ""),
		MaxTokens:     maxTokens,
		LLMRetries:    retries,
		LLMRPS:        getEnvFloat("SV_AGENT_LLM_RPS", 0),
		LLMBurst:      getEnvInt("SV_AGENT_LLM_BURST", 0),
		FailFast:      getEnvBool("SV_AGENT_FAIL_FAST", false),
		WorkDir:       getEnv("SV_AGENT_WORKDIR", "."),
		Verilator:     getEnv("SV_AGENT_VERILATOR", "verilator"),
		Viewer:        getEnv("SV_AGENT_VIEWER", "surfer"),
		Toolchain:     toolchain,
		DockerImage:   getEnv("SV_AGENT_DOCKER_IMAGE", "verilator/verilator:latest"),
		TranscriptDir: getEnv("SV_AGENT_TRANSCRIPT_DIR", ""),
		History:       getEnv("SV_AGENT_HISTORY", ""),
		LogLevel:      strings.ToLower(getEnv("SV_AGENT_LOG_LEVEL", "warn")),
		Archive:       loadArchiveConfig(),
	}
}

// CredentialKey names the environment variable holding the provider's API key.
func (c *Config) CredentialKey() string {
	return credentialKeyFor(c.Provider)
}

func loadArchiveConfig() ArchiveConfig {
	endpoint := getEnv("SV_AGENT_ARCHIVE_S3_ENDPOINT", "")
	return ArchiveConfig{
		Enabled:   endpoint != "",
		Endpoint:  endpoint,
		Region:    getEnv("SV_AGENT_ARCHIVE_S3_REGION", "us-east-1"),
		AccessKey: getEnv("SV_AGENT_ARCHIVE_S3_ACCESS_KEY", ""),
		SecretKey: getEnv("SV_AGENT_ARCHIVE_S3_SECRET_KEY", ""),
		Bucket:    getEnv("SV_AGENT_ARCHIVE_S3_BUCKET", "svagent-designs"),
		UseSSL:    getEnvBool("SV_AGENT_ARCHIVE_S3_USE_SSL", true),
	}
}

func defaultModelFor(provider string) string {
	switch provider {
	case ProviderGroq:
		return "llama-3.3-70b-versatile"
	case ProviderGemini:
		return "gemini-2.5-flash"
	default:
		return DefaultModel
	}
}

func credentialKeyFor(provider string) string {
	switch provider {
	case ProviderGroq:
		return "GROQ_API_KEY"
	case ProviderGemini:
		return "GEMINI_API_KEY"
	default:
		return "OPENAI_API_KEY"
	}
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns fallback when the variable is unset or not an integer.
func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
