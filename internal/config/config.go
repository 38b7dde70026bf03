package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jo-hoe/ytscribe/internal/common"
)

// Config is the root configuration loaded from YAML.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Secrets     SecretsConfig     `yaml:"secrets"`
	Cache       CacheConfig       `yaml:"cache"`
	Fetcher     FetcherConfig     `yaml:"fetcher"`
	Transcriber TranscriberConfig `yaml:"transcriber"`
}

// ServerConfig holds HTTP server and runtime settings.
type ServerConfig struct {
	Addr          string        `yaml:"address"`
	ReadTimeout   time.Duration `yaml:"readTimeout"`
	WriteTimeout  time.Duration `yaml:"writeTimeout"`
	IdleTimeout   time.Duration `yaml:"idleTimeout"`
	MaxBodySize   ByteSize      `yaml:"maxBodySize"`
	StorageDir    string        `yaml:"storageDir"`
	ShutdownGrace time.Duration `yaml:"shutdownGrace"` // time to wait for in-flight requests
	LogLevel      string        `yaml:"logLevel"`      // debug|info|warn|error
	LogFormat     string        `yaml:"logFormat"`     // text|json
	RateLimit     float64       `yaml:"rateLimit"`     // requests per second, negative disables
	RateBurst     int           `yaml:"rateBurst"`
}

// SecretsConfig selects where the API key and transcription credential come from.
type SecretsConfig struct {
	Provider         string            `yaml:"provider"` // "static", "dir" or "secretsmanager"
	Dir              string            `yaml:"dir"`      // used by provider "dir"
	Values           map[string]string `yaml:"values"`   // used by provider "static"; supports env expansion
	Region           string            `yaml:"region"`   // used by provider "secretsmanager"; empty uses AWS_REGION
	Endpoint         string            `yaml:"endpoint"` // optional Secrets Manager endpoint override
	APIKey           SecretRef         `yaml:"apiKey"`
	TranscriptionKey SecretRef         `yaml:"transcriptionKey"`
}

// SecretRef names a secret and optionally a JSON field inside it.
type SecretRef struct {
	ID    string `yaml:"id"`
	Field string `yaml:"field"`
}

// CacheConfig selects the transcript cache backend.
type CacheConfig struct {
	Provider string         `yaml:"provider"` // memory|sqlite|redis|minio
	SQLite   SQLiteSettings `yaml:"sqlite"`
	Redis    RedisSettings  `yaml:"redis"`
	MinIO    MinIOSettings  `yaml:"minio"`
}

// SQLiteSettings config for the SQLite cache.
type SQLiteSettings struct {
	Path string `yaml:"path"` // optional, defaults to storageDir/ytscribe.db
}

// RedisSettings config for the Redis cache.
type RedisSettings struct {
	Addr      string        `yaml:"addr"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"keyPrefix"`
	TTL       time.Duration `yaml:"ttl"` // zero keeps entries forever
}

// MinIOSettings config for the S3 compatible object cache.
type MinIOSettings struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"accessKeyId"`
	SecretAccessKey string `yaml:"secretAccessKey"`
	UseSSL          bool   `yaml:"useSSL"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
}

// FetcherConfig selects how audio is obtained for a video URL.
type FetcherConfig struct {
	Provider string        `yaml:"provider"` // "ytdlp"
	YTDLP    YTDLPSettings `yaml:"ytdlp"`
}

// YTDLPSettings config for the yt-dlp fetcher.
type YTDLPSettings struct {
	Binary      string   `yaml:"binary"`
	AudioFormat string   `yaml:"audioFormat"`
	ExtraArgs   []string `yaml:"extraArgs"`
}

// TranscriberConfig selects provider and provider-specific options.
type TranscriberConfig struct {
	Provider string          `yaml:"provider"` // "whisper" or "mock"
	Whisper  WhisperSettings `yaml:"whisper"`
	Mock     MockSettings    `yaml:"mock"`
}

// WhisperSettings config for an OpenAI-compatible transcription endpoint.
type WhisperSettings struct {
	BaseURL  string        `yaml:"baseUrl"`  // e.g. https://api.openai.com
	Model    string        `yaml:"model"`    // e.g. whisper-1
	Language string        `yaml:"language"` // optional ISO-639-1 hint
	Prompt   string        `yaml:"prompt"`   // optional
	Timeout  time.Duration `yaml:"timeout"`
}

// MockSettings config for the mock transcriber.
type MockSettings struct {
	Delay  time.Duration `yaml:"delay"`
	Prefix string        `yaml:"prefix"`
}

// ByteSize represents a size in bytes that unmarshals from strings like "10Mi", "20MB", "512KiB", "1024".
type ByteSize uint64

// UnmarshalYAML implements yaml unmarshalling for ByteSize.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		str := strings.TrimSpace(value.Value)
		parsed, err := ParseByteSize(str)
		if err != nil {
			return err
		}
		*b = ByteSize(parsed)
		return nil
	}
	return fmt.Errorf("invalid bytesize node kind: %v", value.Kind)
}

var reNumeric = regexp.MustCompile(`^\d+$`)

// ParseByteSize parses a string like "10Mi", "20MB", "512KiB", "1024" into bytes.
// Supports Kubernetes-style quantities for binary units: Ki, Mi, Gi (case-insensitive).
// Also accepts KiB/MiB/GiB and decimal KB/MB/GB, and bare bytes.
func ParseByteSize(s string) (uint64, error) {
	orig := s
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty size")
	}
	if reNumeric.MatchString(s) {
		val, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid size number: %w", err)
		}
		return val, nil
	}

	up := strings.ToUpper(s)

	type unit struct {
		suffix string
		value  uint64
	}
	units := []unit{
		{"KIB", 1024},
		{"MIB", 1024 * 1024},
		{"GIB", 1024 * 1024 * 1024},
		{"KI", 1024},
		{"MI", 1024 * 1024},
		{"GI", 1024 * 1024 * 1024},
		{"KB", 1000},
		{"MB", 1000 * 1000},
		{"GB", 1000 * 1000 * 1000},
		{"B", 1},
	}
	for _, u := range units {
		if strings.HasSuffix(up, u.suffix) {
			num := strings.TrimSpace(s[:len(s)-len(u.suffix)])
			val, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid size number in %q: %w", orig, err)
			}
			return uint64(val * float64(u.value)), nil
		}
	}
	return 0, fmt.Errorf("unknown size suffix in %q", orig)
}

// Load reads YAML config from path, expands environment variables, and validates it.
// If path is empty, it will attempt to read from env var YTSCRIBE_CONFIG, then default to "config.yaml".
// A missing default "config.yaml" is not an error; defaults are used instead.
func Load(path string) (*Config, error) {
	explicit := true
	if path == "" {
		if env := os.Getenv("YTSCRIBE_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
			explicit = false
		}
	}
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath) // #nosec G304 - reading sanitized config file path is expected
	if err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		data = nil
	}
	return Parse(data)
}

// Parse builds a Config from raw YAML, applying env expansion, defaults and validation.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Server.StorageDir, 0o750); err != nil {
		return nil, fmt.Errorf("ensure storageDir: %w", err)
	}
	if cfg.Cache.SQLite.Path == "" {
		cfg.Cache.SQLite.Path = filepath.Join(cfg.Server.StorageDir, "ytscribe.db")
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 5 * time.Minute
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = ByteSize(64 * 1024)
	}
	if cfg.Server.StorageDir == "" {
		cfg.Server.StorageDir = filepath.Join(os.TempDir(), "ytscribe")
	}
	if cfg.Server.ShutdownGrace == 0 {
		cfg.Server.ShutdownGrace = 15 * time.Second
	}
	if strings.TrimSpace(cfg.Server.LogLevel) == "" {
		cfg.Server.LogLevel = "info"
	}
	if strings.TrimSpace(cfg.Server.LogFormat) == "" {
		cfg.Server.LogFormat = "text"
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = common.DefaultRateLimit
	}
	if cfg.Server.RateBurst <= 0 {
		cfg.Server.RateBurst = common.DefaultRateBurst
	}

	// Secrets defaults
	if cfg.Secrets.Provider == "" {
		cfg.Secrets.Provider = "static"
		if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
			cfg.Secrets.Provider = "secretsmanager"
		}
	}
	if cfg.Secrets.APIKey.ID == "" {
		cfg.Secrets.APIKey = SecretRef{ID: common.SecretAPIKeyID, Field: common.SecretAPIKeyField}
	}
	if cfg.Secrets.TranscriptionKey.ID == "" {
		cfg.Secrets.TranscriptionKey.ID = common.SecretTranscriptionKeyID
	}

	// Cache defaults
	if cfg.Cache.Provider == "" {
		cfg.Cache.Provider = "sqlite"
	}
	if cfg.Cache.Redis.KeyPrefix == "" {
		cfg.Cache.Redis.KeyPrefix = common.RedisKeyPrefix
	}
	cfg.Cache.MinIO.Prefix = normalizePathPrefix(cfg.Cache.MinIO.Prefix)

	// Fetcher defaults
	if cfg.Fetcher.Provider == "" {
		cfg.Fetcher.Provider = "ytdlp"
	}
	if cfg.Fetcher.YTDLP.Binary == "" {
		cfg.Fetcher.YTDLP.Binary = "yt-dlp"
	}
	if cfg.Fetcher.YTDLP.AudioFormat == "" {
		cfg.Fetcher.YTDLP.AudioFormat = "mp3"
	}

	// Transcriber defaults
	if cfg.Transcriber.Provider == "" {
		cfg.Transcriber.Provider = "whisper"
	}
	if strings.TrimSpace(cfg.Transcriber.Whisper.BaseURL) == "" {
		cfg.Transcriber.Whisper.BaseURL = "https://api.openai.com"
	}
	if strings.TrimSpace(cfg.Transcriber.Whisper.Model) == "" {
		cfg.Transcriber.Whisper.Model = "whisper-1"
	}
	if cfg.Transcriber.Whisper.Timeout == 0 {
		cfg.Transcriber.Whisper.Timeout = 4 * time.Minute
	}
	if cfg.Transcriber.Mock.Prefix == "" {
		cfg.Transcriber.Mock.Prefix = "Transcribed by Mock"
	}
}

func validate(cfg *Config) error {
	switch strings.ToLower(cfg.Server.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("server.logFormat %q is not supported", cfg.Server.LogFormat)
	}

	switch cfg.Secrets.Provider {
	case "static", "secretsmanager":
	case "dir":
		if strings.TrimSpace(cfg.Secrets.Dir) == "" {
			return errors.New("secrets.dir is required for provider dir")
		}
	default:
		return fmt.Errorf("secrets.provider %q is not supported", cfg.Secrets.Provider)
	}

	switch cfg.Cache.Provider {
	case "memory", "sqlite":
	case "redis":
		if strings.TrimSpace(cfg.Cache.Redis.Addr) == "" {
			return errors.New("cache.redis.addr is required")
		}
	case "minio":
		if strings.TrimSpace(cfg.Cache.MinIO.Endpoint) == "" {
			return errors.New("cache.minio.endpoint is required")
		}
		if strings.TrimSpace(cfg.Cache.MinIO.Bucket) == "" {
			return errors.New("cache.minio.bucket is required")
		}
	default:
		return fmt.Errorf("cache.provider %q is not supported", cfg.Cache.Provider)
	}

	if cfg.Fetcher.Provider != "ytdlp" {
		return fmt.Errorf("fetcher.provider %q is not supported", cfg.Fetcher.Provider)
	}

	switch cfg.Transcriber.Provider {
	case "whisper", "mock":
	default:
		return fmt.Errorf("transcriber.provider %q is not supported", cfg.Transcriber.Provider)
	}
	return nil
}

func normalizePathPrefix(p string) string {
	if p == "" {
		return p
	}
	p = strings.ReplaceAll(p, "\\", "/")
	if !strings.HasSuffix(p, "/") {
		p = p + "/"
	}
	// Remove leading "./"
	p = strings.TrimPrefix(p, "./")
	return p
}
