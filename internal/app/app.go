// Package app assembles the pipeline and its collaborators from configuration.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jo-hoe/ytscribe/internal/cache"
	"github.com/jo-hoe/ytscribe/internal/config"
	"github.com/jo-hoe/ytscribe/internal/fetch"
	"github.com/jo-hoe/ytscribe/internal/pipeline"
	"github.com/jo-hoe/ytscribe/internal/secrets"
	"github.com/jo-hoe/ytscribe/internal/storage"
	"github.com/jo-hoe/ytscribe/internal/transcriber"
	"github.com/jo-hoe/ytscribe/internal/transcriber/mock"
	"github.com/jo-hoe/ytscribe/internal/transcriber/whisper"
)

// App owns the wired pipeline and the resources that need closing.
type App struct {
	Log     *slog.Logger
	Cfg     *config.Config
	Handler *pipeline.Handler
	Cache   cache.Store
}

// New builds every collaborator named in cfg.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = NewLogger(os.Stdout, cfg.Server)
	}

	store, err := NewCache(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}

	client, err := NewTranscriber(cfg.Transcriber)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	secretStore, err := NewSecrets(ctx, cfg.Secrets)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	yt := cfg.Fetcher.YTDLP
	handler := pipeline.New(pipeline.Dependencies{
		Log:              log,
		Secrets:          secretStore,
		APIKey:           secrets.Ref(cfg.Secrets.APIKey),
		TranscriptionKey: secrets.Ref(cfg.Secrets.TranscriptionKey),
		Cache:            store,
		Fetcher:          fetch.NewYTDLP(log, yt.Binary, yt.AudioFormat, yt.ExtraArgs),
		Workspace:        storage.NewWorkspace(cfg.Server.StorageDir),
		Transcriber:      client,
	})

	log.Info("app ready",
		"cache", cfg.Cache.Provider,
		"secrets", cfg.Secrets.Provider,
		"transcriber", cfg.Transcriber.Provider)
	return &App{Log: log, Cfg: cfg, Handler: handler, Cache: store}, nil
}

// Close releases the cache backend.
func (a *App) Close() error {
	if a.Cache == nil {
		return nil
	}
	return a.Cache.Close()
}

// NewLogger builds the process logger from the server settings.
func NewLogger(w io.Writer, cfg config.ServerConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}
	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewSecrets returns the configured secret store.
func NewSecrets(ctx context.Context, cfg config.SecretsConfig) (secrets.Store, error) {
	switch cfg.Provider {
	case "static":
		return secrets.NewStaticStore(cfg.Values), nil
	case "dir":
		return secrets.NewDirStore(cfg.Dir), nil
	case "secretsmanager":
		client, err := secrets.NewSecretsManagerClient(ctx, cfg.Region, cfg.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("secrets manager: %w", err)
		}
		return secrets.NewSecretsManagerStore(client), nil
	default:
		return nil, fmt.Errorf("unsupported secrets provider %q", cfg.Provider)
	}
}

// NewCache opens the configured transcript cache.
func NewCache(ctx context.Context, cfg config.CacheConfig) (cache.Store, error) {
	switch cfg.Provider {
	case "memory":
		return cache.NewMemoryStore(), nil
	case "sqlite":
		s, err := cache.NewSQLiteStore(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("sqlite cache: %w", err)
		}
		return s, nil
	case "redis":
		r := cfg.Redis
		client, err := cache.NewRedisClient(ctx, cache.RedisConfig{
			Addr:     r.Addr,
			Username: r.Username,
			Password: r.Password,
			DB:       r.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		return cache.NewRedisStore(client, r.KeyPrefix, r.TTL), nil
	case "minio":
		m := cfg.MinIO
		s, err := cache.NewMinIOStore(ctx, cache.MinIOConfig{
			Endpoint:        m.Endpoint,
			AccessKeyID:     m.AccessKeyID,
			SecretAccessKey: m.SecretAccessKey,
			UseSSL:          m.UseSSL,
			Region:          m.Region,
			Bucket:          m.Bucket,
			Prefix:          m.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("minio cache: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported cache provider %q", cfg.Provider)
	}
}

// NewTranscriber returns the configured speech-to-text client.
func NewTranscriber(cfg config.TranscriberConfig) (transcriber.Client, error) {
	switch cfg.Provider {
	case "whisper":
		return whisper.New(cfg.Whisper), nil
	case "mock":
		return mock.New(cfg.Mock), nil
	default:
		return nil, fmt.Errorf("unsupported transcriber provider %q", cfg.Provider)
	}
}
