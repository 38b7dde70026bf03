package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/jo-hoe/ytscribe/internal/cache"
	"github.com/jo-hoe/ytscribe/internal/fetch"
)

type fakeSecrets struct {
	mu     sync.Mutex
	values map[string]string
	err    error
	calls  int
}

func (f *fakeSecrets) Secret(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	v, ok := f.values[id]
	if !ok {
		return "", errors.New("no such secret")
	}
	return v, nil
}

type countingCache struct {
	*cache.MemoryStore
	mu     sync.Mutex
	gets   int
	puts   int
	getErr error
	putErr error
}

func newCountingCache() *countingCache {
	return &countingCache{MemoryStore: cache.NewMemoryStore()}
}

func (c *countingCache) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	c.mu.Lock()
	c.gets++
	err := c.getErr
	c.mu.Unlock()
	if err != nil {
		return cache.Entry{}, false, err
	}
	return c.MemoryStore.Get(ctx, key)
}

func (c *countingCache) Put(ctx context.Context, key string, e cache.Entry) error {
	c.mu.Lock()
	c.puts++
	err := c.putErr
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.MemoryStore.Put(ctx, key, e)
}

type fakeFetcher struct {
	mu      sync.Mutex
	title   string
	err     error
	calls   int
	lastDir string
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string, dir, prefix string) (fetch.Media, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastDir = dir
	if f.err != nil {
		return fetch.Media{}, f.err
	}
	path := filepath.Join(dir, prefix+".mp3")
	if err := os.WriteFile(path, []byte("audio-bytes"), 0o600); err != nil {
		return fetch.Media{}, err
	}
	return fetch.Media{Title: f.title, Path: path}, nil
}

type fakeTranscriber struct {
	mu             sync.Mutex
	text           string
	err            error
	calls          int
	lastCredential string
	lastAudio      string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, r io.Reader, _ string, credential string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastCredential = credential
	b, _ := io.ReadAll(r)
	f.lastAudio = string(b)
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type failingWorkspace struct{}

func (failingWorkspace) NewScratch(string) (string, func() error, error) {
	return "", nil, errors.New("disk full")
}
