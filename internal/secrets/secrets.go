// Package secrets resolves named secrets such as the HTTP API key and the
// transcription service credential.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrSecretNotFound is returned when a store has no secret for the given id.
var ErrSecretNotFound = errors.New("secret not found")

// Store returns the raw string value of a secret by id.
type Store interface {
	Secret(ctx context.Context, id string) (string, error)
}

// Ref points at a secret. When Field is set the secret value is a JSON object
// and the field's string value is used.
type Ref struct {
	ID    string
	Field string
}

// Resolve fetches ref from store and extracts Field if configured.
func Resolve(ctx context.Context, store Store, ref Ref) (string, error) {
	if store == nil {
		return "", errors.New("secret store is nil")
	}
	raw, err := store.Secret(ctx, ref.ID)
	if err != nil {
		return "", fmt.Errorf("get secret %q: %w", ref.ID, err)
	}
	if ref.Field == "" {
		return raw, nil
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return "", fmt.Errorf("decode secret %q: %w", ref.ID, err)
	}
	v, ok := fields[ref.Field].(string)
	if !ok {
		return "", fmt.Errorf("secret %q field %q: %w", ref.ID, ref.Field, ErrSecretNotFound)
	}
	return v, nil
}

// StaticStore serves secrets from an in-memory map, typically filled from config.
type StaticStore struct {
	values map[string]string
}

var _ Store = (*StaticStore)(nil)

// NewStaticStore copies values into a new StaticStore.
func NewStaticStore(values map[string]string) *StaticStore {
	cpy := make(map[string]string, len(values))
	for k, v := range values {
		cpy[k] = v
	}
	return &StaticStore{values: cpy}
}

func (s *StaticStore) Secret(ctx context.Context, id string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	v, ok := s.values[id]
	if !ok {
		return "", ErrSecretNotFound
	}
	return v, nil
}

// DirStore reads each secret from a file named after its id inside dir,
// the layout used by mounted secret volumes.
type DirStore struct {
	dir string
}

var _ Store = (*DirStore)(nil)

// NewDirStore creates a DirStore rooted at dir.
func NewDirStore(dir string) *DirStore {
	return &DirStore{dir: dir}
}

func (s *DirStore) Secret(ctx context.Context, id string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if id == "" || id != filepath.Base(id) {
		return "", fmt.Errorf("invalid secret id %q", id)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, id)) // #nosec G304 - id is restricted to a base name
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrSecretNotFound
		}
		return "", fmt.Errorf("read secret file: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}
