package storage

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jo-hoe/ytscribe/internal/common"
)

// Workspace hands out per-request scratch directories for downloaded media.
type Workspace struct {
	baseDir string
}

// NewWorkspace creates a workspace that stores to baseDir/work.
func NewWorkspace(baseDir string) *Workspace {
	return &Workspace{baseDir: filepath.Join(baseDir, common.WorkDirName)}
}

// Dir returns the root directory scratch directories are created in.
func (w *Workspace) Dir() string {
	return w.baseDir
}

// NewScratch creates a fresh directory named after prefix and returns its path
// and a cleanup function removing it with everything inside.
// The caller should always invoke the cleanup function; calling it twice is safe.
func (w *Workspace) NewScratch(prefix string) (string, func() error, error) {
	if err := os.MkdirAll(w.baseDir, 0o750); err != nil {
		return "", nil, fmt.Errorf("ensure work dir: %w", err)
	}
	if prefix == "" {
		prefix = "scratch"
	}
	dir := filepath.Join(w.baseDir, fmt.Sprintf("%s-%s", prefix, randomHex(8)))
	if err := os.Mkdir(dir, 0o750); err != nil {
		return "", nil, fmt.Errorf("create scratch dir: %w", err)
	}

	var once sync.Once
	var removeErr error
	cleanup := func() error {
		once.Do(func() {
			removeErr = os.RemoveAll(dir)
		})
		return removeErr
	}
	return dir, cleanup, nil
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
