package mock

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/jo-hoe/ytscribe/internal/config"
	"github.com/jo-hoe/ytscribe/internal/transcriber"
)

var _ transcriber.Client = (*Client)(nil)

// Client is a transcriber that echoes what it received after an optional delay.
type Client struct {
	delay  time.Duration
	prefix string
}

func New(cfg config.MockSettings) *Client {
	return &Client{delay: cfg.Delay, prefix: cfg.Prefix}
}

func (c *Client) Transcribe(ctx context.Context, r io.Reader, filename, _ string) (string, error) {
	n, err := io.Copy(io.Discard, r)
	if err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}
	if c.delay > 0 {
		timer := time.NewTimer(c.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s: %s (%d bytes)", c.prefix, filepath.Base(filename), n), nil
}
