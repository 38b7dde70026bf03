// Package fetch obtains the title and a local audio file for a video URL.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultBinary      = "yt-dlp"
	defaultAudioFormat = "mp3"
	defaultPrefix      = "video"
	stderrSnippetLimit = 400
)

// Media is the result of a fetch: the video title and the extracted audio file.
type Media struct {
	Title string
	Path  string
}

// Fetcher downloads the audio of videoURL into dir using prefix as file name stem.
type Fetcher interface {
	Fetch(ctx context.Context, videoURL, dir, prefix string) (Media, error)
}

// CommandRunner executes an external command and returns its output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) // #nosec G204 - binary comes from config, args are built internally
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// YTDLP fetches media with the yt-dlp command line tool.
type YTDLP struct {
	Runner      CommandRunner
	Binary      string
	AudioFormat string
	ExtraArgs   []string
	Log         *slog.Logger
}

var _ Fetcher = (*YTDLP)(nil)

// NewYTDLP creates a yt-dlp fetcher. Empty binary and format fall back to defaults.
func NewYTDLP(log *slog.Logger, binary, audioFormat string, extraArgs []string) *YTDLP {
	return &YTDLP{
		Runner:      ExecRunner{},
		Binary:      binary,
		AudioFormat: audioFormat,
		ExtraArgs:   extraArgs,
		Log:         log,
	}
}

func (y *YTDLP) Fetch(ctx context.Context, videoURL, dir, prefix string) (Media, error) {
	if prefix == "" {
		prefix = defaultPrefix
	}
	bin := y.Binary
	if bin == "" {
		bin = defaultBinary
	}
	args := y.buildArgs(videoURL, dir, prefix)

	start := time.Now()
	stdout, stderr, err := y.runner().Run(ctx, bin, args...)
	if err != nil {
		if ctx.Err() != nil {
			return Media{}, ctx.Err()
		}
		return Media{}, fmt.Errorf("%s failed: %w: %s", bin, err, truncate(strings.TrimSpace(string(stderr)), stderrSnippetLimit))
	}
	y.logger().Debug("yt-dlp finished", "url", videoURL, "duration", time.Since(start).String())

	title, path := parsePrintOutput(stdout)
	if path == "" {
		path, err = findMedia(dir, prefix)
		if err != nil {
			return Media{}, err
		}
	}
	if _, err := os.Stat(path); err != nil {
		return Media{}, fmt.Errorf("media file: %w", err)
	}
	if title == "" {
		title = prefix
	}
	return Media{Title: title, Path: path}, nil
}

func (y *YTDLP) buildArgs(videoURL, dir, prefix string) []string {
	format := y.AudioFormat
	if format == "" {
		format = defaultAudioFormat
	}
	args := []string{
		"--no-playlist",
		"--no-progress",
		"--no-simulate",
		"--print", "title",
		"--print", "after_move:filepath",
		"--extract-audio",
		"--audio-format", format,
		"--output", filepath.Join(dir, prefix+".%(ext)s"),
	}
	args = append(args, y.ExtraArgs...)
	// "--" keeps a URL from ever being read as an option.
	return append(args, "--", videoURL)
}

func (y *YTDLP) runner() CommandRunner {
	if y.Runner == nil {
		return ExecRunner{}
	}
	return y.Runner
}

func (y *YTDLP) logger() *slog.Logger {
	if y.Log == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return y.Log
}

// parsePrintOutput reads the two --print lines: title first, final file path last.
func parsePrintOutput(out []byte) (title, path string) {
	var lines []string
	for _, l := range strings.Split(string(out), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	switch len(lines) {
	case 0:
		return "", ""
	case 1:
		return lines[0], ""
	default:
		return lines[0], lines[len(lines)-1]
	}
}

func findMedia(dir, prefix string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, prefix+".*"))
	if err != nil {
		return "", fmt.Errorf("glob media: %w", err)
	}
	if len(matches) == 0 {
		return "", errors.New("no media file produced")
	}
	return matches[0], nil
}

// FilenamePrefix derives a file name stem from the video id of a watch URL.
func FilenamePrefix(videoURL string) string {
	id := VideoID(videoURL)
	if id == "" {
		return defaultPrefix
	}
	return id
}

// VideoID returns the v query parameter of a watch URL, or "".
func VideoID(videoURL string) string {
	u, err := url.Parse(videoURL)
	if err != nil {
		return ""
	}
	id := u.Query().Get("v")
	// Only keep characters that are safe in file names.
	if strings.IndexFunc(id, func(r rune) bool {
		return !(r == '-' || r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	}) >= 0 {
		return ""
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
