package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/jo-hoe/ytscribe/internal/config"
	"github.com/jo-hoe/ytscribe/internal/transcriber"
)

var _ transcriber.Client = (*Client)(nil)

const (
	// Headers
	headerContentType   = "Content-Type"
	headerAuthorization = "Authorization"

	// Auth
	authSchemeBearer = "Bearer"

	// Endpoints
	endpointTranscriptions = "v1/audio/transcriptions"

	// Form fields
	fieldFile           = "file"
	fieldModel          = "model"
	fieldLanguage       = "language"
	fieldPrompt         = "prompt"
	fieldResponseFormat = "response_format"
	responseFormatJSON  = "json"

	// Timeouts and limits
	defaultTimeout    = 4 * time.Minute
	errorSnippetLimit = 400
	defaultFilename   = "audio.mp3"
)

// Client implements transcriber.Client against an OpenAI-compatible
// /v1/audio/transcriptions endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	model      string
	language   string
	prompt     string
}

// New creates a new Whisper transcription client.
func New(cfg config.WhisperSettings) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		language:   strings.TrimSpace(cfg.Language),
		prompt:     strings.TrimSpace(cfg.Prompt),
	}
}

// Transcribe uploads the audio as multipart form data and returns the recognized text.
func (c *Client) Transcribe(ctx context.Context, r io.Reader, filename, credential string) (string, error) {
	audio, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}
	if len(audio) == 0 {
		return "", fmt.Errorf("audio is empty")
	}

	body, contentType, err := c.buildForm(audio, filename)
	if err != nil {
		return "", err
	}

	u, err := url.JoinPath(c.baseURL, endpointTranscriptions)
	if err != nil {
		return "", fmt.Errorf("join url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set(headerContentType, contentType)
	if strings.TrimSpace(credential) != "" {
		req.Header.Set(headerAuthorization, authSchemeBearer+" "+credential)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("http do: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("whisper status %d: %s", resp.StatusCode, truncate(string(respBytes), errorSnippetLimit))
	}

	var out transcriptionResponse
	if err := json.Unmarshal(respBytes, &out); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	return out.Text, nil
}

func (c *Client) buildForm(audio []byte, filename string) (*bytes.Buffer, string, error) {
	name := filepath.Base(strings.TrimSpace(filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = defaultFilename
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile(fieldFile, name)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(audio); err != nil {
		return nil, "", fmt.Errorf("write form file: %w", err)
	}
	fields := [][2]string{
		{fieldModel, c.model},
		{fieldResponseFormat, responseFormatJSON},
		{fieldLanguage, c.language},
		{fieldPrompt, c.prompt},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f[0], err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

type transcriptionResponse struct {
	Text string `json:"text"`
}
