package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jo-hoe/ytscribe/internal/common"
	"github.com/jo-hoe/ytscribe/internal/secrets"
	"github.com/jo-hoe/ytscribe/internal/storage"
)

const (
	validKey = "k-123"
	videoURL = "https://www.youtube.com/watch?v=abc123"
)

type harness struct {
	secrets     *fakeSecrets
	cache       *countingCache
	fetcher     *fakeFetcher
	transcriber *fakeTranscriber
	workspace   *storage.Workspace
	handler     *Handler
	now         time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		secrets: &fakeSecrets{values: map[string]string{
			common.SecretAPIKeyID:           `{"http-api-key":"` + validKey + `"}`,
			common.SecretTranscriptionKeyID: "sk-openai",
		}},
		cache:       newCountingCache(),
		fetcher:     &fakeFetcher{title: "T"},
		transcriber: &fakeTranscriber{text: "hello world"},
		workspace:   storage.NewWorkspace(t.TempDir()),
		now:         time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	h.handler = New(Dependencies{
		Secrets:          h.secrets,
		APIKey:           secrets.Ref{ID: common.SecretAPIKeyID, Field: common.SecretAPIKeyField},
		TranscriptionKey: secrets.Ref{ID: common.SecretTranscriptionKeyID},
		Cache:            h.cache,
		Fetcher:          h.fetcher,
		Workspace:        h.workspace,
		Transcriber:      h.transcriber,
		Now:              func() time.Time { return h.now },
	})
	return h
}

func transcribeRequest(body string, key string) Request {
	headers := http.Header{}
	if key != "" {
		headers.Set(common.HeaderAPIKey, key)
	}
	return Request{Method: http.MethodPost, Path: common.PathTranscribe, Headers: headers, Body: body}
}

func decodeBody(t *testing.T, resp Response) map[string]string {
	t.Helper()
	var m map[string]string
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &m), "body %q", resp.Body)
	return m
}

func TestHandle_EndToEndCacheMissThenHit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := transcribeRequest(`{"url":"`+videoURL+`"}`, validKey)

	first := h.handler.Handle(ctx, req)

	assert.Equal(t, http.StatusOK, first.StatusCode)
	assert.False(t, first.IsBase64Encoded)
	assert.Equal(t, `{"success":"OK","transcript":"hello world"}`, first.Body)
	assert.Equal(t, common.ContentTypeJSON, first.Headers[common.HeaderContentType])
	assert.Equal(t, "*", first.Headers[common.HeaderAllowOrigin])
	assert.Equal(t, "POST, OPTIONS", first.Headers[common.HeaderAllowMethods])
	assert.Equal(t, "Content-Type", first.Headers[common.HeaderAllowHeaders])
	assert.Equal(t, 1, h.fetcher.calls)
	assert.Equal(t, 1, h.transcriber.calls)
	assert.Equal(t, "sk-openai", h.transcriber.lastCredential)
	assert.Equal(t, "audio-bytes", h.transcriber.lastAudio)

	entry, ok, err := h.cache.MemoryStore.Get(ctx, videoURL)
	require.NoError(t, err)
	require.True(t, ok, "cache entry keyed by the url must exist")
	assert.Equal(t, "hello world", entry.Transcript)
	assert.Equal(t, "T", entry.Title)
	assert.True(t, h.now.Equal(entry.CachedDate))

	second := h.handler.Handle(ctx, req)

	assert.Equal(t, first, second, "cached response must be identical")
	assert.Equal(t, 1, h.fetcher.calls, "fetcher must not run on a cache hit")
	assert.Equal(t, 1, h.transcriber.calls, "transcriber must not run on a cache hit")
	assert.Equal(t, 1, h.cache.puts)
}

func TestHandle_ScratchDirRemovedOnAllPaths(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		h := newHarness(t)
		resp := h.handler.Handle(context.Background(), transcribeRequest(`{"url":"`+videoURL+`"}`, validKey))
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.NotEmpty(t, h.fetcher.lastDir)
		_, err := os.Stat(h.fetcher.lastDir)
		assert.True(t, os.IsNotExist(err), "scratch dir should be gone, stat err=%v", err)
	})

	t.Run("transcription failure", func(t *testing.T) {
		h := newHarness(t)
		h.transcriber.err = errors.New("quota exceeded")
		resp := h.handler.Handle(context.Background(), transcribeRequest(`{"url":"`+videoURL+`"}`, validKey))
		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		_, err := os.Stat(h.fetcher.lastDir)
		assert.True(t, os.IsNotExist(err), "scratch dir should be gone, stat err=%v", err)
	})

	t.Run("fetch failure", func(t *testing.T) {
		h := newHarness(t)
		h.fetcher.err = errors.New("video unavailable")
		resp := h.handler.Handle(context.Background(), transcribeRequest(`{"url":"`+videoURL+`"}`, validKey))
		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		_, err := os.Stat(h.fetcher.lastDir)
		assert.True(t, os.IsNotExist(err), "scratch dir should be gone, stat err=%v", err)
	})
}

func TestHandle_InvalidJSON(t *testing.T) {
	bodies := []string{
		`{invalid: json,}`,
		`{"url": "` + videoURL + `"`,
		`[1,2,3]`,
		`"just a string"`,
		`null`,
		`42`,
		"   ",
		"\n\t",
	}
	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			h := newHarness(t)
			resp := h.handler.Handle(context.Background(), transcribeRequest(body, validKey))

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "Invalid JSON in request", decodeBody(t, resp)["message"])
			assert.Equal(t, map[string]string{"Content-Type": "application/json"}, resp.Headers)
			assert.Zero(t, h.cache.gets)
		})
	}
}

func TestHandle_InvalidInput(t *testing.T) {
	bodies := []string{
		``,
		`{}`,
		`{"url": ""}`,
		`{"url": 42}`,
		`{"url": null}`,
		`{"other": "` + videoURL + `"}`,
		`{"url": "http://www.youtube.com/watch?v=abc123"}`,
		`{"url": "https://youtube.com/watch?v=abc123"}`,
		`{"url": "https://wwwXyoutubeXcom/watch?v=abc123"}`, // dots are literal here, unlike the legacy unescaped pattern
		`{"url": "https://youtu.be/abc123"}`,
		`{"url": "https://www.youtube.com/watch?v=abc123&t=10"}`,
		`{"url": "https://www.youtube.com/watch?v=abc 123"}`,
		`{"url": "https://www.youtube.com/watch?v=abc123\n"}`, // $ anchors at end of text; the legacy matcher let a trailing newline through
		`{"url": " https://www.youtube.com/watch?v=abc123"}`,
	}
	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			h := newHarness(t)
			resp := h.handler.Handle(context.Background(), transcribeRequest(body, validKey))

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "Invalid input: URL is required and must be a valid YouTube URL", decodeBody(t, resp)["message"])
			assert.Zero(t, h.cache.gets)
			assert.Zero(t, h.fetcher.calls)
		})
	}
}

// An empty video id passes validation. This is long-standing behavior kept
// as a known boundary case rather than tightened.
func TestHandle_EmptyVideoIDIsAccepted(t *testing.T) {
	h := newHarness(t)
	resp := h.handler.Handle(context.Background(), transcribeRequest(`{"url":"https://www.youtube.com/watch?v="}`, validKey))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, h.fetcher.calls)
}

func TestHandle_InvalidAPIKey(t *testing.T) {
	cases := map[string]func(h *harness) Request{
		"missing header": func(h *harness) Request {
			return transcribeRequest(`{"url":"`+videoURL+`"}`, "")
		},
		"wrong key": func(h *harness) Request {
			return transcribeRequest(`{"url":"`+videoURL+`"}`, "nope")
		},
		"key prefix": func(h *harness) Request {
			return transcribeRequest(`{"url":"`+videoURL+`"}`, validKey[:2])
		},
		"secret store down": func(h *harness) Request {
			h.secrets.err = errors.New("throttled")
			return transcribeRequest(`{"url":"`+videoURL+`"}`, validKey)
		},
		"malformed secret": func(h *harness) Request {
			h.secrets.values[common.SecretAPIKeyID] = "not json"
			return transcribeRequest(`{"url":"`+videoURL+`"}`, validKey)
		},
		"wrong key and bad body": func(h *harness) Request {
			return transcribeRequest(`{invalid`, "nope")
		},
	}
	for name, build := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			resp := h.handler.Handle(context.Background(), build(h))

			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, "Invalid API key", decodeBody(t, resp)["message"])
			assert.Zero(t, h.cache.gets, "cache must not be touched")
			assert.Zero(t, h.cache.puts, "cache must not be touched")
			assert.Zero(t, h.fetcher.calls)
			assert.Zero(t, h.transcriber.calls)
		})
	}
}

func TestHandle_APIKeyHeaderIsCaseInsensitive(t *testing.T) {
	h := newHarness(t)
	req := Request{
		Method:  http.MethodPost,
		Path:    common.PathTranscribe,
		Headers: http.Header{"x-api-key": []string{validKey}},
		Body:    `{"url":"` + videoURL + `"}`,
	}

	resp := h.handler.Handle(context.Background(), req)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandle_Routing(t *testing.T) {
	cases := []struct {
		method, path string
		status       int
		body         string
	}{
		{http.MethodGet, "/", http.StatusOK, `{"success":"OK"}`},
		{http.MethodOptions, "/transcribe", http.StatusOK, `{"success":"OK"}`},
		{http.MethodOptions, "/anything", http.StatusOK, `{"success":"OK"}`},
		{http.MethodPost, "/", http.StatusNotFound, `{"message":"Not found"}`},
		{http.MethodPost, "/transcribe/", http.StatusNotFound, `{"message":"Not found"}`},
		{http.MethodPost, "/other", http.StatusNotFound, `{"message":"Not found"}`},
		{http.MethodGet, "/transcribe", http.StatusNotFound, `{"message":"Not found"}`},
		{http.MethodPut, "/transcribe", http.StatusNotFound, `{"message":"Not found"}`},
		{http.MethodDelete, "/", http.StatusNotFound, `{"message":"Not found"}`},
		{http.MethodGet, "/healthz", http.StatusNotFound, `{"message":"Not found"}`},
	}
	for _, c := range cases {
		t.Run(c.method+" "+c.path, func(t *testing.T) {
			h := newHarness(t)
			resp := h.handler.Handle(context.Background(), Request{Method: c.method, Path: c.path})

			assert.Equal(t, c.status, resp.StatusCode)
			assert.Equal(t, c.body, resp.Body)
			assert.Zero(t, h.secrets.calls, "routing must exit before authentication")
		})
	}
}

func TestHandle_InternalErrors(t *testing.T) {
	cases := map[string]func(h *harness){
		"cache read fails": func(h *harness) { h.cache.getErr = errors.New("conn refused") },
		"fetch fails":      func(h *harness) { h.fetcher.err = errors.New("extraction failed") },
		"transcribe fails": func(h *harness) { h.transcriber.err = errors.New("503") },
		"no credential": func(h *harness) {
			delete(h.secrets.values, common.SecretTranscriptionKeyID)
		},
	}
	for name, setup := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			setup(h)
			resp := h.handler.Handle(context.Background(), transcribeRequest(`{"url":"`+videoURL+`"}`, validKey))

			assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
			assert.Equal(t, "Internal server error", decodeBody(t, resp)["message"])
			assert.Zero(t, h.cache.puts, "nothing may be cached after a failure")
			assert.Zero(t, h.cache.Len())
		})
	}
}

func TestHandle_ScratchDirFailure(t *testing.T) {
	h := newHarness(t)
	h.handler = New(Dependencies{
		Secrets:          h.secrets,
		APIKey:           secrets.Ref{ID: common.SecretAPIKeyID, Field: common.SecretAPIKeyField},
		TranscriptionKey: secrets.Ref{ID: common.SecretTranscriptionKeyID},
		Cache:            h.cache,
		Fetcher:          h.fetcher,
		Workspace:        failingWorkspace{},
		Transcriber:      h.transcriber,
	})

	resp := h.handler.Handle(context.Background(), transcribeRequest(`{"url":"`+videoURL+`"}`, validKey))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Zero(t, h.fetcher.calls)
}

func TestHandle_CacheWriteFailureStillReturnsTranscript(t *testing.T) {
	h := newHarness(t)
	h.cache.putErr = errors.New("read only")

	resp := h.handler.Handle(context.Background(), transcribeRequest(`{"url":"`+videoURL+`"}`, validKey))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello world", decodeBody(t, resp)["transcript"])
	assert.Equal(t, 1, h.cache.puts)
}

func TestHandle_PanickingStageBecomesInternalError(t *testing.T) {
	after := 0
	handler := NewWithStages(nil,
		StageFunc(func(context.Context, *State) Result { panic("boom") }),
		StageFunc(func(_ context.Context, st *State) Result { after++; return succeed(st) }),
	)

	resp := handler.Handle(context.Background(), Request{})

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, `{"message":"Internal server error"}`, resp.Body)
	assert.Zero(t, after)
}

func TestHandle_UnmappedReason(t *testing.T) {
	handler := NewWithStages(nil, StageFunc(func(context.Context, *State) Result {
		return fail(Reason(99))
	}))

	resp := handler.Handle(context.Background(), Request{})

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, `{"message":"Unknown error"}`, resp.Body)
}

func TestHandle_TranscriptIsNotHTMLEscaped(t *testing.T) {
	h := newHarness(t)
	h.transcriber.text = `a <b> & "c"`

	resp := h.handler.Handle(context.Background(), transcribeRequest(`{"url":"`+videoURL+`"}`, validKey))

	assert.Equal(t, `{"success":"OK","transcript":"a <b> & \"c\""}`, resp.Body)
}
