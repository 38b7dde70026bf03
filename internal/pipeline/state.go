package pipeline

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jo-hoe/ytscribe/internal/outcome"
)

// Request is the transport independent view of an inbound call.
type Request struct {
	ID      string // optional correlation id, used for logging only
	Method  string
	Path    string
	Headers http.Header
	Body    string
}

// Header returns the first value of the named header, matching names case-insensitively
// even when Headers was built without canonical keys.
func (r Request) Header(name string) string {
	if v := r.Headers.Get(name); v != "" {
		return v
	}
	for k, vs := range r.Headers {
		if strings.EqualFold(k, name) && len(vs) > 0 {
			return vs[0]
		}
	}
	return ""
}

// Media describes the working files produced while fetching a video.
type Media struct {
	Dir            string // scratch directory, removed when the request finishes
	Path           string // extracted audio file
	FilenamePrefix string
}

// State is threaded through every stage. Each stage only sets the fields it owns:
//
//	parse:      Body
//	validate:   VideoURL, CacheKey
//	retrieve:   Title, and on a hit Transcript, CachedDate, CacheHit; on a miss Media
//	transcribe: Transcript, CachedDate (miss only)
type State struct {
	Request Request

	Body       map[string]any
	VideoURL   string
	CacheKey   string
	Title      string
	Transcript string
	CachedDate time.Time
	CacheHit   bool
	Media      *Media

	log      *slog.Logger
	cleanups []func() error
}

// Result is the outcome of a stage.
type Result = outcome.Outcome[*State, Reason]

func succeed(st *State) Result {
	return outcome.Success[*State, Reason](st)
}

func fail(r Reason) Result {
	return outcome.Failure[*State](r)
}

// Logger returns the request scoped logger.
func (st *State) Logger() *slog.Logger {
	if st.log == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return st.log
}

// onRelease registers fn to run once the request finished, on every exit path.
func (st *State) onRelease(fn func() error) {
	st.cleanups = append(st.cleanups, fn)
}

// release runs registered cleanups in reverse order.
func (st *State) release() {
	for i := len(st.cleanups) - 1; i >= 0; i-- {
		if err := st.cleanups[i](); err != nil {
			st.Logger().Warn("cleanup failed", "err", err)
		}
	}
	st.cleanups = nil
}
