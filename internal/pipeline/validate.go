package pipeline

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"regexp"

	"github.com/jo-hoe/ytscribe/internal/common"
	"github.com/jo-hoe/ytscribe/internal/secrets"
)

// Route lets POST /transcribe through and answers everything else early.
func Route(_ context.Context, st *State) Result {
	method, path := st.Request.Method, st.Request.Path
	switch {
	case method == http.MethodGet && path == common.PathRoot:
		return fail(HealthCheck)
	case method == http.MethodOptions:
		return fail(OptionsPreflight)
	case method == http.MethodPost && path == common.PathTranscribe:
		return succeed(st)
	default:
		return fail(NotFound)
	}
}

// Authenticator compares the caller's API key with the one held in the secret store.
type Authenticator struct {
	Secrets secrets.Store
	Key     secrets.Ref
}

func (a *Authenticator) Run(ctx context.Context, st *State) Result {
	got := st.Request.Header(common.HeaderAPIKey)
	if got == "" {
		return fail(InvalidAPIKey)
	}
	want, err := secrets.Resolve(ctx, a.Secrets, a.Key)
	if err != nil {
		st.Logger().Error("resolve api key", "secret", a.Key.ID, "err", err)
		return fail(InvalidAPIKey)
	}
	if want == "" || subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		st.Logger().Warn("api key mismatch")
		return fail(InvalidAPIKey)
	}
	return succeed(st)
}

// ParseBody decodes the request body as a JSON object. A missing body counts as {};
// a blank one is malformed JSON like any other.
func ParseBody(_ context.Context, st *State) Result {
	raw := st.Request.Body
	if raw == "" {
		raw = "{}"
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(raw), &body); err != nil || body == nil {
		return fail(InvalidJSON)
	}
	st.Body = body
	return succeed(st)
}

// watchURLPattern accepts an empty video id on purpose; see the boundary test.
var watchURLPattern = regexp.MustCompile(`^https://www\.youtube\.com/watch\?v=[a-zA-Z0-9_-]*$`)

// ValidateInput requires a YouTube watch URL in the "url" field and stores it as
// the canonical identifier and cache key.
func ValidateInput(_ context.Context, st *State) Result {
	u, ok := st.Body["url"].(string)
	if !ok || u == "" || !watchURLPattern.MatchString(u) {
		return fail(InvalidInput)
	}
	st.VideoURL = u
	st.CacheKey = u
	return succeed(st)
}
