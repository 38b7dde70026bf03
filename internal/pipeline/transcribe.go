package pipeline

import (
	"context"
	"os"
	"time"

	"github.com/jo-hoe/ytscribe/internal/cache"
	"github.com/jo-hoe/ytscribe/internal/secrets"
	"github.com/jo-hoe/ytscribe/internal/transcriber"
)

// Transcription turns fetched media into text and caches the result.
// It does nothing when the retrieval stage already produced a transcript.
type Transcription struct {
	Secrets    secrets.Store
	Credential secrets.Ref
	Client     transcriber.Client
	Cache      cache.Store
	Now        func() time.Time
}

func (t *Transcription) Run(ctx context.Context, st *State) Result {
	if st.CacheHit || st.Transcript != "" {
		return succeed(st)
	}
	log := st.Logger().With("url", st.VideoURL)
	if st.Media == nil {
		log.Error("transcribe: no media in state")
		return fail(InternalServerError)
	}

	credential, err := secrets.Resolve(ctx, t.Secrets, t.Credential)
	if err != nil {
		log.Error("resolve transcription credential", "secret", t.Credential.ID, "err", err)
		return fail(InternalServerError)
	}

	f, err := os.Open(st.Media.Path)
	if err != nil {
		log.Error("open media", "err", err)
		return fail(InternalServerError)
	}
	defer func() { _ = f.Close() }()

	start := time.Now()
	text, err := t.Client.Transcribe(ctx, f, st.Media.Path, credential)
	if err != nil {
		log.Error("transcribe", "duration", time.Since(start).String(), "err", err)
		return fail(InternalServerError)
	}
	log.Info("transcribed", "chars", len(text), "duration", time.Since(start).String())

	st.Transcript = text
	st.CachedDate = t.now()

	entry := cache.Entry{Transcript: st.Transcript, Title: st.Title, CachedDate: st.CachedDate}
	if err := t.Cache.Put(ctx, st.CacheKey, entry); err != nil {
		// The transcript is still good; the next request just misses the cache.
		log.Warn("cache write", "err", err)
	}
	return succeed(st)
}

func (t *Transcription) now() time.Time {
	if t.Now == nil {
		return time.Now().UTC()
	}
	return t.Now()
}
