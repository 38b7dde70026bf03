package pipeline

import (
	"context"
	"time"

	"github.com/jo-hoe/ytscribe/internal/cache"
	"github.com/jo-hoe/ytscribe/internal/fetch"
)

// Scratcher hands out temporary directories with a cleanup func.
type Scratcher interface {
	NewScratch(prefix string) (string, func() error, error)
}

// Retriever serves cached transcripts and downloads the media on a miss.
type Retriever struct {
	Cache     cache.Store
	Fetcher   fetch.Fetcher
	Workspace Scratcher
}

func (r *Retriever) Run(ctx context.Context, st *State) Result {
	log := st.Logger().With("url", st.VideoURL)

	entry, hit, err := r.Cache.Get(ctx, st.CacheKey)
	if err != nil {
		log.Error("cache lookup", "err", err)
		return fail(InternalServerError)
	}
	if hit {
		log.Info("cache hit", "cached_date", entry.CachedDate)
		st.Transcript = entry.Transcript
		st.Title = entry.Title
		st.CachedDate = entry.CachedDate
		st.CacheHit = true
		return succeed(st)
	}

	prefix := fetch.FilenamePrefix(st.VideoURL)
	dir, cleanup, err := r.Workspace.NewScratch(prefix)
	if err != nil {
		log.Error("create scratch dir", "err", err)
		return fail(InternalServerError)
	}
	st.onRelease(cleanup)

	start := time.Now()
	media, err := r.Fetcher.Fetch(ctx, st.VideoURL, dir, prefix)
	if err != nil {
		log.Error("fetch media", "duration", time.Since(start).String(), "err", err)
		return fail(InternalServerError)
	}
	log.Info("media fetched", "title", media.Title, "duration", time.Since(start).String())

	st.Title = media.Title
	st.Media = &Media{Dir: dir, Path: media.Path, FilenamePrefix: prefix}
	return succeed(st)
}
