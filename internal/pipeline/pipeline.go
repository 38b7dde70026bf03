// Package pipeline implements the request flow of the transcription endpoint:
// route, authenticate, parse, validate, retrieve, transcribe and respond.
// Every stage either hands the State on or stops the chain with a Reason.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jo-hoe/ytscribe/internal/cache"
	"github.com/jo-hoe/ytscribe/internal/fetch"
	"github.com/jo-hoe/ytscribe/internal/outcome"
	"github.com/jo-hoe/ytscribe/internal/secrets"
	"github.com/jo-hoe/ytscribe/internal/transcriber"
)

// Stage is one step of the chain.
type Stage interface {
	Run(ctx context.Context, st *State) Result
}

// StageFunc adapts a plain function to Stage.
type StageFunc func(ctx context.Context, st *State) Result

func (f StageFunc) Run(ctx context.Context, st *State) Result { return f(ctx, st) }

// Dependencies are the collaborators the stages close over.
type Dependencies struct {
	Log              *slog.Logger
	Secrets          secrets.Store
	APIKey           secrets.Ref
	TranscriptionKey secrets.Ref
	Cache            cache.Store
	Fetcher          fetch.Fetcher
	Workspace        Scratcher
	Transcriber      transcriber.Client
	Now              func() time.Time
}

// Handler runs requests through the ordered stages.
type Handler struct {
	log    *slog.Logger
	stages []Stage
}

// New wires the standard stage order.
func New(deps Dependencies) *Handler {
	return NewWithStages(deps.Log,
		StageFunc(Route),
		&Authenticator{Secrets: deps.Secrets, Key: deps.APIKey},
		StageFunc(ParseBody),
		StageFunc(ValidateInput),
		&Retriever{Cache: deps.Cache, Fetcher: deps.Fetcher, Workspace: deps.Workspace},
		&Transcription{
			Secrets:    deps.Secrets,
			Credential: deps.TranscriptionKey,
			Client:     deps.Transcriber,
			Cache:      deps.Cache,
			Now:        deps.Now,
		},
	)
}

// NewWithStages builds a Handler running stages in the given order.
func NewWithStages(log *slog.Logger, stages ...Stage) *Handler {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{log: log, stages: stages}
}

// Handle runs req through all stages and always returns a well formed response.
// Working files created on the way are removed before Handle returns.
func (h *Handler) Handle(ctx context.Context, req Request) Response {
	log := h.log
	if req.ID != "" {
		log = log.With("request_id", req.ID)
	}
	st := &State{Request: req, log: log}
	defer st.release()

	res := outcome.Success[*State, Reason](st)
	for _, stage := range h.stages {
		res = res.Then(bind(ctx, stage))
	}

	return outcome.Either(res,
		func(r Reason) Response {
			if r.Status() >= 500 {
				log.Warn("request failed", "reason", r.String())
			} else {
				log.Debug("request ended early", "reason", r.String())
			}
			return FailureResponse(r)
		},
		func(st *State) Response {
			log.Info("request succeeded", "url", st.VideoURL, "cache_hit", st.CacheHit)
			return SuccessResponse(st)
		},
	)
}

// bind fixes ctx and turns a panicking stage into InternalServerError.
func bind(ctx context.Context, stage Stage) func(*State) Result {
	return func(st *State) (res Result) {
		defer func() {
			if rec := recover(); rec != nil {
				st.Logger().Error("stage panic", "panic", fmt.Sprint(rec))
				res = fail(InternalServerError)
			}
		}()
		return stage.Run(ctx, st)
	}
}
