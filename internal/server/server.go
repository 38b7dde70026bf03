package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/jo-hoe/ytscribe/internal/common"
	"github.com/jo-hoe/ytscribe/internal/config"
	"github.com/jo-hoe/ytscribe/internal/pipeline"
)

// Handler is what the HTTP transport delegates every request to.
type Handler interface {
	Handle(ctx context.Context, req pipeline.Request) pipeline.Response
}

type Service struct {
	Log     *slog.Logger
	Cfg     *config.Config
	Handler Handler
}

const tooManyRequestsBody = `{"message":"Too many requests"}`

// NewHTTPServer builds the http.Server with the catch-all route and middleware.
// Routing by method and path is left to the pipeline.
func NewHTTPServer(svc *Service) *http.Server {
	log := svc.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var h http.Handler = http.HandlerFunc(svc.handle)
	h = rateLimitMiddleware(h, svc.Cfg.Server.RateLimit, svc.Cfg.Server.RateBurst)
	h = recoveryMiddleware(h, log)
	h = loggingMiddleware(h, log)

	return &http.Server{
		Addr:         svc.Cfg.Server.Addr,
		Handler:      h,
		ReadTimeout:  svc.Cfg.Server.ReadTimeout,
		WriteTimeout: svc.Cfg.Server.WriteTimeout,
		IdleTimeout:  svc.Cfg.Server.IdleTimeout,
	}
}

func (svc *Service) handle(w http.ResponseWriter, r *http.Request) {
	if max := safeInt64(svc.Cfg.Server.MaxBodySize); max > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, max)
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			svc.logger().Warn("request body too large", "limit", tooLarge.Limit)
		}
		writeResponse(w, pipeline.FailureResponse(pipeline.InvalidJSON))
		return
	}

	req := pipeline.Request{
		ID:      requestID(r),
		Method:  r.Method,
		Path:    r.URL.Path,
		Headers: r.Header,
		Body:    string(body),
	}
	writeResponse(w, svc.Handler.Handle(r.Context(), req))
}

func (svc *Service) logger() *slog.Logger {
	if svc.Log == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return svc.Log
}

func writeResponse(w http.ResponseWriter, resp pipeline.Response) {
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.WriteString(w, resp.Body)
}

// requestID reuses the caller's X-Request-ID or mints a new one.
func requestID(r *http.Request) string {
	if id := r.Header.Get(common.HeaderRequestID); id != "" {
		return id
	}
	return uuid.NewString()
}

func safeInt64(u config.ByteSize) int64 {
	if u > config.ByteSize(math.MaxInt64) {
		return math.MaxInt64
	}
	return int64(u) // #nosec G115 - safe cast after explicit upper-bound check
}

// rateLimitMiddleware throttles all requests with one token bucket.
// A non-positive rate disables it.
func rateLimitMiddleware(next http.Handler, rps float64, burst int) http.Handler {
	if rps <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			w.Header().Set(common.HeaderContentType, common.ContentTypeJSON)
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = io.WriteString(w, tooManyRequestsBody)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if r.Header.Get(common.HeaderRequestID) == "" {
			r.Header.Set(common.HeaderRequestID, uuid.NewString())
		}
		ww := &writeWrap{ResponseWriter: w, code: http.StatusOK}
		ww.Header().Set(common.HeaderRequestID, r.Header.Get(common.HeaderRequestID))
		next.ServeHTTP(ww, r)
		log.Info("http",
			"request_id", r.Header.Get(common.HeaderRequestID),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.code,
			"duration", time.Since(start).String(),
			"remote", r.RemoteAddr)
	})
}

type writeWrap struct {
	http.ResponseWriter
	code int
}

func (w *writeWrap) WriteHeader(statusCode int) {
	w.code = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func recoveryMiddleware(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("http handler panic", "panic", rec, "path", r.URL.Path)
				writeResponse(w, pipeline.FailureResponse(pipeline.InternalServerError))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
