package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/algorank/algorank-node/log"
	"github.com/algorank/algorank-node/types"
	"github.com/go-chi/chi/v5"
)

// DisabledLogging is a global flag to disable logging middleware
var DisabledLogging = false

// LoggingConfig holds configuration for the logging middleware
type LoggingConfig struct {
	MaxBodyLog       int
	ExcludedPrefixes []string // URL path prefixes to exclude from logging
}

// shouldSkipLogging checks if the request should be skipped from logging.
// Requests are only logged at debug level.
func (lc LoggingConfig) shouldSkipLogging(r *http.Request) bool {
	if DisabledLogging || log.Level() != log.LogLevelDebug {
		return true
	}
	for _, prefix := range lc.ExcludedPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// bodyFields returns the log fields describing a request body. Signed calls
// are summarized by their method and arguments, leaving the signature out;
// other printable bodies are logged truncated to maxBody bytes.
func (lc LoggingConfig) bodyFields(body []byte) []any {
	var sc types.SignedCall
	if err := json.Unmarshal(body, &sc); err == nil && sc.Call.Method != "" {
		fields := []any{"call", string(sc.Call.Method), "sender", sc.Call.Sender.Hex()}
		if sc.Call.Reference != "" {
			fields = append(fields, "reference", sc.Call.Reference)
		}
		if sc.Call.Target != nil {
			fields = append(fields, "target", sc.Call.Target.Hex())
		}
		if sc.Call.NewAggregate != nil {
			fields = append(fields, "newAggregate", *sc.Call.NewAggregate)
		}
		return fields
	}
	if !json.Valid(body) {
		return []any{"bodySize", len(body)}
	}
	s := string(body)
	if len(s) > lc.MaxBodyLog {
		s = s[:lc.MaxBodyLog] + "..."
	}
	return []any{"body", strings.ReplaceAll(s, "\"", "")}
}

// statusRecorder wraps http.ResponseWriter to capture the status code and
// the response size.
type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.status = code
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.size += n
	return n, err
}

// loggingMiddleware logs every request and its response at debug level.
func loggingMiddleware(maxBodyLog int) func(http.Handler) http.Handler {
	lc := LoggingConfig{
		MaxBodyLog:       maxBodyLog,
		ExcludedPrefixes: LogExcludedPrefixes,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if lc.shouldSkipLogging(r) {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()

			fields := []any{"method", r.Method, "url", r.URL.String()}
			if r.Body != nil && r.ContentLength != 0 {
				body, err := io.ReadAll(r.Body)
				if err != nil {
					ErrMalformedBody.WithErr(err).Write(w)
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
				if len(body) > 0 {
					fields = append(fields, lc.bodyFields(body)...)
				}
			}
			log.Debugw("api request", fields...)

			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			log.Debugw("api response",
				"method", r.Method,
				"url", r.URL.String(),
				"status", rec.status,
				"bytes", rec.size,
				"took", time.Since(start).String(),
			)
		})
	}
}

// appIDMiddleware answers 404 for requests addressed to an application other
// than appID. Paths without an application ID are passed through.
func appIDMiddleware(appID uint64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			appIDStr := chi.URLParam(r, AppIDURLParam)
			if appIDStr == "" {
				next.ServeHTTP(w, r)
				return
			}
			id, err := strconv.ParseUint(appIDStr, 10, 64)
			if err != nil {
				ErrMalformedAppID.Withf("could not parse application ID: %v", err).Write(w)
				return
			}
			if id != appID {
				ErrAppNotFound.Withf("%d", id).Write(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
