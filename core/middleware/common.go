package middleware

import (
	"bytes"
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"

	"github.com/searchktools/mini-server/core/http"
	"github.com/searchktools/mini-server/core/observability"
)

// Common middleware implementations

// Recovery turns a handler panic into an error so the driver can answer
// with its error response instead of unwinding the worker.
func Recovery(logger zerolog.Logger) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(req *http.Request) (res *http.Response, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error().
						Str("method", req.Method.String()).
						Str("path", req.Path).
						Interface("panic", r).
						Bytes("stack", debug.Stack()).
						Msg("handler panicked")
					res, err = nil, fmt.Errorf("handler panic: %v", r)
				}
			}()
			return next(req)
		}
	}
}

// Logger writes one access line per request.
func Logger(logger zerolog.Logger) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(req *http.Request) (*http.Response, error) {
			start := time.Now()
			res, err := next(req)

			if err != nil {
				logger.Error().
					Err(err).
					Str("method", req.Method.String()).
					Str("path", req.Path).
					Dur("duration", time.Since(start)).
					Msg("handler failed")
				return res, err
			}
			if res == nil {
				return res, nil
			}
			logger.Info().
				Str("method", req.Method.String()).
				Str("path", req.Path).
				Int("status", res.Status.Code()).
				Int("bytes", len(res.Body)).
				Dur("duration", time.Since(start)).
				Msg("request")
			return res, nil
		}
	}
}

// Metrics records the request counter and latency histogram.
func Metrics(m *observability.Metrics) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(req *http.Request) (*http.Response, error) {
			start := time.Now()
			res, err := next(req)
			if err == nil && res != nil {
				m.RequestServed(context.Background(), req.Method.String(), res.Status.Code(), time.Since(start))
			}
			return res, err
		}
	}
}

var gzipWriters = sync.Pool{
	New: func() any {
		return gzip.NewWriter(nil)
	},
}

// Gzip compresses non-empty bodies for clients listing gzip in
// Accept-Encoding. It is the only content coding the server applies.
func Gzip() Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(req *http.Request) (*http.Response, error) {
			res, err := next(req)
			if err != nil || res == nil {
				return res, err
			}
			if len(res.Body) == 0 || res.Header.Has("Content-Encoding") {
				return res, nil
			}
			if !req.Header.ValuesContain("Accept-Encoding", "gzip") {
				return res, nil
			}

			compressed, err := compress(res.Body)
			if err != nil {
				return nil, fmt.Errorf("gzip: %w", err)
			}
			res.Header.Del("Content-Length")
			res.SetHeader("Content-Encoding", "gzip")
			res.ReplaceBody(compressed)
			return res, nil
		}
	}
}

func compress(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzipWriters.Get().(*gzip.Writer)
	defer gzipWriters.Put(zw)

	zw.Reset(&buf)
	if _, err := zw.Write(body); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
