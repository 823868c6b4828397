package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/searchktools/mini-server/core/http"
	"github.com/searchktools/mini-server/core/observability"
)

func textHandler(body string) http.HandlerFunc {
	return func(req *http.Request) (*http.Response, error) {
		return http.OK().SetHeader("Content-Type", "text/plain").SetBodyString(body), nil
	}
}

// TestPipelineOrder tests that the first middleware is the outermost
func TestPipelineOrder(t *testing.T) {
	var order []string
	trace := func(name string) Middleware {
		return func(next http.HandlerFunc) http.HandlerFunc {
			return func(req *http.Request) (*http.Response, error) {
				order = append(order, name+">")
				res, err := next(req)
				order = append(order, "<"+name)
				return res, err
			}
		}
	}

	h := NewPipeline().Use(trace("a"), trace("b")).Then(func(req *http.Request) (*http.Response, error) {
		order = append(order, "handler")
		return http.OK(), nil
	})
	if _, err := h(&http.Request{}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	expected := "a> b> handler <b <a"
	if got := strings.Join(order, " "); got != expected {
		t.Errorf("Expected %q, got %q", expected, got)
	}
}

func TestPipelineEmpty(t *testing.T) {
	p := NewPipeline()
	if p.Len() != 0 {
		t.Errorf("Expected empty pipeline, got %d", p.Len())
	}
	res, err := p.Then(textHandler("x"))(&http.Request{})
	if err != nil || string(res.Body) != "x" {
		t.Errorf("Expected passthrough, got %v %v", res, err)
	}
}

func TestRecovery(t *testing.T) {
	var logs bytes.Buffer
	h := Recovery(zerolog.New(&logs))(func(req *http.Request) (*http.Response, error) {
		panic("kaboom")
	})

	res, err := h(&http.Request{Path: "/boom"})
	if err == nil {
		t.Fatal("Expected error from recovered panic")
	}
	if res != nil {
		t.Errorf("Expected nil response, got %+v", res)
	}
	if !strings.Contains(logs.String(), "kaboom") || !strings.Contains(logs.String(), "/boom") {
		t.Errorf("Expected panic to be logged, got %q", logs.String())
	}
}

func TestLogger(t *testing.T) {
	var logs bytes.Buffer
	h := Logger(zerolog.New(&logs))(textHandler("hello"))

	if _, err := h(&http.Request{Method: http.MethodGet, Path: "/echo/hello"}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	line := logs.String()
	for _, want := range []string{`"method":"GET"`, `"path":"/echo/hello"`, `"status":200`, `"bytes":5`} {
		if !strings.Contains(line, want) {
			t.Errorf("Expected %s in %q", want, line)
		}
	}

	logs.Reset()
	failing := Logger(zerolog.New(&logs))(func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("disk full")
	})
	if _, err := failing(&http.Request{}); err == nil {
		t.Error("Expected error to pass through")
	}
	if !strings.Contains(logs.String(), "disk full") {
		t.Errorf("Expected failure to be logged, got %q", logs.String())
	}
}

func TestMetricsMiddleware(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	m, err := observability.New(provider.Meter("test"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	h := Metrics(m)(textHandler("ok"))
	for i := 0; i < 3; i++ {
		if _, err := h(&http.Request{}); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
	}

	totals, err := observability.Totals(context.Background(), reader)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if totals["miniserver.requests"] != 3 {
		t.Errorf("Expected 3 requests recorded, got %v", totals["miniserver.requests"])
	}
}

// TestGzip tests compression when the client accepts gzip
func TestGzip(t *testing.T) {
	h := Gzip()(textHandler("abc"))

	req := &http.Request{}
	req.Header.Set("Accept-Encoding", "encoding-1, gzip, encoding-2")
	res, err := h(req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if res.Header.Get("Content-Encoding") != "gzip" {
		t.Errorf("Expected Content-Encoding gzip, got %q", res.Header.Get("Content-Encoding"))
	}
	zr, err := gzip.NewReader(bytes.NewReader(res.Body))
	if err != nil {
		t.Fatalf("Expected gzip body, got %v", err)
	}
	plain, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if string(plain) != "abc" {
		t.Errorf("Expected abc, got %q", plain)
	}

	var buf bytes.Buffer
	if err := http.WriteResponse(&buf, res); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !strings.Contains(buf.String(), "Content-Length: "+strconv.Itoa(len(res.Body))+"\r\n") {
		t.Errorf("Expected Content-Length of compressed body in %q", buf.String())
	}
}

func TestGzipSkipped(t *testing.T) {
	tests := []struct {
		name     string
		encoding string
		body     string
	}{
		{"not accepted", "", "abc"},
		{"other coding", "invalid-encoding", "abc"},
		{"empty body", "gzip", ""},
	}

	for _, tt := range tests {
		req := &http.Request{}
		if tt.encoding != "" {
			req.Header.Set("Accept-Encoding", tt.encoding)
		}
		res, err := Gzip()(textHandler(tt.body))(req)
		if err != nil {
			t.Fatalf("%s: expected no error, got %v", tt.name, err)
		}
		if res.Header.Has("Content-Encoding") {
			t.Errorf("%s: expected no Content-Encoding", tt.name)
		}
		if string(res.Body) != tt.body {
			t.Errorf("%s: expected body %q, got %q", tt.name, tt.body, res.Body)
		}
	}
}
