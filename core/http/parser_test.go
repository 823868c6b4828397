package http

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"
	"testing"
)

// TestParseUserAgentRequest tests a request with headers and no body
func TestParseUserAgentRequest(t *testing.T) {
	req, err := Parse([]byte("GET /user-agent HTTP/1.1\r\nHost: x\r\nUser-Agent: testclient\r\n\r\n"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if req.Method != MethodGet {
		t.Errorf("Expected method GET, got %s", req.Method)
	}
	if req.Path != "/user-agent" {
		t.Errorf("Expected path /user-agent, got %s", req.Path)
	}
	if req.Proto != "HTTP/1.1" {
		t.Errorf("Expected proto HTTP/1.1, got %s", req.Proto)
	}
	if req.Header.Len() != 2 {
		t.Errorf("Expected 2 headers, got %d", req.Header.Len())
	}
	if req.Header.Get("Host") != "x" {
		t.Errorf("Expected Host=x, got %q", req.Header.Get("Host"))
	}
	if req.UserAgent() != "testclient" {
		t.Errorf("Expected User-Agent=testclient, got %q", req.UserAgent())
	}
	if len(req.Body) != 0 {
		t.Errorf("Expected empty body, got %q", req.Body)
	}
}

// TestParseBody tests that Content-Length bytes become the body
func TestParseBody(t *testing.T) {
	req, err := Parse([]byte("POST /files/foo.txt HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if req.Method != MethodPost {
		t.Errorf("Expected method POST, got %s", req.Method)
	}
	if string(req.Body) != "hello" {
		t.Errorf("Expected body hello, got %q", req.Body)
	}
}

// TestParseBodyMatchesTrailingBytes tests declared length against the tail of the buffer
func TestParseBodyMatchesTrailingBytes(t *testing.T) {
	bodies := [][]byte{
		[]byte("a"),
		[]byte("{\"k\":\"v\"}"),
		[]byte("héllo wörld ✓"),
		{0x00, 0xff, '\r', '\n', '\r', '\n', 0x01},
		bytes.Repeat([]byte("x"), 10000),
	}

	for _, body := range bodies {
		var buf bytes.Buffer
		buf.WriteString("POST /upload HTTP/1.1\r\nContent-Length: ")
		buf.WriteString(strconv.Itoa(len(body)))
		buf.WriteString("\r\n\r\n")
		buf.Write(body)

		req, err := Parse(buf.Bytes())
		if err != nil {
			t.Fatalf("Expected no error for %d byte body, got %v", len(body), err)
		}
		if len(req.Body) != len(body) {
			t.Errorf("Expected body length %d, got %d", len(body), len(req.Body))
		}
		if !bytes.Equal(req.Body, buf.Bytes()[buf.Len()-len(body):]) {
			t.Errorf("Body does not match trailing bytes for %d byte body", len(body))
		}
	}
}

// TestParseMalformedStartLine tests start lines without exactly three tokens
func TestParseMalformedStartLine(t *testing.T) {
	inputs := []string{
		"GET\r\n\r\n",
		"GET /\r\n\r\n",
		"GET / HTTP/1.1 extra\r\n\r\n",
		"GET  / HTTP/1.1\r\n\r\n",
		"GET / \r\n\r\n",
		" GET / HTTP/1.1\r\n\r\n",
	}

	for _, in := range inputs {
		req, err := Parse([]byte(in))
		if err == nil {
			t.Errorf("Expected error for %q", in)
			continue
		}
		if req != nil {
			t.Errorf("Expected nil request for %q, got %+v", in, req)
		}
		if !errors.Is(err, ErrMalformedStartLine) {
			t.Errorf("Expected ErrMalformedStartLine for %q, got %v", in, err)
		}
		if err.Error() != "Invalid request" {
			t.Errorf("Expected message %q, got %q", "Invalid request", err.Error())
		}
	}
}

// TestParseEmptyInput tests degenerate inputs
func TestParseEmptyInput(t *testing.T) {
	for _, in := range []string{"", "\r\n", "\n"} {
		req, err := Parse([]byte(in))
		if err == nil {
			t.Fatalf("Expected error for %q", in)
		}
		if req != nil {
			t.Errorf("Expected nil request for %q", in)
		}
		if err.Error() == "" {
			t.Errorf("Expected non-empty message for %q", in)
		}
		if !errors.Is(err, ErrEmptyInput) {
			t.Errorf("Expected ErrEmptyInput for %q, got %v", in, err)
		}
	}

	// Only a stream closed before any byte carries io.EOF.
	_, err := Parse(nil)
	if !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF in chain for empty buffer, got %v", err)
	}
	_, err = Parse([]byte("\r\n"))
	if errors.Is(err, io.EOF) {
		t.Errorf("Expected no io.EOF for blank line, got %v", err)
	}
}

// TestParseUnknownMethod tests that method matching is case-sensitive
func TestParseUnknownMethod(t *testing.T) {
	for _, m := range []string{"PUT", "get", "Post", "DELETE"} {
		_, err := Parse([]byte(m + " / HTTP/1.1\r\n\r\n"))
		if !errors.Is(err, ErrUnknownMethod) {
			t.Fatalf("Expected ErrUnknownMethod for %s, got %v", m, err)
		}
		if !strings.Contains(err.Error(), m) {
			t.Errorf("Expected error to name %q, got %q", m, err.Error())
		}
		var perr *ParseError
		if !errors.As(err, &perr) || perr.Kind != KindUnknownMethod {
			t.Errorf("Expected *ParseError with KindUnknownMethod, got %#v", err)
		}
	}
}

// TestParseDropsHeadersWithoutSeparator tests that lines lacking ": " are ignored
func TestParseDropsHeadersWithoutSeparator(t *testing.T) {
	req, err := Parse([]byte("GET / HTTP/1.1\r\nHost: x\r\nBroken\r\nNoSpace:value\r\nX-Ok: a: b\r\n\r\n"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if req.Header.Has("Broken") {
		t.Error("Expected Broken to be dropped")
	}
	if req.Header.Has("NoSpace") {
		t.Error("Expected NoSpace to be dropped")
	}
	if req.Header.Get("X-Ok") != "a: b" {
		t.Errorf("Expected value split at first separator, got %q", req.Header.Get("X-Ok"))
	}
	if req.Header.Len() != 2 {
		t.Errorf("Expected 2 headers, got %d", req.Header.Len())
	}
}

// TestParseContentLengthEdgeCases tests bodies without a usable length
func TestParseContentLengthEdgeCases(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"absent", "POST / HTTP/1.1\r\nHost: x\r\n\r\nstray bytes"},
		{"unparseable", "POST / HTTP/1.1\r\nContent-Length: five\r\n\r\nhello"},
		{"negative", "POST / HTTP/1.1\r\nContent-Length: -1\r\n\r\nhello"},
		{"zero", "POST / HTTP/1.1\r\nContent-Length: 0\r\n\r\nhello"},
	}

	for _, tt := range tests {
		req, err := Parse([]byte(tt.in))
		if err != nil {
			t.Errorf("%s: expected no error, got %v", tt.name, err)
			continue
		}
		if len(req.Body) != 0 {
			t.Errorf("%s: expected empty body, got %q", tt.name, req.Body)
		}
	}
}

// TestParseTruncatedBody tests a declared length longer than the data
func TestParseTruncatedBody(t *testing.T) {
	req, err := Parse([]byte("POST / HTTP/1.1\r\nContent-Length: 10\r\n\r\nhello"))
	if req != nil {
		t.Errorf("Expected nil request, got %+v", req)
	}
	if !errors.Is(err, ErrBodyTruncated) {
		t.Fatalf("Expected ErrBodyTruncated, got %v", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Expected io.ErrUnexpectedEOF in chain, got %v", err)
	}
}

// TestParseBareLineFeeds tests LF-only line endings
func TestParseBareLineFeeds(t *testing.T) {
	req, err := Parse([]byte("GET /echo/abc HTTP/1.1\nHost: x\n\n"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if req.Path != "/echo/abc" || req.Header.Get("host") != "x" {
		t.Errorf("Unexpected request %+v", req)
	}
}

// TestParseWithoutBlankLine tests a header block cut off by end of input
func TestParseWithoutBlankLine(t *testing.T) {
	req, err := Parse([]byte("GET / HTTP/1.1\r\nHost: x"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if req.Header.Get("Host") != "x" {
		t.Errorf("Expected Host=x, got %q", req.Header.Get("Host"))
	}
}

// TestParseHeaderTooLarge tests the header size bound
func TestParseHeaderTooLarge(t *testing.T) {
	in := "GET / HTTP/1.1\r\nX-Big: " + strings.Repeat("a", MaxHeaderBytes) + "\r\n\r\n"
	_, err := Parse([]byte(in))
	if !errors.Is(err, ErrReadFailed) {
		t.Fatalf("Expected ErrReadFailed, got %v", err)
	}
	if !errors.Is(err, ErrHeaderTooLarge) {
		t.Errorf("Expected ErrHeaderTooLarge in chain, got %v", err)
	}
}

// TestParseBodyTooLarge tests that an oversized Content-Length is
// rejected without reading the body
func TestParseBodyTooLarge(t *testing.T) {
	in := "POST /upload HTTP/1.1\r\nContent-Length: " + strconv.Itoa(MaxBodyBytes+1) + "\r\n\r\nabc"
	req, err := Parse([]byte(in))
	if req != nil {
		t.Errorf("Expected no request, got %+v", req)
	}
	if !errors.Is(err, ErrReadFailed) {
		t.Fatalf("Expected ErrReadFailed, got %v", err)
	}
	if !errors.Is(err, ErrBodyTooLarge) {
		t.Errorf("Expected ErrBodyTooLarge in chain, got %v", err)
	}

	in = "POST /upload HTTP/1.1\r\nContent-Length: " + strconv.Itoa(MaxBodyBytes) + "\r\n\r\n"
	if _, err := Parse([]byte(in)); !errors.Is(err, ErrBodyTruncated) {
		t.Errorf("Expected limit itself to be accepted and then truncated, got %v", err)
	}
}

// TestReadRequestSequential tests reading back-to-back requests from one stream
func TestReadRequestSequential(t *testing.T) {
	stream := "POST /a HTTP/1.1\r\nContent-Length: 3\r\n\r\nabcGET /b HTTP/1.1\r\n\r\n"
	br := bufio.NewReader(strings.NewReader(stream))

	first, err := ReadRequest(br)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if first.Path != "/a" || string(first.Body) != "abc" {
		t.Errorf("Unexpected first request %+v", first)
	}

	second, err := ReadRequest(br)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if second.Path != "/b" || second.Method != MethodGet {
		t.Errorf("Unexpected second request %+v", second)
	}

	if _, err := ReadRequest(br); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF after last request, got %v", err)
	}
}

func TestRequestWantsClose(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"GET / HTTP/1.1\r\n\r\n", false},
		{"GET / HTTP/1.1\r\nConnection: close\r\n\r\n", true},
		{"GET / HTTP/1.0\r\n\r\n", true},
		{"GET / HTTP/1.0\r\nConnection: keep-alive\r\n\r\n", false},
	}
	for _, tt := range tests {
		req, err := Parse([]byte(tt.in))
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if got := req.WantsClose(); got != tt.want {
			t.Errorf("WantsClose(%q) = %v, expected %v", tt.in, got, tt.want)
		}
	}
}

func BenchmarkParse(b *testing.B) {
	msg := []byte("GET /user-agent HTTP/1.1\r\nHost: localhost\r\nUser-Agent: bench\r\nAccept: */*\r\n\r\n")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Parse(msg); err != nil {
			b.Fatal(err)
		}
	}
}
