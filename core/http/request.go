package http

import (
	"strconv"
	"strings"
)

// Request is built once per parse and is not modified afterwards.
type Request struct {
	Method Method
	// Path is the request target exactly as sent: no normalization and no
	// query splitting.
	Path   string
	Proto  string
	Header Header
	Body   []byte
}

// UserAgent returns the User-Agent header value.
func (r *Request) UserAgent() string {
	return r.Header.Get("User-Agent")
}

// ContentLength returns the declared body length when the header is present
// and holds a non-negative integer.
func (r *Request) ContentLength() (int, bool) {
	v, ok := r.Header.Lookup("Content-Length")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// WantsClose reports whether the client asked for the connection to be
// closed after this exchange.
func (r *Request) WantsClose() bool {
	conn := r.Header.Get("Connection")
	if r.Proto == "HTTP/1.0" {
		return !strings.EqualFold(conn, "keep-alive")
	}
	return strings.EqualFold(conn, "close")
}
