package http

import "errors"

// ParseErrorKind tells callers why a request could not be parsed.
type ParseErrorKind uint8

const (
	KindEmptyInput ParseErrorKind = iota + 1
	KindMalformedStartLine
	KindUnknownMethod
	KindBodyTruncated
	KindReadFailed
)

var kindNames = map[ParseErrorKind]string{
	KindEmptyInput:         "empty_input",
	KindMalformedStartLine: "malformed_start_line",
	KindUnknownMethod:      "unknown_method",
	KindBodyTruncated:      "body_truncated",
	KindReadFailed:         "read_failed",
}

func (k ParseErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Sentinels for errors.Is matching against a *ParseError of the same kind.
var (
	ErrEmptyInput         = errors.New("http: empty input")
	ErrMalformedStartLine = errors.New("http: malformed start line")
	ErrUnknownMethod      = errors.New("http: unknown method")
	ErrBodyTruncated      = errors.New("http: body truncated")
	ErrReadFailed         = errors.New("http: read failed")

	ErrHeaderTooLarge = errors.New("http: header block too large")
	ErrBodyTooLarge   = errors.New("http: body too large")
)

var kindSentinels = map[ParseErrorKind]error{
	KindEmptyInput:         ErrEmptyInput,
	KindMalformedStartLine: ErrMalformedStartLine,
	KindUnknownMethod:      ErrUnknownMethod,
	KindBodyTruncated:      ErrBodyTruncated,
	KindReadFailed:         ErrReadFailed,
}

// ParseError is returned by Parse and ReadRequest. No partial request
// accompanies it.
type ParseError struct {
	Kind    ParseErrorKind
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e.Kind.
func (e *ParseError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// WriteError wraps a sink failure raised while serializing a response.
// Bytes already written are not rolled back.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return "http: write " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
