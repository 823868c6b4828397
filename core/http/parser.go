package http

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
)

// MaxHeaderBytes bounds the start line plus header block.
const MaxHeaderBytes = 64 << 10

// MaxBodyBytes bounds a declared Content-Length. Larger declarations fail
// before any body byte is read.
const MaxBodyBytes = 8 << 20

const msgInvalidRequest = "Invalid request"

// Parse parses a complete request held in buf.
func Parse(buf []byte) (*Request, error) {
	return ReadRequest(bufio.NewReader(bytes.NewReader(buf)))
}

// ReadRequest reads one request from br.
//
// Lines end at "\n" with an optional preceding "\r". The header block ends
// at the first empty line or at end of stream. Header lines without ": "
// are skipped. A body is read only when Content-Length holds a
// non-negative integer; otherwise the body is empty and any trailing bytes
// are left in br.
func ReadRequest(br *bufio.Reader) (*Request, error) {
	lines, err := readHeaderBlock(br)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, &ParseError{Kind: KindEmptyInput, Message: msgInvalidRequest}
	}

	parts := strings.Split(lines[0], " ")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, &ParseError{Kind: KindMalformedStartLine, Message: msgInvalidRequest}
	}

	method, err := ParseMethod(parts[0])
	if err != nil {
		return nil, err
	}

	req := &Request{
		Method: method,
		Path:   parts[1],
		Proto:  parts[2],
	}
	for _, line := range lines[1:] {
		name, value, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		req.Header.Set(name, value)
	}

	if n, ok := req.ContentLength(); ok && n > MaxBodyBytes {
		return nil, &ParseError{Kind: KindReadFailed, Message: "Body too large", Err: ErrBodyTooLarge}
	} else if ok && n > 0 {
		var body bytes.Buffer
		if _, err := io.CopyN(&body, br, int64(n)); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, &ParseError{Kind: KindBodyTruncated, Message: "Truncated body", Err: err}
		}
		req.Body = body.Bytes()
	}

	return req, nil
}

// readHeaderBlock collects lines up to the first empty one.
func readHeaderBlock(br *bufio.Reader) ([]string, error) {
	var lines []string
	budget := MaxHeaderBytes
	for {
		line, err := readLine(br, &budget)
		if err == io.EOF {
			if len(lines) == 0 {
				return nil, &ParseError{Kind: KindEmptyInput, Message: msgInvalidRequest, Err: io.EOF}
			}
			return lines, nil
		}
		if err != nil {
			return nil, &ParseError{Kind: KindReadFailed, Message: "Failed to read request", Err: err}
		}
		if line == "" {
			return lines, nil
		}
		lines = append(lines, line)
	}
}

// similar to readLineSlice() in net/textproto/reader.go
func readLine(br *bufio.Reader, budget *int) (string, error) {
	var line []byte
	for {
		l, more, err := br.ReadLine()
		if err != nil {
			return "", err
		}
		*budget -= len(l)
		if *budget < 0 {
			return "", ErrHeaderTooLarge
		}
		if line == nil && !more {
			return string(l), nil
		}
		line = append(line, l...)
		if !more {
			return string(line), nil
		}
	}
}
