package http

import (
	"bufio"
	"io"
	"strconv"
)

// Response is assembled with chained setters and consumed once by
// WriteResponse.
type Response struct {
	Status Status
	Header Header
	Body   []byte
}

// NewResponse returns an empty response carrying status.
func NewResponse(status Status) *Response {
	return &Response{Status: status}
}

// OK returns an empty 200 response.
func OK() *Response { return NewResponse(StatusOK) }

// Created returns an empty 201 response.
func Created() *Response { return NewResponse(StatusCreated) }

// NotFound returns an empty 404 response.
func NotFound() *Response { return NewResponse(StatusNotFound) }

// SetStatus replaces the status.
func (r *Response) SetStatus(status Status) *Response {
	r.Status = status
	return r
}

// SetHeader stores a header field, replacing any existing value.
func (r *Response) SetHeader(name, value string) *Response {
	r.Header.Set(name, value)
	return r
}

// SetBody appends b to the body. Repeated calls concatenate.
func (r *Response) SetBody(b []byte) *Response {
	r.Body = append(r.Body, b...)
	return r
}

// SetBodyString appends s to the body.
func (r *Response) SetBodyString(s string) *Response {
	r.Body = append(r.Body, s...)
	return r
}

// ReplaceBody discards the current body and stores b.
func (r *Response) ReplaceBody(b []byte) *Response {
	r.Body = b
	return r
}

// WriteResponse serializes res to w and flushes.
//
// When res has no Content-Length header one is emitted after the other
// headers, equal to len(res.Body) in bytes. Any sink failure stops the
// write and is returned as a *WriteError.
func WriteResponse(w io.Writer, res *Response) error {
	bw, ok := w.(*bufio.Writer)
	if !ok {
		bw = bufio.NewWriter(w)
	}

	if _, err := bw.WriteString("HTTP/1.1 " + res.Status.String() + "\r\n"); err != nil {
		return &WriteError{Op: "status line", Err: err}
	}

	var herr error
	res.Header.Each(func(name, value string) {
		if herr != nil {
			return
		}
		_, herr = bw.WriteString(name + ": " + value + "\r\n")
	})
	if herr != nil {
		return &WriteError{Op: "header", Err: herr}
	}
	if !res.Header.Has("Content-Length") {
		if _, err := bw.WriteString("Content-Length: " + strconv.Itoa(len(res.Body)) + "\r\n"); err != nil {
			return &WriteError{Op: "header", Err: err}
		}
	}

	if _, err := bw.WriteString("\r\n"); err != nil {
		return &WriteError{Op: "header terminator", Err: err}
	}
	if _, err := bw.Write(res.Body); err != nil {
		return &WriteError{Op: "body", Err: err}
	}
	if err := bw.Flush(); err != nil {
		return &WriteError{Op: "flush", Err: err}
	}
	return nil
}
