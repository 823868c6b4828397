package core

import "errors"

// HTTP header constants
const (
	HeaderContentType   = "Content-Type"
	HeaderContentLength = "Content-Length"
	HeaderConnection    = "Connection"
)

// Error definitions
var (
	ErrServerClosed = errors.New("core: server closed")
	errNilResponse  = errors.New("core: handler returned no response")
)
