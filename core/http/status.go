package http

import "strconv"

// Status is the closed set of response statuses the serializer can emit.
// The zero value behaves as StatusOK.
type Status uint16

const (
	StatusOK       Status = 200
	StatusCreated  Status = 201
	StatusNotFound Status = 404
)

// Code returns the numeric status code written on the wire.
func (s Status) Code() int {
	switch s {
	case 0, StatusOK:
		return 200
	case StatusCreated:
		return 201
	}
	// Anything outside the vocabulary is reported as 404.
	return 404
}

// Reason returns the reason phrase paired with Code.
func (s Status) Reason() string {
	switch s.Code() {
	case 200:
		return "OK"
	case 201:
		return "Created"
	}
	return "Not Found"
}

// String returns "<code> <reason>", e.g. "201 Created".
func (s Status) String() string {
	return strconv.Itoa(s.Code()) + " " + s.Reason()
}
