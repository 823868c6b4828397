package http

// HandlerFunc turns a parsed request into a response. It is the only point
// where application code sees a request; the wire layer never looks at
// Path itself.
type HandlerFunc func(req *Request) (*Response, error)
