package http

// Method is a request method the parser accepts.
// The zero value is MethodGet.
type Method uint8

const (
	MethodGet Method = iota
	MethodPost
)

var methodNames = [...]string{
	MethodGet:  "GET",
	MethodPost: "POST",
}

// String returns the wire token for m.
func (m Method) String() string {
	if int(m) < len(methodNames) {
		return methodNames[m]
	}
	return "UNKNOWN"
}

// ParseMethod matches tok case-sensitively against the supported methods.
func ParseMethod(tok string) (Method, error) {
	switch tok {
	case "GET":
		return MethodGet, nil
	case "POST":
		return MethodPost, nil
	}
	return 0, &ParseError{Kind: KindUnknownMethod, Message: "Invalid Http Method " + tok}
}
