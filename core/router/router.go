package router

import (
	"sort"
	"strings"

	"github.com/searchktools/mini-server/core/http"
)

// Params holds values captured by wildcard segments.
type Params map[string]string

// Get returns the value captured under key.
func (p Params) Get(key string) string {
	return p[key]
}

// RouteFunc handles a matched request.
type RouteFunc func(req *http.Request, params Params) (*http.Response, error)

// Router maps method and path to a RouteFunc. Patterns are either exact
// ("/user-agent") or end in a named wildcard ("/echo/*text") that captures
// the rest of the path, possibly empty.
type Router struct {
	// Static routes: path -> method -> handler
	staticRoutes map[string]map[http.Method]RouteFunc

	// Wildcard routes, longest prefix first
	wildcardRoutes []*wildcardRoute
}

type wildcardRoute struct {
	prefix   string
	paramKey string
	handlers map[http.Method]RouteFunc
}

// New creates an empty router.
func New() *Router {
	return &Router{
		staticRoutes: make(map[string]map[http.Method]RouteFunc),
	}
}

// Add registers handler for method and pattern.
func (r *Router) Add(method http.Method, pattern string, handler RouteFunc) {
	if pattern == "" || pattern[0] != '/' {
		panic("router: pattern must begin with '/'")
	}

	idx := strings.IndexByte(pattern, '*')
	if idx == -1 {
		if r.staticRoutes[pattern] == nil {
			r.staticRoutes[pattern] = make(map[http.Method]RouteFunc)
		}
		r.staticRoutes[pattern][method] = handler
		return
	}

	prefix, key := pattern[:idx], pattern[idx+1:]
	if key == "" || strings.ContainsAny(key, "/*") {
		panic("router: wildcard must be a trailing named segment: " + pattern)
	}
	for _, wr := range r.wildcardRoutes {
		if wr.prefix == prefix && wr.paramKey == key {
			wr.handlers[method] = handler
			return
		}
	}

	r.wildcardRoutes = append(r.wildcardRoutes, &wildcardRoute{
		prefix:   prefix,
		paramKey: key,
		handlers: map[http.Method]RouteFunc{method: handler},
	})
	sort.SliceStable(r.wildcardRoutes, func(i, j int) bool {
		return len(r.wildcardRoutes[i].prefix) > len(r.wildcardRoutes[j].prefix)
	})
}

// GET registers a GET route
func (r *Router) GET(pattern string, handler RouteFunc) {
	r.Add(http.MethodGet, pattern, handler)
}

// POST registers a POST route
func (r *Router) POST(pattern string, handler RouteFunc) {
	r.Add(http.MethodPost, pattern, handler)
}

// Find returns the handler for method and path, or nil.
func (r *Router) Find(method http.Method, path string) (RouteFunc, Params) {
	if handlers, ok := r.staticRoutes[path]; ok {
		if h, ok := handlers[method]; ok {
			return h, nil
		}
	}

	for _, wr := range r.wildcardRoutes {
		if !strings.HasPrefix(path, wr.prefix) {
			continue
		}
		if h, ok := wr.handlers[method]; ok {
			return h, Params{wr.paramKey: path[len(wr.prefix):]}
		}
	}

	return nil, nil
}

// Handler adapts the router to the connection driver. Unmatched requests
// get an empty 404.
func (r *Router) Handler() http.HandlerFunc {
	return func(req *http.Request) (*http.Response, error) {
		h, params := r.Find(req.Method, req.Path)
		if h == nil {
			return http.NotFound(), nil
		}
		return h(req, params)
	}
}
