package app

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"google.golang.org/protobuf/encoding/protojson"

	"github.com/searchktools/mini-server/core/http"
	"github.com/searchktools/mini-server/core/router"
)

func (a *App) registerRoutes() {
	files := &fileStore{root: a.cfg.Directory}

	a.router.GET("/", handleRoot)
	a.router.GET("/echo/*text", handleEcho)
	a.router.GET("/user-agent", handleUserAgent)
	a.router.GET("/files/*name", files.get)
	a.router.POST("/files/*name", files.put)
	a.router.GET("/stats", a.handleStats)
}

func handleRoot(req *http.Request, _ router.Params) (*http.Response, error) {
	return http.OK(), nil
}

func handleEcho(req *http.Request, params router.Params) (*http.Response, error) {
	return http.OK().
		SetHeader("Content-Type", "text/plain").
		SetBodyString(params.Get("text")), nil
}

func handleUserAgent(req *http.Request, _ router.Params) (*http.Response, error) {
	return http.OK().
		SetHeader("Content-Type", "text/plain").
		SetBodyString(req.UserAgent()), nil
}

func (a *App) handleStats(req *http.Request, _ router.Params) (*http.Response, error) {
	pb, err := a.server.GetStats().Proto()
	if err != nil {
		return nil, err
	}
	body, err := protojson.Marshal(pb)
	if err != nil {
		return nil, err
	}
	return http.OK().
		SetHeader("Content-Type", "application/json").
		SetBody(body), nil
}

// fileStore serves and stores files under root. Names that would leave
// root are treated as missing.
type fileStore struct {
	root string
}

func (s *fileStore) resolve(name string) (string, bool) {
	if s.root == "" || !filepath.IsLocal(filepath.FromSlash(name)) {
		return "", false
	}
	return filepath.Join(s.root, filepath.FromSlash(name)), true
}

func (s *fileStore) get(req *http.Request, params router.Params) (*http.Response, error) {
	path, ok := s.resolve(params.Get("name"))
	if !ok {
		return http.NotFound(), nil
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && info.IsDir()) {
		return http.NotFound(), nil
	}
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return http.OK().
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(data), nil
}

func (s *fileStore) put(req *http.Request, params router.Params) (*http.Response, error) {
	path, ok := s.resolve(params.Get("name"))
	if !ok {
		return http.NotFound(), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, req.Body, 0o644); err != nil {
		return nil, err
	}
	return http.Created(), nil
}
