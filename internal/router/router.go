// Package router maps parsed requests to the server's fixed set of handlers.
package router

import (
	"errors"
	"log/slog"
	"strings"

	"tinyhttpd/internal/filestore"
	"tinyhttpd/internal/request"
	"tinyhttpd/internal/response"
)

const (
	echoPrefix  = "/echo/"
	filesPrefix = "/files/"
)

type handlerFunc func(w *response.Writer, req *request.Request) error

type predicate func(string) bool

// route binds a method and path predicate to a handler
type route struct {
	name    string
	method  predicate
	path    predicate
	handler handlerFunc
}

func exact(p string) predicate {
	return func(s string) bool { return s == p }
}

func prefix(p string) predicate {
	return func(s string) bool { return strings.HasPrefix(s, p) }
}

func anyMethod(string) bool { return true }

// Router dispatches to the first matching route
type Router struct {
	store  *filestore.Store
	logger *slog.Logger
	routes []route
}

// New builds the route table. Order matters: the first match wins.
func New(store *filestore.Store, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Router{store: store, logger: logger}
	rt.routes = []route{
		{"index", anyMethod, exact("/"), rt.index},
		{"user-agent", anyMethod, exact("/user-agent"), rt.userAgent},
		{"file-write", exact("POST"), prefix("/files"), rt.writeFile},
		{"file-read", anyMethod, prefix("/files"), rt.readFile},
		{"echo", anyMethod, prefix("/echo"), rt.echo},
	}
	return rt
}

// Handle serves req; it matches the server.Handler signature
func (rt *Router) Handle(w *response.Writer, req *request.Request) {
	name, h := rt.match(req.Method(), req.Path())
	if err := h(w, req); err != nil {
		rt.logger.Warn("failed to write response",
			"route", name, "method", req.Method(), "path", req.Path(), "error", err)
		return
	}
	rt.logger.Debug("request served", "route", name, "method", req.Method(), "path", req.Path())
}

func (rt *Router) match(method, path string) (string, handlerFunc) {
	for _, r := range rt.routes {
		if r.path(path) && r.method(method) {
			return r.name, r.handler
		}
	}
	return "not-found", notFound
}

func notFound(w *response.Writer, _ *request.Request) error {
	return w.Respond(response.StatusNotFound)
}

func (rt *Router) index(w *response.Writer, _ *request.Request) error {
	return w.Respond(response.StatusOK)
}

func (rt *Router) userAgent(w *response.Writer, req *request.Request) error {
	ua, ok := req.Header("User-Agent")
	if !ok {
		return w.Respond(response.StatusOK)
	}
	return w.RespondWithBody(response.StatusOK, response.ContentTypeText, []byte(ua))
}

func (rt *Router) echo(w *response.Writer, req *request.Request) error {
	text, ok := strings.CutPrefix(req.Path(), echoPrefix)
	if !ok {
		return notFound(w, req)
	}
	return w.RespondWithBody(response.StatusOK, response.ContentTypeText, []byte(text))
}

func (rt *Router) writeFile(w *response.Writer, req *request.Request) error {
	name, ok := strings.CutPrefix(req.Path(), filesPrefix)
	if !ok {
		return notFound(w, req)
	}
	err := rt.store.Write(name, req.Body)
	switch {
	case err == nil:
		return w.Respond(response.StatusCreated)
	case errors.Is(err, filestore.ErrInvalidName):
		rt.logger.Info("rejected file name", "name", name)
		return w.Respond(response.StatusBadRequest)
	default:
		rt.logger.Error("failed to write file", "name", name, "error", err)
		return w.Respond(response.StatusInternalServerError)
	}
}

func (rt *Router) readFile(w *response.Writer, req *request.Request) error {
	name, ok := strings.CutPrefix(req.Path(), filesPrefix)
	if !ok {
		return notFound(w, req)
	}
	data, err := rt.store.Read(name)
	switch {
	case err == nil:
		return w.RespondWithBody(response.StatusOK, response.ContentTypeBinary, data)
	case errors.Is(err, filestore.ErrNotFound):
		return w.Respond(response.StatusNotFound)
	case errors.Is(err, filestore.ErrInvalidName):
		rt.logger.Info("rejected file name", "name", name)
		return w.Respond(response.StatusBadRequest)
	default:
		rt.logger.Error("failed to read file", "name", name, "error", err)
		return w.Respond(response.StatusInternalServerError)
	}
}
