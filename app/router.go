package snaptalk

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
)

type JsonError struct {
	Code int    `json:"code"`
	Err  string `json:"error"`
}

func NewJsonError(code int, err string) JsonError {
	return JsonError{Code: code, Err: err}
}

func (e JsonError) StatusCode() int {
	return e.Code
}

func (e JsonError) Error() string {
	return e.Err
}

var internalError = JsonError{
	Code: http.StatusInternalServerError,
	Err:  "internal server error",
}

// HandlerFunc is an HTTP handler that reports failure by returning an error
// instead of writing to the response writer. Returned JsonErrors are written
// as-is; anything else is logged and mapped to a generic 500.
type HandlerFunc func(http.ResponseWriter, *http.Request) error

type Middleware func(http.Handler) HandlerFunc

// Router wraps chi.Router so routes can be registered with error-returning
// handlers.
type Router struct {
	chi.Router
	logger *slog.Logger
}

type RouterOption func(*Router)

func WithRouterLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

func NewRouter(opts ...RouterOption) *Router {
	return newRouter(chi.NewRouter(), opts...)
}

func newRouter(chiRouter chi.Router, opts ...RouterOption) *Router {
	router := &Router{
		Router: chiRouter,
		logger: slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}
	for _, opt := range opts {
		opt(router)
	}
	return router
}

func (a *Router) handleWithErr(h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := h(w, r)
		if err == nil {
			return
		}
		resErr, ok := err.(JsonError)
		if !ok {
			a.logger.Error(err.Error(), slog.String("path", r.URL.Path))
			resErr = internalError
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resErr.StatusCode())
		if err := json.NewEncoder(w).Encode(resErr); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}
}

func (a *Router) Get(path string, h HandlerFunc) {
	a.Router.Get(path, a.handleWithErr(h))
}

func (a *Router) Post(path string, h HandlerFunc) {
	a.Router.Post(path, a.handleWithErr(h))
}

func (a *Router) Put(path string, h HandlerFunc) {
	a.Router.Put(path, a.handleWithErr(h))
}

func (a *Router) Delete(path string, h HandlerFunc) {
	a.Router.Delete(path, a.handleWithErr(h))
}

func (a *Router) Route(path string, f func(r *Router)) {
	a.Router.Route(path, func(r chi.Router) {
		f(newRouter(r, WithRouterLogger(a.logger)))
	})
}

func (a *Router) Use(middleware Middleware) {
	a.Router.Use(func(h http.Handler) http.Handler {
		return a.handleWithErr(middleware(h))
	})
}

func (a *Router) With(middleware Middleware) *Router {
	ch := a.Router.With(func(h http.Handler) http.Handler {
		return a.handleWithErr(middleware(h))
	})
	return newRouter(ch, WithRouterLogger(a.logger))
}

func DecodeJson(r io.Reader, v any) error {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return NewJsonError(http.StatusBadRequest, "malformed request body")
	}
	return nil
}

func WriteJson(w http.ResponseWriter, v any, code int) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return err
	}
	return nil
}
