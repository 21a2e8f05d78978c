package studiocms

import (
	"context"
	"net/http"
	"path"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type logicalPathKey struct{}

// Router is the catch-all API handler. It rebuilds the logical path of a
// request, picks the sub-router registered for its first segment and
// re-issues the request there with the rest of the path.
type Router struct {
	prefix string
	routes map[string]*echo.Echo
	setup  func(*echo.Echo)
}

// NewRouter returns a Router for requests under prefix. setup is applied to
// every sub-router before its routes are registered.
func NewRouter(prefix string, setup func(*echo.Echo)) *Router {
	return &Router{
		prefix: strings.TrimRight(prefix, "/"),
		routes: make(map[string]*echo.Echo),
		setup:  setup,
	}
}

// Handle registers the sub-router for the first path segment name.
func (r *Router) Handle(name string, register func(e *echo.Echo)) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	if r.setup != nil {
		r.setup(e)
	}
	register(e)
	r.routes[name] = e
}

// Mount attaches the router to e under its prefix.
func (r *Router) Mount(e *echo.Echo) {
	e.Any(r.prefix, r.ServeAPI)
	e.Any(r.prefix+"/*", r.ServeAPI)
}

// LogicalPath returns the cleaned path of the request relative to the API
// prefix, without a trailing slash.
func (r *Router) LogicalPath(c echo.Context) string {
	var segments []string
	if wildcard := c.Param("*"); wildcard != "" {
		for _, s := range strings.Split(wildcard, "/") {
			if s != "" {
				segments = append(segments, s)
			}
		}
	}
	raw := "/" + strings.Join(segments, "/")
	if len(segments) == 0 {
		raw = strings.TrimPrefix(c.Request().URL.Path, r.prefix)
	}
	return path.Clean("/" + raw)
}

// ServeAPI dispatches c to a sub-router.
func (r *Router) ServeAPI(c echo.Context) error {
	req := c.Request()
	logical := r.LogicalPath(c)
	name, rest := splitFirst(logical)

	sub, ok := r.routes[name]
	if !ok {
		return routeError(http.StatusNotFound, "Not found", logical, req.Method)
	}

	ctx := context.WithValue(req.Context(), logicalPathKey{}, logical)
	forward := req.Clone(ctx)
	forward.URL.Path = rest
	forward.URL.RawPath = ""
	sub.ServeHTTP(c.Response(), forward)
	return nil
}

// logicalPath returns the path stored by ServeAPI, falling back to the URL.
func logicalPath(c echo.Context) string {
	if p, ok := c.Request().Context().Value(logicalPathKey{}).(string); ok {
		return p
	}
	return c.Request().URL.Path
}

func splitFirst(p string) (string, string) {
	p = strings.TrimPrefix(p, "/")
	name, rest, _ := strings.Cut(p, "/")
	return name, "/" + rest
}
