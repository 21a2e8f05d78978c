package studiocms

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

func (a *App) handleHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()
	if err := a.backend.Ping(ctx); err != nil {
		a.log.Warn("health check failed", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) handleRobots(c echo.Context) error {
	var b strings.Builder
	b.WriteString("User-agent: *\n")
	b.WriteString("Allow: /\n")
	fmt.Fprintf(&b, "Disallow: %s/\n", a.Config.APIPrefix)
	fmt.Fprintf(&b, "Sitemap: %s/sitemap.xml\n", a.Config.Site.URL)
	return c.String(http.StatusOK, b.String())
}

type publicConfig struct {
	SiteName        string `json:"site_name"`
	SiteURL         string `json:"site_url"`
	APIPrefix       string `json:"api_prefix"`
	SupabaseURL     string `json:"supabase_url,omitempty"`
	SupabaseAnonKey string `json:"supabase_anon_key,omitempty"`
}

// handlePublicConfig hands the front end the values it may know: never the
// service role key or any other secret.
func (a *App) handlePublicConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, publicConfig{
		SiteName:        a.Config.Site.Name,
		SiteURL:         a.Config.Site.URL,
		APIPrefix:       a.Config.APIPrefix,
		SupabaseURL:     a.Config.Public.SupabaseURL,
		SupabaseAnonKey: a.Config.Public.SupabaseAnonKey,
	})
}

// httpErrorHandler is the outer server's last resort: unknown errors never
// leak their message.
func (a *App) httpErrorHandler(err error, c echo.Context) {
	a.renderError(err, c, false)
}

// apiErrorHandler renders sub-router failures. Unknown errors become a 500
// carrying their message.
func (a *App) apiErrorHandler(err error, c echo.Context) {
	a.renderError(err, c, true)
}

func (a *App) renderError(err error, c echo.Context, expose bool) {
	if c.Response().Committed {
		return
	}
	var ae *apiError
	var he *echo.HTTPError
	switch {
	case errors.As(err, &ae):
	case errors.As(err, &he):
		ae = a.fromHTTPError(he, c)
	case expose:
		ae = internalError(err)
	default:
		ae = newAPIError(http.StatusInternalServerError, "Internal server error")
		ae.Err = err
	}

	if ae.Status >= http.StatusInternalServerError {
		a.log.Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("path", logicalPath(c)),
			zap.Int("status", ae.Status),
			zap.Error(err),
		)
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(ae.Status)
	} else {
		werr = c.JSON(ae.Status, ae.Body)
	}
	if werr != nil {
		a.log.Warn("write error response", zap.Error(werr))
	}
}

func (a *App) fromHTTPError(he *echo.HTTPError, c echo.Context) *apiError {
	method := c.Request().Method
	switch he.Code {
	case http.StatusNotFound:
		return routeError(http.StatusNotFound, "Not found", logicalPath(c), method)
	case http.StatusMethodNotAllowed:
		return routeError(http.StatusMethodNotAllowed, "Method not allowed", logicalPath(c), method)
	case http.StatusRequestEntityTooLarge:
		// The body limit trips before any handler runs; report it as bad input.
		msg := "Request body too large"
		if a.isUploadPath(c.Request().URL.Path) {
			msg = uploadTooLarge
		}
		e := badRequest(msg)
		e.Err = he
		return e
	}
	msg := http.StatusText(he.Code)
	if s, ok := he.Message.(string); ok && s != "" {
		msg = s
	}
	e := newAPIError(he.Code, msg)
	e.Err = he
	return e
}
