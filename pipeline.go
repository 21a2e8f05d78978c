package studiocms

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/eringen/studiocms/auth"
)

// Stage runs before a handler. It returns the context the rest of the
// pipeline sees, or an error that ends the request.
type Stage func(c echo.Context) (context.Context, error)

// pipeline runs stages in order and then h.
func pipeline(h echo.HandlerFunc, stages ...Stage) echo.HandlerFunc {
	return func(c echo.Context) error {
		for _, stage := range stages {
			ctx, err := stage(c)
			if err != nil {
				return err
			}
			if ctx != nil {
				c.SetRequest(c.Request().WithContext(ctx))
			}
		}
		return h(c)
	}
}

// requireAdmin verifies the bearer token and attaches the identity.
func (a *App) requireAdmin(c echo.Context) (context.Context, error) {
	ctx := c.Request().Context()
	token, err := auth.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		return nil, unauthorized("Missing or invalid authorization header", err)
	}
	if a.verifier == nil {
		return nil, unauthorized("Authentication is not configured", nil)
	}
	user, err := a.verifier.Verify(ctx, token)
	if err != nil {
		a.log.Debug("token rejected", zap.String("path", logicalPath(c)), zap.Error(err))
		return nil, unauthorized("Invalid or expired token", err)
	}
	if !a.admins.Allows(user) {
		a.log.Warn("non-admin token rejected",
			zap.String("user_id", user.ID),
			zap.String("email", user.Email),
		)
		return nil, unauthorized("Not authorized", auth.ErrNotAllowed)
	}
	return auth.WithUser(ctx, user), nil
}

// limitLeads throttles anonymous lead submissions per client IP.
func (a *App) limitLeads(c echo.Context) (context.Context, error) {
	ip := c.RealIP()
	if !a.limiter.Allow(c.Request().Context(), "leads:"+ip) {
		a.log.Info("lead submission rate limited", zap.String("ip", ip))
		e := newAPIError(http.StatusTooManyRequests, "Too many submissions, please try again later")
		e.Err = errRateLimited
		return nil, e
	}
	return nil, nil
}

var errRateLimited = errors.New("rate limited")

func actor(ctx context.Context) zap.Field {
	if u, ok := auth.UserFrom(ctx); ok {
		return zap.String("actor", u.Email)
	}
	return zap.Skip()
}
