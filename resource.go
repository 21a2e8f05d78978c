package studiocms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/eringen/studiocms/backend"
)

const maxListLimit = 100

type defaulter interface{ fillDefaults() }

func decodeRow[T any](rec backend.Record) (T, error) {
	var v T
	if err := backend.Decode(rec, &v); err != nil {
		return v, err
	}
	if d, ok := any(&v).(defaulter); ok {
		d.fillDefaults()
	}
	return v, nil
}

func decodeRows[T any](recs []backend.Record) ([]T, error) {
	out, err := backend.DecodeAll[T](recs)
	if err != nil {
		return nil, err
	}
	for i := range out {
		if d, ok := any(&out[i]).(defaulter); ok {
			d.fillDefaults()
		}
	}
	return out, nil
}

// selectRows runs q, treating a table that does not exist yet as empty.
func (a *App) selectRows(ctx context.Context, q backend.Query) ([]backend.Record, error) {
	recs, err := a.backend.Select(ctx, q)
	if errors.Is(err, backend.ErrMissingTable) {
		return nil, nil
	}
	return recs, err
}

// listOf selects and decodes rows of T. Only backend failures other than a
// missing table are returned.
func listOf[T any](ctx context.Context, a *App, q backend.Query) ([]T, error) {
	recs, err := a.selectRows(ctx, q)
	if err != nil {
		return nil, err
	}
	return decodeRows[T](recs)
}

func parseLimit(c echo.Context) (int, error) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxListLimit {
		return 0, badRequest(fmt.Sprintf("limit must be an integer between 1 and %d", maxListLimit))
	}
	return n, nil
}

// cachedList serves a public list from the cache, loading and storing it on
// a miss.
func (a *App) cachedList(c echo.Context, table, key string, load func(context.Context) (any, error)) error {
	ctx := c.Request().Context()
	if body, ok := a.cache.Get(ctx, table, key); ok {
		c.Response().Header().Set("X-Cache", "HIT")
		return c.JSONBlob(http.StatusOK, body)
	}
	v, err := load(ctx)
	if err != nil {
		return internalError(err)
	}
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	a.cache.Set(ctx, table, key, body)
	c.Response().Header().Set("X-Cache", "MISS")
	return c.JSONBlob(http.StatusOK, body)
}

func deleted(resource, id string) map[string]string {
	return map[string]string{
		"message": resource + " deleted",
		"id":      id,
	}
}
