package studiocms

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/eringen/studiocms/backend"
)

func (a *App) postRoutes(e *echo.Echo) {
	e.GET("/", a.listPosts)
	e.POST("/", pipeline(a.createPost, a.requireAdmin))
	e.GET("/:id", a.getPost)
	e.PUT("/:id", pipeline(a.updatePost, a.requireAdmin))
	e.DELETE("/:id", pipeline(a.deletePost, a.requireAdmin))
}

// postOrder puts the newest publication first and undated drafts last.
var postOrder = []backend.Order{
	{Column: "published_at", Desc: true, NullsLast: true},
	{Column: "created_at", Desc: true},
}

func (a *App) listPosts(c echo.Context) error {
	limit, err := parseLimit(c)
	if err != nil {
		return err
	}
	category := strings.TrimSpace(c.QueryParam("category"))

	q := backend.Query{Table: tablePosts, Order: postOrder, Limit: limit}
	if category != "" {
		q.Filters = append(q.Filters, backend.Eq("category", category))
	}

	key := fmt.Sprintf("category=%s&limit=%d", category, limit)
	return a.cachedList(c, tablePosts, key, func(ctx context.Context) (any, error) {
		return listOf[BlogPost](ctx, a, q)
	})
}

func (a *App) getPost(c echo.Context) error {
	rec, err := a.backend.Get(c.Request().Context(), tablePosts, c.Param("id"))
	if err != nil {
		return lookupError(err, "Post")
	}
	p, err := decodeRow[BlogPost](rec)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (a *App) createPost(c echo.Context) error {
	var in postInput
	if err := decodeJSON(c, &in); err != nil {
		return err
	}
	if err := in.validate(true); err != nil {
		return invalidFields(err)
	}

	ctx := c.Request().Context()
	rec, err := a.backend.Insert(ctx, tablePosts, in.record(true, a.now()))
	if err != nil {
		return writeError(err, "Post")
	}
	a.cache.Invalidate(ctx, tablePosts)

	p, err := decodeRow[BlogPost](rec)
	if err != nil {
		return err
	}
	a.log.Info("post created", zap.String("id", p.ID), actor(ctx))
	return c.JSON(http.StatusCreated, p)
}

func (a *App) updatePost(c echo.Context) error {
	var in postInput
	if err := decodeJSON(c, &in); err != nil {
		return err
	}
	if err := in.validate(false); err != nil {
		return invalidFields(err)
	}
	now := a.now()
	changes := in.record(false, now)
	if len(changes) == 0 {
		return badRequest("No fields to update")
	}
	changes["updated_at"] = now.UTC()

	ctx := c.Request().Context()
	id := c.Param("id")
	rec, err := a.backend.Update(ctx, tablePosts, id, changes)
	if err != nil {
		return writeError(err, "Post")
	}
	a.cache.Invalidate(ctx, tablePosts)

	p, err := decodeRow[BlogPost](rec)
	if err != nil {
		return err
	}
	a.log.Info("post updated", zap.String("id", id), actor(ctx))
	return c.JSON(http.StatusOK, p)
}

func (a *App) deletePost(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	if err := a.backend.Delete(ctx, tablePosts, id); err != nil {
		return writeError(err, "Post")
	}
	a.cache.Invalidate(ctx, tablePosts)
	a.log.Info("post deleted", zap.String("id", id), actor(ctx))
	return c.JSON(http.StatusOK, deleted("Post", id))
}
