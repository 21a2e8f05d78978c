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

func (a *App) projectRoutes(e *echo.Echo) {
	e.GET("/", a.listProjects)
	e.POST("/", pipeline(a.createProject, a.requireAdmin))
	e.GET("/:id", a.getProject)
	e.PUT("/:id", pipeline(a.updateProject, a.requireAdmin))
	e.DELETE("/:id", pipeline(a.deleteProject, a.requireAdmin))
}

func (a *App) listProjects(c echo.Context) error {
	limit, err := parseLimit(c)
	if err != nil {
		return err
	}
	category := strings.TrimSpace(c.QueryParam("category"))
	featured := c.QueryParam("featured") == "true"

	q := backend.Query{
		Table: tableProjects,
		Order: []backend.Order{{Column: "created_at", Desc: true}},
		Limit: limit,
	}
	if category != "" {
		q.Filters = append(q.Filters, backend.Eq("category", category))
	}
	if featured {
		q.Filters = append(q.Filters, backend.Eq("is_featured", true))
		q.Order = []backend.Order{
			{Column: "featured_order", NullsLast: true},
			{Column: "created_at", Desc: true},
		}
	}

	key := fmt.Sprintf("category=%s&featured=%t&limit=%d", category, featured, limit)
	return a.cachedList(c, tableProjects, key, func(ctx context.Context) (any, error) {
		return listOf[Project](ctx, a, q)
	})
}

func (a *App) getProject(c echo.Context) error {
	rec, err := a.backend.Get(c.Request().Context(), tableProjects, c.Param("id"))
	if err != nil {
		return lookupError(err, "Project")
	}
	p, err := decodeRow[Project](rec)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (a *App) createProject(c echo.Context) error {
	var in projectInput
	if err := decodeJSON(c, &in); err != nil {
		return err
	}
	if err := in.validate(true); err != nil {
		return invalidFields(err)
	}

	ctx := c.Request().Context()
	rec, err := a.backend.Insert(ctx, tableProjects, in.record(true))
	if err != nil {
		return writeError(err, "Project")
	}
	a.cache.Invalidate(ctx, tableProjects)

	p, err := decodeRow[Project](rec)
	if err != nil {
		return err
	}
	a.log.Info("project created", zap.String("id", p.ID), actor(ctx))
	return c.JSON(http.StatusCreated, p)
}

func (a *App) updateProject(c echo.Context) error {
	var in projectInput
	if err := decodeJSON(c, &in); err != nil {
		return err
	}
	if err := in.validate(false); err != nil {
		return invalidFields(err)
	}
	changes := in.record(false)
	if len(changes) == 0 {
		return badRequest("No fields to update")
	}
	changes["updated_at"] = a.now().UTC()

	ctx := c.Request().Context()
	id := c.Param("id")
	rec, err := a.backend.Update(ctx, tableProjects, id, changes)
	if err != nil {
		return writeError(err, "Project")
	}
	a.cache.Invalidate(ctx, tableProjects)

	p, err := decodeRow[Project](rec)
	if err != nil {
		return err
	}
	a.log.Info("project updated", zap.String("id", id), actor(ctx))
	return c.JSON(http.StatusOK, p)
}

func (a *App) deleteProject(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	if err := a.backend.Delete(ctx, tableProjects, id); err != nil {
		return writeError(err, "Project")
	}
	a.cache.Invalidate(ctx, tableProjects)
	a.log.Info("project deleted", zap.String("id", id), actor(ctx))
	return c.JSON(http.StatusOK, deleted("Project", id))
}
