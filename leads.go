package studiocms

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/eringen/studiocms/backend"
)

func (a *App) leadRoutes(e *echo.Echo) {
	e.POST("/", pipeline(a.createLead, a.limitLeads))
	e.GET("/", pipeline(a.listLeads, a.requireAdmin))
	e.GET("/:id", pipeline(a.getLead, a.requireAdmin))
	e.DELETE("/", pipeline(a.deleteLead, a.requireAdmin))
	e.DELETE("/:id", pipeline(a.deleteLead, a.requireAdmin))
}

func (a *App) createLead(c echo.Context) error {
	var in leadInput
	if err := decodeJSON(c, &in); err != nil {
		return err
	}
	if err := in.validate(); err != nil {
		return invalidFields(err)
	}

	ctx := c.Request().Context()
	rec, err := a.backend.Insert(ctx, tableLeads, in.record())
	if err != nil {
		return writeError(err, "Lead")
	}
	lead, err := decodeRow[Lead](rec)
	if err != nil {
		return err
	}
	a.metrics.leads.Inc()
	a.log.Info("lead received", zap.String("id", lead.ID))
	return c.JSON(http.StatusCreated, lead)
}

func (a *App) listLeads(c echo.Context) error {
	limit, err := parseLimit(c)
	if err != nil {
		return err
	}
	leads, err := listOf[Lead](c.Request().Context(), a, backend.Query{
		Table: tableLeads,
		Order: []backend.Order{{Column: "created_at", Desc: true}},
		Limit: limit,
	})
	if err != nil {
		return internalError(err)
	}
	return c.JSON(http.StatusOK, leads)
}

func (a *App) getLead(c echo.Context) error {
	rec, err := a.backend.Get(c.Request().Context(), tableLeads, c.Param("id"))
	if err != nil {
		return lookupError(err, "Lead")
	}
	lead, err := decodeRow[Lead](rec)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, lead)
}

// deleteLead takes the id from the path, the id query parameter or a JSON
// body, in that order.
func (a *App) deleteLead(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		id = c.QueryParam("id")
	}
	if id == "" && c.Request().ContentLength != 0 {
		var body struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(c.Request().Body).Decode(&body); err == nil {
			id = body.ID
		}
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return badRequest("Lead id is required")
	}

	ctx := c.Request().Context()
	if err := a.backend.Delete(ctx, tableLeads, id); err != nil {
		return writeError(err, "Lead")
	}
	a.log.Info("lead deleted", zap.String("id", id), actor(ctx))
	return c.JSON(http.StatusOK, deleted("Lead", id))
}
