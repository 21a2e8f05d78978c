package studiocms

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eringen/studiocms/backend"
)

const recentLimit = 5

func (a *App) dashboardRoutes(e *echo.Echo) {
	e.GET("/", pipeline(a.handleDashboard, a.requireAdmin))
}

func (a *App) handleDashboard(c echo.Context) error {
	return c.JSON(http.StatusOK, a.Dashboard(c.Request().Context()))
}

// Dashboard computes the admin overview. Every sub-query falls back to zero
// or an empty list on failure, so the result is always complete. Failures
// other than a missing table are reported in Error.
func (a *App) Dashboard(ctx context.Context) DashboardStats {
	now := a.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	weekAgo := now.Add(-7 * 24 * time.Hour)

	out := DashboardStats{
		Recent: DashboardRecent{
			Projects: []Project{},
			Posts:    []BlogPost{},
			Leads:    []Lead{},
		},
	}

	var mu sync.Mutex
	fail := func(table string, err error) {
		if errors.Is(err, backend.ErrMissingTable) || errors.Is(err, context.Canceled) {
			return
		}
		a.metrics.dashboard.WithLabelValues(table).Inc()
		a.log.Warn("dashboard query failed", zap.String("table", table), zap.Error(err))
		mu.Lock()
		if out.Error == "" {
			out.Error = err.Error()
		}
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	count := func(dst *int, table string, filters ...backend.Filter) {
		g.Go(func() error {
			n, err := a.backend.Count(gctx, table, filters...)
			if err != nil {
				fail(table, err)
				return nil
			}
			*dst = n
			return nil
		})
	}
	st := &out.Stats
	count(&st.TotalProjects, tableProjects)
	count(&st.ProjectsToday, tableProjects, backend.Gte("created_at", today))
	count(&st.TotalPosts, tablePosts)
	count(&st.PostsToday, tablePosts, backend.Gte("created_at", today))
	count(&st.TotalLeads, tableLeads)
	count(&st.LeadsToday, tableLeads, backend.Gte("created_at", today))
	count(&st.LeadsThisWeek, tableLeads, backend.Gte("created_at", weekAgo))

	newest := func(table string) backend.Query {
		return backend.Query{
			Table: table,
			Order: []backend.Order{{Column: "created_at", Desc: true}},
			Limit: recentLimit,
		}
	}
	g.Go(func() error {
		projects, err := listOf[Project](gctx, a, newest(tableProjects))
		if err != nil {
			fail(tableProjects, err)
			return nil
		}
		out.Recent.Projects = projects
		return nil
	})
	g.Go(func() error {
		posts, err := listOf[BlogPost](gctx, a, newest(tablePosts))
		if err != nil {
			fail(tablePosts, err)
			return nil
		}
		out.Recent.Posts = posts
		return nil
	})
	g.Go(func() error {
		leads, err := listOf[Lead](gctx, a, newest(tableLeads))
		if err != nil {
			fail(tableLeads, err)
			return nil
		}
		out.Recent.Leads = leads
		return nil
	})

	_ = g.Wait()
	return out
}
