package studiocms

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

type appMetrics struct {
	leads     prometheus.Counter
	uploads   *prometheus.CounterVec
	dashboard *prometheus.CounterVec
}

func newAppMetrics(reg prometheus.Registerer) *appMetrics {
	m := &appMetrics{
		leads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "studiocms",
			Name:      "leads_submitted_total",
			Help:      "Contact-form leads stored.",
		}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "studiocms",
			Name:      "uploads_total",
			Help:      "Image uploads by result.",
		}, []string{"result"}),
		dashboard: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "studiocms",
			Name:      "dashboard_query_failures_total",
			Help:      "Dashboard sub-queries that fell back to a default, by table.",
		}, []string{"table"}),
	}
	reg.MustRegister(m.leads, m.uploads, m.dashboard)
	return m
}

func (a *App) metricsHandler() echo.HandlerFunc {
	return echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{
		Gatherer: a.registry,
	})
}
