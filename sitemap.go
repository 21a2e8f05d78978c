package studiocms

import (
	"encoding/xml"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eringen/studiocms/backend"
)

const sitemapLimit = 1000

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

func lastMod(created time.Time, updated *time.Time) string {
	t := created
	if updated != nil && updated.After(t) {
		t = *updated
	}
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}

func (a *App) handleSitemap(c echo.Context) error {
	ctx := c.Request().Context()
	projects, err := listOf[Project](ctx, a, backend.Query{
		Table: tableProjects,
		Order: []backend.Order{{Column: "created_at", Desc: true}},
		Limit: sitemapLimit,
	})
	if err != nil {
		return err
	}
	posts, err := listOf[BlogPost](ctx, a, backend.Query{
		Table: tablePosts,
		Order: postOrder,
		Limit: sitemapLimit,
	})
	if err != nil {
		return err
	}
	return a.renderSitemap(c, projects, posts)
}

func (a *App) renderSitemap(c echo.Context, projects []Project, posts []BlogPost) error {
	base := a.Config.Site.URL
	urls := []sitemapURL{
		{Loc: BuildURL(base)},
		{Loc: BuildURL(base, "projects")},
		{Loc: BuildURL(base, "blog")},
	}
	for _, p := range projects {
		urls = append(urls, sitemapURL{
			Loc:     BuildURL(base, "projects", p.ID),
			LastMod: lastMod(p.CreatedAt, p.UpdatedAt),
		})
	}
	for _, p := range posts {
		if p.PublishedAt == nil {
			continue
		}
		urls = append(urls, sitemapURL{
			Loc:     BuildURL(base, "blog", p.ID),
			LastMod: lastMod(p.CreatedAt, p.UpdatedAt),
		})
	}
	sitemap := sitemapURLSet{
		XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs:  urls,
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/xml; charset=utf-8")
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Write([]byte(xml.Header))
	return xml.NewEncoder(c.Response()).Encode(sitemap)
}
