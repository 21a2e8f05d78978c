package studiocms

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogicalPath(t *testing.T) {
	r := NewRouter("/api", nil)
	e := echo.New()

	tests := []struct {
		name     string
		url      string
		wildcard string
		want     string
	}{
		{"segments", "/api/projects/42", "projects/42", "/projects/42"},
		{"empty segments dropped", "/api//projects//42/", "/projects//42/", "/projects/42"},
		{"dot segments cleaned", "/api/posts/../leads", "posts/../leads", "/leads"},
		{"prefix root", "/api", "", "/"},
		{"prefix slash", "/api/", "", "/"},
		{"raw url fallback", "/api/dashboard/", "", "/dashboard"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := e.NewContext(httptest.NewRequest(http.MethodGet, tt.url, nil), httptest.NewRecorder())
			if tt.wildcard != "" {
				c.SetParamNames("*")
				c.SetParamValues(tt.wildcard)
			}
			assert.Equal(t, tt.want, r.LogicalPath(c))
		})
	}
}

func TestSplitFirst(t *testing.T) {
	name, rest := splitFirst("/projects/42")
	assert.Equal(t, "projects", name)
	assert.Equal(t, "/42", rest)

	name, rest = splitFirst("/dashboard")
	assert.Equal(t, "dashboard", name)
	assert.Equal(t, "/", rest)
}

func TestUnknownPrefixIsStructured404(t *testing.T) {
	ta := newTestApp(t)
	rec := ta.request(http.MethodGet, "/api/nope/1", nil, "")

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, map[string]any{
		"error":  "Not found",
		"path":   "/nope/1",
		"method": "GET",
	}, decodeBody[map[string]any](t, rec))
}

func TestUnknownRouteInsideSubRouterIs404(t *testing.T) {
	ta := newTestApp(t)
	rec := ta.request(http.MethodPost, "/api/projects/a/b", nil, "")

	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "/projects/a/b", body["path"])
	assert.Equal(t, "POST", body["method"])
}

func TestWrongMethodIs405(t *testing.T) {
	ta := newTestApp(t)
	rec := ta.request(http.MethodPatch, "/api/projects/42", nil, ta.token)

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "Method not allowed", body["error"])
	assert.Equal(t, "/projects/42", body["path"])
}

func TestTrailingSlashAndEmptySegmentsDispatch(t *testing.T) {
	ta := newTestApp(t)
	p := ta.createProject(t, projectBody("slash"))

	rec := ta.request(http.MethodGet, "/api//projects/"+p.ID+"/", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestPanicBecomesStructured500(t *testing.T) {
	store := openTestStore(t, true)
	ta := newTestAppWithStore(t, store, WithBackend(&failingBackend{
		Backend: store, table: tableProjects, err: errUnavailable, panic: true,
	}))

	rec := ta.request(http.MethodGet, "/api/projects/1", nil, "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decodeBody[map[string]any](t, rec)["error"], "connection refused")
}

func TestBackendErrorSurfacesRawMessage(t *testing.T) {
	store := openTestStore(t, true)
	ta := newTestAppWithStore(t, store, WithBackend(&failingBackend{
		Backend: store, table: tablePosts, err: errUnavailable,
	}))

	rec := ta.request(http.MethodGet, "/api/posts/1", nil, "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, map[string]any{"error": "connection refused"}, decodeBody[map[string]any](t, rec))

	rec = ta.request(http.MethodGet, "/api/posts", nil, "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "connection refused", decodeBody[map[string]any](t, rec)["error"])
}

func TestOutsidePrefixUnknownIs404(t *testing.T) {
	ta := newTestApp(t)
	rec := ta.request(http.MethodGet, "/nowhere", nil, "")

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not found", decodeBody[map[string]any](t, rec)["error"])
}
