package studiocms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/eringen/studiocms/assethost"
	"github.com/eringen/studiocms/auth"
	"github.com/eringen/studiocms/backend"
)

const (
	testSecret = "test-jwt-secret"
	adminEmail = "admin@studio.test"
)

var testNow = time.Date(2024, 3, 15, 14, 0, 0, 0, time.UTC)

type fakeUploader struct {
	got assethost.File
	err error
}

func (f *fakeUploader) Upload(_ context.Context, file assethost.File) (assethost.Asset, error) {
	f.got = file
	if f.err != nil {
		return assethost.Asset{}, f.err
	}
	return assethost.Asset{
		URL:      "https://res.cloudinary.com/demo/image/upload/v1/portfolio/abc.png",
		PublicID: "portfolio/abc",
		Format:   "png",
		Bytes:    len(file.Data),
	}, nil
}

type testApp struct {
	*App
	store    *backend.SQLStore
	uploader *fakeUploader
	token    string
}

func openTestStore(t *testing.T, migrate bool) *backend.SQLStore {
	t.Helper()
	store, err := backend.OpenSQL(backend.DriverSQLite, filepath.Join(t.TempDir(), "studio.db"))
	require.NoError(t, err)
	if migrate {
		require.NoError(t, backend.NewMigrator(store, nil).Up(context.Background()))
	}
	return store
}

// newTestApp builds an App over a migrated temp SQLite database, verifying
// tokens locally with testSecret.
func newTestApp(t *testing.T, opts ...Option) *testApp {
	t.Helper()
	return newTestAppWithStore(t, openTestStore(t, true), opts...)
}

func newTestAppWithStore(t *testing.T, store *backend.SQLStore, opts ...Option) *testApp {
	t.Helper()
	up := &fakeUploader{}
	base := []Option{
		WithBackend(store),
		WithVerifier(auth.NewJWTVerifier(testSecret)),
		WithUploader(up),
		WithClock(func() time.Time { return testNow }),
	}
	app, err := New(Config{
		AdminEmails:   []string{adminEmail},
		LeadRateLimit: 1000,
		Site:          SiteConfig{Name: "Studio", URL: "https://studio.test"},
	}, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })

	return &testApp{App: app, store: store, uploader: up, token: issueToken(t, adminEmail)}
}

func issueToken(t *testing.T, email string) string {
	t.Helper()
	token, err := auth.IssueToken(testSecret, auth.User{ID: "user-" + email, Email: email}, time.Hour)
	require.NoError(t, err)
	return token
}

func (ta *testApp) request(method, target string, body any, token string) *httptest.ResponseRecorder {
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, _ := json.Marshal(b)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, r)
	if r != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ta.Echo.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (ta *testApp) createProject(t *testing.T, body map[string]any) Project {
	t.Helper()
	rec := ta.request(http.MethodPost, "/api/projects", body, ta.token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[Project](t, rec)
}

func projectBody(title string) map[string]any {
	return map[string]any{
		"title":       title,
		"description": "A site for " + title,
		"category":    "web",
		"image_url":   "https://img.test/" + title + ".png",
	}
}

// failingBackend fails every call touching table with err and delegates the
// rest. An empty table fails every call.
type failingBackend struct {
	backend.Backend
	table string
	err   error
	panic bool
}

func (f *failingBackend) fail(table string) error {
	if f.table != "" && table != f.table {
		return nil
	}
	if f.panic {
		panic(f.err.Error())
	}
	return f.err
}

func (f *failingBackend) Select(ctx context.Context, q backend.Query) ([]backend.Record, error) {
	if err := f.fail(q.Table); err != nil {
		return nil, err
	}
	return f.Backend.Select(ctx, q)
}

func (f *failingBackend) Get(ctx context.Context, table, id string) (backend.Record, error) {
	if err := f.fail(table); err != nil {
		return nil, err
	}
	return f.Backend.Get(ctx, table, id)
}

func (f *failingBackend) Count(ctx context.Context, table string, filters ...backend.Filter) (int, error) {
	if err := f.fail(table); err != nil {
		return 0, err
	}
	return f.Backend.Count(ctx, table, filters...)
}

var errUnavailable = errors.New("connection refused")
