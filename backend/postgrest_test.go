package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPostgREST(t *testing.T, h http.HandlerFunc) *PostgREST {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewPostgREST(srv.URL+"/", "service-key", srv.Client())
}

func TestPostgRESTSelectBuildsQuery(t *testing.T) {
	var got *http.Request
	p := newTestPostgREST(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[{"id":"1","title":"A","tags":["x"]}]`)
	})

	rows, err := p.Select(context.Background(), Query{
		Table:   "projects",
		Filters: []Filter{Eq("is_featured", true), Eq("category", "web")},
		Order: []Order{
			{Column: "featured_order", NullsLast: true},
			{Column: "created_at", Desc: true},
		},
		Limit: 5,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "A", rows[0]["title"])

	require.NotNil(t, got)
	assert.Equal(t, "/rest/v1/projects", got.URL.Path)
	q := got.URL.Query()
	assert.Equal(t, "*", q.Get("select"))
	assert.Equal(t, "eq.true", q.Get("is_featured"))
	assert.Equal(t, "eq.web", q.Get("category"))
	assert.Equal(t, "featured_order.asc.nullslast,created_at.desc", q.Get("order"))
	assert.Equal(t, "5", q.Get("limit"))
	assert.Equal(t, "service-key", got.Header.Get("apikey"))
	assert.Equal(t, "Bearer service-key", got.Header.Get("Authorization"))
}

func TestPostgRESTGetNotFound(t *testing.T) {
	p := newTestPostgREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/vnd.pgrst.object+json", r.Header.Get("Accept"))
		assert.Equal(t, "eq.42", r.URL.Query().Get("id"))
		w.WriteHeader(http.StatusNotAcceptable)
		io.WriteString(w, `{"code":"PGRST116","details":"The result contains 0 rows","hint":null,"message":"JSON object requested, multiple (or no) rows returned"}`)
	})

	_, err := p.Get(context.Background(), "projects", "42")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "JSON object requested, multiple (or no) rows returned", err.Error())
}

func TestPostgRESTInvalidIDIsNotFound(t *testing.T) {
	p := newTestPostgREST(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"code":"22P02","message":"invalid input syntax for type uuid: \"abc\""}`)
	})

	_, err := p.Get(context.Background(), "projects", "abc")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPostgRESTMissingTable(t *testing.T) {
	for name, body := range map[string]string{
		"42P01":    `{"code":"42P01","message":"relation \"public.leads\" does not exist"}`,
		"PGRST205": `{"code":"PGRST205","message":"Could not find the table 'public.leads' in the schema cache"}`,
		"bare":     ``,
	} {
		t.Run(name, func(t *testing.T) {
			p := newTestPostgREST(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				io.WriteString(w, body)
			})
			_, err := p.Select(context.Background(), Query{Table: "leads"})
			assert.True(t, errors.Is(err, ErrMissingTable), "got %v", err)
		})
	}
}

func TestPostgRESTOtherErrorKeepsMessage(t *testing.T) {
	p := newTestPostgREST(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"code":"23502","message":"null value in column \"title\" violates not-null constraint"}`)
	})

	_, err := p.Insert(context.Background(), "projects", Record{"description": "x"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrMissingTable))
	assert.Contains(t, err.Error(), "violates not-null constraint")
	var be *Error
	require.True(t, errors.As(err, &be))
	assert.Equal(t, http.StatusBadRequest, be.Status)
}

func TestPostgRESTCount(t *testing.T) {
	since := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	p := newTestPostgREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "count=exact", r.Header.Get("Prefer"))
		assert.Equal(t, "gte.2025-03-01T00:00:00Z", r.URL.Query().Get("created_at"))
		w.Header().Set("Content-Range", "0-0/17")
		io.WriteString(w, `[{"id":"1"}]`)
	})

	n, err := p.Count(context.Background(), "leads", Gte("created_at", since))
	require.NoError(t, err)
	assert.Equal(t, 17, n)
}

func TestPostgRESTInsertUpdateDelete(t *testing.T) {
	p := newTestPostgREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))
		switch r.Method {
		case http.MethodPost:
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			body["id"] = "new-id"
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode([]map[string]any{body})
		case http.MethodPatch:
			if r.URL.Query().Get("id") == "eq.missing" {
				io.WriteString(w, `[]`)
				return
			}
			io.WriteString(w, `[{"id":"new-id","title":"changed"}]`)
		case http.MethodDelete:
			if r.URL.Query().Get("id") == "eq.missing" {
				io.WriteString(w, `[]`)
				return
			}
			io.WriteString(w, `[{"id":"new-id"}]`)
		}
	})
	ctx := context.Background()

	rec, err := p.Insert(ctx, "leads", Record{"name": "Jo"})
	require.NoError(t, err)
	assert.Equal(t, "new-id", rec["id"])
	assert.Equal(t, "Jo", rec["name"])

	rec, err = p.Update(ctx, "leads", "new-id", Record{"title": "changed"})
	require.NoError(t, err)
	assert.Equal(t, "changed", rec["title"])

	_, err = p.Update(ctx, "leads", "missing", Record{"title": "changed"})
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.NoError(t, p.Delete(ctx, "leads", "new-id"))
	assert.True(t, errors.Is(p.Delete(ctx, "leads", "missing"), ErrNotFound))
}

func TestParseContentRange(t *testing.T) {
	n, err := parseContentRange("*/0")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = parseContentRange("0-4/*")
	assert.Error(t, err)
}
