package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const maxResponseBody = 16 << 20

// PostgREST talks to a hosted PostgREST endpoint (for example a Supabase
// project) with a service credential.
type PostgREST struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewPostgREST returns a client for the project at baseURL. If client is nil a
// client with a 15 second timeout is used.
func NewPostgREST(baseURL, apiKey string, client *http.Client) *PostgREST {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &PostgREST{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

var _ Backend = (*PostgREST)(nil)

// Select runs q and returns every matching row.
func (p *PostgREST) Select(ctx context.Context, q Query) ([]Record, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("select", "*")
	addFilters(params, q.Filters)
	if len(q.Order) > 0 {
		params.Set("order", orderParam(q.Order))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	var rows []Record
	if _, err := p.do(ctx, http.MethodGet, q.Table, params, nil, nil, &rows); err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []Record{}
	}
	return rows, nil
}

// Get returns the row with the given id. The object media type makes
// PostgREST answer PGRST116 when no row matches.
func (p *PostgREST) Get(ctx context.Context, table, id string) (Record, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("select", "*")
	params.Set("id", "eq."+id)
	header := http.Header{}
	header.Set("Accept", "application/vnd.pgrst.object+json")
	var rec Record
	if _, err := p.do(ctx, http.MethodGet, table, params, nil, header, &rec); err != nil {
		return nil, idError(err, table, id)
	}
	return rec, nil
}

// Count returns the number of rows matching filters.
func (p *PostgREST) Count(ctx context.Context, table string, filters ...Filter) (int, error) {
	q := Query{Table: table, Filters: filters}
	if err := q.validate(); err != nil {
		return 0, err
	}
	params := url.Values{}
	params.Set("select", "id")
	params.Set("limit", "1")
	addFilters(params, filters)
	header := http.Header{}
	header.Set("Prefer", "count=exact")
	respHeader, err := p.do(ctx, http.MethodGet, table, params, nil, header, nil)
	if err != nil {
		return 0, err
	}
	return parseContentRange(respHeader.Get("Content-Range"))
}

// Insert stores rec and returns the row as the database saw it.
func (p *PostgREST) Insert(ctx context.Context, table string, rec Record) (Record, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("Prefer", "return=representation")
	var rows []Record
	if _, err := p.do(ctx, http.MethodPost, table, nil, rec, header, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &Error{Status: http.StatusInternalServerError, Message: "insert returned no row"}
	}
	return rows[0], nil
}

// Update merges rec into the row with the given id.
func (p *PostgREST) Update(ctx context.Context, table, id string, rec Record) (Record, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("id", "eq."+id)
	header := http.Header{}
	header.Set("Prefer", "return=representation")
	var rows []Record
	if _, err := p.do(ctx, http.MethodPatch, table, params, rec, header, &rows); err != nil {
		return nil, idError(err, table, id)
	}
	if len(rows) == 0 {
		return nil, notFound(table, id)
	}
	return rows[0], nil
}

// Delete removes the row with the given id.
func (p *PostgREST) Delete(ctx context.Context, table, id string) error {
	if err := checkIdent(table); err != nil {
		return err
	}
	params := url.Values{}
	params.Set("id", "eq."+id)
	header := http.Header{}
	header.Set("Prefer", "return=representation")
	var rows []Record
	if _, err := p.do(ctx, http.MethodDelete, table, params, nil, header, &rows); err != nil {
		return idError(err, table, id)
	}
	if len(rows) == 0 {
		return notFound(table, id)
	}
	return nil
}

// Ping fetches the schema root to check credentials and reachability.
func (p *PostgREST) Ping(ctx context.Context) error {
	_, err := p.do(ctx, http.MethodGet, "", nil, nil, nil, nil)
	return err
}

// Close is a no-op; the HTTP client owns no resources that need releasing.
func (p *PostgREST) Close() error { return nil }

func (p *PostgREST) do(ctx context.Context, method, table string, params url.Values, body any, header http.Header, out any) (http.Header, error) {
	u := p.baseURL + "/rest/v1/" + table
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", table, err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", p.apiKey)
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		req.Header[k] = vs
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, table, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", table, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, parseError(resp.StatusCode, data)
	}
	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return nil, fmt.Errorf("decode %s response: %w", table, err)
		}
	}
	return resp.Header, nil
}

func parseError(status int, body []byte) *Error {
	e := &Error{}
	if err := json.Unmarshal(body, e); err != nil || e.Message == "" {
		e = &Error{Message: strings.TrimSpace(string(body))}
		if e.Message == "" {
			e.Message = http.StatusText(status)
		}
	}
	e.Status = status
	if e.Code == "" && status == http.StatusNotFound {
		// Older PostgREST versions answer a bare 404 for unknown relations.
		e.Code = CodeUndefinedTable
	}
	return e
}

// idError maps a malformed id (for example a non-uuid string against a uuid
// column) to not-found: such a row cannot exist.
func idError(err error, table, id string) error {
	var be *Error
	if errors.As(err, &be) && be.Code == CodeInvalidText {
		return notFound(table, id)
	}
	return err
}

func addFilters(params url.Values, filters []Filter) {
	for _, f := range filters {
		params.Add(f.Column, string(f.Op)+"."+formatValue(f.Value))
	}
}

func orderParam(order []Order) string {
	parts := make([]string, 0, len(order))
	for _, o := range order {
		s := o.Column + ".asc"
		if o.Desc {
			s = o.Column + ".desc"
		}
		if o.NullsLast {
			s += ".nullslast"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ",")
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}

// parseContentRange extracts the total from a header such as "0-4/42" or "*/0".
func parseContentRange(h string) (int, error) {
	i := strings.LastIndexByte(h, '/')
	if i < 0 {
		return 0, fmt.Errorf("unexpected Content-Range %q", h)
	}
	n, err := strconv.Atoi(h[i+1:])
	if err != nil {
		return 0, fmt.Errorf("unexpected Content-Range %q", h)
	}
	return n, nil
}
