package auth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"  Bearer   abc  ", "abc", true},
		{"", "", false},
		{"Bearer", "", false},
		{"Basic abc", "", false},
		{"Bearer a b", "", false},
	}
	for _, tt := range tests {
		got, err := BearerToken(tt.header)
		if tt.ok {
			assert.NoError(t, err, tt.header)
			assert.Equal(t, tt.token, got, tt.header)
		} else {
			assert.ErrorIs(t, err, ErrMissingToken, tt.header)
		}
	}
}

func TestAllowList(t *testing.T) {
	empty := NewAllowList(nil)
	assert.True(t, empty.Allows(User{Email: "anyone@example.com"}))

	l := NewAllowList([]string{" Owner@Studio.dev ", "", "dev@studio.dev"})
	assert.Equal(t, 2, l.Len())
	assert.True(t, l.Allows(User{Email: "owner@studio.dev"}))
	assert.True(t, l.Allows(User{Email: "DEV@studio.dev"}))
	assert.False(t, l.Allows(User{Email: "intruder@studio.dev"}))
	assert.False(t, l.Allows(User{}))
}

func TestUserContext(t *testing.T) {
	_, ok := UserFrom(context.Background())
	assert.False(t, ok)

	ctx := WithUser(context.Background(), User{ID: "u1", Email: "a@b.c"})
	u, ok := UserFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "u1", u.ID)
}

func TestJWTVerifierRoundTrip(t *testing.T) {
	token, err := IssueToken("s3cret", User{ID: "u1", Email: "owner@studio.dev"}, time.Hour)
	require.NoError(t, err)

	u, err := NewJWTVerifier("s3cret").Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, User{ID: "u1", Email: "owner@studio.dev", Role: "authenticated"}, u)
}

func TestJWTVerifierRejects(t *testing.T) {
	expired, err := IssueToken("s3cret", User{ID: "u1"}, -time.Minute)
	require.NoError(t, err)
	wrongKey, err := IssueToken("other", User{ID: "u1"}, time.Hour)
	require.NoError(t, err)
	noSubject, err := IssueToken("s3cret", User{}, time.Hour)
	require.NoError(t, err)

	v := NewJWTVerifier("s3cret")
	for name, token := range map[string]string{
		"expired":    expired,
		"wrong key":  wrongKey,
		"no subject": noSubject,
		"garbage":    "not.a.jwt",
	} {
		_, err := v.Verify(context.Background(), token)
		assert.True(t, errors.Is(err, ErrInvalidToken), name)
	}
}

func TestIssueTokenNeedsSecret(t *testing.T) {
	_, err := IssueToken("", User{ID: "u1"}, time.Hour)
	assert.Error(t, err)
}

func TestSupabaseVerifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/user", r.URL.Path)
		assert.Equal(t, "anon", r.Header.Get("apikey"))
		switch r.Header.Get("Authorization") {
		case "Bearer good":
			io.WriteString(w, `{"id":"u-1","email":"owner@studio.dev","role":"authenticated","aud":"authenticated"}`)
		case "Bearer empty":
			io.WriteString(w, `{}`)
		default:
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"code":401,"msg":"invalid JWT"}`)
		}
	}))
	defer srv.Close()

	v := NewSupabaseVerifier(srv.URL, "anon", srv.Client())

	u, err := v.Verify(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "u-1", u.ID)
	assert.Equal(t, "owner@studio.dev", u.Email)

	_, err = v.Verify(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Verify(context.Background(), "empty")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSupabaseVerifierUnreachable(t *testing.T) {
	v := NewSupabaseVerifier("http://127.0.0.1:1", "anon", nil)
	_, err := v.Verify(context.Background(), "token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
