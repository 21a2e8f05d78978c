package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SupabaseVerifier asks the hosted auth service who a token belongs to.
type SupabaseVerifier struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewSupabaseVerifier returns a verifier for the project at baseURL. apiKey is
// sent as the project key alongside the user's token.
func NewSupabaseVerifier(baseURL, apiKey string, client *http.Client) *SupabaseVerifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &SupabaseVerifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

// Verify calls GET /auth/v1/user with token.
func (v *SupabaseVerifier) Verify(ctx context.Context, token string) (User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return User{}, fmt.Errorf("build auth request: %w", err)
	}
	req.Header.Set("apikey", v.apiKey)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return User{}, fmt.Errorf("%w: auth service answered %d", ErrInvalidToken, resp.StatusCode)
	}
	var u User
	if err := json.Unmarshal(body, &u); err != nil {
		return User{}, fmt.Errorf("%w: decode user: %v", ErrInvalidToken, err)
	}
	if u.ID == "" {
		return User{}, fmt.Errorf("%w: no user in response", ErrInvalidToken)
	}
	return u, nil
}
