// Package assethost uploads images to Cloudinary, the third-party image host
// that serves and optimizes the site's media.
package assethost

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ErrNotConfigured is returned by Upload when credentials are missing.
var ErrNotConfigured = errors.New("asset host is not configured")

// Config holds the Cloudinary credential triple and target folder.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Configured reports whether all credentials are present.
func (c Config) Configured() bool {
	return c.CloudName != "" && c.APIKey != "" && c.APISecret != ""
}

// File is an image to upload.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Asset describes an uploaded image.
type Asset struct {
	URL      string `json:"url"`
	PublicID string `json:"public_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Format   string `json:"format"`
	Bytes    int    `json:"bytes"`
}

// Cloudinary is a minimal client for the signed upload API.
type Cloudinary struct {
	cfg     Config
	baseURL string
	client  *http.Client
	now     func() time.Time
}

// Option configures a Cloudinary client.
type Option func(*Cloudinary)

// WithBaseURL points the client at another API root (used by tests).
func WithBaseURL(u string) Option {
	return func(c *Cloudinary) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Cloudinary) { c.client = hc }
}

// New returns a client for cfg.
func New(cfg Config, opts ...Option) *Cloudinary {
	c := &Cloudinary{
		cfg:     cfg,
		baseURL: "https://api.cloudinary.com/v1_1",
		client:  &http.Client{Timeout: 60 * time.Second},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Upload sends f inline as a base64 data URI and asks Cloudinary to pick
// format and quality automatically.
func (c *Cloudinary) Upload(ctx context.Context, f File) (Asset, error) {
	if !c.cfg.Configured() {
		return Asset{}, ErrNotConfigured
	}
	publicID, err := gonanoid.New(16)
	if err != nil {
		return Asset{}, fmt.Errorf("generate public id: %w", err)
	}
	params := map[string]string{
		"public_id":      publicID,
		"timestamp":      strconv.FormatInt(c.now().Unix(), 10),
		"transformation": "q_auto,f_auto",
	}
	if c.cfg.Folder != "" {
		params["folder"] = c.cfg.Folder
	}

	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	form.Set("signature", Sign(params, c.cfg.APISecret))
	form.Set("api_key", c.cfg.APIKey)
	form.Set("file", DataURI(f.ContentType, f.Data))

	endpoint := fmt.Sprintf("%s/%s/image/upload", c.baseURL, url.PathEscape(c.cfg.CloudName))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Asset{}, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return Asset{}, fmt.Errorf("upload to asset host: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Asset{}, fmt.Errorf("read upload response: %w", err)
	}

	var out struct {
		SecureURL string `json:"secure_url"`
		PublicID  string `json:"public_id"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Format    string `json:"format"`
		Bytes     int    `json:"bytes"`
		Error     *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return Asset{}, fmt.Errorf("decode upload response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || out.Error != nil {
		msg := http.StatusText(resp.StatusCode)
		if out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return Asset{}, fmt.Errorf("asset host rejected upload: %s", msg)
	}
	return Asset{
		URL:      out.SecureURL,
		PublicID: out.PublicID,
		Width:    out.Width,
		Height:   out.Height,
		Format:   out.Format,
		Bytes:    out.Bytes,
	}, nil
}

// Sign computes the API signature: sha1 over the params sorted by key and
// joined as k=v pairs with '&', followed by the secret.
func Sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + params[k]
	}
	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + secret))
	return hex.EncodeToString(sum[:])
}

// DataURI encodes data as a base64 data URI.
func DataURI(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
