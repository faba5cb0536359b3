// Package wordpress publishes catalog records to a WordPress site through
// its REST API, authenticating with JWT bearer tokens.
package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/Amir-4m/music-crawler/internal/music"
)

// DefaultTokenTTL bounds how long a token is reused.
const DefaultTokenTTL = 7 * 24 * time.Hour

const (
	tokenPath = "wp-json/jwt-auth/v1/token"
	apiPrefix = "wp-json/wp/v2/"
)

// PostKind is a WordPress post type route.
type PostKind string

// Post types served by the CMS.
const (
	KindMusic PostKind = "music"
	KindAlbum PostKind = "album"
)

var (
	// ErrAuthentication is returned when credentials are rejected.
	ErrAuthentication = errors.New("wordpress authentication failed")
	// ErrMissingCredentials is returned when the client has no base URL or user.
	ErrMissingCredentials = errors.New("wordpress base url and username are required")
)

// APIError is a non-success response decoded from the WordPress error body.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" && e.Message == "" {
		return fmt.Sprintf("wordpress: status %d", e.Status)
	}
	return fmt.Sprintf("wordpress: status %d: %s: %s", e.Status, e.Code, e.Message)
}

// Config controls the client.
type Config struct {
	BaseURL  string
	Username string
	Password string
	TokenTTL time.Duration
	Timeout  time.Duration
}

// Client talks to the WordPress REST API. It caches one bearer token and
// re-authenticates once when a call is rejected with 401.
type Client struct {
	base   *url.URL
	cfg    Config
	http   *http.Client
	clock  music.Clock
	logger *zap.Logger

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewClient validates cfg and builds a Client.
func NewClient(cfg Config, clock music.Clock, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" || cfg.Username == "" {
		return nil, ErrMissingCredentials
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse wordpress base url: %w", err)
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		base:   base,
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		clock:  clock,
		logger: logger,
	}, nil
}

func (c *Client) endpoint(p string) string {
	return c.base.ResolveReference(&url.URL{Path: p}).String()
}

// Token returns the cached bearer token, authenticating when it is missing
// or expired.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.clock.Now().Before(c.expires) {
		return c.token, nil
	}
	token, err := c.authenticate(ctx)
	if err != nil {
		return "", err
	}
	c.token = token
	c.expires = c.expiry(token)
	return token, nil
}

// expiry is the earlier of the token's own exp claim and now plus TTL.
func (c *Client) expiry(token string) time.Time {
	expires := c.clock.Now().Add(c.cfg.TokenTTL)
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return expires
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(expires) {
		return claims.ExpiresAt.Time
	}
	return expires
}

func (c *Client) invalidate(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == token {
		c.token = ""
		c.expires = time.Time{}
	}
}

func (c *Client) authenticate(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]string{"username": c.cfg.Username, "password": c.cfg.Password})
	if err != nil {
		return "", fmt.Errorf("marshal credentials: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(tokenPath), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("%w: %w", ErrAuthentication, decodeError(resp))
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if out.Token == "" {
		return "", fmt.Errorf("%w: empty token", ErrAuthentication)
	}
	c.logger.Info("wordpress token issued", zap.String("user", c.cfg.Username))
	return out.Token, nil
}

// request builds the body for one attempt; it is called again on retry.
type request func() (io.Reader, string, error)

func jsonBody(v any) request {
	return func() (io.Reader, string, error) {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, "", fmt.Errorf("marshal request: %w", err)
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

func (c *Client) do(ctx context.Context, method, p string, build request, out any) error {
	for attempt := 0; ; attempt++ {
		token, err := c.Token(ctx)
		if err != nil {
			return err
		}
		body, contentType, err := build()
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, method, c.endpoint(p), body)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, p, err)
		}
		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			_ = resp.Body.Close()
			c.logger.Warn("wordpress token rejected, re-authenticating", zap.String("path", p))
			c.invalidate(token)
			continue
		}
		err = handleResponse(resp, out)
		_ = resp.Body.Close()
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, p, err)
		}
		return nil
	}
}

func handleResponse(resp *http.Response, out any) error {
	if resp.StatusCode >= http.StatusMultipleChoices {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, apiErr); err != nil && apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}

type created struct {
	ID int64 `json:"id"`
}

// UploadMedia uploads a file as a draft media item and returns its id.
func (c *Client) UploadMedia(ctx context.Context, name, contentType string, data []byte) (int64, error) {
	build := func() (io.Reader, string, error) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		if err := w.WriteField("status", "draft"); err != nil {
			return nil, "", fmt.Errorf("write status field: %w", err)
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create file part: %w", err)
		}
		if _, err := part.Write(data); err != nil {
			return nil, "", fmt.Errorf("write file part: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, "", fmt.Errorf("close multipart: %w", err)
		}
		return &buf, w.FormDataContentType(), nil
	}
	var out created
	if err := c.do(ctx, http.MethodPost, apiPrefix+"media", build, &out); err != nil {
		return 0, fmt.Errorf("upload media %s: %w", name, err)
	}
	return out.ID, nil
}

// Post is the payload of a created post.
type Post struct {
	Title         string            `json:"title"`
	Content       string            `json:"content"`
	Slug          string            `json:"slug"`
	Status        string            `json:"status"`
	Excerpt       string            `json:"excerpt"`
	Author        int64             `json:"author,omitempty"`
	Format        string            `json:"format"`
	Categories    []int64           `json:"categories,omitempty"`
	FeaturedMedia int64             `json:"featured_media,omitempty"`
	Meta          map[string]string `json:"meta,omitempty"`
}

// CreatePost creates a post of kind and returns its id.
func (c *Client) CreatePost(ctx context.Context, kind PostKind, post Post) (int64, error) {
	var out created
	if err := c.do(ctx, http.MethodPost, apiPrefix+string(kind), jsonBody(post), &out); err != nil {
		return 0, fmt.Errorf("create %s post: %w", kind, err)
	}
	if out.ID == 0 {
		return 0, fmt.Errorf("create %s post: response carries no id", kind)
	}
	return out.ID, nil
}

// UpdateFields sets custom fields on an existing post.
func (c *Client) UpdateFields(ctx context.Context, kind PostKind, postID int64, meta map[string]string) error {
	p := apiPrefix + string(kind) + "/" + strconv.FormatInt(postID, 10)
	if err := c.do(ctx, http.MethodPost, p, jsonBody(map[string]any{"meta": meta}), nil); err != nil {
		return fmt.Errorf("update %s post %d fields: %w", kind, postID, err)
	}
	return nil
}
