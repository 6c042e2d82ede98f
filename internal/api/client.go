package api

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/freeoffice/fieldcam/internal/models"
	"github.com/freeoffice/fieldcam/internal/storage"
)

const (
	DefaultBaseURL   = "http://freeofficeapi.gvbsoft.vn/api"
	DefaultUploadURL = "http://freeofficefile.gvbsoft.vn/api/publicupload"
	DefaultPage      = 1
	DefaultLimit     = 10000
)

var ErrNotAuthenticated = errors.New("not logged in")

// RequestError is returned for non-2xx API responses
type RequestError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request failed: %s - %s", e.Status, e.Body)
}

// RequestOptions tune a single API call
type RequestOptions struct {
	Body     any
	Headers  map[string]string
	Page     int
	Limit    int
	SkipAuth bool
}

// Client talks to the FreeOffice REST API and file endpoint. Its lifecycle
// is Init (load the persisted session), then authenticated calls, then
// Logout.
type Client struct {
	BaseURL   string
	UploadURL string

	store      *storage.SessionStore
	httpClient *http.Client

	mu    sync.RWMutex
	token string
	user  models.StoredUser
}

// NewClient creates a client that persists its session in store
func NewClient(baseURL, uploadURL string, store *storage.SessionStore) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if uploadURL == "" {
		uploadURL = DefaultUploadURL
	}
	if store == nil {
		store = storage.New()
	}
	return &Client{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		UploadURL: uploadURL,
		store:     store,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Init loads the persisted session and reports whether one was found
func (c *Client) Init() bool {
	token, user := storage.LoadAuth(c.store)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.user = user
	return token != ""
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) User() models.StoredUser {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

// SetToken replaces the session token, for example after a refresh
func (c *Client) SetToken(token string) error {
	if err := c.store.Set(storage.KeyToken, token); err != nil {
		return err
	}
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	return nil
}

// HashPassword returns the hex MD5 digest the login endpoint expects
func HashPassword(password string) string {
	sum := md5.Sum([]byte(password))
	return hex.EncodeToString(sum[:])
}

type loginResponse struct {
	Token map[string]any `json:"token"`
}

// Login authenticates a staff member and persists the session
func (c *Client) Login(ctx context.Context, staffCode, password string) (models.StoredUser, error) {
	var resp loginResponse
	err := c.Do(ctx, http.MethodPost, "/authentication/login", RequestOptions{
		Body: map[string]any{
			"StaffCode": staffCode,
			"Passwords": HashPassword(password),
			"IsMobile":  true,
		},
		SkipAuth: true,
	}, &resp)
	if err != nil {
		return models.StoredUser{}, fmt.Errorf("failed to log in: %w", err)
	}

	token, _ := resp.Token["TokenID"].(string)
	if token == "" {
		return models.StoredUser{}, fmt.Errorf("failed to log in: missing token data in response")
	}

	user, err := storage.PersistAuth(c.store, token, resp.Token)
	if err != nil {
		return models.StoredUser{}, err
	}

	c.mu.Lock()
	c.token = token
	c.user = user
	c.mu.Unlock()

	slog.Info("Logged in", "staff_code", staffCode, "staff", user.StaffFullName)
	return user, nil
}

// Logout clears the persisted session
func (c *Client) Logout() error {
	c.mu.Lock()
	c.token = ""
	c.user = models.StoredUser{}
	c.mu.Unlock()
	if err := storage.ClearAuth(c.store); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

func (c *Client) endpointURL(endpoint string) string {
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return c.BaseURL + endpoint
}

// Do performs a JSON API call. A successful empty body leaves out untouched.
func (c *Client) Do(ctx context.Context, method, endpoint string, opts RequestOptions, out any) error {
	var body io.Reader
	if opts.Body != nil {
		data, err := json.Marshal(opts.Body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpointURL(endpoint), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	page, limit := opts.Page, opts.Limit
	if page <= 0 {
		page = DefaultPage
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Page", strconv.Itoa(page))
	req.Header.Set("Limit", strconv.Itoa(limit))
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	if !opts.SkipAuth {
		if token := c.Token(); token != "" {
			req.Header.Set("Authorization", token)
		}
	}

	slog.Debug("API request", "method", method, "endpoint", endpoint)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RequestError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(data),
		}
	}

	if len(bytes.TrimSpace(data)) == 0 || out == nil {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("unable to parse JSON response: %w", err)
	}
	return nil
}
