package icloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/phx/internal/shared"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"golang.org/x/time/rate"
)

const (
	defaultSetupURL   = "https://setup.icloud.com/setup/ws/1"
	homeURL           = "https://www.icloud.com"
	clientBuildNumber = "2018Project35"
	userAgent         = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15"
)

// Device is a trusted device that can receive a verification code.
type Device struct {
	DeviceType  string `json:"deviceType,omitempty"`
	DeviceName  string `json:"deviceName,omitempty"`
	DeviceID    string `json:"deviceId,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	AreaCode    string `json:"areaCode,omitempty"`
}

// Label is a human-readable device description for prompts.
func (d Device) Label() string {
	if d.DeviceName != "" {
		return d.DeviceName
	}
	return "SMS to " + d.PhoneNumber
}

type webservice struct {
	URL    string `json:"url"`
	Status string `json:"status"`
}

type accountInfo struct {
	DSInfo struct {
		DSID     string `json:"dsid"`
		FullName string `json:"fullName"`
	} `json:"dsInfo"`
	Webservices          map[string]webservice `json:"webservices"`
	HSAChallengeRequired bool                  `json:"hsaChallengeRequired"`
	HSATrustedBrowser    bool                  `json:"hsaTrustedBrowser"`
	HSAVersion           int                   `json:"hsaVersion"`
}

// sessionFile is the persisted form of a signed-in session.
type sessionFile struct {
	ClientID string        `json:"client_id"`
	DSID     string        `json:"dsid"`
	Cookies  []savedCookie `json:"cookies"`
}

// Client is an authenticated iCloud web session.
type Client struct {
	setupURL   string
	username   string
	password   string
	clientID   string
	dsid       string
	sessionDir string

	fs      afero.Fs
	jar     *Jar
	http    *http.Client
	limiter *rate.Limiter
	logger  *log.Logger
	account *accountInfo
}

// Option configures a [Client].
type Option func(*Client)

// WithSetupURL points the client at a different setup service root.
func WithSetupURL(u string) Option {
	return func(c *Client) { c.setupURL = strings.TrimRight(u, "/") }
}

// WithSessionDir persists session cookies under dir. Without it, nothing is written.
func WithSessionDir(dir string) Option {
	return func(c *Client) { c.sessionDir = dir }
}

// WithFs sets the filesystem used for session files.
func WithFs(fs afero.Fs) Option {
	return func(c *Client) { c.fs = fs }
}

// WithRateLimit caps API calls per second. Zero or less disables throttling.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithLogger sets the logger for session diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New builds a client for username and restores a saved session when one exists.
func New(username, password string, opts ...Option) (*Client, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: icloud username", shared.ErrMissingCredentials)
	}

	jar, err := NewJar()
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	c := &Client{
		setupURL: defaultSetupURL,
		username: username,
		password: password,
		fs:       afero.NewOsFs(),
		jar:      jar,
		http:     &http.Client{Jar: jar, Timeout: 60 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(10), 1),
		logger:   shared.NewLogger(nil),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.loadSession(); err != nil {
		c.logger.Warn("ignoring unreadable session file", "error", err)
	}
	if c.clientID == "" {
		c.clientID = strings.ToUpper(uuid.NewString())
	}
	return c, nil
}

var unsafeChars = regexp.MustCompile(`\W`)

func (c *Client) sessionPath() string {
	return filepath.Join(c.sessionDir, unsafeChars.ReplaceAllString(c.username, "")+".json")
}

func (c *Client) loadSession() error {
	if c.sessionDir == "" {
		return nil
	}
	exists, err := afero.Exists(c.fs, c.sessionPath())
	if err != nil || !exists {
		return err
	}
	data, err := afero.ReadFile(c.fs, c.sessionPath())
	if err != nil {
		return err
	}

	var s sessionFile
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	c.clientID = s.ClientID
	c.dsid = s.DSID
	c.jar.restore(s.Cookies)
	c.logger.Debug("restored session", "cookies", len(s.Cookies))
	return nil
}

// Save writes the current cookies to the session directory.
func (c *Client) Save() error {
	if c.sessionDir == "" {
		return nil
	}
	if err := c.fs.MkdirAll(c.sessionDir, 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	s := sessionFile{ClientID: c.clientID, DSID: c.dsid, Cookies: c.jar.snapshot()}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := afero.WriteFile(c.fs, c.sessionPath(), data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// Login signs in with the stored password, reusing session cookies when they are still valid.
func (c *Client) Login(ctx context.Context) error {
	if c.password == "" {
		return fmt.Errorf("%w: icloud password", shared.ErrMissingCredentials)
	}

	body := map[string]any{
		"apple_id":       c.username,
		"password":       c.password,
		"extended_login": true,
	}

	var info accountInfo
	err := c.request(ctx, http.MethodPost, c.setupURL+"/login", c.params(), body, "application/json", &info)
	if err != nil {
		var status *statusError
		if errors.As(err, &status) && status.authFailure() {
			return fmt.Errorf("%w: %w", shared.ErrAuthFailed, shared.ErrInvalidCredentials)
		}
		return fmt.Errorf("%w: %w", shared.ErrAuthFailed, err)
	}

	c.account = &info
	if info.DSInfo.DSID != "" {
		c.dsid = info.DSInfo.DSID
	}
	c.logger.Info("signed in", "user", c.username, "two_step", c.RequiresTwoStep())
	return c.Save()
}

// RequiresTwoStep reports whether the session still needs a verification code.
func (c *Client) RequiresTwoStep() bool {
	return c.account != nil && c.account.HSAChallengeRequired && !c.account.HSATrustedBrowser
}

// TrustedDevices lists the devices able to receive a verification code.
func (c *Client) TrustedDevices(ctx context.Context) ([]Device, error) {
	var resp struct {
		Devices []Device `json:"devices"`
	}
	if err := c.request(ctx, http.MethodGet, c.setupURL+"/listDevices", c.params(), nil, "", &resp); err != nil {
		return nil, fmt.Errorf("failed to list trusted devices: %w", err)
	}
	return resp.Devices, nil
}

// SendVerificationCode asks iCloud to deliver a code to device.
func (c *Client) SendVerificationCode(ctx context.Context, device Device) error {
	var resp struct {
		Success bool `json:"success"`
	}
	err := c.request(ctx, http.MethodPost, c.setupURL+"/sendVerificationCode", c.params(), device, "application/json", &resp)
	if err != nil {
		return fmt.Errorf("failed to send verification code: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("%w: verification code was not sent to %s", shared.ErrAuthFailed, device.Label())
	}
	return nil
}

// ValidateVerificationCode submits code for device, then signs in again to refresh the session.
func (c *Client) ValidateVerificationCode(ctx context.Context, device Device, code string) error {
	body := struct {
		Device
		VerificationCode string `json:"verificationCode"`
		TrustBrowser     bool   `json:"trustBrowser"`
	}{Device: device, VerificationCode: strings.TrimSpace(code), TrustBrowser: true}

	err := c.request(ctx, http.MethodPost, c.setupURL+"/validateVerificationCode", c.params(), body, "application/json", nil)
	if err != nil {
		var status *statusError
		if errors.As(err, &status) {
			return fmt.Errorf("%w: %w", shared.ErrAuthFailed, shared.ErrInvalidVerification)
		}
		return err
	}

	if err := c.Login(ctx); err != nil {
		return err
	}
	if c.RequiresTwoStep() {
		return fmt.Errorf("%w: %w", shared.ErrAuthFailed, shared.ErrInvalidVerification)
	}
	return nil
}

// Photos opens the photo library. The library must have finished indexing.
func (c *Client) Photos(ctx context.Context, opts ...PhotosOption) (*Photos, error) {
	if c.account == nil {
		return nil, shared.ErrNotAuthenticated
	}
	if c.RequiresTwoStep() {
		return nil, shared.ErrTwoFactorRequired
	}

	svc, ok := c.account.Webservices["ckdatabasews"]
	if !ok || svc.Status != "active" {
		return nil, fmt.Errorf("%w: photo database", shared.ErrServiceUnavailable)
	}

	p := &Photos{
		client:   c,
		endpoint: strings.TrimRight(svc.URL, "/") + "/database/1/com.apple.photos.cloud/production/private",
		pageSize: defaultPageSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.checkIndexingState(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (c *Client) params() url.Values {
	v := url.Values{
		"clientBuildNumber": {clientBuildNumber},
		"clientId":          {c.clientID},
	}
	if c.dsid != "" {
		v.Set("dsid", c.dsid)
	}
	return v
}

// statusError is a non-2xx response.
type statusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s %s returned status %d", e.Method, e.URL, e.Code)
}

func (e *statusError) authFailure() bool {
	return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden || e.Code == 421
}

// request performs one throttled API call. Transport errors are returned unwrapped so the
// retry executor can classify them; HTTP failures wrap [shared.ErrAPIRequest].
func (c *Client) request(ctx context.Context, method, rawURL string, params url.Values, body any, contentType string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	if len(params) > 0 {
		rawURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Origin", homeURL)
	req.Header.Set("Referer", homeURL+"/")
	req.Header.Set("User-Agent", userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		serr := &statusError{Method: method, URL: req.URL.Path, Code: resp.StatusCode, Body: string(snippet)}
		if serr.authFailure() {
			return fmt.Errorf("%w: %w", shared.ErrSessionExpired, serr)
		}
		return fmt.Errorf("%w: %w", shared.ErrAPIRequest, serr)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %w", shared.ErrAPIRequest, err)
	}
	return nil
}
