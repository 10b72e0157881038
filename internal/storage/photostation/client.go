package photostation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/desertthunder/phx/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	apiAuth  = "SYNO.PhotoStation.Auth"
	apiAlbum = "SYNO.PhotoStation.Album"
	apiPhoto = "SYNO.PhotoStation.Photo"
	apiFile  = "SYNO.PhotoStation.File"

	endpointAuth  = "auth.php"
	endpointAlbum = "album.php"
	endpointPhoto = "photo.php"
	endpointFile  = "file.php"
)

// Error codes reported in the response envelope.
const (
	CodeNoPermission   = 105
	CodeSessionExpired = 119
	CodeNotFound       = 408
	CodeAlreadyExists  = 414
)

// APIError is a failed response envelope.
type APIError struct {
	API    string
	Method string
	Code   int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s.%s failed with code %d", e.API, e.Method, e.Code)
}

func isCode(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code int `json:"code"`
	} `json:"error"`
}

// Client talks to the Photo Station web API rooted at baseURL (e.g. https://nas/photo/webapi/).
type Client struct {
	baseURL  *url.URL
	http     *http.Client
	username string
	password string
}

// NewClient returns a client for cfg. A non-empty ClientID selects the OAuth2 client
// credentials grant; otherwise Login performs a username/password session login.
func NewClient(ctx context.Context, cfg shared.PhotoStationConfig, base *http.Client) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: photostation url is required", shared.ErrInvalidConfig)
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidConfig, err)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	if base == nil {
		base = &http.Client{}
	}
	if base.Jar == nil {
		jar, _ := cookiejar.New(nil)
		clone := *base
		clone.Jar = jar
		base = &clone
	}

	hc := base
	if cfg.ClientID != "" {
		cc := clientcredentials.Config{ClientID: cfg.ClientID, ClientSecret: cfg.ClientSecret, TokenURL: cfg.TokenURL}
		hc = cc.Client(context.WithValue(ctx, oauth2.HTTPClient, base))
		hc.Jar = base.Jar
	}

	c := &Client{baseURL: u, http: hc}
	if cfg.ClientID == "" {
		c.username, c.password = cfg.Username, cfg.Password
	}
	return c, nil
}

// Login starts a session. It is a no-op for token-authenticated clients.
func (c *Client) Login(ctx context.Context) error {
	if c.username == "" {
		return nil
	}
	form := url.Values{"username": {c.username}, "password": {c.password}}
	if err := c.do(ctx, endpointAuth, apiAuth, "login", form, nil); err != nil {
		if isCode(err, CodeNoPermission) {
			return fmt.Errorf("%w: %v", shared.ErrInvalidCredentials, err)
		}
		return err
	}
	return nil
}

// call posts a form request and re-logs in once when the session has expired.
func (c *Client) call(ctx context.Context, endpoint, api, method string, form url.Values, out any) error {
	err := c.do(ctx, endpoint, api, method, form, out)
	if isCode(err, CodeSessionExpired) && c.username != "" {
		if lerr := c.Login(ctx); lerr != nil {
			return lerr
		}
		err = c.do(ctx, endpoint, api, method, form, out)
	}
	return err
}

func (c *Client) do(ctx context.Context, endpoint, api, method string, form url.Values, out any) error {
	values := url.Values{}
	for k, v := range form {
		values[k] = v
	}
	values.Set("api", api)
	values.Set("method", method)
	values.Set("version", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(endpoint), strings.NewReader(values.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.send(req, api, method, out)
}

func (c *Client) endpoint(name string) string {
	return c.baseURL.ResolveReference(&url.URL{Path: name}).String()
}

// send executes req and decodes the envelope. Transport errors are returned unwrapped.
func (c *Client) send(req *http.Request, api, method string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s.%s: status %d: %s", shared.ErrAPIRequest, api, method, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: %s.%s: decode response: %v", shared.ErrAPIRequest, api, method, err)
	}
	if !env.Success {
		return &APIError{API: api, Method: method, Code: env.Error.Code}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%w: %s.%s: decode data: %v", shared.ErrAPIRequest, api, method, err)
		}
	}
	return nil
}
