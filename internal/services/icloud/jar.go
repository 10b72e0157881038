package icloud

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

// savedCookie is the on-disk form of a cookie received from origin.
type savedCookie struct {
	Origin   string    `json:"origin"`
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Path     string    `json:"path,omitempty"`
	Domain   string    `json:"domain,omitempty"`
	Expires  time.Time `json:"expires,omitzero"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"http_only,omitempty"`
}

// Jar is an [http.CookieJar] that remembers every cookie it accepts so the session can be
// written to disk and restored on the next run.
type Jar struct {
	mu    sync.Mutex
	jar   *cookiejar.Jar
	saved map[string]savedCookie
}

// NewJar returns an empty jar using the public suffix list for domain matching.
func NewJar() (*Jar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	return &Jar{jar: jar, saved: make(map[string]savedCookie)}, nil
}

// SetCookies implements [http.CookieJar].
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.jar.SetCookies(u, cookies)

	j.mu.Lock()
	defer j.mu.Unlock()

	origin := u.Scheme + "://" + u.Host
	for _, c := range cookies {
		key := origin + "|" + c.Domain + "|" + c.Name
		if c.MaxAge < 0 || (!c.Expires.IsZero() && c.Expires.Before(time.Now())) {
			delete(j.saved, key)
			continue
		}
		j.saved[key] = savedCookie{
			Origin:   origin,
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}
	}
}

// Cookies implements [http.CookieJar].
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	return j.jar.Cookies(u)
}

func (j *Jar) snapshot() []savedCookie {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]savedCookie, 0, len(j.saved))
	for _, c := range j.saved {
		out = append(out, c)
	}
	return out
}

func (j *Jar) restore(cookies []savedCookie) {
	now := time.Now()
	for _, c := range cookies {
		if !c.Expires.IsZero() && c.Expires.Before(now) {
			continue
		}
		u, err := url.Parse(c.Origin)
		if err != nil {
			continue
		}
		j.SetCookies(u, []*http.Cookie{{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}})
	}
}
