package forum

import (
	"net/http"
	"net/url"
)

// SessionCookieName is the backend's session cookie.
const SessionCookieName = "Token"

// CredentialStore forgets the local authentication token.
type CredentialStore interface {
	ClearCredentials()
}

// CookieCredentials clears the session cookie from a cookie jar.
type CookieCredentials struct {
	jar  http.CookieJar
	site *url.URL
}

// NewCookieCredentials binds jar to the backend at site.
func NewCookieCredentials(jar http.CookieJar, site *url.URL) *CookieCredentials {
	return &CookieCredentials{jar: jar, site: site}
}

// Token returns the current session token, or "".
func (c *CookieCredentials) Token() string {
	if c.jar == nil {
		return ""
	}
	for _, ck := range c.jar.Cookies(c.sessionURL()) {
		if ck.Name == SessionCookieName {
			return ck.Value
		}
	}
	return ""
}

// SetToken stores token as the session cookie.
func (c *CookieCredentials) SetToken(token string) {
	if c.jar == nil {
		return
	}
	c.jar.SetCookies(c.site, []*http.Cookie{{Name: SessionCookieName, Value: token, Path: "/"}})
}

// ClearCredentials expires the session cookie at both paths the backend may
// have scoped it to.
func (c *CookieCredentials) ClearCredentials() {
	if c.jar == nil {
		return
	}
	for _, path := range []string{"/", "/api"} {
		c.jar.SetCookies(c.site, []*http.Cookie{{Name: SessionCookieName, Path: path, MaxAge: -1}})
	}
}

func (c *CookieCredentials) sessionURL() *url.URL {
	u := *c.site
	u.Path = "/api/ws"
	return &u
}
