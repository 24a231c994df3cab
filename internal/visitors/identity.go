// Package visitors resolves the anonymous, cookie-carried visitor identity.
package visitors

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// CookieMaxAge is how long a browser keeps its visitor token.
const CookieMaxAge = 365 * 24 * time.Hour

// Identity is the visitor token for one request.
// IsNew is set when the token was minted here and must be written back.
type Identity struct {
	ID    string
	IsNew bool
}

// Resolver reads or mints visitor tokens. It keeps no server-side state.
type Resolver struct {
	CookieName string
	Secure     bool
}

// NewResolver creates a Resolver for the named cookie.
func NewResolver(cookieName string, secure bool) *Resolver {
	return &Resolver{CookieName: cookieName, Secure: secure}
}

// Resolve returns the existing token when the cookie carries one and
// mints a random UUIDv4 otherwise. An existing token is never replaced.
func (r *Resolver) Resolve(cookieValue string) Identity {
	if id := strings.TrimSpace(cookieValue); id != "" {
		return Identity{ID: id}
	}
	return Identity{ID: uuid.NewString(), IsNew: true}
}

// FromRequest resolves the identity from the request cookie jar.
func (r *Resolver) FromRequest(c *fiber.Ctx) Identity {
	return r.Resolve(c.Cookies(r.CookieName))
}

// Cookie builds the write-back cookie for a newly minted token.
func (r *Resolver) Cookie(id string) *fiber.Cookie {
	return &fiber.Cookie{
		Name:     r.CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(CookieMaxAge / time.Second),
		Expires:  time.Now().Add(CookieMaxAge),
		HTTPOnly: true,
		Secure:   r.Secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	}
}

// Attach sets the cookie on the response when the identity is new.
func (r *Resolver) Attach(c *fiber.Ctx, identity Identity) {
	if !identity.IsNew {
		return
	}
	c.Cookie(r.Cookie(identity.ID))
}
