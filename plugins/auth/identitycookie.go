package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/dpup/userjs/errors"
	"github.com/dpup/userjs/server"
)

// Cookie name used for storing the identity token.
const IdentityTokenCookieName = "pf-id"

// SendIdentityCookie sets the identity cookie on the response. The cookie is
// HttpOnly, so scripts learn about the user from userjs, not the token.
func SendIdentityCookie(w http.ResponseWriter, r *http.Request, token string) {
	address := server.AddressFromContext(r.Context())
	isSecure := strings.HasPrefix(address, "https")
	http.SetCookie(w, &http.Cookie{
		Name:     IdentityTokenCookieName,
		Value:    token,
		Path:     "/",
		Secure:   isSecure,
		HttpOnly: true,
		Expires:  time.Now().Add(expirationFromContext(r.Context())),
		SameSite: http.SameSiteLaxMode,
	})
}

func identityFromCookie(r *http.Request) (Identity, error) {
	c, err := r.Cookie(IdentityTokenCookieName)
	if err != nil || c.Value == "" {
		return Identity{}, errors.Mark(ErrNotFound, 0)
	}
	return ParseIdentityToken(r.Context(), c.Value)
}
