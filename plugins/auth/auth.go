// Package auth identifies the user behind a request from a signed identity
// token, so userjs can describe them. Tokens are JWTs signed with HS256 and
// are read from the `Authorization` header or the `pf-id` cookie.
//
// This package doesn't log users in. Tokens are issued by whatever service
// handles login, using the same signing key and address, or with
// IdentityToken.
//
// Configuration:
// |-----------------------------------|-----------------------|
// | Env                               | JSON                  |
// | ----------------------------------|-----------------------|
// | UJS__AUTH__SIGNING_KEY            | auth.signingKey       |
// | UJS__AUTH__EXPIRATION             | auth.expiration       |
// |-----------------------------------|-----------------------|
package auth

import (
	"time"

	"github.com/dpup/userjs/errors"
	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc/codes"
)

var (
	// No identity was found on the request.
	ErrNotFound = errors.NewC("identity not found", codes.Unauthenticated)

	// The token was not signed correctly.
	ErrInvalidToken = errors.NewC("token is invalid", codes.InvalidArgument)

	// Invalid authorization header.
	ErrInvalidHeader = errors.NewC("bad authorization header", codes.InvalidArgument)

	// Identity token has been revoked or blocked.
	ErrRevoked = errors.NewC("token has been revoked", codes.Unauthenticated)

	// Allows for time to be stubbed in tests.
	timeFunc = time.Now
)

// Roles that userjs reports.
const (
	RoleStaff     = "staff"
	RoleSuperuser = "superuser"
)

// Claims carried by an identity token.
type Claims struct {
	// Standard public JWT claims per https://www.iana.org/assignments/jwt/jwt.xhtml
	jwt.RegisteredClaims
	Name          string           `json:"name"`
	Email         string           `json:"email"`
	EmailVerified bool             `json:"email_verified"`
	AuthTime      *jwt.NumericDate `json:"auth_time,omitempty"`

	// Custom claims.
	Provider string   `json:"idp"`
	Roles    []string `json:"roles,omitempty"`
}

func (c *Claims) Validate() error {
	if c.Provider == "" {
		return errors.Mark(ErrInvalidToken, 0).Append("missing provider")
	}
	return nil
}
