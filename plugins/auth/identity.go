package auth

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/dpup/userjs/errors"
	"github.com/dpup/userjs/server"
	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc/codes"
)

// Leeway for JWT expiration checks.
const jwtLeeway = 5 * time.Second

// Identity describes an authenticated user. It implements userjs.User, so
// field paths such as `email` or `email_verified` resolve against it.
type Identity struct {

	// Unique identifier for the session that authenticated the identity. Maps to
	// the `jti` JWT claim.
	SessionID string

	// The time at which the identity was authenticated. Maps to `auth_time` JWT
	// claim.
	AuthTime time.Time

	// Identity provider specific identifier. Maps to `sub` JWT claim.
	Subject string

	// Name of the identity provider used to authenticate the user. Maps to custom
	// `idp` JWT claim.
	Provider string

	// The email address received from the identity provider, if available. Maps
	// to `email` JWT claim.
	Email string

	// Whether the identity provider has verified the email address. Maps to
	// `email_verified` JWT claim.
	EmailVerified bool

	// Name received from the identity provider, if available. Maps to `name` JWT
	// claim.
	Name string

	// Roles granted to the user. Maps to custom `roles` JWT claim.
	Roles []string
}

// From userjs.User.
func (i Identity) IsAuthenticated() bool {
	return i.Subject != ""
}

// From userjs.User.
func (i Identity) IsStaff() bool {
	return i.HasRole(RoleStaff)
}

// From userjs.User.
func (i Identity) IsSuperuser() bool {
	return i.HasRole(RoleSuperuser)
}

// HasRole reports whether the identity was granted role.
func (i Identity) HasRole(role string) bool {
	return slices.Contains(i.Roles, role)
}

// IdentityFromRequest parses and verifies the identity token on a request. An
// `Authorization` header takes precedence over a cookie. Returns ErrNotFound
// when the request has neither.
func IdentityFromRequest(r *http.Request) (Identity, error) {
	for _, extract := range []func(*http.Request) (Identity, error){
		identityFromAuthHeader,
		identityFromCookie,
	} {
		i, err := extract(r)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		return i, err
	}
	return Identity{}, errors.Mark(ErrNotFound, 0)
}

// IdentityToken creates a signed JWT for the given identity.
func IdentityToken(ctx context.Context, identity Identity) (string, error) {
	// Both issuer and audience are set to the current server, indicating that the
	// token was created by this server and is only intended to be used for this
	// server.
	address := server.AddressFromContext(ctx)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        identity.SessionID,
			Subject:   identity.Subject,
			Issuer:    address,
			IssuedAt:  jwt.NewNumericDate(timeFunc()),
			ExpiresAt: jwt.NewNumericDate(timeFunc().Add(expirationFromContext(ctx))),
		},
		Name:          identity.Name,
		Email:         identity.Email,
		EmailVerified: identity.EmailVerified,
		Provider:      identity.Provider,
		Roles:         identity.Roles,
	}
	if address != "" {
		claims.Audience = jwt.ClaimStrings{address}
	}
	if !identity.AuthTime.IsZero() {
		claims.AuthTime = jwt.NewNumericDate(identity.AuthTime)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString(signingKeyFromContext(ctx))
	if err != nil {
		return "", errors.Wrap(err, 0).WithCode(codes.Unauthenticated)
	}
	return ss, nil
}

// ParseIdentityToken takes a signed JWT, validates it, and returns the identity
// information encoded within. Invalid, expired and revoked tokens will error.
func ParseIdentityToken(ctx context.Context, tokenString string) (Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(jwtLeeway),
		jwt.WithTimeFunc(timeFunc),
		jwt.WithIssuedAt(),
	}
	// Outside of a server, e.g. in CLI tools, there is no address to check.
	if address := server.AddressFromContext(ctx); address != "" {
		opts = append(opts, jwt.WithIssuer(address), jwt.WithAudience(address))
	}

	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			return signingKeyFromContext(ctx), nil
		},
		opts...,
	)
	if err != nil {
		return Identity{}, errors.Wrap(err, 0).WithCode(codes.Unauthenticated)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Identity{}, errors.Mark(ErrInvalidToken, 0).Append("invalid claims")
	}
	if err := claims.Validate(); err != nil {
		return Identity{}, err
	}

	if blocked, err := IsBlocked(ctx, claims.ID); blocked || err != nil {
		if err != nil {
			return Identity{}, err
		}
		return Identity{}, errors.Mark(ErrRevoked, 0)
	}

	var authTime time.Time
	if claims.AuthTime != nil {
		authTime = claims.AuthTime.Time
	}
	return Identity{
		Provider:      claims.Provider,
		SessionID:     claims.ID,
		AuthTime:      authTime,
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		Roles:         claims.Roles,
	}, nil
}
