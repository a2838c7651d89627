package userjs

import (
	"context"
	"net/http"
)

// User is the subject a script is rendered for. Any value implementing User is
// also the root object that field paths are resolved against.
type User interface {
	IsAuthenticated() bool
	IsStaff() bool
	IsSuperuser() bool
}

// UserSource returns the user for a request. Sources should return
// AnonymousUser, not an error, when the request carries no credentials.
type UserSource func(r *http.Request) (User, error)

type anonymousUser struct{}

func (anonymousUser) IsAuthenticated() bool { return false }
func (anonymousUser) IsStaff() bool         { return false }
func (anonymousUser) IsSuperuser() bool     { return false }

// AnonymousUser is the user for requests without an identity.
var AnonymousUser User = anonymousUser{}

type userKey struct{}

// WithUser attaches a user to the context, for use with ContextUserSource.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFromContext returns the user attached with WithUser, or AnonymousUser.
func UserFromContext(ctx context.Context) User {
	if u, ok := ctx.Value(userKey{}).(User); ok && u != nil {
		return u
	}
	return AnonymousUser
}

// ContextUserSource reads the user from the request context. It is the
// default source, suited to hosts whose own middleware authenticates requests.
func ContextUserSource(r *http.Request) (User, error) {
	return UserFromContext(r.Context()), nil
}
