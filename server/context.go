package server

import "context"

type addressKey struct{}

// WithAddress adds the server's external address to the context.
func WithAddress(ctx context.Context, address string) context.Context {
	return context.WithValue(ctx, addressKey{}, address)
}

// AddressFromContext returns the server's external address. This is the what
// links should reference, and likely points at a CDN or load balancer.
func AddressFromContext(ctx context.Context) string {
	a, _ := ctx.Value(addressKey{}).(string)
	return a
}

type csrfKey struct{}

// ContextWithCSRFSigningKey attaches the key used to sign CSRF cookies to the
// context. The server does this for every request it routes.
func ContextWithCSRFSigningKey(ctx context.Context, key []byte) context.Context {
	return context.WithValue(ctx, csrfKey{}, key)
}

// CSRFSigningKeyFromContext returns the CSRF signing key for the request, or
// nil if the request didn't come through the server.
func CSRFSigningKeyFromContext(ctx context.Context) []byte {
	k, _ := ctx.Value(csrfKey{}).([]byte)
	return k
}
