package auth

import (
	"context"
	"time"

	"github.com/dpup/userjs/server"
)

func init() {
	server.RegisterConfigKeys(
		server.ConfigKeyInfo{
			Key:         "auth.signingKey",
			Description: "JWT signing key for identity tokens",
			Type:        "string",
		},
		server.ConfigKeyInfo{
			Key:         "auth.expiration",
			Description: "How long identity tokens should be valid for",
			Type:        "duration",
			Default:     "24h",
		},
	)
}

const defaultTokenExpiration = time.Hour * 24

type signingKey struct{}

type tokenExpiration struct{}

func injectSigningKey(b string) server.ConfigInjector {
	return func(ctx context.Context) context.Context {
		return context.WithValue(ctx, signingKey{}, b)
	}
}

func injectExpiration(d time.Duration) server.ConfigInjector {
	return func(ctx context.Context) context.Context {
		return context.WithValue(ctx, tokenExpiration{}, d)
	}
}

func signingKeyFromContext(ctx context.Context) []byte {
	if v, ok := ctx.Value(signingKey{}).(string); ok {
		return []byte(v)
	}
	return []byte("Only the signed may script the user.")
}

func expirationFromContext(ctx context.Context) time.Duration {
	if v, ok := ctx.Value(tokenExpiration{}).(time.Duration); ok && v > 0 {
		return v
	}
	return defaultTokenExpiration
}
