package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/dpup/userjs"
	"github.com/dpup/userjs/errors"
	"github.com/dpup/userjs/logging"
	"github.com/dpup/userjs/server"
)

// Constant name for identifying the auth plugin.
const PluginName = userjs.AuthPluginName

// AuthOptions allow configuration of the AuthPlugin.
type AuthOption func(*AuthPlugin)

// WithSigningKey sets the key identity tokens are signed with.
func WithSigningKey(signingKey string) AuthOption {
	return func(p *AuthPlugin) {
		p.jwtSigningKey = signingKey
	}
}

// WithExpiration sets the expiration to use when signing JWT tokens.
func WithExpiration(expiration time.Duration) AuthOption {
	return func(p *AuthPlugin) {
		p.jwtExpiration = expiration
	}
}

// WithBlocklist configures a blocklist that is checked when tokens are
// validated.
func WithBlocklist(bl Blocklist) AuthOption {
	return func(p *AuthPlugin) {
		p.blocklist = bl
	}
}

// Plugin returns a new AuthPlugin.
func Plugin(opts ...AuthOption) *AuthPlugin {
	ap := &AuthPlugin{
		jwtSigningKey: server.Config.String("auth.signingKey"),
		jwtExpiration: server.Config.Duration("auth.expiration"),
	}
	for _, opt := range opts {
		opt(ap)
	}
	return ap
}

func randomSigningKey() string {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic("failed to generate random signing key: " + err.Error())
	}
	return hex.EncodeToString(key)
}

// AuthPlugin identifies users from identity tokens and provides the userjs
// user source.
type AuthPlugin struct {
	jwtSigningKey string
	jwtExpiration time.Duration
	blocklist     Blocklist
}

// From server.Plugin.
func (ap *AuthPlugin) Name() string {
	return PluginName
}

// From server.InitializablePlugin.
func (ap *AuthPlugin) Init(ctx context.Context, r *server.Registry) error {
	if ap.jwtSigningKey == "" {
		ap.jwtSigningKey = randomSigningKey()
		logging.Warn(ctx, "auth: using a randomly generated signing key, tokens issued elsewhere "+
			"won't validate. Set UJS__AUTH__SIGNING_KEY or auth.signingKey in userjs.yaml.")
	}
	return nil
}

// From server.OptionProvider.
func (ap *AuthPlugin) ServerOptions() []server.ServerOption {
	return []server.ServerOption{
		server.WithRequestConfig(ap.inject),
	}
}

// Adds the plugin's signing key, expiration and blocklist to the context.
func (ap *AuthPlugin) inject(ctx context.Context) context.Context {
	ctx = injectSigningKey(ap.jwtSigningKey)(ctx)
	ctx = injectExpiration(ap.jwtExpiration)(ctx)
	if ap.blocklist != nil {
		ctx = WithBlockist(ctx, ap.blocklist)
	}
	return ctx
}

// IdentityToken signs a token for identity with the plugin's key.
func (ap *AuthPlugin) IdentityToken(ctx context.Context, identity Identity) (string, error) {
	return IdentityToken(ap.inject(ctx), identity)
}

// UserSource returns the identity on a request as a userjs.User. Requests
// without a token, or with one that doesn't validate, are anonymous.
func (ap *AuthPlugin) UserSource() userjs.UserSource {
	return func(r *http.Request) (userjs.User, error) {
		identity, err := IdentityFromRequest(r.WithContext(ap.inject(r.Context())))
		if errors.Is(err, ErrNotFound) {
			return userjs.AnonymousUser, nil
		}
		if err != nil {
			logging.Track(r.Context(), "auth.error", err.Error())
			logging.Warnw(r.Context(), "auth: ignoring invalid identity token", "error", err)
			return userjs.AnonymousUser, nil
		}
		logging.Track(r.Context(), "auth.sub", identity.Subject)
		return identity, nil
	}
}
