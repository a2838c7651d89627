package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dpup/userjs"
	"github.com/dpup/userjs/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPluginUserSource(t *testing.T) {
	ap := Plugin(WithSigningKey("plugin-key"), WithExpiration(time.Hour))
	require.NoError(t, ap.Init(t.Context(), &server.Registry{}))
	src := ap.UserSource()

	t.Run("NoToken", func(t *testing.T) {
		u, err := src(httptest.NewRequest(http.MethodGet, "/userjs", nil))
		require.NoError(t, err)
		assert.Equal(t, userjs.AnonymousUser, u)
	})

	t.Run("ValidToken", func(t *testing.T) {
		identity := testIdentity("7")
		identity.Roles = []string{RoleStaff}
		token, err := ap.IdentityToken(t.Context(), identity)
		require.NoError(t, err)

		r := httptest.NewRequest(http.MethodGet, "/userjs", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		u, err := src(r)
		require.NoError(t, err)
		assert.True(t, u.IsAuthenticated())
		assert.True(t, u.IsStaff())
		assert.Equal(t, "7", u.(Identity).Subject)
	})

	t.Run("WrongKey", func(t *testing.T) {
		token, err := IdentityToken(injectSigningKey("other")(t.Context()), testIdentity("8"))
		require.NoError(t, err)

		r := httptest.NewRequest(http.MethodGet, "/userjs", nil)
		r.AddCookie(&http.Cookie{Name: IdentityTokenCookieName, Value: token})
		u, err := src(r)
		require.NoError(t, err)
		assert.Equal(t, userjs.AnonymousUser, u)
	})
}

func TestPluginRandomKey(t *testing.T) {
	ap := Plugin(WithSigningKey(""))
	require.NoError(t, ap.Init(t.Context(), &server.Registry{}))
	assert.Len(t, ap.jwtSigningKey, 64)
}

func TestUserJSWithAuth(t *testing.T) {
	ap := Plugin(WithSigningKey("plugin-key"))
	s := server.New(
		server.WithExternalAddress("https://example.com"),
		server.WithCSRFSigningKey("csrf-key"),
		server.WithPlugin(ap),
		server.WithPlugin(userjs.Plugin(
			userjs.WithField("email", userjs.Path("email")),
			userjs.WithField("verified", userjs.Path("email_verified")),
		)),
	)
	require.NoError(t, s.Init())

	identity := testIdentity("9")
	identity.Email = "ada@example.com"
	identity.Roles = []string{RoleSuperuser}
	ctx := server.WithAddress(t.Context(), "https://example.com")
	token, err := ap.IdentityToken(ctx, identity)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/userjs", nil)
	r.AddCookie(&http.Cookie{Name: IdentityTokenCookieName, Value: token})
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, `window.user={"authenticated":true,"email":"ada@example.com","superuser":true,"verified":false};`, rr.Body.String())
}
