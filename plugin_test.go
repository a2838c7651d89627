package userjs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/dpup/userjs/plugins/templates"
	"github.com/dpup/userjs/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuth struct{}

func (fakeAuth) Name() string { return AuthPluginName }

func (fakeAuth) UserSource() UserSource {
	return func(r *http.Request) (User, error) {
		if r.Header.Get("Authorization") == "" {
			return AnonymousUser, nil
		}
		return &testUser{Email: "ada@example.com", staff: true}, nil
	}
}

func TestPluginServer(t *testing.T) {
	p := Plugin(WithField("email", Path("email")))
	s := server.New(
		server.WithCSRFSigningKey("test-key"),
		server.WithPlugin(fakeAuth{}),
		server.WithPlugin(p),
	)
	require.NoError(t, s.Init())

	path, err := s.Reverse(PluginName)
	require.NoError(t, err)
	assert.Equal(t, DefaultPath, path)

	t.Run("Anonymous", func(t *testing.T) {
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, `window.user={"authenticated":false,"email":null};`, rr.Body.String())
	})

	t.Run("AuthPlugin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer x")
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, req)
		assert.Equal(t, `window.user={"authenticated":true,"email":"ada@example.com","staff":true};`, rr.Body.String())
	})

	t.Run("CSRFFromServerKey", func(t *testing.T) {
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path+"?csrf=true", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		cookies := rr.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, server.CSRFCookie, cookies[0].Name)
	})
}

func TestPluginExplicitUserSource(t *testing.T) {
	p := Plugin(WithUserSource(func(*http.Request) (User, error) {
		return &testUser{superuser: true}, nil
	}))
	r := &server.Registry{}
	r.Register(fakeAuth{})
	r.Register(p)
	require.NoError(t, r.Init(context.Background()))

	js, err := p.Handler().Build(httptest.NewRequest(http.MethodGet, "/userjs", nil))
	require.NoError(t, err)
	assert.Equal(t, `window.user={"authenticated":true,"superuser":true};`, js)
}

func TestPluginConfigurationError(t *testing.T) {
	require.NoError(t, server.Config.Set("userjs.postProcessors", []string{"does.not.exist"}))
	t.Cleanup(func() { server.Config.Delete("userjs.postProcessors") })

	_, err := New()
	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)

	assert.Panics(t, func() { Plugin() })
}

func TestTemplateFuncs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "page.tmpl"), []byte(
		`<script src="{{userjsURL}}"></script><script src="{{userjsURL (dict "jsonp" "init")}}"></script>`,
	), 0644))

	p := Plugin(WithPath("/js/user"))
	tp := templates.Plugin()

	r := &server.Registry{}
	r.Register(p)
	r.Register(tp)
	require.NoError(t, r.Init(context.Background()))
	require.NoError(t, tp.Load([]string{dir}))

	out, err := tp.Render(context.Background(), "page.tmpl", nil)
	require.NoError(t, err)
	assert.Equal(t, `<script src="/js/user"></script><script src="/js/user?jsonp=init"></script>`, out)

	assert.Equal(t, "/js/user?jsonp=cb", p.URL(map[string]any{"jsonp": "cb"}))
}

func TestPluginURLReversesRoute(t *testing.T) {
	p := Plugin()
	assert.Equal(t, DefaultPath+"?jsonp=cb", p.URL(map[string]any{"jsonp": "cb"}))

	s := server.New(
		server.WithCSRFSigningKey("test-key"),
		server.WithPlugin(p),
		// Remounting the named route moves the script.
		server.WithNamedHandler(PluginName, "/static/user.js", p.Handler()),
	)
	require.NoError(t, s.Init())

	path, err := s.Reverse(PluginName)
	require.NoError(t, err)
	assert.Equal(t, "/static/user.js", path)
	assert.Equal(t, "/static/user.js?jsonp=cb", p.URL(map[string]any{"jsonp": "cb"}))
}
