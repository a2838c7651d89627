package sqlprofile

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dpup/userjs"
	"github.com/dpup/userjs/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuth struct {
	user userjs.User
}

func (a *fakeAuth) Name() string { return userjs.AuthPluginName }

func (a *fakeAuth) UserSource() userjs.UserSource {
	return func(r *http.Request) (userjs.User, error) { return a.user, nil }
}

func TestPluginRequiresQuery(t *testing.T) {
	db, _ := newMock(t)
	p := Plugin(WithDB(db), WithQuery(""))
	err := p.Init(t.Context(), &server.Registry{})
	assert.EqualError(t, err, "userjs: sqlprofile.query: must be set")
}

func TestPluginBeforeInit(t *testing.T) {
	db, mock := newMock(t)
	p := Plugin(WithDB(db), WithQuery(profileQuery))

	fields, err := p.process(requestFor(member{Subject: "u1"}))
	require.NoError(t, err)
	assert.Nil(t, fields)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPluginWithServer(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(profileQuery).
		WithArgs("u9").
		WillReturnRows(sqlmock.NewRows([]string{"display_name"}).AddRow([]byte("Lin")))

	require.NoError(t, server.Config.Set("userjs.postProcessors", []string{PluginName}))
	t.Cleanup(func() { server.Config.Delete("userjs.postProcessors") })

	profiles := Plugin(WithDB(db), WithQuery(profileQuery))
	s := server.New(
		server.WithCSRFSigningKey("test-key"),
		server.WithPlugin(&fakeAuth{user: member{Subject: "u9"}}),
		server.WithPlugin(profiles),
		server.WithPlugin(userjs.Plugin()),
	)
	require.NoError(t, s.Init())
	assert.Same(t, db, profiles.DB())

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/userjs", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, `window.user={"authenticated":true,"display_name":"Lin"};`, rr.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectClose()
	assert.NoError(t, profiles.Close())
	assert.Nil(t, profiles.DB())
}
