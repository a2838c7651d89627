package server

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dpup/userjs/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func TestGenerateAndVerifyCSRFToken(t *testing.T) {
	signingKey := []byte("secret-key")

	token := generateCSRFToken(signingKey)
	require.NotEmpty(t, token)
	require.NoError(t, verifyCSRFToken(token, signingKey))

	assert.Error(t, verifyCSRFToken(token, []byte("other-key")), "should not verify with another key")
}

func TestVerifyCSRFTokenErrors(t *testing.T) {
	signingKey := []byte("secret-key")
	randomData := make([]byte, 32)
	_, _ = rand.Read(randomData)

	tests := map[string]string{
		"invalid format":     "invalidtokenformat",
		"invalid signature":  "ZZZZ_ABCD1234",
		"invalid data":       "ABC123_ZZZZ",
		"signature mismatch": hex.EncodeToString([]byte("invalidsignature")) + "_" + hex.EncodeToString(randomData),
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			err := verifyCSRFToken(token, signingKey)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrCSRFInvalid))
			assert.Equal(t, codes.FailedPrecondition, errors.Code(err))
		})
	}
}

func TestSendCSRFToken(t *testing.T) {
	signingKey := []byte("secret-key")

	t.Run("NewToken", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/userjs", nil)
		req = req.WithContext(WithAddress(req.Context(), "https://example.com"))
		rr := httptest.NewRecorder()

		token := SendCSRFToken(rr, req, signingKey)
		require.NoError(t, verifyCSRFToken(token, signingKey))

		cookies := rr.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, CSRFCookie, cookies[0].Name)
		assert.Equal(t, token, cookies[0].Value)
		assert.True(t, cookies[0].Secure)
		assert.False(t, cookies[0].HttpOnly)
		assert.Equal(t, "/", cookies[0].Path)
	})

	t.Run("ReusesValidToken", func(t *testing.T) {
		existing := generateCSRFToken(signingKey)
		req := httptest.NewRequest(http.MethodGet, "/userjs", nil)
		req.AddCookie(&http.Cookie{Name: CSRFCookie, Value: existing})
		rr := httptest.NewRecorder()

		assert.Equal(t, existing, SendCSRFToken(rr, req, signingKey))
		assert.False(t, rr.Result().Cookies()[0].Secure)
	})

	t.Run("ReplacesForgedToken", func(t *testing.T) {
		forged := generateCSRFToken([]byte("attacker"))
		req := httptest.NewRequest(http.MethodGet, "/userjs", nil)
		req.AddCookie(&http.Cookie{Name: CSRFCookie, Value: forged})
		rr := httptest.NewRecorder()

		assert.NotEqual(t, forged, SendCSRFToken(rr, req, signingKey))
	})
}

func TestEnsureCSRFCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/userjs", nil)
	_, err := EnsureCSRFCookie(httptest.NewRecorder(), req)
	assert.True(t, errors.Is(err, ErrCSRFNoSigningKey))

	req = req.WithContext(ContextWithCSRFSigningKey(req.Context(), []byte("k")))
	rr := httptest.NewRecorder()
	token, err := EnsureCSRFCookie(rr, req)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Len(t, rr.Result().Cookies(), 1)
}

func TestVerifyCSRF(t *testing.T) {
	signingKey := []byte("secret-key")
	token := generateCSRFToken(signingKey)

	t.Run("Header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set(CSRFHeader, "1")
		assert.NoError(t, VerifyCSRF(req, signingKey))
	})

	t.Run("DoubleSubmit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/?csrf-token="+token, nil)
		req.AddCookie(&http.Cookie{Name: CSRFCookie, Value: token})
		assert.NoError(t, VerifyCSRF(req, signingKey))
	})

	t.Run("MissingParam", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.AddCookie(&http.Cookie{Name: CSRFCookie, Value: token})
		assert.True(t, errors.Is(VerifyCSRF(req, signingKey), ErrCSRFMissingToken))
	})

	t.Run("MissingCookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/?csrf-token="+token, nil)
		assert.True(t, errors.Is(VerifyCSRF(req, signingKey), ErrCSRFMissingCookie))
	})

	t.Run("Mismatch", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/?csrf-token=nope", nil)
		req.AddCookie(&http.Cookie{Name: CSRFCookie, Value: token})
		err := VerifyCSRF(req, signingKey)
		assert.True(t, errors.Is(err, ErrCSRFMismatch))
		assert.Equal(t, http.StatusPreconditionFailed, errors.HTTPStatusCode(err))
	})
}
