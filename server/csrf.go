package server

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/dpup/userjs/errors"
	"github.com/dpup/userjs/logging"
	"google.golang.org/grpc/codes"
)

const (
	// Header name used by XHR requests to pass CSRF checks.
	// See https://cheatsheetseries.owasp.org/cheatsheets/Cross-Site_Request_Forgery_Prevention_Cheat_Sheet.html#employing-custom-request-headers-for-ajaxapi
	CSRFHeader = "X-CSRF-Protection"

	// Cookie name used for storing the CSRF token.
	CSRFCookie = "pf-ct"

	// Query param used for the double-submit cookie pattern.
	CSRFParam = "csrf-token"

	// Duration for which the CSRF token is valid.
	csrfExpiration = time.Hour * 6
)

var (
	ErrCSRFMissingToken  = errors.NewC("csrf: missing token in request", codes.FailedPrecondition)
	ErrCSRFMissingCookie = errors.NewC("csrf: missing token in cookies", codes.FailedPrecondition)
	ErrCSRFMismatch      = errors.NewC("csrf: token mismatch", codes.FailedPrecondition)
	ErrCSRFInvalid       = errors.NewC("csrf: invalid token", codes.FailedPrecondition)
)

// SendCSRFToken ensures the response carries a CSRF cookie and returns its
// value. A valid token on the incoming request is reused, and the cookie is
// resent so its expiration is pushed out.
func SendCSRFToken(w http.ResponseWriter, r *http.Request, signingKey []byte) string {
	ct := csrfTokenFromCookie(r)
	if ct == "" || verifyCSRFToken(ct, signingKey) != nil {
		ct = generateCSRFToken(signingKey)
	}

	isSecure := strings.HasPrefix(AddressFromContext(r.Context()), "https")
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookie,
		Value:    ct,
		Path:     "/",
		Secure:   isSecure,
		HttpOnly: false, // Per OWASP recommendation, so script can read it.
		Expires:  time.Now().Add(csrfExpiration),
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Add("Vary", "Cookie")
	return ct
}

// VerifyCSRF checks the incoming request for a CSRF token. The presence of the
// X-CSRF-Protection header is sufficient, otherwise the `csrf-token` query
// param must match the signed cookie.
func VerifyCSRF(r *http.Request, signingKey []byte) error {
	if r.Header.Get(CSRFHeader) != "" {
		return nil
	}

	param := r.URL.Query().Get(CSRFParam)
	if param == "" {
		return errors.Mark(ErrCSRFMissingToken, 0)
	}

	fromCookie := csrfTokenFromCookie(r)
	if fromCookie == "" {
		return errors.Mark(ErrCSRFMissingCookie, 0)
	}

	if !hmac.Equal([]byte(param), []byte(fromCookie)) {
		return errors.Mark(ErrCSRFMismatch, 0)
	}

	return verifyCSRFToken(fromCookie, signingKey)
}

func csrfTokenFromCookie(r *http.Request) string {
	c, err := r.Cookie(CSRFCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

func generateCSRFToken(signingKey []byte) string {
	randomData := make([]byte, 32)
	if _, err := rand.Read(randomData); err != nil {
		// Errors should not occur under normal operation and are unlikely to be
		// recoverable. So let it fail hard.
		panic("csrf: random number generation failed: " + err.Error())
	}

	hasher := hmac.New(sha256.New, signingKey)
	hasher.Write(randomData)
	mac := hex.EncodeToString(hasher.Sum(nil))

	return mac + "_" + hex.EncodeToString(randomData)
}

func verifyCSRFToken(token string, signingKey []byte) error {
	parts := strings.SplitN(token, "_", 2)
	if len(parts) != 2 {
		return errors.Mark(ErrCSRFInvalid, 0)
	}

	actualMac, err := hex.DecodeString(parts[0])
	if err != nil {
		return errors.Mark(ErrCSRFInvalid, 0).Append("bad signature encoding")
	}

	randomData, err := hex.DecodeString(parts[1])
	if err != nil {
		return errors.Mark(ErrCSRFInvalid, 0).Append("bad data encoding")
	}

	hasher := hmac.New(sha256.New, signingKey)
	hasher.Write(randomData)
	expectedMac := hasher.Sum(nil)

	if !hmac.Equal(actualMac, expectedMac) {
		return errors.Mark(ErrCSRFInvalid, 0).Append("signature mismatch")
	}

	return nil
}

// Rejects state changing requests that don't pass CSRF checks. Safe methods
// pass through untouched.
func csrfMiddleware(h http.Handler, signingKey []byte) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			logging.Track(r.Context(), "server.csrf_mode", "auto-off")
		default:
			logging.Track(r.Context(), "server.csrf_mode", "auto-on")
			if err := VerifyCSRF(r, signingKey); err != nil {
				WriteError(w, r, err)
				return
			}
		}
		h.ServeHTTP(w, r)
	})
}

// ErrCSRFNoSigningKey is returned when a handler asks for a CSRF cookie on a
// request that wasn't routed through the server.
var ErrCSRFNoSigningKey = errors.NewC("csrf: no signing key in request context", codes.Internal)

// EnsureCSRFCookie is SendCSRFToken using the signing key the server attached
// to the request context.
func EnsureCSRFCookie(w http.ResponseWriter, r *http.Request) (string, error) {
	key := CSRFSigningKeyFromContext(r.Context())
	if len(key) == 0 {
		return "", errors.Mark(ErrCSRFNoSigningKey, 0)
	}
	return SendCSRFToken(w, r, key), nil
}
