package auth

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/dpup/userjs/errors"
)

func identityFromAuthHeader(r *http.Request) (Identity, error) {
	a := r.Header.Get("Authorization")
	if a == "" {
		return Identity{}, errors.Mark(ErrNotFound, 0)
	}

	auth := strings.SplitN(a, " ", 2)
	expectedParts := 2
	if len(auth) != expectedParts {
		// Relaxed fallback that allows tokens to be passed without the "bearer"
		// or "basic" prefix. Instead it takes the whole header.
		return ParseIdentityToken(r.Context(), a)
	}

	switch strings.ToLower(auth[0]) {
	case "bearer":
		return ParseIdentityToken(r.Context(), auth[1])

	case "basic":
		// Basic auth is the method preferred for curl based CLI clients.
		// By convention, we expect the username to be the token, and for
		// there to be no password.
		payload, _ := base64.StdEncoding.DecodeString(auth[1])
		pair := strings.SplitN(string(payload), ":", 2)
		if len(pair) != 2 || pair[1] != "" {
			return Identity{}, errors.Mark(ErrInvalidHeader, 0)
		}
		return ParseIdentityToken(r.Context(), pair[0])

	default:
		return Identity{}, errors.Mark(ErrInvalidHeader, 0)
	}
}
