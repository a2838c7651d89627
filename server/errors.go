package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/dpup/userjs/errors"
	"github.com/dpup/userjs/logging"
)

// ErrorResponse is the JSON body written for failed requests.
type ErrorResponse struct {
	Code     int32  `json:"code"`
	CodeName string `json:"codeName"`
	Message  string `json:"message"`
}

// WriteError logs err against the request's logging scope and writes a JSON
// error response with a status derived from the error's code.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	logging.TrackError(r.Context(), err)

	c := errors.Code(err)
	b, ferr := json.Marshal(&ErrorResponse{
		Code:     int32(c),
		CodeName: c.String(),
		Message:  errors.PublicMessage(err),
	})
	if ferr != nil {
		http.Error(w, "error encoding response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(errors.HTTPStatusCode(err))
	_, _ = w.Write(b)
}
