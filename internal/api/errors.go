package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"google.golang.org/api/googleapi"

	"github.com/teemow/inboxpilot/internal/assistant"
	"github.com/teemow/inboxpilot/internal/gmail"
	"github.com/teemow/inboxpilot/internal/google"
	"github.com/teemow/inboxpilot/internal/relay"
)

const msgReauthenticate = "Refresh token expired or revoked. Please re-authenticate."

var errBodyTooLarge = errors.New("request body too large")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeError maps err to its HTTP status and JSON body.
func writeError(w http.ResponseWriter, err error) {
	var (
		badReq   *relay.BadRequestError
		upstream *relay.UpstreamError
		apiErr   *googleapi.Error
	)
	switch {
	case errors.Is(err, errBodyTooLarge):
		writeErrorMessage(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, assistant.ErrDispatchPending):
		writeErrorMessage(w, http.StatusConflict, "The assistant is still answering in this conversation.")
	case errors.Is(err, assistant.ErrInvalidAction), errors.Is(err, gmail.ErrNoIDs):
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &badReq), errors.As(err, &upstream):
		relay.WriteError(w, err)
	case errors.Is(err, google.ErrUnauthenticated), gmail.IsUnauthorized(err):
		writeErrorMessage(w, http.StatusUnauthorized, msgReauthenticate)
	case errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound:
		writeErrorMessage(w, http.StatusNotFound, "Email not found")
	default:
		writeErrorMessage(w, http.StatusInternalServerError, err.Error())
	}
}

// badRequest marks a client error in a request body.
type badRequest struct {
	msg string
}

func (e *badRequest) Error() string { return e.msg }

// decodeJSON decodes the request body into v.
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return errBodyTooLarge
	}
	return &badRequest{msg: "invalid JSON body"}
}

// writeDecodeError answers a decodeJSON failure.
func writeDecodeError(w http.ResponseWriter, err error) {
	var br *badRequest
	if errors.As(err, &br) {
		writeErrorMessage(w, http.StatusBadRequest, br.msg)
		return
	}
	writeError(w, err)
}
