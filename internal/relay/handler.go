package relay

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/teemow/inboxpilot/internal/logging"
)

// Handler serves POST /generate.
type Handler struct {
	relay  *Relay
	logger *slog.Logger
}

// NewHandler creates the HTTP front of r.
func NewHandler(r *Relay, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{relay: r, logger: logger}
}

// ServeHTTP decodes a GenerationRequest and streams the generated text back
// as chunked text/plain.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context(), h.logger)

	var req GenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{"error": "request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return
	}

	resp, err := h.relay.Open(r.Context(), req)
	if err != nil {
		WriteError(w, err)
		return
	}
	defer resp.Close()

	if resp.Passthrough() {
		w.Header().Set("Content-Type", resp.ContentType())
		w.Header().Set("Cache-Control", cacheControl)
		w.WriteHeader(http.StatusOK)
		if err := resp.Forward(w); err != nil {
			logger.Debug("raw upstream forward stopped", logging.Err(err))
		}
		return
	}

	sink := NewResponseSink(w)
	sink.Commit()

	stats, err := resp.Pump(sink)
	if err != nil {
		logger.Debug("generation abandoned by client",
			logging.Operation("relay.generate"),
			slog.Int("fragments", stats.Fragments),
			logging.Err(err))
		return
	}
	logger.Debug("generation relayed",
		logging.Operation("relay.generate"),
		slog.Int("fragments", stats.Fragments),
		slog.Bool("interrupted", stats.Interrupted))
}

// WriteError writes the JSON error response for a pre-stream relay failure:
// 400 for a BadRequestError, 502 for an UpstreamError and 500 otherwise.
func WriteError(w http.ResponseWriter, err error) {
	var badReq *BadRequestError
	var upstream *UpstreamError
	switch {
	case errors.As(err, &badReq):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": badReq.Message})
	case errors.As(err, &upstream):
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":   "Ollama error",
			"status":  upstream.Status,
			"details": upstream.Details(),
		})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
