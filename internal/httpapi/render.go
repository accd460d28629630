// Package httpapi binds spec §6's HTTP endpoints to the E/F/H/D service
// layer. Routing itself follows plain Go 1.22+ ServeMux method+pattern
// idiom; the surrounding error classification and logging follow
// graph.Client's conventions.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/memolanes/memolanes-server/internal/apierr"
)

// errorEnvelope is the {"error": "<code>"} body spec §7 requires for
// every non-2xx JSON response.
type errorEnvelope struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if body == nil {
		return
	}

	_ = json.NewEncoder(w).Encode(body)
}

// writeError classifies err via apierr and renders the JSON envelope,
// logging internal errors at Error level and everything else at Info —
// the same Warn-for-retryable/Error-for-terminal split graph.Client uses.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	apiErr, ok := apierr.As(err)
	if !ok {
		apiErr = apierr.Internal(err)
	}

	if apiErr.Code == apierr.InternalError {
		logger.Error("request failed", slog.String("error", apiErr.Error()))
	} else {
		logger.Info("request rejected", slog.String("code", string(apiErr.Code)))
	}

	writeJSON(w, apiErr.Status(), errorEnvelope{Error: string(apiErr.Code)})
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	return dec.Decode(out)
}
