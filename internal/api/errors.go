package api

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/okrd/internal/auth"
	"github.com/wolfeidau/okrd/internal/okr"
	"github.com/wolfeidau/okrd/internal/store"
)

// writeError maps service and auth errors onto status codes. The session
// middleware already handles 401/403 for credential failures before a
// handler runs; the auth cases here cover permission loss detected
// mid-operation.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, auth.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, okr.ErrObjectiveNotFound), errors.Is(err, okr.ErrKeyResultNotFound):
		status = http.StatusNotFound
	case errors.Is(err, okr.ErrInvalidAttainment):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrStoreUnavailable):
		status = http.StatusBadGateway
	default:
		status = http.StatusInternalServerError
	}

	if status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
	} else {
		zerolog.Ctx(r.Context()).Debug().Err(err).Int("status", status).Msg("request rejected")
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}
