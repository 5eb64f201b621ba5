// Package api is the request/response front end: stateless REST routes
// over the OKR service, one combined authentication + authorization
// round trip per request.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/okrd/internal/auth"
	"github.com/wolfeidau/okrd/internal/models"
	"github.com/wolfeidau/okrd/internal/okr"
	"github.com/wolfeidau/okrd/internal/store"
)

// OKRAPI serves the REST surface. Every route carries its own session
// middleware naming the exact permission it needs, and every response
// echoes the complete resulting aggregate so callers can resynchronize
// without a separate fetch.
type OKRAPI struct {
	store         store.TenantStore
	authenticator auth.SessionAuthenticator
}

// New creates the REST front end.
func New(tenantStore store.TenantStore, authenticator auth.SessionAuthenticator) *OKRAPI {
	return &OKRAPI{
		store:         tenantStore,
		authenticator: authenticator,
	}
}

// Routes returns the chi router for mounting under /api.
func (a *OKRAPI) Routes() chi.Router {
	r := chi.NewRouter()

	r.With(a.requires(auth.ActionRead, auth.ResourceObjective)).
		Get("/objectives", a.listObjectives)
	r.With(a.requires(auth.ActionCreate, auth.ResourceObjective)).
		Post("/objectives", a.addObjective)
	r.With(a.requires(auth.ActionDelete, auth.ResourceObjective)).
		Delete("/objectives/{okrID}", a.deleteObjective)
	r.With(a.requires(auth.ActionCreate, auth.ResourceKeyResult)).
		Post("/objectives/{okrID}/keyresults", a.addKeyResult)
	r.With(a.requires(auth.ActionUpdate, auth.ResourceKeyResult)).
		Post("/objectives/{okrID}/keyresults/{krID}/attainment", a.setKeyResultAttainment)
	r.With(a.requires(auth.ActionDelete, auth.ResourceKeyResult)).
		Delete("/objectives/{okrID}/keyresults/{krID}", a.deleteKeyResult)

	return r
}

func (a *OKRAPI) requires(action auth.Action, resource auth.Resource) func(http.Handler) http.Handler {
	return auth.SessionMiddleware(a.authenticator, action, resource)
}

// service binds an OKR service to the authenticated principal's
// organization for the duration of one request.
func (a *OKRAPI) service(r *http.Request) *okr.Service {
	principal := auth.PrincipalFromContext(r.Context())
	return okr.NewService(a.store, principal.OrgID)
}

func (a *OKRAPI) listObjectives(w http.ResponseWriter, r *http.Request) {
	objectives, err := a.service(r).Get(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeObjectives(w, r, objectives)
}

func (a *OKRAPI) addObjective(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ObjectiveText string `json:"objectiveText"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	objectives, err := a.service(r).AddObjective(r.Context(), body.ObjectiveText)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeObjectives(w, r, objectives)
}

func (a *OKRAPI) deleteObjective(w http.ResponseWriter, r *http.Request) {
	objectives, err := a.service(r).DeleteObjective(r.Context(), chi.URLParam(r, "okrID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeObjectives(w, r, objectives)
}

func (a *OKRAPI) addKeyResult(w http.ResponseWriter, r *http.Request) {
	var body struct {
		KeyResultText string `json:"keyResultText"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	objectives, err := a.service(r).AddKeyResult(r.Context(), chi.URLParam(r, "okrID"), body.KeyResultText)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeObjectives(w, r, objectives)
}

func (a *OKRAPI) setKeyResultAttainment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Attainment int `json:"attainment"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	objectives, err := a.service(r).SetKeyResultAttainment(r.Context(),
		chi.URLParam(r, "okrID"), chi.URLParam(r, "krID"), body.Attainment)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeObjectives(w, r, objectives)
}

func (a *OKRAPI) deleteKeyResult(w http.ResponseWriter, r *http.Request) {
	objectives, err := a.service(r).DeleteKeyResult(r.Context(),
		chi.URLParam(r, "okrID"), chi.URLParam(r, "krID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeObjectives(w, r, objectives)
}

// decodeBody decodes the JSON request body, writing a 400 and returning
// false on malformed input so handlers can bail early.
func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		zerolog.Ctx(r.Context()).Debug().Err(err).Msg("malformed request body")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return false
	}
	return true
}

func writeObjectives(w http.ResponseWriter, r *http.Request, objectives []models.Objective) {
	if objectives == nil {
		objectives = []models.Objective{}
	}
	writeJSON(w, http.StatusOK, map[string][]models.Objective{"objectives": objectives})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
