// internal/api/api.go
//
// CRM reference backend – JSON handlers.
//
// Context
//   The toolkit’s client side talks to a small CRUD surface per entity.
//   This package serves that surface over a Store so the client, the
//   checker, and the submit pipeline can be exercised end to end:
//
//     POST /api/{entity}                         → 201 Record | 400 | 409
//     GET  /api/{entity}/exists?field=&value=    → 200 {"exists":true} | 404 | 400
//     GET  /api/{entity}/{id}                    → 200 Record | 404
//     PUT  /api/{entity}/{id}                    → 200 Record | 400 | 404 | 409
//
//   Every write is re-validated with the entity’s own rule table; the client
//   is never trusted.  Error bodies use crmapi.ErrorBody.
//
//   Secret fields (passwords) are stored as bcrypt hashes and left out of
//   every response.
//
//------------------------------------------------------------------------------

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/yanizio/adept-crm/internal/crm"
	"github.com/yanizio/adept-crm/internal/crmapi"
	"github.com/yanizio/adept-crm/internal/form"
	"github.com/yanizio/adept-crm/internal/logger"
	"github.com/yanizio/adept-crm/internal/metrics"
	"github.com/yanizio/adept-crm/internal/store"
)

// maxBody caps request payloads.
const maxBody = 64 << 10

// Store is the persistence the handlers need.  *store.Store satisfies it.
type Store interface {
	Create(ctx context.Context, entity, uniqueKey string, data map[string]any) (store.Record, error)
	Update(ctx context.Context, entity, id, uniqueKey string, data map[string]any) (store.Record, error)
	Get(ctx context.Context, entity, id string) (store.Record, error)
	Exists(ctx context.Context, entity, field, value string, unique bool) (bool, error)
}

// Handler serves the entity API.
type Handler struct {
	store Store
}

// New returns a Handler over st.
func New(st Store) *Handler { return &Handler{store: st} }

// Routes builds the router mounted at “/api”.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/{entity}", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/exists", h.exists)
		r.Get("/{id}", h.get)
		r.Put("/{id}", h.update)
	})
	return r
}

/*──────────────────────────── Handlers ─────────────────────────────────────*/

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	ent, ok := entityOf(w, r)
	if !ok {
		return
	}
	payload, vals, tg, ok := decode(w, r, ent)
	if !ok {
		return
	}
	_, key := ent.UniqueKey(vals, tg)

	rec, err := h.store.Create(r.Context(), ent.Name, store.NormalizeKey(key), payload)
	if err != nil {
		h.writeStoreErr(w, r, ent, "create", err)
		return
	}
	metrics.BackendWritesTotal.WithLabelValues(ent.Name, "created").Inc()
	writeJSON(w, http.StatusCreated, wire(ent, rec))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	ent, ok := entityOf(w, r)
	if !ok {
		return
	}
	payload, vals, tg, ok := decode(w, r, ent)
	if !ok {
		return
	}
	_, key := ent.UniqueKey(vals, tg)

	rec, err := h.store.Update(r.Context(), ent.Name, chi.URLParam(r, "id"), store.NormalizeKey(key), payload)
	if err != nil {
		h.writeStoreErr(w, r, ent, "update", err)
		return
	}
	metrics.BackendWritesTotal.WithLabelValues(ent.Name, "updated").Inc()
	writeJSON(w, http.StatusOK, wire(ent, rec))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	ent, ok := entityOf(w, r)
	if !ok {
		return
	}
	rec, err := h.store.Get(r.Context(), ent.Name, chi.URLParam(r, "id"))
	if err != nil {
		h.writeStoreErr(w, r, ent, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, wire(ent, rec))
}

func (h *Handler) exists(w http.ResponseWriter, r *http.Request) {
	// A bad query answers 400, never 404: the checker reads 404 as "available".
	ent, ok := crm.Lookup(chi.URLParam(r, "entity"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, crmapi.ErrorBody{Message: "unknown entity"})
		return
	}
	field := r.URL.Query().Get("field")
	value := r.URL.Query().Get("value")
	if !ent.Def.Rules.Has(field) || ent.Secret[field] || value == "" {
		writeJSON(w, http.StatusBadRequest, crmapi.ErrorBody{Message: "field and value are required"})
		return
	}
	unique := ent.Def.Unique != nil && ent.Def.Unique.Field == field

	found, err := h.store.Exists(r.Context(), ent.Name, field, value, unique)
	if err != nil {
		h.writeStoreErr(w, r, ent, "exists", err)
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]bool{"exists": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": true})
}

/*──────────────────────────── Helpers ──────────────────────────────────────*/

func entityOf(w http.ResponseWriter, r *http.Request) (*crm.Entity, bool) {
	ent, ok := crm.Lookup(chi.URLParam(r, "entity"))
	if !ok {
		writeJSON(w, http.StatusNotFound, crmapi.ErrorBody{Message: "unknown entity"})
	}
	return ent, ok
}

// decode reads and validates the body, answering 400 itself on failure.
// The stored payload is re-derived from the validated values so unknown
// keys are dropped and normalisation is applied server side too.  Secret
// values are replaced by their bcrypt hash.
func decode(w http.ResponseWriter, r *http.Request, ent *crm.Entity) (map[string]any, form.Values, form.Toggles, bool) {
	var body map[string]any
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, crmapi.ErrorBody{Message: "request body must be a JSON object"})
		return nil, nil, nil, false
	}

	vals, tg, errs := ent.ValidatePayload(body)
	if len(errs) > 0 {
		fields := make(map[string][]string, len(errs))
		for name, fe := range errs {
			fields[name] = []string{fe.Message}
		}
		metrics.BackendWritesTotal.WithLabelValues(ent.Name, "invalid").Inc()
		writeJSON(w, http.StatusBadRequest, crmapi.ErrorBody{Message: "validation failed", Fields: fields})
		return nil, nil, nil, false
	}
	payload := ent.Payload(vals, tg)
	for name := range ent.Secret {
		plain, ok := payload[name].(string)
		if !ok || plain == "" {
			continue
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, crmapi.ErrorBody{
				Message: "validation failed",
				Fields:  map[string][]string{name: {"Password cannot be used"}},
			})
			return nil, nil, nil, false
		}
		payload[name] = string(hash)
	}
	return payload, vals, tg, true
}

func (h *Handler) writeStoreErr(w http.ResponseWriter, r *http.Request, ent *crm.Entity, op string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, crmapi.ErrorBody{Message: "record not found"})
	case errors.Is(err, store.ErrConflict):
		metrics.BackendWritesTotal.WithLabelValues(ent.Name, "conflict").Inc()
		body := crmapi.ErrorBody{Message: ent.Def.Title + " already exists"}
		if u := ent.Def.Unique; u != nil {
			body.Fields = map[string][]string{u.Field: {u.ConflictMessage()}}
		}
		writeJSON(w, http.StatusConflict, body)
	default:
		logger.FromContext(r.Context()).Errorw("store failure", "op", op, "entity", ent.Name, "error", err)
		writeJSON(w, http.StatusInternalServerError, crmapi.ErrorBody{Message: "internal error"})
	}
}

func wire(ent *crm.Entity, rec store.Record) crmapi.Record {
	return crmapi.Record{
		ID:        rec.ID,
		Entity:    rec.Entity,
		Data:      ent.Redact(rec.Data),
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
