// Package api provides the HTTP handlers for the sensor-network REST API.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"sensorgrid/internal/domain"
	"sensorgrid/internal/service/ingestion"
	"sensorgrid/internal/service/security"
)

// principalHeader carries the acting principal's id. Transport-level
// authentication sits in front of this API; here the header is trusted.
const principalHeader = "X-Principal-ID"

// Handler implements the REST API over the core services.
type Handler struct {
	sync   *security.SynchronizerService
	auth   *security.AuthorizationService
	grants *security.GrantService
	ingest *ingestion.IngestionService
	logger *slog.Logger
}

// NewHandler creates a Handler with all required service dependencies.
func NewHandler(
	sync *security.SynchronizerService,
	auth *security.AuthorizationService,
	grants *security.GrantService,
	ingest *ingestion.IngestionService,
	logger *slog.Logger,
) *Handler {
	return &Handler{sync: sync, auth: auth, grants: grants, ingest: ingest, logger: logger}
}

// Routes returns the API router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/principals", h.registerPrincipal)
	r.Patch("/principals/{id}", h.updatePrincipal)
	r.Post("/principals/{id}/deactivate", h.deactivatePrincipal)
	r.Post("/login", h.login)

	r.Get("/principals/{id}/permissions", h.effectivePermissions)
	r.Get("/principals/{id}/permissions/{permission}", h.hasPermission)

	r.Post("/principals/{id}/roles/{role}", h.assignRole)
	r.Post("/principals/{id}/groups/{group}", h.addToGroup)
	r.Post("/principals/{id}/grants/{permission}", h.grantPermission)
	r.Post("/principals/{id}/coverage/cities/{city}", h.assignCityCoverage)
	r.Post("/principals/{id}/coverage/countries/{country}", h.assignCountryCoverage)

	r.Post("/sensors", h.registerSensor)
	r.Post("/readings", h.ingestReading)
	r.Post("/readings/batch", h.ingestBatch)
	r.Get("/sensors/{id}/latest", h.latestReading)
	r.Get("/sensors/{id}/readings", h.readingsBySensor)
	r.Get("/cities/{city}/readings", h.readingsByCity)
	r.Get("/countries/{country}/readings", h.readingsByCountry)

	return r
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("write response failed", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := httpStatusFromDomainError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
	}
	h.writeJSON(w, status, map[string]any{"code": status, "message": err.Error()})
}

func decode[T any](r *http.Request, dst *T) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domain.ErrValidation("malformed request body: %v", err)
	}
	return nil
}

// === Identity ===

type registerPrincipalBody struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Credential string `json:"credential"`
	OrgUnit    string `json:"orgUnit"`
}

func (h *Handler) registerPrincipal(w http.ResponseWriter, r *http.Request) {
	var body registerPrincipalBody
	if err := decode(r, &body); err != nil {
		h.writeError(w, err)
		return
	}
	id, err := h.sync.RegisterPrincipal(r.Context(), domain.RegisterPrincipalRequest{
		Name:       body.Name,
		Email:      body.Email,
		Credential: body.Credential,
		OrgUnit:    body.OrgUnit,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

type updatePrincipalBody struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	OrgUnit string `json:"orgUnit"`
}

func (h *Handler) updatePrincipal(w http.ResponseWriter, r *http.Request) {
	var body updatePrincipalBody
	if err := decode(r, &body); err != nil {
		h.writeError(w, err)
		return
	}
	updated, err := h.sync.UpdatePrincipal(r.Context(), chi.URLParam(r, "id"), domain.UpdatePrincipalRequest{
		Name:    body.Name,
		Email:   body.Email,
		OrgUnit: body.OrgUnit,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !updated {
		h.writeError(w, domain.ErrNotFound("principal %s not found", chi.URLParam(r, "id")))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deactivatePrincipal(w http.ResponseWriter, r *http.Request) {
	if err := h.sync.Deactivate(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type loginBody struct {
	Email      string `json:"email"`
	Credential string `json:"credential"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if err := decode(r, &body); err != nil {
		h.writeError(w, err)
		return
	}
	p, perms, err := h.sync.Authenticate(r.Context(), body.Email, body.Credential)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"id":          p.ID,
		"name":        p.Name,
		"email":       p.Email,
		"orgUnit":     p.OrgUnit,
		"permissions": permList(perms),
	})
}

// === Authorization ===

func (h *Handler) effectivePermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.auth.EffectivePermissions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"permissions": permList(perms)})
}

func (h *Handler) hasPermission(w http.ResponseWriter, r *http.Request) {
	var (
		id   = chi.URLParam(r, "id")
		perm = chi.URLParam(r, "permission")
		city = r.URL.Query().Get("city")

		ok  bool
		err error
	)
	if city != "" {
		ok, err = h.auth.HasPermissionInScope(r.Context(), id, perm, city)
	} else {
		ok, err = h.auth.HasPermission(r.Context(), id, perm)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"granted": ok})
}

func permList(set domain.PermissionSet) []string {
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	return out
}

// === Grants ===

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	h.grantCall(w, r, h.grants.AssignRole, "role")
}

func (h *Handler) addToGroup(w http.ResponseWriter, r *http.Request) {
	h.grantCall(w, r, h.grants.AddToGroup, "group")
}

func (h *Handler) grantPermission(w http.ResponseWriter, r *http.Request) {
	h.grantCall(w, r, h.grants.GrantPermission, "permission")
}

func (h *Handler) assignCityCoverage(w http.ResponseWriter, r *http.Request) {
	h.grantCall(w, r, h.grants.AssignCityCoverage, "city")
}

func (h *Handler) assignCountryCoverage(w http.ResponseWriter, r *http.Request) {
	h.grantCall(w, r, h.grants.AssignCountryCoverage, "country")
}

func (h *Handler) grantCall(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, principalID, target string) error, param string) {
	if err := fn(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, param)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// === Ingestion ===

type readingBody struct {
	SensorID    string     `json:"sensorId"`
	Timestamp   *time.Time `json:"timestamp"`
	City        string     `json:"city"`
	Country     string     `json:"country"`
	Temperature *float64   `json:"temperature"`
	Humidity    *float64   `json:"humidity"`
	Type        string     `json:"type"`
}

func (b *readingBody) toDomain() domain.Reading {
	rd := domain.Reading{
		SensorID:    b.SensorID,
		City:        b.City,
		Country:     b.Country,
		Temperature: b.Temperature,
		Humidity:    b.Humidity,
		Type:        b.Type,
	}
	if b.Timestamp != nil {
		rd.Timestamp = *b.Timestamp
	}
	return rd
}

type registerSensorBody struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	City    string `json:"city"`
	Country string `json:"country"`
}

func (h *Handler) registerSensor(w http.ResponseWriter, r *http.Request) {
	var body registerSensorBody
	if err := decode(r, &body); err != nil {
		h.writeError(w, err)
		return
	}
	id, err := h.sync.RegisterSensor(r.Context(), r.Header.Get(principalHeader), security.RegisterSensorRequest{
		Name:    body.Name,
		Type:    body.Type,
		City:    body.City,
		Country: body.Country,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handler) ingestReading(w http.ResponseWriter, r *http.Request) {
	var body readingBody
	if err := decode(r, &body); err != nil {
		h.writeError(w, err)
		return
	}
	rd := body.toDomain()
	if err := h.ingest.Ingest(r.Context(), r.Header.Get(principalHeader), &rd); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) ingestBatch(w http.ResponseWriter, r *http.Request) {
	var bodies []readingBody
	if err := decode(r, &bodies); err != nil {
		h.writeError(w, err)
		return
	}
	readings := make([]domain.Reading, len(bodies))
	for i := range bodies {
		readings[i] = bodies[i].toDomain()
	}
	accepted, err := h.ingest.IngestBatch(r.Context(), r.Header.Get(principalHeader), readings)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]int{"accepted": accepted})
}

// === Reads ===

type readingResponse struct {
	SensorID    string    `json:"sensorId"`
	Timestamp   time.Time `json:"timestamp"`
	City        string    `json:"city"`
	Country     string    `json:"country"`
	Temperature *float64  `json:"temperature,omitempty"`
	Humidity    *float64  `json:"humidity,omitempty"`
	Type        string    `json:"type"`
}

func toResponse(rd *domain.Reading) readingResponse {
	return readingResponse{
		SensorID:    rd.SensorID,
		Timestamp:   rd.Timestamp,
		City:        rd.City,
		Country:     rd.Country,
		Temperature: rd.Temperature,
		Humidity:    rd.Humidity,
		Type:        rd.Type,
	}
}

func toResponses(rds []domain.Reading) []readingResponse {
	out := make([]readingResponse, len(rds))
	for i := range rds {
		out[i] = toResponse(&rds[i])
	}
	return out
}

// readQuery parses the shared day/limit query parameters. day defaults to
// today (UTC).
func readQuery(r *http.Request) (time.Time, int, error) {
	day := time.Now().UTC()
	if v := r.URL.Query().Get("day"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return time.Time{}, 0, domain.ErrValidation("day must be YYYY-MM-DD, got %q", v)
		}
		day = parsed
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return time.Time{}, 0, domain.ErrValidation("limit must be a non-negative integer, got %q", v)
		}
		limit = n
	}
	return day, limit, nil
}

func (h *Handler) latestReading(w http.ResponseWriter, r *http.Request) {
	rd, err := h.ingest.Latest(r.Context(), r.Header.Get(principalHeader), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toResponse(rd))
}

func (h *Handler) readingsBySensor(w http.ResponseWriter, r *http.Request) {
	day, limit, err := readQuery(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	rds, err := h.ingest.BySensor(r.Context(), r.Header.Get(principalHeader), chi.URLParam(r, "id"), day, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toResponses(rds))
}

func (h *Handler) readingsByCity(w http.ResponseWriter, r *http.Request) {
	day, limit, err := readQuery(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	rds, err := h.ingest.ByCity(r.Context(), r.Header.Get(principalHeader), chi.URLParam(r, "city"), day, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toResponses(rds))
}

func (h *Handler) readingsByCountry(w http.ResponseWriter, r *http.Request) {
	day, limit, err := readQuery(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	rds, err := h.ingest.ByCountry(r.Context(), r.Header.Get(principalHeader), chi.URLParam(r, "country"), day, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toResponses(rds))
}
