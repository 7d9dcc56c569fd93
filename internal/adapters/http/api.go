package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Heshamoov/aid-app-admin-production/internal/application"
	"github.com/Heshamoov/aid-app-admin-production/internal/domain"
)

type apiAuthRequest struct {
	Identity string `json:"identity"`
	Password string `json:"password"`
}

type apiAuthResponse struct {
	Token  string            `json:"token"`
	Record *domain.Principal `json:"record"`
}

func (h *Handler) handleAPIAuthWithPassword(w http.ResponseWriter, r *http.Request) {
	var req apiAuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	token, p, err := h.auth.AuthWithPassword(r.Context(), req.Identity, req.Password)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to authenticate.")
		return
	}
	writeJSON(w, http.StatusOK, apiAuthResponse{Token: token, Record: p})
}

func (h *Handler) handleAPIAuthRefresh(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "The request requires valid record authorization token.")
		return
	}
	fresh, p, err := h.auth.AuthRefresh(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "The request requires valid record authorization token.")
		return
	}
	writeJSON(w, http.StatusOK, apiAuthResponse{Token: fresh, Record: p})
}

func (h *Handler) handleAPIWhoAmI(w http.ResponseWriter, r *http.Request) {
	p := principalFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"id":      p.ID,
		"email":   p.Email,
		"name":    p.Name,
		"role":    p.Role,
		"landing": application.LandingPath(p),
	})
}

func (h *Handler) handleAPIVersion(w http.ResponseWriter, r *http.Request) {
	if h.version == nil {
		writeJSON(w, http.StatusInternalServerError, domain.VersionInfo{Current: "unknown", Latest: "unknown", Error: "Could not determine version"})
		return
	}
	info, err := h.version.Check(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, info)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *Handler) handleAPIListCollections(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListCollections(r.Context(), principalFromContext(r.Context()))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "totalItems": len(items)})
}

func (h *Handler) handleAPIListRecords(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("perPage"))
	items, err := h.service.ListRecords(r.Context(), principalFromContext(r.Context()), chi.URLParam(r, "collection"), limit)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	out := make([]map[string]any, 0, len(items))
	for _, rec := range items {
		out = append(out, recordJSON(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out, "totalItems": len(out)})
}

func (h *Handler) handleAPIGetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.GetRecord(r.Context(), principalFromContext(r.Context()), chi.URLParam(r, "collection"), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, recordJSON(rec))
}

func (h *Handler) handleAPICreateRecord(w http.ResponseWriter, r *http.Request) {
	var data map[string]any
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	rec, err := h.service.CreateRecord(r.Context(), principalFromContext(r.Context()), chi.URLParam(r, "collection"), data)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, recordJSON(rec))
}

func (h *Handler) handleAPIUpdateRecord(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	rec, err := h.service.UpdateRecord(r.Context(), principalFromContext(r.Context()), chi.URLParam(r, "collection"), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, recordJSON(rec))
}

func (h *Handler) handleAPIDeleteRecord(w http.ResponseWriter, r *http.Request) {
	err := h.service.DeleteRecord(r.Context(), principalFromContext(r.Context()), chi.URLParam(r, "collection"), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type apiStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) handleAPISetStatus(w http.ResponseWriter, r *http.Request) {
	var req apiStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	rec, err := h.service.SetStatus(r.Context(), principalFromContext(r.Context()), chi.URLParam(r, "collection"), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, recordJSON(rec))
}

func (h *Handler) handleAPIListUsers(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.service.ListUsers(r.Context(), principalFromContext(r.Context()), r.URL.Query().Get("q"), limit)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, items)
}

type apiCreateUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

func (h *Handler) handleAPICreateUser(w http.ResponseWriter, r *http.Request) {
	var req apiCreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	u, err := h.service.CreateUser(r.Context(), principalFromContext(r.Context()), req.Email, req.Password, req.Name, req.Role)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *Handler) handleAPIListAudit(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.service.ListAuditLogs(r.Context(), principalFromContext(r.Context()), limit)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) handleAPIMigrations(w http.ResponseWriter, r *http.Request) {
	if h.migrations == nil {
		writeError(w, http.StatusNotFound, "migrations are not available")
		return
	}
	items, err := h.migrations.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// recordJSON flattens a record the way the backend's REST API returns it.
func recordJSON(rec domain.Record) map[string]any {
	out := make(map[string]any, len(rec.Data)+5)
	for k, v := range rec.Data {
		out[k] = v
	}
	out["id"] = rec.ID
	out["collectionId"] = rec.CollectionID
	out["collectionName"] = rec.Collection
	out["created"] = rec.Created.UTC().Format(time.RFC3339)
	out["updated"] = rec.Updated.UTC().Format(time.RFC3339)
	return out
}
