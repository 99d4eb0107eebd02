// sites.go — обработчики /api/v1/sites endpoints.
// Клиент видит свои сайты, администратор — все и управляет ими.
package handlers

import (
	"net/http"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/arturkryukov/hostportal/internal/api/openapi"
	"github.com/arturkryukov/hostportal/internal/domain/model"
	"github.com/arturkryukov/hostportal/internal/domain/rbac"
	"github.com/arturkryukov/hostportal/internal/service"
)

// ListSites — GET /api/v1/sites.
// Доступ: user (свои), admin (все).
func (h *APIHandler) ListSites(w http.ResponseWriter, r *http.Request, params openapi.ListParams) {
	actor, ok := requireActor(w, r, rbac.RoleUser)
	if !ok {
		return
	}

	limit, offset := paginationDefaults(params.Limit, params.Offset)
	sites, total, err := h.svc.Sites.List(r.Context(), actor, limit, offset)
	if err != nil {
		h.writeServiceError(w, err, "список сайтов")
		return
	}

	items := make([]openapi.Site, len(sites))
	for i, s := range sites {
		items[i] = mapSite(s)
	}
	writeJSON(w, http.StatusOK, openapi.SiteList{Items: items, Page: openapi.NewPage(total, limit, offset)})
}

// CreateSite — POST /api/v1/sites.
// Доступ: admin.
func (h *APIHandler) CreateSite(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r, rbac.RoleAdmin); !ok {
		return
	}

	var in service.CreateSiteInput
	if !decodeJSON(w, r, &in) {
		return
	}

	site, err := h.svc.Sites.Create(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, err, "создание сайта")
		return
	}
	writeJSON(w, http.StatusCreated, mapSite(site))
}

// GetSite — GET /api/v1/sites/{id}.
// Доступ: владелец или admin.
func (h *APIHandler) GetSite(w http.ResponseWriter, r *http.Request, id openapi_types.UUID) {
	actor, ok := requireActor(w, r, rbac.RoleUser)
	if !ok {
		return
	}

	site, err := h.svc.Sites.Get(r.Context(), actor, id.String())
	if err != nil {
		h.writeServiceError(w, err, "получение сайта")
		return
	}
	writeJSON(w, http.StatusOK, mapSite(site))
}

// DeleteSite — DELETE /api/v1/sites/{id}.
// Доступ: admin.
func (h *APIHandler) DeleteSite(w http.ResponseWriter, r *http.Request, id openapi_types.UUID) {
	if _, ok := requireActor(w, r, rbac.RoleAdmin); !ok {
		return
	}

	if err := h.svc.Sites.Delete(r.Context(), id.String()); err != nil {
		h.writeServiceError(w, err, "удаление сайта")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetSiteStatus — PUT /api/v1/sites/{id}/status.
// Доступ: admin.
func (h *APIHandler) SetSiteStatus(w http.ResponseWriter, r *http.Request, id openapi_types.UUID) {
	if _, ok := requireActor(w, r, rbac.RoleAdmin); !ok {
		return
	}

	var req openapi.StatusChange
	if !decodeJSON(w, r, &req) {
		return
	}

	site, err := h.svc.Sites.SetStatus(r.Context(), id.String(), req.Status)
	if err != nil {
		h.writeServiceError(w, err, "смена статуса сайта")
		return
	}
	writeJSON(w, http.StatusOK, mapSite(site))
}

func mapSite(s *model.Site) openapi.Site {
	return openapi.Site{
		Id:        s.ID,
		OwnerId:   s.OwnerID,
		Domain:    s.Domain,
		Plan:      s.Plan,
		Status:    s.Status,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}
