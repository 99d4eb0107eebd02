// projects.go — обработчики /api/v1/projects endpoints.
package handlers

import (
	"net/http"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/arturkryukov/hostportal/internal/api/openapi"
	"github.com/arturkryukov/hostportal/internal/domain/model"
	"github.com/arturkryukov/hostportal/internal/domain/rbac"
	"github.com/arturkryukov/hostportal/internal/service"
)

// ListProjects — GET /api/v1/projects.
// Доступ: user (свои), admin (все).
func (h *APIHandler) ListProjects(w http.ResponseWriter, r *http.Request, params openapi.ListParams) {
	actor, ok := requireActor(w, r, rbac.RoleUser)
	if !ok {
		return
	}

	limit, offset := paginationDefaults(params.Limit, params.Offset)
	projects, total, err := h.svc.Projects.List(r.Context(), actor, limit, offset)
	if err != nil {
		h.writeServiceError(w, err, "список проектов")
		return
	}

	items := make([]openapi.Project, len(projects))
	for i, p := range projects {
		items[i] = mapProject(p)
	}
	writeJSON(w, http.StatusOK, openapi.ProjectList{Items: items, Page: openapi.NewPage(total, limit, offset)})
}

// CreateProject — POST /api/v1/projects.
// Доступ: admin.
func (h *APIHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r, rbac.RoleAdmin); !ok {
		return
	}

	var in service.CreateProjectInput
	if !decodeJSON(w, r, &in) {
		return
	}

	project, err := h.svc.Projects.Create(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, err, "создание проекта")
		return
	}
	writeJSON(w, http.StatusCreated, mapProject(project))
}

// GetProject — GET /api/v1/projects/{id}.
// Доступ: владелец или admin.
func (h *APIHandler) GetProject(w http.ResponseWriter, r *http.Request, id openapi_types.UUID) {
	actor, ok := requireActor(w, r, rbac.RoleUser)
	if !ok {
		return
	}

	project, err := h.svc.Projects.Get(r.Context(), actor, id.String())
	if err != nil {
		h.writeServiceError(w, err, "получение проекта")
		return
	}
	writeJSON(w, http.StatusOK, mapProject(project))
}

// SetProjectStatus — PUT /api/v1/projects/{id}/status.
// Доступ: admin.
func (h *APIHandler) SetProjectStatus(w http.ResponseWriter, r *http.Request, id openapi_types.UUID) {
	if _, ok := requireActor(w, r, rbac.RoleAdmin); !ok {
		return
	}

	var req openapi.StatusChange
	if !decodeJSON(w, r, &req) {
		return
	}

	project, err := h.svc.Projects.SetStatus(r.Context(), id.String(), req.Status)
	if err != nil {
		h.writeServiceError(w, err, "смена статуса проекта")
		return
	}
	writeJSON(w, http.StatusOK, mapProject(project))
}

func mapProject(p *model.Project) openapi.Project {
	result := openapi.Project{
		Id:        p.ID,
		OwnerId:   p.OwnerID,
		Name:      p.Name,
		SiteId:    p.SiteID,
		Status:    p.Status,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	if p.Description != "" {
		description := p.Description
		result.Description = &description
	}
	return result
}
