// users.go — обработчики /api/v1/users endpoints.
// Список пользователей портала и смена роли через двойную запись (БД + Keycloak).
package handlers

import (
	"net/http"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/arturkryukov/hostportal/internal/api/openapi"
	"github.com/arturkryukov/hostportal/internal/domain/model"
	"github.com/arturkryukov/hostportal/internal/domain/rbac"
)

// ListUsers — GET /api/v1/users.
// Доступ: admin.
func (h *APIHandler) ListUsers(w http.ResponseWriter, r *http.Request, params openapi.ListParams) {
	if _, ok := requireActor(w, r, rbac.RoleAdmin); !ok {
		return
	}

	limit, offset := paginationDefaults(params.Limit, params.Offset)
	users, total, err := h.svc.Users.List(r.Context(), limit, offset)
	if err != nil {
		h.writeServiceError(w, err, "список пользователей")
		return
	}

	items := make([]openapi.User, len(users))
	for i, u := range users {
		items[i] = mapUser(u)
	}

	writeJSON(w, http.StatusOK, openapi.UserList{
		Items: items,
		Page:  openapi.NewPage(total, limit, offset),
	})
}

// GetUser — GET /api/v1/users/{id}.
// Доступ: admin.
func (h *APIHandler) GetUser(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := requireActor(w, r, rbac.RoleAdmin); !ok {
		return
	}

	u, err := h.svc.Users.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "получение пользователя")
		return
	}

	writeJSON(w, http.StatusOK, mapUser(u))
}

// ChangeUserRole — PUT /api/v1/users/{id}/role.
// Записывает роль в БД, затем в Keycloak. Частичная запись — 502 PARTIAL_SYNC
// с details {"relational": "ok", "identity": "failed"}.
// Доступ: admin.
func (h *APIHandler) ChangeUserRole(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := requireActor(w, r, rbac.RoleAdmin)
	if !ok {
		return
	}

	var req openapi.RoleChange
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.svc.Users.ChangeRole(r.Context(), actor, id, req.Role)
	if err != nil {
		h.writeServiceError(w, err, "смена роли")
		return
	}

	writeJSON(w, http.StatusOK, mapUser(u))
}

// --- Маппинг domain → API ---

func mapUser(u *model.User) openapi.User {
	result := openapi.User{
		Id:        u.ID,
		Email:     openapi_types.Email(u.Email),
		Role:      u.Role,
		IsAdmin:   u.IsAdmin,
		Onboarded: u.Onboarded,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
	if u.Username != "" {
		username := u.Username
		result.Username = &username
	}
	return result
}
