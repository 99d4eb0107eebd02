// idp.go — обработчики /api/v1/idp endpoints.
// Статус Identity Provider (Keycloak) и сверка ролей БД ↔ Keycloak.
package handlers

import (
	"net/http"

	"github.com/arturkryukov/hostportal/internal/api/openapi"
	"github.com/arturkryukov/hostportal/internal/domain/rbac"
)

// GetIdpStatus — GET /api/v1/idp/status.
// Статус подключения к Keycloak.
// Доступ: admin.
func (h *APIHandler) GetIdpStatus(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r, rbac.RoleAdmin); !ok {
		return
	}

	status := h.svc.IDP.GetStatus(r.Context())

	resp := openapi.IdpStatus{
		Connected:  status.Connected,
		Realm:      status.Realm,
		UsersCount: status.UsersCount,
		Error:      status.Error,
	}

	if status.KeycloakURL != "" {
		resp.KeycloakUrl = &status.KeycloakURL
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetRoleDrift — GET /api/v1/idp/drift.
// Пользователи, у которых роль в БД расходится с атрибутами Keycloak
// (следствие частичной записи). Исправляется повторной сменой роли.
// Доступ: admin.
func (h *APIHandler) GetRoleDrift(w http.ResponseWriter, r *http.Request, params openapi.ListParams) {
	if _, ok := requireActor(w, r, rbac.RoleAdmin); !ok {
		return
	}

	limit, offset := paginationDefaults(params.Limit, params.Offset)
	drifts, err := h.svc.IDP.FindDrift(r.Context(), limit, offset)
	if err != nil {
		h.writeServiceError(w, err, "сверка ролей")
		return
	}

	items := make([]openapi.RoleDrift, len(drifts))
	for i, d := range drifts {
		items[i] = openapi.RoleDrift{
			UserId:    d.UserID,
			DbRole:    d.DBRole,
			DbIsAdmin: d.DBIsAdmin,
			Missing:   d.Missing,
		}
		if d.Email != "" {
			items[i].Email = &d.Email
		}
		if !d.Missing {
			items[i].IdentityRole = &d.IdentityRole
			items[i].IdentityAdmin = &d.IdentityAdmin
		}
	}

	writeJSON(w, http.StatusOK, openapi.RoleDriftList{Items: items})
}
