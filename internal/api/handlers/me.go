// me.go — обработчики /api/v1/me и /api/v1/dashboard.
package handlers

import (
	"net/http"

	openapi_types "github.com/oapi-codegen/runtime/types"

	apierrors "github.com/arturkryukov/hostportal/internal/api/errors"
	"github.com/arturkryukov/hostportal/internal/api/middleware"
	"github.com/arturkryukov/hostportal/internal/api/openapi"
	"github.com/arturkryukov/hostportal/internal/domain/rbac"
)

// GetMe — GET /api/v1/me.
// Данные текущего пользователя из JWT claims и итоговая роль.
// Доступ: любой аутентифицированный.
func (h *APIHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
		return
	}

	resp := openapi.Me{
		Id:        claims.Subject,
		Role:      string(claims.Role),
		RoleClaim: claims.Bundle.RoleClaim,
		AdminFlag: claims.Bundle.AdminFlagClaim,
	}
	if claims.PreferredUsername != "" {
		resp.Username = &claims.PreferredUsername
	}
	if claims.Email != "" {
		email := openapi_types.Email(claims.Email)
		resp.Email = &email
	}

	writeJSON(w, http.StatusOK, resp)
}

// CompleteOnboarding — POST /api/v1/me/onboarding.
// Отмечает онбординг текущего пользователя пройденным.
// Доступ: user.
func (h *APIHandler) CompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, rbac.RoleUser)
	if !ok {
		return
	}

	if err := h.svc.Onboarding.CompleteOnboarding(r.Context(), actor.ID); err != nil {
		h.writeServiceError(w, err, "завершение онбординга")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetDashboard — GET /api/v1/dashboard.
// Счётчики сайтов, проектов и открытых заявок; для admin — по всем клиентам и число пользователей.
// Доступ: user.
func (h *APIHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, rbac.RoleUser)
	if !ok {
		return
	}

	summary, err := h.svc.Dashboard.Summary(r.Context(), actor)
	if err != nil {
		h.writeServiceError(w, err, "сводка дашборда")
		return
	}

	resp := openapi.Summary{
		Sites:       summary.Sites,
		Projects:    summary.Projects,
		OpenTickets: summary.OpenTickets,
	}
	if actor.IsAdmin() {
		users := summary.Users
		resp.Users = &users
	}

	writeJSON(w, http.StatusOK, resp)
}
