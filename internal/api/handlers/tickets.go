// tickets.go — обработчики /api/v1/tickets endpoints.
// Клиент создаёт заявки и видит свои; статус меняет администратор.
package handlers

import (
	"net/http"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/arturkryukov/hostportal/internal/api/openapi"
	"github.com/arturkryukov/hostportal/internal/domain/model"
	"github.com/arturkryukov/hostportal/internal/domain/rbac"
	"github.com/arturkryukov/hostportal/internal/service"
)

// ListTickets — GET /api/v1/tickets?status=.
// Доступ: user (свои), admin (все).
func (h *APIHandler) ListTickets(w http.ResponseWriter, r *http.Request, params openapi.ListTicketsParams) {
	actor, ok := requireActor(w, r, rbac.RoleUser)
	if !ok {
		return
	}

	limit, offset := paginationDefaults(params.Limit, params.Offset)
	tickets, total, err := h.svc.Tickets.List(r.Context(), actor, params.Status, limit, offset)
	if err != nil {
		h.writeServiceError(w, err, "список заявок")
		return
	}

	items := make([]openapi.Ticket, len(tickets))
	for i, t := range tickets {
		items[i] = mapTicket(t)
	}
	writeJSON(w, http.StatusOK, openapi.TicketList{Items: items, Page: openapi.NewPage(total, limit, offset)})
}

// CreateTicket — POST /api/v1/tickets.
// Владелец — текущий пользователь.
// Доступ: user.
func (h *APIHandler) CreateTicket(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, rbac.RoleUser)
	if !ok {
		return
	}

	var in service.CreateTicketInput
	if !decodeJSON(w, r, &in) {
		return
	}

	ticket, err := h.svc.Tickets.Create(r.Context(), actor, in)
	if err != nil {
		h.writeServiceError(w, err, "создание заявки")
		return
	}
	writeJSON(w, http.StatusCreated, mapTicket(ticket))
}

// GetTicket — GET /api/v1/tickets/{id}.
// Доступ: владелец или admin.
func (h *APIHandler) GetTicket(w http.ResponseWriter, r *http.Request, id openapi_types.UUID) {
	actor, ok := requireActor(w, r, rbac.RoleUser)
	if !ok {
		return
	}

	ticket, err := h.svc.Tickets.Get(r.Context(), actor, id.String())
	if err != nil {
		h.writeServiceError(w, err, "получение заявки")
		return
	}
	writeJSON(w, http.StatusOK, mapTicket(ticket))
}

// SetTicketStatus — PUT /api/v1/tickets/{id}/status.
// Из closed перейти нельзя — 409 INVALID_TRANSITION.
// Доступ: admin.
func (h *APIHandler) SetTicketStatus(w http.ResponseWriter, r *http.Request, id openapi_types.UUID) {
	if _, ok := requireActor(w, r, rbac.RoleAdmin); !ok {
		return
	}

	var req openapi.StatusChange
	if !decodeJSON(w, r, &req) {
		return
	}

	ticket, err := h.svc.Tickets.Transition(r.Context(), id.String(), req.Status)
	if err != nil {
		h.writeServiceError(w, err, "смена статуса заявки")
		return
	}
	writeJSON(w, http.StatusOK, mapTicket(ticket))
}

func mapTicket(t *model.Ticket) openapi.Ticket {
	return openapi.Ticket{
		Id:        t.ID,
		OwnerId:   t.OwnerID,
		Subject:   t.Subject,
		Body:      t.Body,
		Priority:  t.Priority,
		Status:    t.Status,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}
