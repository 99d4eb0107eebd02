// handler.go — основной обработчик API, реализующий openapi.ServerInterface.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	apierrors "github.com/arturkryukov/hostportal/internal/api/errors"
	"github.com/arturkryukov/hostportal/internal/api/middleware"
	"github.com/arturkryukov/hostportal/internal/api/openapi"
	"github.com/arturkryukov/hostportal/internal/domain/model"
	"github.com/arturkryukov/hostportal/internal/domain/rbac"
	"github.com/arturkryukov/hostportal/internal/service"
	"github.com/arturkryukov/hostportal/internal/validate"
)

// UserService — пользователи портала и смена роли.
type UserService interface {
	List(ctx context.Context, limit, offset int) ([]*model.User, int, error)
	Get(ctx context.Context, id string) (*model.User, error)
	ChangeRole(ctx context.Context, actor service.Actor, targetID, role string) (*model.User, error)
}

// OnboardingService — регистрация из вебхука IdP и завершение онбординга.
type OnboardingService interface {
	HandleUserCreated(ctx context.Context, ev service.UserCreatedEvent) (bool, error)
	CompleteOnboarding(ctx context.Context, userID string) error
}

// SiteService — сайты клиентов.
type SiteService interface {
	List(ctx context.Context, actor service.Actor, limit, offset int) ([]*model.Site, int, error)
	Get(ctx context.Context, actor service.Actor, id string) (*model.Site, error)
	Create(ctx context.Context, in service.CreateSiteInput) (*model.Site, error)
	SetStatus(ctx context.Context, id, status string) (*model.Site, error)
	Delete(ctx context.Context, id string) error
}

// ProjectService — проекты клиентов.
type ProjectService interface {
	List(ctx context.Context, actor service.Actor, limit, offset int) ([]*model.Project, int, error)
	Get(ctx context.Context, actor service.Actor, id string) (*model.Project, error)
	Create(ctx context.Context, in service.CreateProjectInput) (*model.Project, error)
	SetStatus(ctx context.Context, id, status string) (*model.Project, error)
}

// TicketService — заявки в поддержку.
type TicketService interface {
	List(ctx context.Context, actor service.Actor, status *string, limit, offset int) ([]*model.Ticket, int, error)
	Get(ctx context.Context, actor service.Actor, id string) (*model.Ticket, error)
	Create(ctx context.Context, actor service.Actor, in service.CreateTicketInput) (*model.Ticket, error)
	Transition(ctx context.Context, id, to string) (*model.Ticket, error)
}

// DashboardService — сводные счётчики.
type DashboardService interface {
	Summary(ctx context.Context, actor service.Actor) (*model.Summary, error)
}

// IDPService — статус Keycloak и сверка ролей.
type IDPService interface {
	GetStatus(ctx context.Context) *service.IDPStatus
	FindDrift(ctx context.Context, limit, offset int) ([]service.RoleDrift, error)
}

// Services — зависимости APIHandler.
type Services struct {
	Users      UserService
	Onboarding OnboardingService
	Sites      SiteService
	Projects   ProjectService
	Tickets    TicketService
	Dashboard  DashboardService
	IDP        IDPService
}

// WebhookConfig — проверка подписи вебхука IdP.
type WebhookConfig struct {
	Secret    string
	Tolerance time.Duration
	// Now — источник времени; nil — time.Now.
	Now func() time.Time
}

// APIHandler — основной обработчик API портала.
type APIHandler struct {
	health  *HealthHandler
	svc     Services
	webhook WebhookConfig
	logger  *slog.Logger
}

var _ openapi.ServerInterface = (*APIHandler)(nil)

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(health *HealthHandler, svc Services, webhook WebhookConfig, logger *slog.Logger) *APIHandler {
	if webhook.Now == nil {
		webhook.Now = time.Now
	}
	return &APIHandler{
		health:  health,
		svc:     svc,
		webhook: webhook,
		logger:  logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON читает тело запроса в dst; при ошибке отвечает 400.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return false
	}
	return true
}

// paginationDefaults нормализует параметры пагинации.
// Возвращает корректные limit и offset.
func paginationDefaults(limit *int, offset *int) (int, int) {
	l := 100
	o := 0

	if limit != nil {
		l = *limit
		if l < 1 {
			l = 1
		}
		if l > 1000 {
			l = 1000
		}
	}

	if offset != nil {
		o = *offset
		if o < 0 {
			o = 0
		}
	}

	return l, o
}

// requireActor возвращает актора из JWT claims с ролью не ниже required.
// Иначе пишет 401/403 и возвращает false.
func requireActor(w http.ResponseWriter, r *http.Request, required rbac.Role) (service.Actor, bool) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
		return service.Actor{}, false
	}
	actor := service.Actor{ID: claims.Subject, Role: claims.Role}
	if !claims.HasRole(required) {
		apierrors.Forbidden(w, "Недостаточно прав: требуется роль "+string(required))
		return actor, false
	}
	return actor, true
}

// writeServiceError переводит ошибку сервисного слоя в HTTP-ответ.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, err error, op string) {
	var syncErr *service.SyncError
	var fieldErr *validate.Error
	switch {
	case errors.As(err, &syncErr):
		h.logger.Error("Ошибка синхронизации роли", slog.String("op", op), slog.String("error", err.Error()))
		apierrors.PartialSync(w, syncErr.Error(), string(syncErr.Relational), string(syncErr.Identity))
	case errors.As(err, &fieldErr):
		apierrors.ValidationFields(w, "Некорректные данные", fieldErr.Fields)
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrInvalidRole):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrForbidden):
		apierrors.Forbidden(w, err.Error())
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, err.Error())
	case errors.Is(err, service.ErrInvalidTransition):
		apierrors.InvalidTransition(w, err.Error())
	case errors.Is(err, service.ErrIDPUnavailable):
		apierrors.IDPUnavailable(w, err.Error())
	default:
		h.logger.Error("Внутренняя ошибка", slog.String("op", op), slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка: "+op)
	}
}

// ParamErrorHandler отвечает на ошибки привязки параметров маршрута.
// Отсутствующие заголовки подписи вебхука — 401, остальное — 400.
func ParamErrorHandler(w http.ResponseWriter, _ *http.Request, err error) {
	var headerErr *openapi.RequiredHeaderError
	if errors.As(err, &headerErr) {
		apierrors.Unauthorized(w, err.Error())
		return
	}
	apierrors.ValidationError(w, err.Error())
}
