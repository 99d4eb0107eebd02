// resolution.go — запуск разрешения роли для просмотра страницы:
// запрос claims к IdP наперегонки с таймером.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/arturkryukov/hostportal/internal/domain/rbac"
	"github.com/arturkryukov/hostportal/internal/domain/resolution"
	"github.com/arturkryukov/hostportal/internal/identity"
)

// ResolutionService связывает Tracker просмотров с источником claims.
type ResolutionService struct {
	tracker *resolution.Tracker
	source  identity.ClaimsSource
	timeout time.Duration
	logger  *slog.Logger
}

// NewResolutionService создаёт сервис разрешения ролей.
// timeout <= 0 заменяется на resolution.DefaultTimeout.
func NewResolutionService(
	tracker *resolution.Tracker,
	source identity.ClaimsSource,
	timeout time.Duration,
	logger *slog.Logger,
) *ResolutionService {
	if timeout <= 0 {
		timeout = resolution.DefaultTimeout
	}
	return &ResolutionService{
		tracker: tracker,
		source:  source,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "resolution_service")),
	}
}

// Start начинает разрешение для нового просмотра viewID сессии owner.
// Без токена просмотр сразу разрешается в guest.
// Иначе запрос claims и таймер соревнуются; побеждает первый переход.
func (s *ResolutionService) Start(ctx context.Context, viewID, owner, accessToken string) *resolution.Resolution {
	r := s.tracker.Begin(viewID, owner)

	if accessToken == "" {
		r.ClaimsReceived(rbac.ClaimsBundle{})
		resolutionTotal.WithLabelValues("anonymous").Inc()
		return r
	}

	timer := time.AfterFunc(s.timeout, func() {
		if r.Timeout() {
			resolutionTotal.WithLabelValues("timeout").Inc()
			s.logger.Warn("IdP не ответил вовремя, роль — guest",
				slog.String("view_id", viewID),
				slog.Duration("timeout", s.timeout),
			)
		}
	})

	// Запрос не привязан к жизни HTTP-запроса: просмотр переживает редирект ?view=.
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	go func() {
		defer cancel()

		claims, err := s.source.FetchClaims(fetchCtx, accessToken)
		if err != nil {
			if r.Fail(err) {
				timer.Stop()
				resolutionTotal.WithLabelValues(failureOutcome(err)).Inc()
				s.logger.Warn("Ошибка получения claims, роль — guest",
					slog.String("view_id", viewID),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		if r.ClaimsReceived(claims) {
			timer.Stop()
			resolutionTotal.WithLabelValues("resolved").Inc()
			s.logger.Debug("Роль разрешена",
				slog.String("view_id", viewID),
				slog.String("role", string(r.State().Role)),
			)
			return
		}
		s.logger.Debug("Поздний ответ IdP отброшен", slog.String("view_id", viewID))
	}()

	return r
}

// Lookup возвращает просмотр viewID, если он принадлежит сессии owner.
func (s *ResolutionService) Lookup(viewID, owner string) (*resolution.Resolution, bool) {
	r, ok := s.tracker.Get(viewID)
	if !ok || r.Owner != owner {
		return nil, false
	}
	return r, true
}

// Forget освобождает просмотр после окончательного решения.
func (s *ResolutionService) Forget(viewID string) {
	s.tracker.Forget(viewID)
}

// Timeout возвращает ограничение ожидания claims.
func (s *ResolutionService) Timeout() time.Duration {
	return s.timeout
}

func failureOutcome(err error) string {
	switch {
	case errors.Is(err, resolution.ErrMalformedClaims):
		return "malformed"
	case errors.Is(err, resolution.ErrIdentitySourceUnavailable):
		return "unavailable"
	default:
		return "timeout"
	}
}
