// Пакет middleware — HTTP middleware UI портала.
// session.go — загрузка сессии из хранилища и обновление access token.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/arturkryukov/hostportal/internal/ui/auth"
)

type contextKey string

const (
	contextKeySession contextKey = "ui_session"
	contextKeyRole    contextKey = "ui_role"
)

// TokenRefresher обновляет токены сессии (auth.OIDCClient).
type TokenRefresher interface {
	Refresh(ctx context.Context, sess *auth.SessionData) error
}

// UISession загружает сессию в контекст запроса.
// Запрос без сессии проходит дальше анонимно: решение принимает guard.
type UISession struct {
	store     auth.Store
	refresher TokenRefresher
	now       func() time.Time
	logger    *slog.Logger
}

// NewUISession создаёт middleware сессий.
func NewUISession(store auth.Store, refresher TokenRefresher, logger *slog.Logger) *UISession {
	return &UISession{
		store:     store,
		refresher: refresher,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "ui_session")),
	}
}

// Middleware возвращает HTTP middleware.
func (us *UISession) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := us.store.Load(r)
			if err != nil {
				if !errors.Is(err, auth.ErrNoSession) {
					us.logger.Warn("Ошибка чтения сессии",
						slog.String("error", err.Error()),
						slog.String("remote_addr", r.RemoteAddr),
					)
				} else if _, cerr := r.Cookie(auth.SessionCookieName); cerr == nil {
					// Повреждённая или устаревшая cookie
					us.store.Clear(r.Context(), w, r)
				}
				next.ServeHTTP(w, r)
				return
			}

			if session.IsExpired(us.now()) {
				if err := us.refresh(r.Context(), w, session); err != nil {
					us.logger.Info("Не удалось обновить сессию",
						slog.String("subject", session.Subject),
						slog.String("error", err.Error()),
					)
					us.store.Clear(r.Context(), w, r)
					next.ServeHTTP(w, r)
					return
				}
				us.logger.Debug("Сессия обновлена через refresh token",
					slog.String("subject", session.Subject),
				)
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
		})
	}
}

func (us *UISession) refresh(ctx context.Context, w http.ResponseWriter, session *auth.SessionData) error {
	if us.refresher == nil {
		return errors.New("обновление токенов недоступно")
	}
	if err := us.refresher.Refresh(ctx, session); err != nil {
		return err
	}
	return us.store.Save(ctx, w, session)
}

// WithSession помещает сессию в контекст.
func WithSession(ctx context.Context, session *auth.SessionData) context.Context {
	return context.WithValue(ctx, contextKeySession, session)
}

// SessionFromContext возвращает сессию запроса или nil для анонимного.
func SessionFromContext(ctx context.Context) *auth.SessionData {
	session, _ := ctx.Value(contextKeySession).(*auth.SessionData)
	return session
}
