// Пакет server — HTTP-сервер портала с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на ingress.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/arturkryukov/hostportal/internal/api/handlers"
	"github.com/arturkryukov/hostportal/internal/api/middleware"
	"github.com/arturkryukov/hostportal/internal/api/openapi"
	"github.com/arturkryukov/hostportal/internal/config"
	"github.com/arturkryukov/hostportal/internal/domain/rbac"
	uihandlers "github.com/arturkryukov/hostportal/internal/ui/handlers"
	"github.com/arturkryukov/hostportal/internal/ui/i18n"
	uimiddleware "github.com/arturkryukov/hostportal/internal/ui/middleware"
	"github.com/arturkryukov/hostportal/internal/ui/static"
)

// webhookPrefix — вебхуки IdP: без JWT, с ограничением частоты.
const webhookPrefix = "/api/v1/webhooks/"

// UI — обработчики и middleware UI портала.
type UI struct {
	Session *uimiddleware.UISession
	Guard   *uimiddleware.Guard
	Auth    *uihandlers.AuthHandler
	Portal  *uihandlers.PortalHandler
	I18n    *i18n.Bundle
}

// Deps — зависимости маршрутизатора.
type Deps struct {
	// API — реализация openapi.ServerInterface.
	API openapi.ServerInterface
	// JWTAuth — nil только в тестах.
	JWTAuth *middleware.JWTAuth
	// OpenAPI — документ для валидации запросов; nil — без валидации.
	OpenAPI *openapi3.T
	// WebhookLimiter — nil — без ограничения.
	WebhookLimiter *middleware.IPRateLimiter
	// UI — nil, если UI выключен.
	UI *UI
}

// Server — HTTP-сервер портала.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с маршрутами API и UI.
func New(cfg *config.Config, logger *slog.Logger, deps Deps) (*Server, error) {
	router, err := NewRouter(logger, deps)
	if err != nil {
		return nil, err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}, nil
}

// NewRouter собирает маршруты. Отдельно от New для тестов.
func NewRouter(logger *slog.Logger, deps Deps) (http.Handler, error) {
	router := chi.NewRouter()

	router.Use(chimw.RealIP)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))
	router.Use(chimw.Recoverer)

	var validator func(http.Handler) http.Handler
	if deps.OpenAPI != nil {
		var err error
		validator, err = middleware.OpenAPIValidator(deps.OpenAPI, logger)
		if err != nil {
			return nil, fmt.Errorf("валидатор OpenAPI: %w", err)
		}
	}

	router.Group(func(r chi.Router) {
		// Health и metrics опрашиваются Kubernetes напрямую, вебхук подписан HMAC.
		if deps.JWTAuth != nil {
			r.Use(except(deps.JWTAuth.Middleware(), "/health/", "/metrics", webhookPrefix))
		}
		if deps.WebhookLimiter != nil {
			r.Use(only(deps.WebhookLimiter.Middleware(), webhookPrefix))
		}
		if validator != nil {
			// Тело вебхука проверяется только после подписи.
			r.Use(except(validator, webhookPrefix))
		}

		openapi.HandlerWithOptions(deps.API, openapi.ChiServerOptions{
			BaseRouter:       r,
			ErrorHandlerFunc: handlers.ParamErrorHandler,
		})
	})

	if deps.UI != nil {
		mountUI(router, deps.UI)
		router.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/portal/", http.StatusFound)
		})
	}

	return router, nil
}

// mountUI регистрирует страницы /portal.
func mountUI(router chi.Router, ui *UI) {
	router.Route("/portal", func(r chi.Router) {
		r.Use(i18n.Middleware(ui.I18n))

		r.Handle("/static/*", static.Handler("/portal/static/"))
		r.Get("/login", ui.Auth.HandleLogin)
		r.Get("/auth/start", ui.Auth.HandleStart)
		r.Get("/callback", ui.Auth.HandleCallback)
		r.Get("/logout", ui.Auth.HandleLogout)
		r.Post("/lang", uihandlers.HandleSetLanguage)

		r.Group(func(r chi.Router) {
			r.Use(ui.Session.Middleware())

			r.With(ui.Guard.Require(rbac.RoleUser)).Get("/", ui.Portal.HandleHome)
			r.With(ui.Guard.Require(rbac.RoleUser)).Post("/onboarding", ui.Portal.HandleOnboarding)

			r.Route("/admin", func(r chi.Router) {
				r.Use(ui.Guard.Require(rbac.RoleAdmin))
				r.Get("/", ui.Portal.HandleAdmin)
				r.Get("/users", ui.Portal.HandleUsers)
				r.Post("/users/{id}/role", ui.Portal.HandleChangeRole)
			})
		})
	})
}

// except применяет mw ко всем путям, кроме начинающихся с prefixes.
func except(mw func(http.Handler) http.Handler, prefixes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		wrapped := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hasAnyPrefix(r.URL.Path, prefixes) {
				next.ServeHTTP(w, r)
				return
			}
			wrapped.ServeHTTP(w, r)
		})
	}
}

// only применяет mw только к путям с prefixes.
func only(mw func(http.Handler) http.Handler, prefixes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		wrapped := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hasAnyPrefix(r.URL.Path, prefixes) {
				wrapped.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Run запускает сервер и ожидает SIGINT/SIGTERM, затем graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен", slog.String("addr", s.httpServer.Addr))

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
