// Точка входа клиентского портала хостинга.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// создаёт клиент Keycloak, сервисный слой и API handlers, поднимает UI
// с OIDC-входом и guard по ролям, запускает topologymetrics и HTTP-сервер.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/arturkryukov/hostportal/internal/api/handlers"
	"github.com/arturkryukov/hostportal/internal/api/middleware"
	"github.com/arturkryukov/hostportal/internal/api/openapi"
	"github.com/arturkryukov/hostportal/internal/config"
	"github.com/arturkryukov/hostportal/internal/database"
	"github.com/arturkryukov/hostportal/internal/domain/guard"
	"github.com/arturkryukov/hostportal/internal/domain/resolution"
	"github.com/arturkryukov/hostportal/internal/identity"
	"github.com/arturkryukov/hostportal/internal/keycloak"
	"github.com/arturkryukov/hostportal/internal/repository"
	"github.com/arturkryukov/hostportal/internal/server"
	"github.com/arturkryukov/hostportal/internal/service"
	"github.com/arturkryukov/hostportal/internal/ui/auth"
	uihandlers "github.com/arturkryukov/hostportal/internal/ui/handlers"
	"github.com/arturkryukov/hostportal/internal/ui/i18n"
	uimiddleware "github.com/arturkryukov/hostportal/internal/ui/middleware"
	"github.com/arturkryukov/hostportal/internal/ui/pages"
	"github.com/arturkryukov/hostportal/internal/validate"
)

// Размер таблицы клиентов лимита вебхука и время жизни записи.
const (
	webhookLimiterClients = 10000
	webhookLimiterTTL     = 10 * time.Minute
)

func main() {
	// 1. Конфигурация
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Логирование
	logger := config.SetupLogger(cfg)
	logger.Info("Портал запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv(config.EnvPrefix+"DEPHEALTH_GROUP") == "" {
		logger.Warn("HP_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Миграции БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		fatal(logger, "Ошибка миграций БД", err)
	}

	// 4. PostgreSQL
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		fatal(logger, "Ошибка подключения к PostgreSQL", err)
	}
	defer pool.Close()

	// Проверки topologymetrics идут через тот же пул, что видит его исчерпание
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. HTTP-клиент для Keycloak (JWKS, Admin API, OIDC), с CA при HP_CA_CERT_PATH
	httpClientCA := &http.Client{Timeout: cfg.JWKSClientTimeout}
	if cfg.CACertPath != "" {
		httpClientCA, err = middleware.HTTPClientWithCA(cfg.CACertPath, cfg.JWKSClientTimeout)
		if err != nil {
			fatal(logger, "Ошибка загрузки CA-сертификата", err)
		}
		logger.Info("CA-сертификат загружен", slog.String("path", cfg.CACertPath))
	}

	// 6. Keycloak Admin API
	kcClient := keycloak.New(
		cfg.KeycloakURL,
		cfg.KeycloakRealm,
		cfg.KeycloakClientID,
		cfg.KeycloakClientSecret,
		httpClientCA,
		logger,
	).WithAttributeNames(cfg.ClaimRole, cfg.ClaimAdminFlag)
	logger.Info("Keycloak клиент создан",
		slog.String("url", cfg.KeycloakURL),
		slog.String("realm", cfg.KeycloakRealm),
	)

	// 7. Repositories
	userRepo := repository.NewUserRepository(pool)
	siteRepo := repository.NewSiteRepository(pool)
	projectRepo := repository.NewProjectRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	// 8. Services
	v := validate.New()
	roleWriter := service.NewRoleSyncWriter(userRepo, kcClient, v, logger)
	usersSvc := service.NewUserService(userRepo, roleWriter, logger)
	onboardingSvc := service.NewOnboardingService(userRepo, roleWriter, v, cfg.AdminEmailPatterns, logger)
	sitesSvc := service.NewSiteService(siteRepo, v, logger)
	projectsSvc := service.NewProjectService(projectRepo, v, logger)
	ticketsSvc := service.NewTicketService(ticketRepo, service.NewTicketTx(txRunner), v, logger)
	dashboardSvc := service.NewDashboardService(userRepo, siteRepo, projectRepo, ticketRepo)
	roleAttr, adminAttr := kcClient.AttributeNames()
	idpSvc := service.NewIDPService(
		kcClient, userRepo,
		cfg.KeycloakURL, cfg.KeycloakRealm,
		roleAttr, adminAttr,
		logger,
	)

	// 9. Readiness checkers
	pgChecker := database.NewReadinessChecker(pool)
	kcChecker := middleware.NewKeycloakReadinessChecker(cfg.JWTJWKSURL, httpClientCA, cfg.KeycloakReadinessTimeout)
	healthHandler := handlers.NewHealthHandler(pgChecker, kcChecker)

	// 10. API handler
	apiHandler := handlers.NewAPIHandler(healthHandler, handlers.Services{
		Users:      usersSvc,
		Onboarding: onboardingSvc,
		Sites:      sitesSvc,
		Projects:   projectsSvc,
		Tickets:    ticketsSvc,
		Dashboard:  dashboardSvc,
		IDP:        idpSvc,
	}, handlers.WebhookConfig{
		Secret:    cfg.WebhookSecret,
		Tolerance: cfg.WebhookTolerance,
	}, logger)
	if cfg.WebhookSecret == "" {
		logger.Warn("HP_WEBHOOK_SECRET не задан, вебхук IdP отклоняет все запросы")
	}

	// 11. JWT middleware
	claimNames := identity.ClaimNames{Role: cfg.ClaimRole, AdminFlag: cfg.ClaimAdminFlag}
	jwtAuth, err := middleware.NewJWTAuth(middleware.JWTOptions{
		JWKSURL:         cfg.JWTJWKSURL,
		Issuer:          cfg.JWTIssuer,
		RefreshInterval: cfg.JWKSRefreshInterval,
		Leeway:          cfg.JWTLeeway,
		Names:           claimNames,
	}, httpClientCA, logger)
	if err != nil {
		fatal(logger, "Ошибка создания JWT middleware", err)
	}
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)

	// 12. topologymetrics
	discoveryURL := ""
	if cfg.UIEnabled {
		discoveryURL = cfg.DiscoveryURL()
	}
	var dephealthSvc *service.DephealthService
	dephealthSvc, err = service.NewDephealthService(service.DephealthConfig{
		ServiceID:     "hostportal",
		Group:         cfg.DephealthGroup,
		DB:            pgDB,
		PostgresURL:   cfg.DatabaseURL(),
		JWKSURL:       cfg.JWTJWKSURL,
		DiscoveryURL:  discoveryURL,
		CheckInterval: cfg.DephealthCheckInterval,
		TLSSkipVerify: cfg.DephealthTLSSkipVerify,
	}, logger)
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
		dephealthSvc = nil
	} else if err := dephealthSvc.Start(ctx); err != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
	}

	// 13. UI
	var ui *server.UI
	if cfg.UIEnabled {
		ui, err = buildUI(ctx, cfg, logger, httpClientCA, claimNames, healthHandler, uihandlers.PortalServices{
			Users:      usersSvc,
			Onboarding: onboardingSvc,
			Sites:      sitesSvc,
			Tickets:    ticketsSvc,
			Dashboard:  dashboardSvc,
			Deps:       dependencyHealth(dephealthSvc),
		})
		if err != nil {
			fatal(logger, "Ошибка инициализации UI", err)
		}
	} else {
		logger.Info("UI отключён (HP_UI_ENABLED=false)")
	}

	// 14. HTTP-сервер
	doc, err := openapi.Spec()
	if err != nil {
		fatal(logger, "Ошибка загрузки OpenAPI", err)
	}
	srv, err := server.New(cfg, logger, server.Deps{
		API:            apiHandler,
		JWTAuth:        jwtAuth,
		OpenAPI:        doc,
		WebhookLimiter: middleware.NewIPRateLimiter(cfg.WebhookRate, cfg.WebhookBurst, webhookLimiterClients, webhookLimiterTTL, logger),
		UI:             ui,
	})
	if err != nil {
		fatal(logger, "Ошибка создания HTTP-сервера", err)
	}
	if err := srv.Run(); err != nil {
		fatal(logger, "Ошибка сервера", err)
	}

	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	logger.Info("Портал остановлен")
}

// buildUI создаёт OIDC-клиент, хранилище сессий, guard и обработчики страниц.
func buildUI(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	httpClient *http.Client,
	claimNames identity.ClaimNames,
	health *handlers.HealthHandler,
	portal uihandlers.PortalServices,
) (*server.UI, error) {
	secure := cfg.SecureCookie()

	oidcClient, err := auth.NewOIDCClient(ctx, auth.OIDCConfig{
		Issuer:       cfg.IssuerURL(),
		ClientID:     cfg.UIOIDCClientID,
		ClientSecret: cfg.UIOIDCClientSecret,
		RedirectURL:  cfg.OIDCRedirectURL(),
		HTTPClient:   httpClient,
		Timeout:      cfg.JWKSClientTimeout,
	})
	if err != nil {
		return nil, err
	}

	if cfg.UISessionSecret == "" {
		logger.Warn("HP_UI_SESSION_SECRET не задан, UI-сессии не переживут рестарт")
	}
	sealer, err := auth.NewSealer(cfg.UISessionSecret)
	if err != nil {
		return nil, err
	}

	var store auth.Store
	switch cfg.SessionBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		store = auth.NewRedisStore(client, sealer, cfg.SessionTTL, secure, logger)
		health.WithRedis(auth.NewRedisReadinessChecker(client))
		logger.Info("Сессии UI хранятся в Redis", slog.String("addr", cfg.RedisAddr))
	default:
		store = auth.NewCookieStore(sealer, cfg.SessionTTL, secure)
	}

	bundle, err := i18n.Load(logger)
	if err != nil {
		return nil, err
	}

	tracker := resolution.NewTracker(cfg.ResolutionMaxViews, cfg.ResolutionViewTTL)
	source := identity.NewOIDCSource(oidcClient.Provider(), oidcClient.HTTPClient(), claimNames, logger)
	if err := prometheus.Register(service.NewResolutionViewsGauge(tracker)); err != nil {
		return nil, fmt.Errorf("метрика просмотров: %w", err)
	}
	resolver := service.NewResolutionService(tracker, source, cfg.ResolutionTimeout, logger)
	policy, err := guard.NewPolicy(cfg.GuardSignInPath, cfg.GuardUserHome, cfg.GuardAdminHome).
		WithOverrides(cfg.GuardOverrides)
	if err != nil {
		return nil, fmt.Errorf("HP_GUARD_OVERRIDES: %w", err)
	}

	logger.Info("UI инициализирован",
		slog.String("oidc_client_id", cfg.UIOIDCClientID),
		slog.String("session_backend", cfg.SessionBackend),
		slog.Bool("secure_cookie", secure),
	)

	return &server.UI{
		Session: uimiddleware.NewUISession(store, oidcClient, logger),
		Guard:   uimiddleware.NewGuard(resolver, policy, cfg.GuardRenderTick, pages.Loading, logger),
		Auth:    uihandlers.NewAuthHandler(oidcClient, store, sealer, cfg.UIBaseURL, secure, logger),
		Portal:  uihandlers.NewPortalHandler(portal, logger),
		I18n:    bundle,
	}, nil
}

// dependencyHealth не даёт nil-указателю стать ненулевым интерфейсом.
func dependencyHealth(svc *service.DephealthService) uihandlers.DependencyHealth {
	if svc == nil {
		return nil
	}
	return svc
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, slog.String("error", err.Error()))
	os.Exit(1)
}
