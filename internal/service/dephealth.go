// dephealth.go — мониторинг зависимостей портала через topologymetrics SDK.
//
// Зависимости:
//   - PostgreSQL — SQL checker через pgxpool (connection pool mode, critical);
//   - Keycloak JWKS — проверка подписи токенов API (critical);
//   - Keycloak OIDC discovery — вход в UI (не critical, только при включённом UI).
//
// Метрики публикуются на /metrics: app_dependency_health, app_dependency_latency_seconds,
// app_dependency_status, app_dependency_status_detail.
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"net/url"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // HTTP checker для Keycloak
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"     // PostgreSQL checker (pool mode)
	"github.com/prometheus/client_golang/prometheus"
)

// DephealthConfig — параметры мониторинга зависимостей.
type DephealthConfig struct {
	// ServiceID — имя вершины графа ("hostportal").
	ServiceID string
	// Group — группа в метриках (HP_DEPHEALTH_GROUP).
	Group string
	// DB — *sql.DB поверх pgxpool (stdlib.OpenDBFromPool).
	DB *sql.DB
	// PostgresURL — URL PostgreSQL для лейблов, не для подключения.
	PostgresURL string
	// JWKSURL — JWKS endpoint realm.
	JWKSURL string
	// DiscoveryURL — OIDC discovery realm; пусто — UI выключен, не проверяется.
	DiscoveryURL string
	// CheckInterval — интервал проверки (HP_DEPHEALTH_CHECK_INTERVAL).
	CheckInterval time.Duration
	// TLSSkipVerify — не проверять сертификат Keycloak (dev-стенды).
	TLSSkipVerify bool
	// Registerer — Prometheus registerer; nil — глобальный.
	Registerer prometheus.Registerer
}

// DephealthService — сервис мониторинга зависимостей.
type DephealthService struct {
	dh     *dephealth.DepHealth
	deps   []string
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
func NewDephealthService(cfg DephealthConfig, logger *slog.Logger) (*DephealthService, error) {
	deps := []string{"postgresql", "keycloak-jwks"}

	opts := []dephealth.Option{
		dephealth.WithLogger(logger),
		// pgcheck.New + AddDependency напрямую, без contrib/sqldb и его MySQL-зависимости
		dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(cfg.DB)),
			dephealth.FromURL(cfg.PostgresURL),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(true),
		),
		dephealth.HTTP("keycloak-jwks",
			dephealth.FromURL(cfg.JWKSURL),
			dephealth.WithHTTPHealthPath(healthPath(cfg.JWKSURL)),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(true),
			dephealth.WithHTTPTLSSkipVerify(cfg.TLSSkipVerify),
		),
	}

	if cfg.DiscoveryURL != "" {
		deps = append(deps, "keycloak-oidc")
		opts = append(opts, dephealth.HTTP("keycloak-oidc",
			dephealth.FromURL(cfg.DiscoveryURL),
			dephealth.WithHTTPHealthPath(healthPath(cfg.DiscoveryURL)),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(false),
			dephealth.WithHTTPTLSSkipVerify(cfg.TLSSkipVerify),
		))
	}

	if cfg.Registerer != nil {
		opts = append(opts, dephealth.WithRegisterer(cfg.Registerer))
	}

	dh, err := dephealth.New(cfg.ServiceID, cfg.Group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		deps:   deps,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// healthPath возвращает path URL для HTTP-проверки.
// /health у Keycloak доступен только на management-порту, поэтому проверяется сам endpoint realm.
func healthPath(rawURL string) string {
	if parsed, err := url.Parse(rawURL); err == nil && parsed.Path != "" {
		return parsed.Path
	}
	return "/health"
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен", slog.Any("dependencies", ds.deps))
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей (true — ok).
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
