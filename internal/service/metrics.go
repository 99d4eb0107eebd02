// metrics.go — Prometheus метрики сервисного слоя.
package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arturkryukov/hostportal/internal/domain/resolution"
)

var (
	// roleSyncTotal — исходы двойной записи роли: ok, partial, failed, invalid.
	roleSyncTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hp_role_sync_total",
			Help: "Количество попыток синхронизации роли (БД + Keycloak) по исходу",
		},
		[]string{"result"},
	)

	// resolutionTotal — исходы разрешения роли просмотра: resolved, timeout, unavailable, malformed.
	resolutionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hp_resolution_total",
			Help: "Количество разрешений роли для просмотров страниц по исходу",
		},
		[]string{"outcome"},
	)

	// onboardingTotal — события user.created: created, duplicate, failed.
	onboardingTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hp_onboarding_events_total",
			Help: "Количество обработанных событий регистрации пользователей",
		},
		[]string{"result"},
	)
)

// NewResolutionViewsGauge — число просмотров, которые сейчас отслеживает tracker.
// Регистрируется один раз при сборке UI.
func NewResolutionViewsGauge(tracker *resolution.Tracker) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "hp_resolution_views",
			Help: "Количество отслеживаемых просмотров страниц с разрешением роли",
		},
		func() float64 { return float64(tracker.Len()) },
	)
}
