// health.go — liveness, readiness и /metrics портала.
// Readiness опрашивает зависимости параллельно: PostgreSQL, Keycloak
// и Redis сессий, если выбран этот backend.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/arturkryukov/hostportal/internal/config"
)

const serviceName = "hostportal"

// ReadinessChecker — проверка одной зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady() (status string, message string)
}

type namedChecker struct {
	name    string
	checker ReadinessChecker
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	deps    []namedChecker
	metrics http.Handler
}

// NewHealthHandler создаёт обработчик. nil-проверка даёт "fail" для своей зависимости.
func NewHealthHandler(pgChecker, kcChecker ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		deps: []namedChecker{
			{name: "postgresql", checker: pgChecker},
			{name: "keycloak", checker: kcChecker},
		},
		metrics: promhttp.Handler(),
	}
}

// WithRedis добавляет проверку Redis (HP_SESSION_BACKEND=redis).
func (h *HealthHandler) WithRedis(checker ReadinessChecker) *HealthHandler {
	h.deps = append(h.deps, namedChecker{name: "redis", checker: checker})
	return h
}

type checkResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Version   string                 `json:"version"`
	Service   string                 `json:"service"`
	Checks    map[string]checkResult `json:"checks,omitempty"`
}

func newHealthResponse(status string) healthResponse {
	return healthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	}
}

// HealthLive — процесс жив, зависимости не проверяются.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, newHealthResponse("ok"))
}

// HealthReady — 200 при ok/degraded, 503 при fail любой зависимости.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	results := make([]checkResult, len(h.deps))

	var g errgroup.Group
	for i, d := range h.deps {
		g.Go(func() error {
			if d.checker == nil {
				results[i] = checkResult{Status: "fail", Message: "не инициализирован"}
				return nil
			}
			status, msg := d.checker.CheckReady()
			results[i] = checkResult{Status: status, Message: msg}
			return nil
		})
	}
	_ = g.Wait()

	resp := newHealthResponse("")
	resp.Checks = make(map[string]checkResult, len(h.deps))
	statuses := make([]string, len(results))
	for i, d := range h.deps {
		resp.Checks[d.name] = results[i]
		statuses[i] = results[i].Status
	}
	resp.Status = overallStatus(statuses...)

	writeHealth(w, resp)
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.ServeHTTP(w, r)
}

func writeHealth(w http.ResponseWriter, resp healthResponse) {
	code := http.StatusOK
	if resp.Status == "fail" {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

// overallStatus: fail сильнее degraded, degraded сильнее ok.
func overallStatus(statuses ...string) string {
	result := "ok"
	for _, s := range statuses {
		switch s {
		case "fail":
			return "fail"
		case "degraded":
			result = "degraded"
		}
	}
	return result
}
