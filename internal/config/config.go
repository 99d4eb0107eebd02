// Пакет config — загрузка и валидация конфигурации портала
// из переменных окружения (префикс HP_) и необязательного файла .env.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// EnvPrefix — префикс всех переменных окружения.
const EnvPrefix = "HP_"

// Config содержит все параметры конфигурации портала.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int `env:"PORT" envDefault:"8080"`
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"info"`
	// Формат логов (json, text)
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`

	// --- PostgreSQL ---

	DBHost     string `env:"DB_HOST,required"`
	DBPort     int    `env:"DB_PORT" envDefault:"5432"`
	DBName     string `env:"DB_NAME,required"`
	DBUser     string `env:"DB_USER,required"`
	DBPassword string `env:"DB_PASSWORD,required"`
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string `env:"DB_SSL_MODE" envDefault:"disable"`
	// Размер пула и время жизни соединения
	DBMaxConns        int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns        int32         `env:"DB_MIN_CONNS" envDefault:"1"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"1h"`

	// --- Keycloak ---

	// URL Keycloak (например, https://keycloak.hostco.example)
	KeycloakURL string `env:"KEYCLOAK_URL,required"`
	// Имя realm в Keycloak
	KeycloakRealm string `env:"KEYCLOAK_REALM" envDefault:"hostportal"`
	// Client ID для доступа к Keycloak Admin API (запись атрибутов роли)
	KeycloakClientID string `env:"KEYCLOAK_CLIENT_ID,required"`
	// Client Secret для доступа к Keycloak Admin API
	KeycloakClientSecret string `env:"KEYCLOAK_CLIENT_SECRET,required"`
	// Путь к CA-сертификату для TLS-соединений с Keycloak (опционально)
	CACertPath string `env:"CA_CERT_PATH"`

	// --- JWT (API) ---

	// Issuer JWT (авто-вычисляется из KeycloakURL, если не задан)
	JWTIssuer string `env:"JWT_ISSUER"`
	// URL JWKS endpoint (авто-вычисляется из KeycloakURL, если не задан)
	JWTJWKSURL string `env:"JWT_JWKS_URL"`
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration `env:"JWKS_CLIENT_TIMEOUT" envDefault:"10s"`
	// Интервал обновления ключей JWKS
	JWKSRefreshInterval time.Duration `env:"JWKS_REFRESH_INTERVAL" envDefault:"15m"`
	// Допустимое отклонение часов при проверке exp/nbf
	JWTLeeway time.Duration `env:"JWT_LEEWAY" envDefault:"5s"`
	// Таймаут проверки готовности Keycloak
	KeycloakReadinessTimeout time.Duration `env:"KEYCLOAK_READINESS_TIMEOUT" envDefault:"5s"`

	// --- Claims ---
	// Имена совпадают с атрибутами пользователя Keycloak (mapper "User Attribute").

	// Claim строковой роли
	ClaimRole string `env:"CLAIM_ROLE" envDefault:"portal_role"`
	// Claim флага администратора
	ClaimAdminFlag string `env:"CLAIM_ADMIN_FLAG" envDefault:"portal_admin"`

	// --- Разрешение роли и guard ---

	// Граница ожидания ответа IdP
	ResolutionTimeout time.Duration `env:"RESOLUTION_TIMEOUT" envDefault:"2s"`
	// Время жизни брошенного просмотра страницы
	ResolutionViewTTL time.Duration `env:"RESOLUTION_VIEW_TTL" envDefault:"2m"`
	// Максимум одновременно отслеживаемых просмотров
	ResolutionMaxViews int `env:"RESOLUTION_MAX_VIEWS" envDefault:"10000"`
	// Ожидание до показа заглушки загрузки
	GuardRenderTick time.Duration `env:"GUARD_RENDER_TICK" envDefault:"300ms"`
	// Адреса перенаправления
	GuardSignInPath string `env:"GUARD_SIGNIN_PATH" envDefault:"/portal/login"`
	GuardUserHome   string `env:"GUARD_USER_HOME" envDefault:"/portal/"`
	GuardAdminHome  string `env:"GUARD_ADMIN_HOME" envDefault:"/portal/admin"`
	// Явные адреса для пар ролей: "user>admin=/portal/forbidden,guest>user=/portal/welcome"
	GuardOverrides map[string]string `env:"GUARD_OVERRIDES" envSeparator:"," envKeyValSeparator:"="`

	// --- UI ---

	// Включить UI портала
	UIEnabled bool `env:"UI_ENABLED" envDefault:"true"`
	// Секрет шифрования сессий (пустой — случайный ключ при старте)
	UISessionSecret string `env:"UI_SESSION_SECRET"`
	// OIDC client для входа в UI
	UIOIDCClientID     string `env:"UI_OIDC_CLIENT_ID" envDefault:"hostportal-ui"`
	UIOIDCClientSecret string `env:"UI_OIDC_CLIENT_SECRET"`
	// Внешний адрес портала (для redirect_uri)
	UIBaseURL string `env:"UI_BASE_URL" envDefault:"http://localhost:8080"`
	// Хранилище сессий: cookie, redis
	SessionBackend string `env:"SESSION_BACKEND" envDefault:"cookie"`
	// Время жизни серверной сессии (redis)
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"8h"`

	// --- Redis (SESSION_BACKEND=redis) ---

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// --- Webhook IdP ---

	// Секрет HMAC-подписи (пустой — webhook отключён)
	WebhookSecret string `env:"WEBHOOK_SECRET"`
	// Допустимое расхождение времени подписи
	WebhookTolerance time.Duration `env:"WEBHOOK_TOLERANCE" envDefault:"5m"`
	// Лимит запросов в секунду на IP
	WebhookRate float64 `env:"WEBHOOK_RATE" envDefault:"5"`
	// Размер всплеска
	WebhookBurst int `env:"WEBHOOK_BURST" envDefault:"10"`
	// Glob-шаблоны email, дающие роль admin при регистрации (через запятую)
	AdminEmailPatterns []string `env:"ADMIN_EMAIL_PATTERNS" envSeparator:","`

	// --- topologymetrics ---

	DephealthGroup         string        `env:"DEPHEALTH_GROUP" envDefault:"hostportal"`
	DephealthCheckInterval time.Duration `env:"DEPHEALTH_CHECK_INTERVAL" envDefault:"15s"`
	// Не проверять TLS-сертификат Keycloak в проверках зависимостей (dev-стенды)
	DephealthTLSSkipVerify bool `env:"DEPHEALTH_TLS_SKIP_VERIFY" envDefault:"false"`
}

// Load загружает конфигурацию: .env (если есть), затем переменные окружения HP_*.
// Валидирует значения и вычисляет производные параметры.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("загрузка .env: %w", err)
		}
	}

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("разбор переменных окружения: %w", err)
	}

	cfg.KeycloakURL = strings.TrimRight(cfg.KeycloakURL, "/")
	cfg.UIBaseURL = strings.TrimRight(cfg.UIBaseURL, "/")
	cfg.AdminEmailPatterns = trimAll(cfg.AdminEmailPatterns)

	if cfg.JWTIssuer == "" {
		cfg.JWTIssuer = cfg.IssuerURL()
	}
	if cfg.JWTJWKSURL == "" {
		cfg.JWTJWKSURL = cfg.IssuerURL() + "/protocol/openid-connect/certs"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate проверяет диапазоны и допустимые значения.
func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("HP_PORT: значение %d вне допустимого диапазона 1-65535", c.Port)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("HP_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", c.LogFormat)
	}

	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[c.DBSSLMode] {
		return fmt.Errorf("HP_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", c.DBSSLMode)
	}

	if c.DBMaxConns < 1 {
		return fmt.Errorf("HP_DB_MAX_CONNS: значение %d должно быть >= 1", c.DBMaxConns)
	}
	if c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("HP_DB_MIN_CONNS: значение %d вне диапазона 0-%d", c.DBMinConns, c.DBMaxConns)
	}

	if _, err := url.ParseRequestURI(c.KeycloakURL); err != nil {
		return fmt.Errorf("HP_KEYCLOAK_URL: некорректный URL %q", c.KeycloakURL)
	}

	if c.SessionBackend != "cookie" && c.SessionBackend != "redis" {
		return fmt.Errorf("HP_SESSION_BACKEND: недопустимое значение %q, допустимые: cookie, redis", c.SessionBackend)
	}

	durations := []struct {
		name string
		val  time.Duration
	}{
		{"HP_SHUTDOWN_TIMEOUT", c.ShutdownTimeout},
		{"HP_DB_CONN_MAX_LIFETIME", c.DBConnMaxLifetime},
		{"HP_RESOLUTION_TIMEOUT", c.ResolutionTimeout},
		{"HP_RESOLUTION_VIEW_TTL", c.ResolutionViewTTL},
		{"HP_GUARD_RENDER_TICK", c.GuardRenderTick},
		{"HP_SESSION_TTL", c.SessionTTL},
		{"HP_WEBHOOK_TOLERANCE", c.WebhookTolerance},
		{"HP_DEPHEALTH_CHECK_INTERVAL", c.DephealthCheckInterval},
		{"HP_JWKS_CLIENT_TIMEOUT", c.JWKSClientTimeout},
		{"HP_JWKS_REFRESH_INTERVAL", c.JWKSRefreshInterval},
		{"HP_KEYCLOAK_READINESS_TIMEOUT", c.KeycloakReadinessTimeout},
	}
	for _, d := range durations {
		if d.val <= 0 {
			return fmt.Errorf("%s: длительность должна быть положительной, получено %s", d.name, d.val)
		}
	}

	if c.JWTLeeway < 0 {
		return fmt.Errorf("HP_JWT_LEEWAY: длительность не может быть отрицательной, получено %s", c.JWTLeeway)
	}

	if c.ResolutionViewTTL < c.ResolutionTimeout {
		return fmt.Errorf("HP_RESOLUTION_VIEW_TTL (%s) не может быть меньше HP_RESOLUTION_TIMEOUT (%s)",
			c.ResolutionViewTTL, c.ResolutionTimeout)
	}
	if c.ResolutionMaxViews < 1 {
		return fmt.Errorf("HP_RESOLUTION_MAX_VIEWS: значение %d должно быть >= 1", c.ResolutionMaxViews)
	}

	for name, p := range map[string]string{
		"HP_GUARD_SIGNIN_PATH": c.GuardSignInPath,
		"HP_GUARD_USER_HOME":   c.GuardUserHome,
		"HP_GUARD_ADMIN_HOME":  c.GuardAdminHome,
	} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("%s: путь должен начинаться с '/', получено %q", name, p)
		}
	}
	for pair, p := range c.GuardOverrides {
		if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") {
			return fmt.Errorf("HP_GUARD_OVERRIDES: %s: нужен локальный путь, получено %q", pair, p)
		}
	}

	if c.WebhookRate <= 0 {
		return fmt.Errorf("HP_WEBHOOK_RATE: значение %v должно быть положительным", c.WebhookRate)
	}
	if c.WebhookBurst < 1 {
		return fmt.Errorf("HP_WEBHOOK_BURST: значение %d должно быть >= 1", c.WebhookBurst)
	}

	return nil
}

// IssuerURL возвращает OIDC issuer realm.
func (c *Config) IssuerURL() string {
	return fmt.Sprintf("%s/realms/%s", c.KeycloakURL, c.KeycloakRealm)
}

// OIDCRedirectURL возвращает redirect_uri для Authorization Code flow.
func (c *Config) OIDCRedirectURL() string {
	return c.UIBaseURL + "/portal/callback"
}

// DiscoveryURL возвращает адрес OIDC discovery realm.
func (c *Config) DiscoveryURL() string {
	return c.IssuerURL() + "/.well-known/openid-configuration"
}

// SecureCookie — true, если портал доступен по https.
func (c *Config) SecureCookie() bool {
	return strings.HasPrefix(c.UIBaseURL, "https")
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для меток topologymetrics).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s", c.DBUser, c.DBHost, c.DBPort, c.DBName)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// trimAll убирает пробелы вокруг элементов и пустые элементы.
func trimAll(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	result := make([]string, 0, len(items))
	for _, p := range items {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
