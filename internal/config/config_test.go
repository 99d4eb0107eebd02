package config

import (
	"context"
	"log/slog"
	"os"
	"reflect"
	"testing"
	"time"
)

// setEnvs устанавливает переменные окружения на время теста.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

// minimalEnvs возвращает минимальный набор обязательных переменных.
func minimalEnvs() map[string]string {
	return map[string]string{
		"HP_DB_HOST":                "localhost",
		"HP_DB_NAME":                "hostportal",
		"HP_DB_USER":                "hostportal",
		"HP_DB_PASSWORD":            "secret",
		"HP_KEYCLOAK_URL":           "https://keycloak.hostco.example",
		"HP_KEYCLOAK_CLIENT_ID":     "hostportal-admin",
		"HP_KEYCLOAK_CLIENT_SECRET": "kc-secret",
	}
}

// loadWith очищает обязательные переменные, выставляет envs и вызывает Load.
func loadWith(t *testing.T, envs map[string]string) (*Config, error) {
	t.Helper()
	for k := range minimalEnvs() {
		os.Unsetenv(k)
	}
	setEnvs(t, envs)
	return Load()
}

func TestLoad_MinimalConfig(t *testing.T) {
	cfg, err := loadWith(t, minimalEnvs())
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	// Проверяем значения по умолчанию
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, ожидается 8080", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, ожидается Info", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, ожидается json", cfg.LogFormat)
	}
	if cfg.DBPort != 5432 {
		t.Errorf("DBPort = %d, ожидается 5432", cfg.DBPort)
	}
	if cfg.DBSSLMode != "disable" {
		t.Errorf("DBSSLMode = %q, ожидается disable", cfg.DBSSLMode)
	}
	if cfg.DBMaxConns != 10 || cfg.DBMinConns != 1 || cfg.DBConnMaxLifetime != time.Hour {
		t.Errorf("пул = %d/%d/%v, ожидается 10/1/1h", cfg.DBMaxConns, cfg.DBMinConns, cfg.DBConnMaxLifetime)
	}
	if cfg.KeycloakRealm != "hostportal" {
		t.Errorf("KeycloakRealm = %q, ожидается hostportal", cfg.KeycloakRealm)
	}
	if cfg.ClaimRole != "portal_role" || cfg.ClaimAdminFlag != "portal_admin" {
		t.Errorf("claims = %q/%q, ожидаются portal_role/portal_admin", cfg.ClaimRole, cfg.ClaimAdminFlag)
	}
	if cfg.ResolutionTimeout != 2*time.Second {
		t.Errorf("ResolutionTimeout = %v, ожидается 2s", cfg.ResolutionTimeout)
	}
	if cfg.ResolutionViewTTL != 2*time.Minute {
		t.Errorf("ResolutionViewTTL = %v, ожидается 2m", cfg.ResolutionViewTTL)
	}
	if cfg.ResolutionMaxViews != 10000 {
		t.Errorf("ResolutionMaxViews = %d, ожидается 10000", cfg.ResolutionMaxViews)
	}
	if cfg.GuardRenderTick != 300*time.Millisecond {
		t.Errorf("GuardRenderTick = %v, ожидается 300ms", cfg.GuardRenderTick)
	}
	if cfg.GuardSignInPath != "/portal/login" || cfg.GuardUserHome != "/portal/" || cfg.GuardAdminHome != "/portal/admin" {
		t.Errorf("guard paths = %q %q %q", cfg.GuardSignInPath, cfg.GuardUserHome, cfg.GuardAdminHome)
	}
	if cfg.SessionBackend != "cookie" {
		t.Errorf("SessionBackend = %q, ожидается cookie", cfg.SessionBackend)
	}
	if cfg.WebhookTolerance != 5*time.Minute {
		t.Errorf("WebhookTolerance = %v, ожидается 5m", cfg.WebhookTolerance)
	}
	if cfg.WebhookBurst != 10 || cfg.WebhookRate != 5 {
		t.Errorf("webhook limiter = %v/%d, ожидается 5/10", cfg.WebhookRate, cfg.WebhookBurst)
	}
	if cfg.AdminEmailPatterns != nil {
		t.Errorf("AdminEmailPatterns = %v, ожидается nil", cfg.AdminEmailPatterns)
	}
	if cfg.DephealthCheckInterval != 15*time.Second {
		t.Errorf("DephealthCheckInterval = %v, ожидается 15s", cfg.DephealthCheckInterval)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, ожидается 5s", cfg.ShutdownTimeout)
	}
	if !cfg.UIEnabled {
		t.Error("UIEnabled = false, ожидается true")
	}
}

func TestLoad_JWTAutoDerive(t *testing.T) {
	cfg, err := loadWith(t, minimalEnvs())
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	wantIssuer := "https://keycloak.hostco.example/realms/hostportal"
	if cfg.JWTIssuer != wantIssuer {
		t.Errorf("JWTIssuer = %q, ожидается %q", cfg.JWTIssuer, wantIssuer)
	}
	wantJWKS := wantIssuer + "/protocol/openid-connect/certs"
	if cfg.JWTJWKSURL != wantJWKS {
		t.Errorf("JWTJWKSURL = %q, ожидается %q", cfg.JWTJWKSURL, wantJWKS)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	envs := minimalEnvs()
	envs["HP_PORT"] = "9090"
	envs["HP_LOG_LEVEL"] = "debug"
	envs["HP_LOG_FORMAT"] = "text"
	envs["HP_KEYCLOAK_REALM"] = "customers"
	envs["HP_JWT_ISSUER"] = "https://idp.example/realms/x"
	envs["HP_CLAIM_ROLE"] = "hosting_role"
	envs["HP_RESOLUTION_TIMEOUT"] = "1500ms"
	envs["HP_SESSION_BACKEND"] = "redis"
	envs["HP_REDIS_ADDR"] = "redis:6379"
	envs["HP_REDIS_DB"] = "2"
	envs["HP_ADMIN_EMAIL_PATTERNS"] = "*@hostco.example, ops-*@partner.example ,"
	envs["HP_WEBHOOK_RATE"] = "0.5"
	envs["HP_UI_BASE_URL"] = "https://portal.hostco.example/"

	cfg, err := loadWith(t, envs)
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, ожидается 9090", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, ожидается Debug", cfg.LogLevel)
	}
	if cfg.LogFormat != "text" {
		t.Errorf("LogFormat = %q, ожидается text", cfg.LogFormat)
	}
	if cfg.JWTIssuer != "https://idp.example/realms/x" {
		t.Errorf("JWTIssuer = %q, явное значение не должно перезаписываться", cfg.JWTIssuer)
	}
	if cfg.JWTJWKSURL != "https://keycloak.hostco.example/realms/customers/protocol/openid-connect/certs" {
		t.Errorf("JWTJWKSURL = %q", cfg.JWTJWKSURL)
	}
	if cfg.ClaimRole != "hosting_role" {
		t.Errorf("ClaimRole = %q, ожидается hosting_role", cfg.ClaimRole)
	}
	if cfg.ResolutionTimeout != 1500*time.Millisecond {
		t.Errorf("ResolutionTimeout = %v, ожидается 1.5s", cfg.ResolutionTimeout)
	}
	if cfg.SessionBackend != "redis" || cfg.RedisAddr != "redis:6379" || cfg.RedisDB != 2 {
		t.Errorf("redis = %q %q %d", cfg.SessionBackend, cfg.RedisAddr, cfg.RedisDB)
	}
	wantPatterns := []string{"*@hostco.example", "ops-*@partner.example"}
	if !reflect.DeepEqual(cfg.AdminEmailPatterns, wantPatterns) {
		t.Errorf("AdminEmailPatterns = %#v, ожидается %#v", cfg.AdminEmailPatterns, wantPatterns)
	}
	if cfg.WebhookRate != 0.5 {
		t.Errorf("WebhookRate = %v, ожидается 0.5", cfg.WebhookRate)
	}
	if cfg.OIDCRedirectURL() != "https://portal.hostco.example/portal/callback" {
		t.Errorf("OIDCRedirectURL() = %q", cfg.OIDCRedirectURL())
	}
	if !cfg.SecureCookie() {
		t.Error("SecureCookie() = false для https")
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	for missing := range minimalEnvs() {
		t.Run(missing, func(t *testing.T) {
			envs := minimalEnvs()
			delete(envs, missing)

			if _, err := loadWith(t, envs); err == nil {
				t.Errorf("Load() не вернул ошибку при отсутствии %s", missing)
			}
		})
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"HP_PORT", "0"},
		{"HP_PORT", "70000"},
		{"HP_PORT", "abc"},
		{"HP_LOG_LEVEL", "verbose"},
		{"HP_LOG_FORMAT", "xml"},
		{"HP_DB_SSL_MODE", "prefer"},
		{"HP_DB_MAX_CONNS", "0"},
		{"HP_DB_MIN_CONNS", "20"},
		{"HP_DB_CONN_MAX_LIFETIME", "0s"},
		{"HP_KEYCLOAK_URL", "keycloak"},
		{"HP_SESSION_BACKEND", "memcached"},
		{"HP_RESOLUTION_TIMEOUT", "abc"},
		{"HP_RESOLUTION_TIMEOUT", "0s"},
		{"HP_RESOLUTION_VIEW_TTL", "1s"},
		{"HP_RESOLUTION_MAX_VIEWS", "0"},
		{"HP_GUARD_RENDER_TICK", "-1s"},
		{"HP_GUARD_SIGNIN_PATH", "portal/login"},
		{"HP_GUARD_OVERRIDES", "user>admin=//evil.example"},
		{"HP_GUARD_OVERRIDES", "user>admin=https://evil.example"},
		{"HP_WEBHOOK_RATE", "0"},
		{"HP_WEBHOOK_BURST", "0"},
		{"HP_UI_ENABLED", "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			envs := minimalEnvs()
			envs[tt.key] = tt.value

			if _, err := loadWith(t, envs); err == nil {
				t.Errorf("Load() не вернул ошибку при %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestLoad_GuardOverrides(t *testing.T) {
	envs := minimalEnvs()
	envs["HP_GUARD_OVERRIDES"] = "user>admin=/portal/forbidden,guest>user=/portal/welcome"

	cfg, err := loadWith(t, envs)
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}
	want := map[string]string{"user>admin": "/portal/forbidden", "guest>user": "/portal/welcome"}
	if len(cfg.GuardOverrides) != len(want) {
		t.Fatalf("GuardOverrides = %v, ожидается %v", cfg.GuardOverrides, want)
	}
	for k, v := range want {
		if cfg.GuardOverrides[k] != v {
			t.Errorf("GuardOverrides[%q] = %q, ожидается %q", k, cfg.GuardOverrides[k], v)
		}
	}
}

func TestLoad_KeycloakURLTrailingSlash(t *testing.T) {
	envs := minimalEnvs()
	envs["HP_KEYCLOAK_URL"] = "https://keycloak.hostco.example/"

	cfg, err := loadWith(t, envs)
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}
	if cfg.KeycloakURL != "https://keycloak.hostco.example" {
		t.Errorf("KeycloakURL = %q, ожидается без trailing slash", cfg.KeycloakURL)
	}
}

func TestDatabaseDSN(t *testing.T) {
	cfg := &Config{
		DBHost:     "db.example.com",
		DBPort:     5432,
		DBName:     "hostportal",
		DBUser:     "user",
		DBPassword: "pass",
		DBSSLMode:  "disable",
	}
	expected := "host=db.example.com port=5432 dbname=hostportal user=user password=pass sslmode=disable"
	if dsn := cfg.DatabaseDSN(); dsn != expected {
		t.Errorf("DatabaseDSN() = %q, ожидается %q", dsn, expected)
	}
	if u := cfg.DatabaseURL(); u != "postgres://user@db.example.com:5432/hostportal" {
		t.Errorf("DatabaseURL() = %q", u)
	}
}

func TestSetupLogger(t *testing.T) {
	for _, format := range []string{"json", "text"} {
		t.Run(format, func(t *testing.T) {
			cfg := &Config{LogLevel: slog.LevelWarn, LogFormat: format}
			logger := SetupLogger(cfg)
			if logger == nil {
				t.Fatal("SetupLogger() вернул nil")
			}
			if logger.Enabled(context.Background(), slog.LevelInfo) {
				t.Error("уровень Info не должен быть включён при LevelWarn")
			}
		})
	}
}
