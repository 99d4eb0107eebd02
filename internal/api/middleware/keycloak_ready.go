package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/MicahParks/jwkset"
)

// KeycloakReadinessChecker проверяет Keycloak по его JWKS endpoint:
// без ключей подписи API не примет ни одного токена.
type KeycloakReadinessChecker struct {
	jwksURL string
	client  *http.Client
	timeout time.Duration
}

// NewKeycloakReadinessChecker создаёт проверку. client может нести CA (nil — клиент по умолчанию),
// timeout — HP_KEYCLOAK_READINESS_TIMEOUT.
func NewKeycloakReadinessChecker(jwksURL string, client *http.Client, timeout time.Duration) *KeycloakReadinessChecker {
	return &KeycloakReadinessChecker{
		jwksURL: jwksURL,
		client:  withTimeout(client, timeout),
		timeout: timeout,
	}
}

// CheckReady: недоступен или не 200 — fail, ответ без ключей — degraded.
func (k *KeycloakReadinessChecker) CheckReady() (status, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), k.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.jwksURL, http.NoBody)
	if err != nil {
		return "fail", "запрос JWKS: " + err.Error()
	}
	resp, err := k.client.Do(req) //nolint:gosec // URL из конфигурации
	if err != nil {
		return "fail", fmt.Sprintf("JWKS недоступен: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "fail", fmt.Sprintf("JWKS вернул статус %d", resp.StatusCode)
	}

	var set jwkset.JWKSMarshal
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return "degraded", fmt.Sprintf("JWKS не разобран: %v", err)
	}
	if len(set.Keys) == 0 {
		return "degraded", "JWKS без ключей"
	}
	return "ok", fmt.Sprintf("ключей в JWKS: %d", len(set.Keys))
}
