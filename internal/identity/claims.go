// Пакет identity — чтение claims пользователя из Identity Provider.
// Сырые claims (нетипизированный JSON) проверяются и приводятся к
// rbac.ClaimsBundle на границе; некорректные claims — ErrMalformedClaims.
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/arturkryukov/hostportal/internal/domain/rbac"
	"github.com/arturkryukov/hostportal/internal/domain/resolution"
)

// Имена claims по умолчанию (атрибуты пользователя Keycloak, отображённые мапперами).
const (
	DefaultRoleClaim      = "portal_role"
	DefaultAdminFlagClaim = "portal_admin"
)

// ClaimsSource — источник claims по токену сессии.
type ClaimsSource interface {
	FetchClaims(ctx context.Context, accessToken string) (rbac.ClaimsBundle, error)
}

// SourceFunc — адаптер функции к ClaimsSource.
type SourceFunc func(ctx context.Context, accessToken string) (rbac.ClaimsBundle, error)

// FetchClaims вызывает f.
func (f SourceFunc) FetchClaims(ctx context.Context, accessToken string) (rbac.ClaimsBundle, error) {
	return f(ctx, accessToken)
}

// ClaimNames — имена claims роли и флага администратора.
type ClaimNames struct {
	Role      string
	AdminFlag string
}

// DefaultClaimNames возвращает имена claims по умолчанию.
func DefaultClaimNames() ClaimNames {
	return ClaimNames{Role: DefaultRoleClaim, AdminFlag: DefaultAdminFlagClaim}
}

// ParseClaims приводит сырые claims к ClaimsBundle.
//
//   - sub — обязательная непустая строка;
//   - claim роли — строка или отсутствует (null = отсутствует);
//   - флаг администратора — bool, строки "true"/"false" (атрибуты Keycloak)
//     или отсутствует.
//
// Любое другое значение — ErrMalformedClaims.
func ParseClaims(raw map[string]any, names ClaimNames) (rbac.ClaimsBundle, error) {
	var bundle rbac.ClaimsBundle

	sub, ok := raw["sub"].(string)
	if !ok || strings.TrimSpace(sub) == "" {
		return rbac.ClaimsBundle{}, fmt.Errorf("%w: отсутствует sub", resolution.ErrMalformedClaims)
	}
	bundle.UserID = sub

	if v, present := raw[names.Role]; present && v != nil {
		s, ok := v.(string)
		if !ok {
			return rbac.ClaimsBundle{}, fmt.Errorf("%w: %s должен быть строкой, получен %T",
				resolution.ErrMalformedClaims, names.Role, v)
		}
		bundle.RoleClaim = &s
	}

	if v, present := raw[names.AdminFlag]; present && v != nil {
		b, err := parseFlag(v)
		if err != nil {
			return rbac.ClaimsBundle{}, fmt.Errorf("%w: %s: %w", resolution.ErrMalformedClaims, names.AdminFlag, err)
		}
		bundle.AdminFlagClaim = &b
	}

	return bundle, nil
}

// parseFlag приводит значение флага к bool.
func parseFlag(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return false, fmt.Errorf("недопустимое значение %q", t)
	default:
		return false, fmt.Errorf("недопустимый тип %T", v)
	}
}

// OIDCSource — ClaimsSource поверх OIDC userinfo endpoint.
type OIDCSource struct {
	provider   *gooidc.Provider
	httpClient *http.Client
	names      ClaimNames
	logger     *slog.Logger
}

// NewOIDCSource создаёт источник claims для OIDC-провайдера.
// httpClient — клиент для userinfo (CA Keycloak); nil — http.DefaultClient.
func NewOIDCSource(provider *gooidc.Provider, httpClient *http.Client, names ClaimNames, logger *slog.Logger) *OIDCSource {
	return &OIDCSource{
		provider:   provider,
		httpClient: httpClient,
		names:      names,
		logger:     logger.With(slog.String("component", "identity")),
	}
}

// FetchClaims запрашивает userinfo по access token и приводит claims к ClaimsBundle.
// Ошибки транспорта и ответа IdP оборачивают ErrIdentitySourceUnavailable.
func (s *OIDCSource) FetchClaims(ctx context.Context, accessToken string) (rbac.ClaimsBundle, error) {
	if accessToken == "" {
		return rbac.ClaimsBundle{}, nil
	}
	if s.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	}

	ui, err := s.provider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
	if err != nil {
		return rbac.ClaimsBundle{}, fmt.Errorf("%w: userinfo: %w", resolution.ErrIdentitySourceUnavailable, err)
	}

	var raw map[string]any
	if err := ui.Claims(&raw); err != nil {
		return rbac.ClaimsBundle{}, fmt.Errorf("%w: декодирование userinfo: %w", resolution.ErrMalformedClaims, err)
	}

	bundle, err := ParseClaims(raw, s.names)
	if err != nil {
		s.logger.Warn("Некорректные claims в userinfo",
			slog.String("subject", ui.Subject),
			slog.String("error", err.Error()),
		)
		return rbac.ClaimsBundle{}, err
	}
	return bundle, nil
}
