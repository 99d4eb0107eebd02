// auth.go — JWT middleware API портала.
// Подпись проверяется по JWKS Keycloak, claims роли приводятся к ClaimsBundle
// и разрешаются в роль тем же правилом, что и для страниц UI.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/arturkryukov/hostportal/internal/api/errors"
	"github.com/arturkryukov/hostportal/internal/domain/rbac"
	"github.com/arturkryukov/hostportal/internal/identity"
)

type claimsKey struct{}

// AuthClaims — субъект запроса API.
type AuthClaims struct {
	Subject           string
	PreferredUsername string
	Email             string
	// Bundle — сигналы роли из токена.
	Bundle rbac.ClaimsBundle
	// Role — роль, разрешённая из Bundle.
	Role rbac.Role
}

// HasRole — роль субъекта не ниже required.
func (c *AuthClaims) HasRole(required rbac.Role) bool {
	return rbac.AtLeast(c.Role, required)
}

// JWTOptions — параметры проверки токенов.
type JWTOptions struct {
	JWKSURL string
	// Issuer — ожидаемый iss; пустой — не проверяется.
	Issuer          string
	RefreshInterval time.Duration
	Leeway          time.Duration
	Names           identity.ClaimNames
}

// JWTAuth — аутентификация API по Bearer JWT.
type JWTAuth struct {
	keys   keyfunc.Keyfunc
	parser *jwt.Parser
	names  identity.ClaimNames
	logger *slog.Logger
}

// NewJWTAuth загружает JWKS в фоне: недоступный при старте Keycloak не мешает запуску,
// ключи подтянутся при следующем обновлении. client может нести CA (nil — клиент по умолчанию).
func NewJWTAuth(opts JWTOptions, client *http.Client, logger *slog.Logger) (*JWTAuth, error) {
	if client == nil {
		client = http.DefaultClient
	}
	logger = logger.With(slog.String("component", "jwt_auth"))

	storage, err := jwkset.NewStorageFromHTTP(opts.JWKSURL, jwkset.HTTPClientStorageOptions{
		Client:                    client,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           opts.RefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Не удалось обновить JWKS",
				slog.String("url", opts.JWKSURL),
				slog.String("error", err.Error()),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("JWKS storage: %w", err)
	}

	kf, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("keyfunc: %w", err)
	}

	return newJWTAuth(kf, opts, logger), nil
}

func newJWTAuth(kf keyfunc.Keyfunc, opts JWTOptions, logger *slog.Logger) *JWTAuth {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(opts.Leeway),
	}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	return &JWTAuth{
		keys:   kf,
		parser: jwt.NewParser(parserOpts...),
		names:  opts.Names,
		logger: logger,
	}
}

var (
	errNoAuthHeader = errors.New("отсутствует заголовок Authorization")
	errNotBearer    = errors.New("неверный формат Authorization: ожидается Bearer <token>")
	errEmptyToken   = errors.New("пустой Bearer token")
)

// bearerToken извлекает токен из заголовка Authorization.
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errNoAuthHeader
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errNotBearer
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", errEmptyToken
	}
	return token, nil
}

// Middleware проверяет токен и кладёт AuthClaims в контекст.
// Некорректные claims роли не отклоняют запрос: роль опускается до guest.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := bearerToken(r)
			if err != nil {
				apierrors.Unauthorized(w, err.Error())
				return
			}

			mc := jwt.MapClaims{}
			if _, err := j.parser.ParseWithClaims(raw, mc, j.keys.KeyfuncCtx(r.Context())); err != nil {
				j.logger.Debug("Токен отклонён",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			sub, _ := mc.GetSubject()
			if sub == "" {
				apierrors.Unauthorized(w, "Отсутствует sub в токене")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), j.claims(sub, mc))))
		})
	}
}

func (j *JWTAuth) claims(sub string, mc jwt.MapClaims) *AuthClaims {
	c := &AuthClaims{Subject: sub, Role: rbac.RoleGuest, Bundle: rbac.ClaimsBundle{UserID: sub}}
	c.PreferredUsername, _ = mc["preferred_username"].(string)
	c.Email, _ = mc["email"].(string)

	bundle, err := identity.ParseClaims(mc, j.names)
	if err != nil {
		j.logger.Warn("Некорректные claims роли, роль — guest",
			slog.String("user_id", sub),
			slog.String("error", err.Error()),
		)
		return c
	}
	c.Bundle = bundle
	c.Role = rbac.Resolve(bundle)
	return c
}

// ClaimsFromContext возвращает claims запроса или nil.
func ClaimsFromContext(ctx context.Context) *AuthClaims {
	c, _ := ctx.Value(claimsKey{}).(*AuthClaims)
	return c
}

// WithClaims помещает claims в контекст.
func WithClaims(ctx context.Context, c *AuthClaims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}
