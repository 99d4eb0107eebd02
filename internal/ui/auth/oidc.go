// oidc.go — вход в UI портала через Keycloak: Authorization Code Flow с PKCE.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// ErrNonceMismatch — nonce в id_token не совпал с выданным при входе.
var ErrNonceMismatch = errors.New("nonce id_token не совпадает")

// OIDCConfig — параметры OIDC-клиента UI.
type OIDCConfig struct {
	// Issuer — URL realm Keycloak.
	Issuer   string
	ClientID string
	// ClientSecret — пусто для public client.
	ClientSecret string
	RedirectURL  string
	// Scopes — по умолчанию openid profile email.
	Scopes []string
	// HTTPClient — nil: клиент с Timeout.
	HTTPClient *http.Client
	Timeout    time.Duration
}

// OIDCClient выполняет вход, обновление токенов и выход.
type OIDCClient struct {
	provider   *gooidc.Provider
	verifier   *gooidc.IDTokenVerifier
	oauth      *oauth2.Config
	httpClient *http.Client
	endSession string
}

// LoginFlow — одноразовые параметры входа, живут в cookie до callback.
type LoginFlow struct {
	State    string `json:"state"`
	Verifier string `json:"verifier"`
	Nonce    string `json:"nonce"`
	// ReturnTo — страница, на которую вернуть пользователя.
	ReturnTo string `json:"return_to,omitempty"`
}

// NewOIDCClient загружает discovery-документ realm и создаёт клиент.
func NewOIDCClient(ctx context.Context, cfg OIDCConfig) (*OIDCClient, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("не задан client_id")
	}
	if cfg.RedirectURL == "" {
		return nil, errors.New("не задан redirect_uri")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	// Контекст провайдера используется и для загрузки JWKS при проверке id_token.
	providerCtx := context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, httpClient)
	provider, err := gooidc.NewProvider(providerCtx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки OIDC discovery: %w", err)
	}

	var extra struct {
		EndSession string `json:"end_session_endpoint"`
	}
	if err := provider.Claims(&extra); err != nil {
		return nil, fmt.Errorf("ошибка разбора OIDC discovery: %w", err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{gooidc.ScopeOpenID, "profile", "email"}
	}

	return &OIDCClient{
		provider: provider,
		verifier: provider.Verifier(&gooidc.Config{ClientID: cfg.ClientID}),
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     provider.Endpoint(),
		},
		httpClient: httpClient,
		endSession: extra.EndSession,
	}, nil
}

// Provider возвращает OIDC-провайдер realm (userinfo для разрешения ролей).
func (c *OIDCClient) Provider() *gooidc.Provider {
	return c.provider
}

// HTTPClient — клиент, через который идут запросы к Keycloak.
func (c *OIDCClient) HTTPClient() *http.Client {
	return c.httpClient
}

// NewLoginFlow генерирует state, nonce и PKCE verifier.
func NewLoginFlow(returnTo string) (*LoginFlow, error) {
	state, err := randomToken()
	if err != nil {
		return nil, err
	}
	nonce, err := randomToken()
	if err != nil {
		return nil, err
	}
	return &LoginFlow{
		State:    state,
		Verifier: oauth2.GenerateVerifier(),
		Nonce:    nonce,
		ReturnTo: returnTo,
	}, nil
}

// AuthCodeURL возвращает адрес страницы входа Keycloak.
func (c *OIDCClient) AuthCodeURL(flow *LoginFlow) string {
	return c.oauth.AuthCodeURL(flow.State,
		oauth2.S256ChallengeOption(flow.Verifier),
		gooidc.Nonce(flow.Nonce),
	)
}

// Exchange обменивает code на токены, проверяет id_token и nonce.
// Возвращает сессию без ID.
func (c *OIDCClient) Exchange(ctx context.Context, code string, flow *LoginFlow) (*SessionData, error) {
	if code == "" {
		return nil, errors.New("пустой authorization code")
	}

	ctx = c.clientContext(ctx)
	tok, err := c.oauth.Exchange(ctx, code, oauth2.VerifierOption(flow.Verifier))
	if err != nil {
		return nil, fmt.Errorf("ошибка обмена code на токены: %w", err)
	}

	rawID, ok := tok.Extra("id_token").(string)
	if !ok || rawID == "" {
		return nil, errors.New("в ответе нет id_token")
	}
	idTok, err := c.verifier.Verify(ctx, rawID)
	if err != nil {
		return nil, fmt.Errorf("ошибка проверки id_token: %w", err)
	}
	if idTok.Nonce != flow.Nonce {
		return nil, ErrNonceMismatch
	}

	var profile struct {
		PreferredUsername string `json:"preferred_username"`
		Email             string `json:"email"`
	}
	if err := idTok.Claims(&profile); err != nil {
		return nil, fmt.Errorf("ошибка разбора id_token: %w", err)
	}

	return &SessionData{
		Subject:      idTok.Subject,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		IDToken:      rawID,
		ExpiresAt:    expiry(tok),
		Username:     profile.PreferredUsername,
		Email:        profile.Email,
	}, nil
}

// Refresh обновляет токены сессии по refresh token.
func (c *OIDCClient) Refresh(ctx context.Context, sess *SessionData) error {
	if sess.RefreshToken == "" {
		return errors.New("нет refresh token")
	}

	src := c.oauth.TokenSource(c.clientContext(ctx), &oauth2.Token{
		RefreshToken: sess.RefreshToken,
		Expiry:       time.Unix(1, 0),
	})
	tok, err := src.Token()
	if err != nil {
		return fmt.Errorf("ошибка обновления токенов: %w", err)
	}

	sess.AccessToken = tok.AccessToken
	sess.ExpiresAt = expiry(tok)
	if tok.RefreshToken != "" {
		sess.RefreshToken = tok.RefreshToken
	}
	if rawID, ok := tok.Extra("id_token").(string); ok && rawID != "" {
		sess.IDToken = rawID
	}
	return nil
}

// LogoutURL возвращает адрес выхода из Keycloak.
// Пусто, если realm не публикует end_session_endpoint.
func (c *OIDCClient) LogoutURL(idTokenHint, postLogoutRedirect string) string {
	if c.endSession == "" {
		return ""
	}
	params := url.Values{}
	params.Set("client_id", c.oauth.ClientID)
	if idTokenHint != "" {
		params.Set("id_token_hint", idTokenHint)
	}
	if postLogoutRedirect != "" {
		params.Set("post_logout_redirect_uri", postLogoutRedirect)
	}
	return c.endSession + "?" + params.Encode()
}

func (c *OIDCClient) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func expiry(tok *oauth2.Token) int64 {
	if tok.Expiry.IsZero() {
		return time.Now().Add(5 * time.Minute).Unix()
	}
	return tok.Expiry.Unix()
}

// randomToken — 32 случайных байта в base64url.
func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("ошибка генерации случайного значения: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
