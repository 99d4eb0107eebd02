// client.go — клиент Keycloak Admin REST API для атрибутов роли портала.
// Токен service account получается через Client Credentials flow
// (golang.org/x/oauth2/clientcredentials) и обновляется автоматически.
package keycloak

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ErrNotFound — ресурс не найден в Keycloak (HTTP 404).
var ErrNotFound = errors.New("не найдено в Keycloak")

// Атрибуты пользователя по умолчанию.
const (
	DefaultRoleAttribute  = "portal_role"
	DefaultAdminAttribute = "portal_admin"
)

// maxErrorBody — сколько байт тела ошибки попадает в текст ошибки.
const maxErrorBody = 512

// Client — клиент Admin REST API одного realm.
type Client struct {
	adminURL  string
	roleAttr  string
	adminAttr string
	http      *http.Client
	logger    *slog.Logger
}

// New создаёт клиент. httpClient может нести TLS-настройки (CA); nil — клиент с таймаутом 30s.
func New(baseURL, realm, clientID, clientSecret string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	base := strings.TrimRight(baseURL, "/")

	cc := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", base, realm),
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	authorized := cc.Client(context.WithValue(context.Background(), oauth2.HTTPClient, httpClient))
	authorized.Timeout = httpClient.Timeout

	return &Client{
		adminURL:  fmt.Sprintf("%s/admin/realms/%s", base, realm),
		roleAttr:  DefaultRoleAttribute,
		adminAttr: DefaultAdminAttribute,
		http:      authorized,
		logger:    logger.With(slog.String("component", "keycloak_client")),
	}
}

// WithAttributeNames задаёт имена атрибутов роли и флага администратора.
// Пустые значения не меняют текущие.
func (c *Client) WithAttributeNames(roleAttr, adminAttr string) *Client {
	if roleAttr != "" {
		c.roleAttr = roleAttr
	}
	if adminAttr != "" {
		c.adminAttr = adminAttr
	}
	return c
}

// AttributeNames возвращает имена атрибутов роли и флага администратора.
func (c *Client) AttributeNames() (role, admin string) {
	return c.roleAttr, c.adminAttr
}

// call выполняет запрос к Admin API. in — тело (JSON), out — приёмник ответа.
// 404 → ErrNotFound, любой статус кроме want → ошибка со статусом и началом тела.
func (c *Client) call(ctx context.Context, method, path string, in, out any, want int) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("сериализация тела запроса: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.adminURL+path, body)
	if err != nil {
		return fmt.Errorf("создание запроса: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("запрос к Keycloak: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode != want:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("Keycloak API вернул статус %d: %s", resp.StatusCode, snippet)
	case out == nil:
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("декодирование ответа Keycloak: %w", err)
	}
	return nil
}

// CountUsers возвращает количество пользователей realm.
func (c *Client) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := c.call(ctx, http.MethodGet, "/users/count", nil, &n, http.StatusOK); err != nil {
		return 0, fmt.Errorf("CountUsers: %w", err)
	}
	return n, nil
}

// GetUser возвращает пользователя по ID; отсутствующий — ErrNotFound.
func (c *Client) GetUser(ctx context.Context, id string) (*KeycloakUser, error) {
	var u KeycloakUser
	if err := c.call(ctx, http.MethodGet, "/users/"+url.PathEscape(id), nil, &u, http.StatusOK); err != nil {
		return nil, fmt.Errorf("GetUser: %w", err)
	}
	return &u, nil
}

// SetUserRoleAttributes записывает роль и флаг администратора в атрибуты пользователя.
// Keycloak заменяет attributes целиком, поэтому остальные атрибуты читаются и отправляются обратно.
// Повтор с теми же аргументами отправляет то же представление.
func (c *Client) SetUserRoleAttributes(ctx context.Context, userID, role string, isAdmin bool) error {
	u, err := c.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("SetUserRoleAttributes: %w", err)
	}

	if u.Attributes == nil {
		u.Attributes = make(map[string][]string, 2)
	}
	u.Attributes[c.roleAttr] = []string{role}
	u.Attributes[c.adminAttr] = []string{strconv.FormatBool(isAdmin)}

	if err := c.call(ctx, http.MethodPut, "/users/"+url.PathEscape(userID), u, nil, http.StatusNoContent); err != nil {
		return fmt.Errorf("SetUserRoleAttributes: %w", err)
	}

	c.logger.Debug("Атрибуты роли записаны в Keycloak",
		slog.String("user_id", userID),
		slog.String("role", role),
		slog.Bool("is_admin", isAdmin),
	)
	return nil
}

// RealmInfo возвращает имя realm и признак включения.
func (c *Client) RealmInfo(ctx context.Context) (*RealmRepresentation, error) {
	var realm RealmRepresentation
	if err := c.call(ctx, http.MethodGet, "", nil, &realm, http.StatusOK); err != nil {
		return nil, fmt.Errorf("RealmInfo: %w", err)
	}
	return &realm, nil
}
