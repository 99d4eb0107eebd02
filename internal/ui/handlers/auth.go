// Пакет handlers — HTTP-обработчики UI портала.
// auth.go — вход через Keycloak (Authorization Code + PKCE) и выход.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/arturkryukov/hostportal/internal/ui/auth"
	uimiddleware "github.com/arturkryukov/hostportal/internal/ui/middleware"
	"github.com/arturkryukov/hostportal/internal/ui/pages"
)

// flowCookieName — cookie с параметрами незавершённого входа.
const flowCookieName = "hp_login_flow"

// flowCookieMaxAge — время на прохождение страницы входа Keycloak (секунды).
const flowCookieMaxAge = 5 * 60

// defaultReturnTo — куда вернуть пользователя без return_to.
const defaultReturnTo = "/portal/"

// LoginProvider — OIDC-вход (auth.OIDCClient).
type LoginProvider interface {
	AuthCodeURL(flow *auth.LoginFlow) string
	Exchange(ctx context.Context, code string, flow *auth.LoginFlow) (*auth.SessionData, error)
	LogoutURL(idTokenHint, postLogoutRedirect string) string
}

// AuthHandler — вход и выход UI.
type AuthHandler struct {
	provider LoginProvider
	store    auth.Store
	sealer   *auth.Sealer
	baseURL  string
	secure   bool
	logger   *slog.Logger
}

// NewAuthHandler создаёт AuthHandler. baseURL — внешний адрес портала.
func NewAuthHandler(provider LoginProvider, store auth.Store, sealer *auth.Sealer, baseURL string, secure bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		provider: provider,
		store:    store,
		sealer:   sealer,
		baseURL:  strings.TrimRight(baseURL, "/"),
		secure:   secure,
		logger:   logger.With(slog.String("component", "ui_auth")),
	}
}

// HandleLogin — GET /portal/login: страница входа.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	start := "/portal/auth/start"
	if back := r.URL.Query().Get(uimiddleware.ReturnToParam); back != "" {
		start += "?" + url.Values{uimiddleware.ReturnToParam: {safeReturnTo(back)}}.Encode()
	}
	failed := r.URL.Query().Get("error") != ""
	renderPage(w, r, h.logger, pages.Login(start, failed))
}

// HandleStart — GET /portal/auth/start: redirect на Keycloak.
func (h *AuthHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	flow, err := auth.NewLoginFlow(safeReturnTo(r.URL.Query().Get(uimiddleware.ReturnToParam)))
	if err != nil {
		h.logger.Error("Ошибка генерации параметров входа", slog.String("error", err.Error()))
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
		return
	}

	sealed, err := h.sealer.Seal(flow)
	if err != nil {
		h.logger.Error("Ошибка шифрования параметров входа", slog.String("error", err.Error()))
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
		return
	}
	h.setFlowCookie(w, sealed, flowCookieMaxAge)

	http.Redirect(w, r, h.provider.AuthCodeURL(flow), http.StatusFound)
}

// HandleCallback — GET /portal/callback: обмен code на токены и создание сессии.
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if errCode := q.Get("error"); errCode != "" {
		h.logger.Warn("Keycloak вернул ошибку авторизации",
			slog.String("error", errCode),
			slog.String("description", q.Get("error_description")),
		)
		http.Redirect(w, r, "/portal/login?error=1", http.StatusFound)
		return
	}

	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		http.Error(w, "Отсутствует code или state", http.StatusBadRequest)
		return
	}

	cookie, err := r.Cookie(flowCookieName)
	if err != nil {
		http.Error(w, "Время входа истекло, попробуйте ещё раз", http.StatusBadRequest)
		return
	}
	var flow auth.LoginFlow
	if err := h.sealer.Open(cookie.Value, &flow); err != nil {
		h.logger.Warn("Некорректная cookie входа", slog.String("error", err.Error()))
		http.Error(w, "Некорректные параметры входа", http.StatusBadRequest)
		return
	}
	// cookie одноразовая
	h.setFlowCookie(w, "", -1)

	if flow.State != state {
		h.logger.Warn("State не совпадает", slog.String("remote_addr", r.RemoteAddr))
		http.Error(w, "State mismatch", http.StatusBadRequest)
		return
	}

	session, err := h.provider.Exchange(r.Context(), code, &flow)
	if err != nil {
		h.logger.Error("Ошибка обмена code на токены", slog.String("error", err.Error()))
		http.Redirect(w, r, "/portal/login?error=1", http.StatusFound)
		return
	}

	// Новый ID сессии при каждом входе
	session.ID = auth.NewSessionID()
	if err := h.store.Save(r.Context(), w, session); err != nil {
		h.logger.Error("Ошибка сохранения сессии", slog.String("error", err.Error()))
		http.Error(w, "Ошибка создания сессии", http.StatusInternalServerError)
		return
	}

	h.logger.Info("Пользователь вошёл в портал",
		slog.String("subject", session.Subject),
		slog.String("username", session.Username),
	)
	http.Redirect(w, r, safeReturnTo(flow.ReturnTo), http.StatusFound)
}

// HandleLogout — GET /portal/logout: удаление сессии и выход из Keycloak.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var idToken string
	if s, err := h.store.Load(r); err == nil {
		idToken = s.IDToken
		h.logger.Info("Пользователь вышел из портала", slog.String("subject", s.Subject))
	}
	h.store.Clear(r.Context(), w, r)

	target := h.provider.LogoutURL(idToken, h.baseURL+"/portal/login")
	if target == "" {
		target = "/portal/login"
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *AuthHandler) setFlowCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     flowCookieName,
		Value:    value,
		Path:     auth.SessionCookiePath,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// safeReturnTo допускает только локальные адреса портала.
func safeReturnTo(raw string) string {
	if raw == "" || strings.HasPrefix(raw, "//") || strings.Contains(raw, `\`) {
		return defaultReturnTo
	}
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/portal") {
		return defaultReturnTo
	}
	if strings.HasPrefix(u.Path, "/portal/login") || strings.HasPrefix(u.Path, "/portal/auth") ||
		strings.HasPrefix(u.Path, "/portal/callback") || strings.HasPrefix(u.Path, "/portal/logout") {
		return defaultReturnTo
	}
	return u.RequestURI()
}
