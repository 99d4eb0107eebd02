package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testClientID = "hostportal-ui"

// fakeIdP — httptest-сервер с discovery, token и JWKS endpoint.
type fakeIdP struct {
	srv *httptest.Server
	key *rsa.PrivateKey

	mu         sync.Mutex
	nonce      string
	lastForm   url.Values
	tokenFails bool
	endSession bool
}

func newFakeIdP(t *testing.T, endSession bool) *fakeIdP {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey: %v", err)
	}
	idp := &fakeIdP{key: key, endSession: endSession}

	mux := http.NewServeMux()
	idp.srv = httptest.NewServer(mux)
	t.Cleanup(idp.srv.Close)

	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		doc := map[string]string{
			"issuer":                 idp.srv.URL,
			"authorization_endpoint": idp.srv.URL + "/auth",
			"token_endpoint":         idp.srv.URL + "/token",
			"userinfo_endpoint":      idp.srv.URL + "/userinfo",
			"jwks_uri":               idp.srv.URL + "/certs",
		}
		if idp.endSession {
			doc["end_session_endpoint"] = idp.srv.URL + "/logout"
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	})

	mux.HandleFunc("/certs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": "idp-key",
				"alg": "RS256",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			}},
		})
	})

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		idp.mu.Lock()
		idp.lastForm = r.PostForm
		fails := idp.tokenFails
		nonce := idp.nonce
		idp.mu.Unlock()

		if fails {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-" + r.PostForm.Get("grant_type"),
			"token_type":    "Bearer",
			"expires_in":    300,
			"refresh_token": "refresh-next",
			"id_token":      idp.idToken(t, nonce),
		})
	})

	return idp
}

func (idp *fakeIdP) idToken(t *testing.T, nonce string) string {
	t.Helper()
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":                idp.srv.URL,
		"aud":                testClientID,
		"sub":                "u1",
		"exp":                now.Add(5 * time.Minute).Unix(),
		"iat":                now.Unix(),
		"nonce":              nonce,
		"preferred_username": "alice",
		"email":              "alice@example.com",
	})
	tok.Header["kid"] = "idp-key"
	signed, err := tok.SignedString(idp.key)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return signed
}

func (idp *fakeIdP) setNonce(n string) {
	idp.mu.Lock()
	idp.nonce = n
	idp.mu.Unlock()
}

func (idp *fakeIdP) form() url.Values {
	idp.mu.Lock()
	defer idp.mu.Unlock()
	return idp.lastForm
}

func newTestOIDCClient(t *testing.T, idp *fakeIdP) *OIDCClient {
	t.Helper()
	c, err := NewOIDCClient(context.Background(), OIDCConfig{
		Issuer:      idp.srv.URL,
		ClientID:    testClientID,
		RedirectURL: "https://portal.test/portal/callback",
	})
	if err != nil {
		t.Fatalf("NewOIDCClient: %v", err)
	}
	return c
}

func TestNewOIDCClient_Validation(t *testing.T) {
	if _, err := NewOIDCClient(context.Background(), OIDCConfig{RedirectURL: "x"}); err == nil {
		t.Error("ожидалась ошибка без client_id")
	}
	if _, err := NewOIDCClient(context.Background(), OIDCConfig{ClientID: "x"}); err == nil {
		t.Error("ожидалась ошибка без redirect_uri")
	}
}

func TestNewLoginFlow(t *testing.T) {
	f1, err := NewLoginFlow("/portal/sites")
	if err != nil {
		t.Fatalf("NewLoginFlow: %v", err)
	}
	f2, _ := NewLoginFlow("")

	if f1.State == f2.State || f1.Nonce == f2.Nonce || f1.Verifier == f2.Verifier {
		t.Error("параметры входа должны быть уникальными")
	}
	if len(f1.Verifier) < 43 {
		t.Errorf("длина verifier = %d, хотели >= 43", len(f1.Verifier))
	}
	if f1.ReturnTo != "/portal/sites" {
		t.Errorf("ReturnTo = %q", f1.ReturnTo)
	}
}

func TestOIDCClient_AuthCodeURL(t *testing.T) {
	idp := newFakeIdP(t, false)
	c := newTestOIDCClient(t, idp)
	flow, _ := NewLoginFlow("")

	u, err := url.Parse(c.AuthCodeURL(flow))
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	if !strings.HasPrefix(u.String(), idp.srv.URL+"/auth") {
		t.Errorf("адрес входа = %s", u)
	}

	q := u.Query()
	hash := sha256.Sum256([]byte(flow.Verifier))
	checks := map[string]string{
		"client_id":             testClientID,
		"response_type":         "code",
		"state":                 flow.State,
		"nonce":                 flow.Nonce,
		"code_challenge_method": "S256",
		"code_challenge":        base64.RawURLEncoding.EncodeToString(hash[:]),
		"redirect_uri":          "https://portal.test/portal/callback",
		"scope":                 "openid profile email",
	}
	for k, want := range checks {
		if got := q.Get(k); got != want {
			t.Errorf("%s = %q, хотели %q", k, got, want)
		}
	}
}

func TestOIDCClient_Exchange(t *testing.T) {
	idp := newFakeIdP(t, false)
	c := newTestOIDCClient(t, idp)
	flow, _ := NewLoginFlow("")
	idp.setNonce(flow.Nonce)

	sess, err := c.Exchange(context.Background(), "code-1", flow)
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}

	if sess.Subject != "u1" || sess.Username != "alice" || sess.Email != "alice@example.com" {
		t.Errorf("профиль = %+v", sess)
	}
	if sess.AccessToken != "access-authorization_code" || sess.RefreshToken != "refresh-next" {
		t.Errorf("токены = %q / %q", sess.AccessToken, sess.RefreshToken)
	}
	if sess.IDToken == "" || sess.ID != "" {
		t.Errorf("IDToken пуст или ID назначен: %+v", sess)
	}
	if sess.ExpiresAt <= time.Now().Unix() {
		t.Errorf("ExpiresAt в прошлом: %d", sess.ExpiresAt)
	}

	form := idp.form()
	if form.Get("code_verifier") != flow.Verifier || form.Get("code") != "code-1" {
		t.Errorf("форма обмена: %v", form)
	}
}

func TestOIDCClient_ExchangeNonceMismatch(t *testing.T) {
	idp := newFakeIdP(t, false)
	c := newTestOIDCClient(t, idp)
	flow, _ := NewLoginFlow("")
	idp.setNonce("чужой")

	if _, err := c.Exchange(context.Background(), "code-1", flow); !errors.Is(err, ErrNonceMismatch) {
		t.Errorf("err = %v, хотели ErrNonceMismatch", err)
	}
}

func TestOIDCClient_ExchangeErrors(t *testing.T) {
	idp := newFakeIdP(t, false)
	c := newTestOIDCClient(t, idp)
	flow, _ := NewLoginFlow("")

	if _, err := c.Exchange(context.Background(), "", flow); err == nil {
		t.Error("ожидалась ошибка для пустого code")
	}

	idp.mu.Lock()
	idp.tokenFails = true
	idp.mu.Unlock()
	if _, err := c.Exchange(context.Background(), "code-1", flow); err == nil {
		t.Error("ожидалась ошибка при отказе token endpoint")
	}
}

func TestOIDCClient_Refresh(t *testing.T) {
	idp := newFakeIdP(t, false)
	c := newTestOIDCClient(t, idp)

	sess := &SessionData{ID: "s1", AccessToken: "old", RefreshToken: "refresh-old", ExpiresAt: 1}
	if err := c.Refresh(context.Background(), sess); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if sess.AccessToken != "access-refresh_token" || sess.RefreshToken != "refresh-next" {
		t.Errorf("после Refresh: %+v", sess)
	}
	if sess.ID != "s1" {
		t.Errorf("ID сессии изменился: %q", sess.ID)
	}
	if got := idp.form().Get("refresh_token"); got != "refresh-old" {
		t.Errorf("refresh_token в запросе = %q", got)
	}

	if err := c.Refresh(context.Background(), &SessionData{}); err == nil {
		t.Error("ожидалась ошибка без refresh token")
	}
}

func TestOIDCClient_LogoutURL(t *testing.T) {
	idp := newFakeIdP(t, true)
	c := newTestOIDCClient(t, idp)

	u, err := url.Parse(c.LogoutURL("id-hint", "https://portal.test/portal/login"))
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	if u.Path != "/logout" {
		t.Errorf("path = %q, хотели /logout", u.Path)
	}
	q := u.Query()
	if q.Get("id_token_hint") != "id-hint" || q.Get("client_id") != testClientID ||
		q.Get("post_logout_redirect_uri") != "https://portal.test/portal/login" {
		t.Errorf("параметры выхода: %v", q)
	}

	noEnd := newTestOIDCClient(t, newFakeIdP(t, false))
	if got := noEnd.LogoutURL("id-hint", "/"); got != "" {
		t.Errorf("LogoutURL без end_session_endpoint = %q, хотели пусто", got)
	}
}
