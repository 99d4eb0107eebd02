// Пакет auth — вход в UI портала и хранение сессий.
// Сессии шифруются AES-256-GCM; хранятся в cookie или в Redis.
package auth

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// SessionCookieName — имя cookie сессии портала.
const SessionCookieName = "hp_session"

// SessionCookiePath — область действия cookie сессии.
const SessionCookiePath = "/portal"

// ErrNoSession — у запроса нет действующей сессии.
var ErrNoSession = errors.New("сессия отсутствует")

// SessionData — данные сессии портала.
// Роль в сессии не хранится: она разрешается заново при каждом просмотре.
type SessionData struct {
	// ID — идентификатор сессии, владелец просмотров guard.
	ID string `json:"id"`
	// Subject — sub пользователя в Keycloak.
	Subject      string `json:"sub"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	// IDToken — для id_token_hint при выходе.
	IDToken string `json:"id_token,omitempty"`
	// ExpiresAt — истечение access token (Unix).
	ExpiresAt int64  `json:"expires_at"`
	Username  string `json:"username,omitempty"`
	Email     string `json:"email,omitempty"`
}

// NewSessionID возвращает новый случайный идентификатор сессии.
func NewSessionID() string {
	return uuid.NewString()
}

// IsExpired — true, если до истечения access token меньше 30 секунд.
func (s *SessionData) IsExpired(now time.Time) bool {
	return now.Unix() >= s.ExpiresAt-30
}

// Store — хранилище сессий UI.
type Store interface {
	// Load возвращает сессию запроса или ErrNoSession.
	Load(r *http.Request) (*SessionData, error)
	// Save сохраняет сессию и выставляет cookie.
	Save(ctx context.Context, w http.ResponseWriter, data *SessionData) error
	// Clear удаляет сессию запроса и cookie.
	Clear(ctx context.Context, w http.ResponseWriter, r *http.Request)
}

// Sealer шифрует и расшифровывает значения cookie (AES-256-GCM).
type Sealer struct {
	gcm cipher.AEAD
}

// NewSealer создаёт Sealer.
// key — base64 32 байт либо произвольная строка (хешируется SHA-256).
// Пустой key — случайный ключ, сессии не переживают рестарт.
func NewSealer(key string) (*Sealer, error) {
	var keyBytes []byte

	if key == "" {
		keyBytes = make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, keyBytes); err != nil {
			return nil, fmt.Errorf("ошибка генерации ключа сессии: %w", err)
		}
	} else {
		var err error
		keyBytes, err = base64.StdEncoding.DecodeString(key)
		if err != nil || len(keyBytes) != 32 {
			h := sha256.Sum256([]byte(key))
			keyBytes = h[:]
		}
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания GCM: %w", err)
	}
	return &Sealer{gcm: gcm}, nil
}

// Seal шифрует v (JSON) в base64url-строку.
func (s *Sealer) Seal(v any) (string, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("ошибка сериализации: %w", err)
	}

	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("ошибка генерации nonce: %w", err)
	}

	ciphertext := s.gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

// Open расшифровывает строку Seal в v.
func (s *Sealer) Open(sealed string, v any) error {
	ciphertext, err := base64.URLEncoding.DecodeString(sealed)
	if err != nil {
		return fmt.Errorf("ошибка декодирования base64: %w", err)
	}

	nonceSize := s.gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return errors.New("зашифрованные данные слишком короткие")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := s.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return fmt.Errorf("ошибка дешифрования: %w", err)
	}

	if err := json.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("ошибка десериализации: %w", err)
	}
	return nil
}

// CookieStore хранит сессию целиком в зашифрованной cookie.
type CookieStore struct {
	sealer *Sealer
	ttl    time.Duration
	secure bool
}

// NewCookieStore создаёт CookieStore.
func NewCookieStore(sealer *Sealer, ttl time.Duration, secure bool) *CookieStore {
	return &CookieStore{sealer: sealer, ttl: ttl, secure: secure}
}

// Load расшифровывает сессию из cookie.
func (s *CookieStore) Load(r *http.Request) (*SessionData, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, ErrNoSession
	}

	var data SessionData
	if err := s.sealer.Open(cookie.Value, &data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoSession, err)
	}
	if data.ID == "" {
		return nil, ErrNoSession
	}
	return &data, nil
}

// Save шифрует сессию в cookie. Пустой ID заменяется новым.
func (s *CookieStore) Save(_ context.Context, w http.ResponseWriter, data *SessionData) error {
	if data.ID == "" {
		data.ID = NewSessionID()
	}
	sealed, err := s.sealer.Seal(data)
	if err != nil {
		return err
	}
	setSessionCookie(w, sealed, s.ttl, s.secure)
	return nil
}

// Clear удаляет cookie сессии.
func (s *CookieStore) Clear(_ context.Context, w http.ResponseWriter, _ *http.Request) {
	clearSessionCookie(w, s.secure)
}

func setSessionCookie(w http.ResponseWriter, value string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     SessionCookiePath,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     SessionCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
