package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix — префикс ключей сессий в Redis.
const DefaultRedisPrefix = "hp:session:"

// RedisStore хранит сессии в Redis; в cookie — только зашифрованный ID.
// Ключ живёт ttl и продлевается при каждом Save.
type RedisStore struct {
	client redis.UniversalClient
	sealer *Sealer
	prefix string
	ttl    time.Duration
	secure bool
	logger *slog.Logger
}

// NewRedisStore создаёт RedisStore.
func NewRedisStore(client redis.UniversalClient, sealer *Sealer, ttl time.Duration, secure bool, logger *slog.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		sealer: sealer,
		prefix: DefaultRedisPrefix,
		ttl:    ttl,
		secure: secure,
		logger: logger.With(slog.String("component", "session_redis")),
	}
}

type sessionRef struct {
	ID string `json:"id"`
}

// Load читает сессию по ID из cookie.
func (s *RedisStore) Load(r *http.Request) (*SessionData, error) {
	id, err := s.sessionID(r)
	if err != nil {
		return nil, err
	}

	raw, err := s.client.Get(r.Context(), s.prefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var data SessionData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoSession, err)
	}
	return &data, nil
}

// Save записывает сессию с TTL и выставляет cookie с её ID.
func (s *RedisStore) Save(ctx context.Context, w http.ResponseWriter, data *SessionData) error {
	if data.ID == "" {
		data.ID = NewSessionID()
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("ошибка сериализации сессии: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+data.ID, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	sealed, err := s.sealer.Seal(sessionRef{ID: data.ID})
	if err != nil {
		return err
	}
	setSessionCookie(w, sealed, s.ttl, s.secure)
	return nil
}

// Clear удаляет ключ сессии и cookie. Ошибка Redis только логируется.
func (s *RedisStore) Clear(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if id, err := s.sessionID(r); err == nil {
		if err := s.client.Del(ctx, s.prefix+id).Err(); err != nil {
			s.logger.Warn("Не удалось удалить сессию из Redis",
				slog.String("error", err.Error()),
			)
		}
	}
	clearSessionCookie(w, s.secure)
}

func (s *RedisStore) sessionID(r *http.Request) (string, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", ErrNoSession
	}
	var ref sessionRef
	if err := s.sealer.Open(cookie.Value, &ref); err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoSession, err)
	}
	if ref.ID == "" {
		return "", ErrNoSession
	}
	return ref.ID, nil
}

// RedisReadinessChecker проверяет доступность Redis для /health/ready.
type RedisReadinessChecker struct {
	client redis.UniversalClient
}

// NewRedisReadinessChecker создаёт checker.
func NewRedisReadinessChecker(client redis.UniversalClient) *RedisReadinessChecker {
	return &RedisReadinessChecker{client: client}
}

// CheckReady выполняет PING.
func (c *RedisReadinessChecker) CheckReady() (string, string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.client.Ping(ctx).Err(); err != nil {
		return "fail", fmt.Sprintf("Redis недоступен: %v", err)
	}
	return "ok", "Redis доступен"
}
