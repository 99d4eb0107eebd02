// webhook.go — POST /api/v1/webhooks/identity: событие регистрации пользователя в IdP.
// Подпись: X-Portal-Signature = "sha256=" + hex(HMAC-SHA256(secret, timestamp + "." + body)),
// X-Portal-Timestamp — unix-секунды, допустимое отклонение — WebhookConfig.Tolerance.
package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	apierrors "github.com/arturkryukov/hostportal/internal/api/errors"
	"github.com/arturkryukov/hostportal/internal/api/openapi"
	"github.com/arturkryukov/hostportal/internal/service"
)

// maxWebhookBody — предел размера тела события.
const maxWebhookBody = 64 << 10

const signaturePrefix = "sha256="

var (
	errBadTimestamp = errors.New("некорректный X-Portal-Timestamp")
	errStale        = errors.New("X-Portal-Timestamp вне допустимого окна")
	errBadSignature = errors.New("подпись не совпадает")
	errNoSecret     = errors.New("секрет вебхука не настроен")
)

// IdentityWebhook — POST /api/v1/webhooks/identity.
// Доступ: по подписи HMAC, JWT не требуется.
func (h *APIHandler) IdentityWebhook(w http.ResponseWriter, r *http.Request, params openapi.WebhookParams) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		apierrors.ValidationError(w, "Тело события слишком большое или не читается")
		return
	}

	if err := verifySignature(h.webhook.Secret, params.Timestamp, params.Signature, body,
		h.webhook.Now(), h.webhook.Tolerance); err != nil {
		h.logger.Warn("Отклонён вебхук IdP",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		apierrors.Unauthorized(w, "Недействительная подпись вебхука")
		return
	}

	var ev service.UserCreatedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	created, err := h.svc.Onboarding.HandleUserCreated(r.Context(), ev)
	if err != nil {
		h.writeServiceError(w, err, "регистрация пользователя")
		return
	}

	writeJSON(w, http.StatusOK, openapi.WebhookAck{Created: created})
}

// verifySignature проверяет окно времени и HMAC-подпись события.
func verifySignature(secret, timestamp, signature string, body []byte, now time.Time, tolerance time.Duration) error {
	if secret == "" {
		return errNoSecret
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return errBadTimestamp
	}
	sent := time.Unix(ts, 0)
	if now.Sub(sent) > tolerance || sent.Sub(now) > tolerance {
		return errStale
	}

	hexSig, ok := strings.CutPrefix(signature, signaturePrefix)
	if !ok {
		return errBadSignature
	}
	got, err := hex.DecodeString(hexSig)
	if err != nil {
		return errBadSignature
	}
	if !hmac.Equal(got, sign(secret, timestamp, body)) {
		return errBadSignature
	}
	return nil
}

// sign вычисляет HMAC-SHA256(secret, timestamp + "." + body).
func sign(secret, timestamp string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return mac.Sum(nil)
}

// Signature возвращает значение X-Portal-Signature для отправителя вебхука.
func Signature(secret, timestamp string, body []byte) string {
	return signaturePrefix + hex.EncodeToString(sign(secret, timestamp, body))
}
