// Пакет i18n — переводы UI портала (en, ru).
// Bundle и язык запроса передаются через контекст: T(ctx, key).
package i18n

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/text/language"
)

// DefaultLang — язык по умолчанию и запасной каталог.
const DefaultLang = "en"

var (
	// SupportedLanguages — поддерживаемые языки.
	SupportedLanguages = []language.Tag{
		language.English,
		language.Russian,
	}

	matcher = language.NewMatcher(SupportedLanguages)
)

type contextKey string

const (
	contextKeyLang   contextKey = "i18n_lang"
	contextKeyBundle contextKey = "i18n_bundle"
)

// Bundle — каталоги переводов всех языков.
type Bundle struct {
	mu       sync.RWMutex
	catalogs map[string]map[string]string
	logger   *slog.Logger
}

// NewBundle создаёт пустой Bundle.
func NewBundle(logger *slog.Logger) *Bundle {
	return &Bundle{
		catalogs: make(map[string]map[string]string),
		logger:   logger.With(slog.String("component", "i18n")),
	}
}

// LoadMessages загружает плоский JSON-каталог {"key": "перевод"} языка lang.
func (b *Bundle) LoadMessages(lang string, data []byte) error {
	var messages map[string]string
	if err := json.Unmarshal(data, &messages); err != nil {
		return fmt.Errorf("i18n: ошибка парсинга каталога %s: %w", lang, err)
	}

	b.mu.Lock()
	b.catalogs[lang] = messages
	b.mu.Unlock()

	b.logger.Debug("Каталог загружен", slog.String("lang", lang), slog.Int("keys", len(messages)))
	return nil
}

// Translate возвращает перевод key; нет в lang — из en; нет нигде — сам key.
func (b *Bundle) Translate(lang, key string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if msg, ok := b.catalogs[lang][key]; ok {
		return msg
	}
	if msg, ok := b.catalogs[DefaultLang][key]; ok {
		return msg
	}
	return key
}

// WithLang помещает язык в контекст.
func WithLang(ctx context.Context, lang string) context.Context {
	return context.WithValue(ctx, contextKeyLang, lang)
}

// WithBundle помещает каталоги в контекст.
func WithBundle(ctx context.Context, b *Bundle) context.Context {
	return context.WithValue(ctx, contextKeyBundle, b)
}

// LangFromContext возвращает язык запроса (по умолчанию en).
func LangFromContext(ctx context.Context) string {
	if lang, ok := ctx.Value(contextKeyLang).(string); ok && lang != "" {
		return lang
	}
	return DefaultLang
}

// T переводит key на язык запроса. Без Bundle в контексте возвращает key.
func T(ctx context.Context, key string) string {
	b, ok := ctx.Value(contextKeyBundle).(*Bundle)
	if !ok || b == nil {
		return key
	}
	return b.Translate(LangFromContext(ctx), key)
}

// Tf — T с подстановкой аргументов.
func Tf(ctx context.Context, key string, args ...any) string {
	return formatFunc(T(ctx, key), args...)
}

// Формат-строки приходят из каталогов, go vet их проверить не может.
var formatFunc = fmt.Sprintf

// MatchLanguage выбирает язык по Accept-Language: "ru" или "en".
func MatchLanguage(acceptLanguage string) string {
	tag, _ := language.MatchStrings(matcher, acceptLanguage)
	base, _ := tag.Base()
	if strings.HasPrefix(base.String(), "ru") {
		return "ru"
	}
	return DefaultLang
}

// Supported сообщает, есть ли каталог для lang.
func Supported(lang string) bool {
	return lang == "en" || lang == "ru"
}
