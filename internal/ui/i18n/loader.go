// loader.go — загрузка встроенных каталогов.
package i18n

import (
	"embed"
	"fmt"
	"log/slog"
)

//go:embed locales/*.json
var localeFS embed.FS

// Load создаёт Bundle из встроенных locales/en.json и locales/ru.json.
func Load(logger *slog.Logger) (*Bundle, error) {
	b := NewBundle(logger)
	for _, lang := range []string{"en", "ru"} {
		path := fmt.Sprintf("locales/%s.json", lang)
		data, err := localeFS.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("i18n: не удалось прочитать %s: %w", path, err)
		}
		if err := b.LoadMessages(lang, data); err != nil {
			return nil, err
		}
	}
	return b, nil
}
