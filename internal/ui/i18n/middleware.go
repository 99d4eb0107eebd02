// middleware.go — язык запроса: cookie hp_lang, затем Accept-Language.
package i18n

import (
	"net/http"
)

// LangCookieName — cookie выбранного языка.
const LangCookieName = "hp_lang"

// Middleware помещает в контекст каталоги и язык запроса.
func Middleware(b *Bundle) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithBundle(r.Context(), b)
			ctx = WithLang(ctx, DetectLanguage(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// DetectLanguage определяет язык запроса.
func DetectLanguage(r *http.Request) string {
	if cookie, err := r.Cookie(LangCookieName); err == nil && Supported(cookie.Value) {
		return cookie.Value
	}
	if accept := r.Header.Get("Accept-Language"); accept != "" {
		return MatchLanguage(accept)
	}
	return DefaultLang
}
