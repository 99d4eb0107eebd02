// language.go — переключение языка UI.
package handlers

import (
	"net/http"
	"net/url"

	"github.com/arturkryukov/hostportal/internal/ui/i18n"
)

// HandleSetLanguage — POST /portal/lang: cookie hp_lang и возврат на страницу.
func HandleSetLanguage(w http.ResponseWriter, r *http.Request) {
	lang := r.FormValue("lang")
	if !i18n.Supported(lang) {
		lang = i18n.DefaultLang
	}

	http.SetCookie(w, &http.Cookie{
		Name:     i18n.LangCookieName,
		Value:    lang,
		Path:     "/portal",
		MaxAge:   365 * 24 * 60 * 60,
		SameSite: http.SameSiteLaxMode,
	})

	back := defaultReturnTo
	if ref, err := url.Parse(r.Header.Get("Referer")); err == nil && ref.Path != "" {
		back = safeReturnTo(ref.RequestURI())
	}
	http.Redirect(w, r, back, http.StatusSeeOther)
}
