// Пакет static — встроенные статические ресурсы UI портала.
// Раздаются по /portal/static/*.
package static

import (
	"embed"
	"net/http"
)

//go:embed css/*.css
var content embed.FS

// Handler раздаёт встроенные файлы; prefix отрезается от пути запроса.
func Handler(prefix string) http.Handler {
	return http.StripPrefix(prefix, http.FileServer(http.FS(content)))
}
