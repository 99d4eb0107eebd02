// openapi.go — валидация входящих запросов по встроенному OpenAPI контракту.
package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"

	apierrors "github.com/arturkryukov/hostportal/internal/api/errors"
)

// OpenAPIValidator проверяет параметры и тело запроса по схеме doc.
// Аутентификацию выполняет JWTAuth, здесь она не проверяется.
// Пути вне контракта пропускаются: их обработает роутер.
func OpenAPIValidator(doc *openapi3.T, logger *slog.Logger) (func(http.Handler) http.Handler, error) {
	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, err
	}
	logger = logger.With(slog.String("component", "openapi_validator"))

	opts := &openapi3filter.Options{
		AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, pathParams, err := router.FindRoute(r)
			if err != nil {
				if !errors.Is(err, routers.ErrPathNotFound) && !errors.Is(err, routers.ErrMethodNotAllowed) {
					logger.Debug("Маршрут не найден в контракте", slog.String("error", err.Error()))
				}
				next.ServeHTTP(w, r)
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options:    opts,
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				logger.Debug("Запрос не прошёл валидацию",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				apierrors.ValidationError(w, validationMessage(err))
				return
			}

			next.ServeHTTP(w, r)
		})
	}, nil
}

// validationMessage сокращает ошибку kin-openapi до сути.
func validationMessage(err error) string {
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.Parameter != nil {
			return "Некорректный параметр " + reqErr.Parameter.Name + ": " + reqErr.Error()
		}
		return "Некорректное тело запроса: " + reqErr.Error()
	}
	return err.Error()
}
