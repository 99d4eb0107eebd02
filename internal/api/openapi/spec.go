// Пакет openapi — контракт HTTP API портала: встроенный openapi.yaml,
// типы запросов и ответов, привязка параметров к chi-маршрутам.
package openapi

import (
	_ "embed"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var specYAML []byte

// Spec загружает и валидирует встроенный OpenAPI документ.
func Spec() (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(specYAML)
	if err != nil {
		return nil, fmt.Errorf("загрузка openapi.yaml: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("валидация openapi.yaml: %w", err)
	}
	// Сервер не фиксирован: портал публикуется за разными ingress
	doc.Servers = nil
	return doc, nil
}

// RawSpec возвращает исходный YAML (для отдачи клиентам).
func RawSpec() []byte {
	return specYAML
}
