// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — конфликт (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт — ресурс уже существует")
	// ErrInvalidRole — некорректная роль.
	ErrInvalidRole = errors.New("некорректная роль: допустимые значения — user, admin")
	// ErrIDPUnavailable — Identity Provider (Keycloak) недоступен.
	ErrIDPUnavailable = errors.New("Identity Provider недоступен")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrForbidden — ресурс принадлежит другому пользователю.
	ErrForbidden = errors.New("доступ запрещён")
	// ErrInvalidTransition — недопустимый переход статуса.
	ErrInvalidTransition = errors.New("недопустимый переход статуса")
)
