// role_sync.go — двойная запись роли пользователя: PostgreSQL, затем Keycloak.
// Транзакции между хранилищами нет: расхождение возвращается как *SyncError.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/arturkryukov/hostportal/internal/domain/rbac"
	"github.com/arturkryukov/hostportal/internal/repository"
	"github.com/arturkryukov/hostportal/internal/validate"
)

// ErrPartialSync — роль записана в БД, но не в Keycloak.
// Требуется ручная сверка; автоматического отката нет.
var ErrPartialSync = errors.New("роль записана частично: БД обновлена, Keycloak — нет")

// WriteStatus — результат записи в одно из хранилищ.
type WriteStatus string

const (
	WriteOK      WriteStatus = "ok"
	WriteFailed  WriteStatus = "failed"
	WriteSkipped WriteStatus = "skipped"
)

// RoleChangeRequest — команда смены роли. Не сохраняется.
type RoleChangeRequest struct {
	TargetUserID string `json:"target_id" validate:"required"`
	NewRole      string `json:"role" validate:"required"`
	RequestedBy  string `json:"requested_by" validate:"required"`
}

// SyncError — сбой двойной записи с указанием, какая сторона записана.
type SyncError struct {
	Relational WriteStatus
	Identity   WriteStatus
	Err        error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("синхронизация роли: БД=%s, Keycloak=%s: %v", e.Relational, e.Identity, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Is сопоставляет частичную запись с ErrPartialSync.
func (e *SyncError) Is(target error) bool {
	return target == ErrPartialSync && e.Relational == WriteOK && e.Identity == WriteFailed
}

// RoleStore — запись роли в реляционное хранилище.
type RoleStore interface {
	SetRole(ctx context.Context, id, role string, isAdmin bool) error
}

// IdentityRoleWriter — запись роли в атрибуты пользователя Keycloak.
type IdentityRoleWriter interface {
	SetUserRoleAttributes(ctx context.Context, userID, role string, isAdmin bool) error
}

// RoleSyncWriter применяет RoleChangeRequest к обоим хранилищам.
type RoleSyncWriter struct {
	store     RoleStore
	identity  IdentityRoleWriter
	validator *validate.Validator
	logger    *slog.Logger
}

// NewRoleSyncWriter создаёт RoleSyncWriter.
func NewRoleSyncWriter(store RoleStore, identity IdentityRoleWriter, v *validate.Validator, logger *slog.Logger) *RoleSyncWriter {
	return &RoleSyncWriter{
		store:     store,
		identity:  identity,
		validator: v,
		logger:    logger.With(slog.String("component", "role_sync")),
	}
}

// Apply записывает роль сначала в БД, затем в Keycloak.
// Обе записи — установка значения, повторный вызов с тем же запросом безопасен.
//
// Ошибки:
//   - ErrValidation / ErrInvalidRole — ничего не записано;
//   - ErrNotFound — пользователя нет в БД, ничего не записано;
//   - *SyncError{failed, skipped} — сбой записи в БД;
//   - *SyncError{ok, failed} — errors.Is(err, ErrPartialSync).
func (w *RoleSyncWriter) Apply(ctx context.Context, req RoleChangeRequest) error {
	if err := w.validator.Struct(req); err != nil {
		roleSyncTotal.WithLabelValues("invalid").Inc()
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	role, ok := rbac.ParseRole(req.NewRole)
	if !ok || !rbac.IsAssignable(role) {
		roleSyncTotal.WithLabelValues("invalid").Inc()
		return ErrInvalidRole
	}
	isAdmin := role == rbac.RoleAdmin

	log := w.logger.With(
		slog.String("target_id", req.TargetUserID),
		slog.String("role", string(role)),
		slog.String("requested_by", req.RequestedBy),
	)

	if err := w.store.SetRole(ctx, req.TargetUserID, string(role), isAdmin); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			roleSyncTotal.WithLabelValues("invalid").Inc()
			return fmt.Errorf("%w: пользователь %s", ErrNotFound, req.TargetUserID)
		}
		roleSyncTotal.WithLabelValues("failed").Inc()
		log.Error("Ошибка записи роли в БД", slog.String("error", err.Error()))
		return &SyncError{Relational: WriteFailed, Identity: WriteSkipped, Err: err}
	}

	if err := w.identity.SetUserRoleAttributes(ctx, req.TargetUserID, string(role), isAdmin); err != nil {
		roleSyncTotal.WithLabelValues("partial").Inc()
		log.Error("Роль записана в БД, но не в Keycloak — требуется ручная сверка",
			slog.String("error", err.Error()),
		)
		return &SyncError{Relational: WriteOK, Identity: WriteFailed, Err: err}
	}

	roleSyncTotal.WithLabelValues("ok").Inc()
	log.Info("Роль пользователя синхронизирована")
	return nil
}
