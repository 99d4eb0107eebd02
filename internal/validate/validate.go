// Пакет validate — проверка входных DTO через go-playground/validator
// с именами полей из json-тегов и доменными правилами портала.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/arturkryukov/hostportal/internal/domain/model"
	"github.com/arturkryukov/hostportal/internal/domain/rbac"
)

// Validator — обёртка над validator.Validate.
type Validator struct {
	v *validator.Validate
}

// New создаёт валидатор с доменными правилами:
//   - assignable_role — роль, которую можно назначить (user, admin);
//   - site_status, project_status, ticket_status, ticket_priority — перечисления.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	mustRegister(v, "assignable_role", func(fl validator.FieldLevel) bool {
		return rbac.IsAssignable(rbac.Role(fl.Field().String()))
	})
	mustRegister(v, "site_status", oneOf(model.SiteStatusActive, model.SiteStatusSuspended))
	mustRegister(v, "project_status", oneOf(
		model.ProjectStatusPlanned, model.ProjectStatusInProgress, model.ProjectStatusCompleted))
	mustRegister(v, "ticket_status", func(fl validator.FieldLevel) bool {
		return model.IsTicketStatus(fl.Field().String())
	})
	mustRegister(v, "ticket_priority", oneOf(
		model.TicketPriorityLow, model.TicketPriorityNormal, model.TicketPriorityHigh))

	return &Validator{v: v}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("регистрация правила %s: %v", tag, err))
	}
}

func oneOf(values ...string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		for _, v := range values {
			if s == v {
				return true
			}
		}
		return false
	}
}

// Struct проверяет структуру. Ошибки полей возвращаются как *Error.
func (v *Validator) Struct(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return newError(verrs)
	}
	return err
}

// Error — ошибки валидации по полям (ключ — json-имя поля).
type Error struct {
	Fields map[string]string
}

func (e *Error) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return strings.Join(parts, "; ")
}

func newError(errs validator.ValidationErrors) *Error {
	fields := make(map[string]string, len(errs))
	for _, fe := range errs {
		fields[fe.Field()] = message(fe)
	}
	return &Error{Fields: fields}
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "обязательное поле"
	case "email":
		return "некорректный email"
	case "fqdn":
		return "некорректное доменное имя"
	case "uuid", "uuid4":
		return "некорректный UUID"
	case "min":
		return "не короче " + fe.Param()
	case "max":
		return "не длиннее " + fe.Param()
	case "oneof":
		return "допустимые значения: " + fe.Param()
	case "assignable_role":
		return "допустимые значения: user, admin"
	case "site_status":
		return "допустимые значения: active, suspended"
	case "project_status":
		return "допустимые значения: planned, in_progress, completed"
	case "ticket_status":
		return "допустимые значения: open, in_progress, resolved, closed"
	case "ticket_priority":
		return "допустимые значения: low, normal, high"
	default:
		return "некорректное значение"
	}
}
