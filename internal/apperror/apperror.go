// Package apperror описывает классы ошибок приложения и их сопоставление с ответами API.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind - класс ошибки
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindAuth
	KindAuthorization
	KindNotFound
	KindConflict
	KindDependency
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindDependency:
		return "dependency"
	case KindPersistence:
		return "persistence"
	}
	return "unknown"
}

// HTTPStatus возвращает HTTP-код для класса ошибки
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// Error - ошибка приложения с классом и сообщением для клиента
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is позволяет сравнивать ошибки по классу: errors.Is(err, apperror.ErrNotFound)
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Шаблоны для errors.Is
var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrAuth          = &Error{Kind: KindAuth}
	ErrAuthorization = &Error{Kind: KindAuthorization}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrConflict      = &Error{Kind: KindConflict}
	ErrDependency    = &Error{Kind: KindDependency}
	ErrPersistence   = &Error{Kind: KindPersistence}
)

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) error {
	return newf(KindValidation, format, args...)
}

func Auth(format string, args ...any) error {
	return newf(KindAuth, format, args...)
}

func Authorization(format string, args ...any) error {
	return newf(KindAuthorization, format, args...)
}

func NotFound(format string, args ...any) error {
	return newf(KindNotFound, format, args...)
}

func Conflict(format string, args ...any) error {
	return newf(KindConflict, format, args...)
}

// Dependency оборачивает сбой внешнего сервиса (геокодер, маршруты)
func Dependency(err error, message string) error {
	return &Error{Kind: KindDependency, Message: message, Err: err}
}

// Persistence оборачивает сбой хранилища
func Persistence(err error, message string) error {
	return &Error{Kind: KindPersistence, Message: message, Err: err}
}

// KindOf возвращает класс ошибки; для посторонних ошибок - KindUnknown
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// PublicMessage возвращает сообщение, которое можно показать клиенту
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindPersistence && e.Kind != KindUnknown {
		return e.Message
	}
	return "internal server error"
}
