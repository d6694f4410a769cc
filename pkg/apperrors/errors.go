package apperrors

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Kind классифицирует ошибку для пользовательского ответа и политики повторов
type Kind string

const (
	KindNotRegistered          Kind = "not_registered"
	KindInsufficientPermission Kind = "insufficient_permission"
	KindInsufficientFunds      Kind = "insufficient_funds"
	KindInvalidInput           Kind = "invalid_input"
	KindConflict               Kind = "conflict"
	KindNotFound               Kind = "not_found"
	KindRateLimited            Kind = "rate_limited"
	KindTransientStore         Kind = "transient_store_error"
	KindPlatform               Kind = "platform_error"
	KindInternal               Kind = "internal_error"
)

// pgUniqueViolation код ошибки PostgreSQL для нарушения уникальности
const pgUniqueViolation = "23505"

// Error единый тип ошибки предметной области
type Error struct {
	Kind    Kind
	Message string
	Cause   error

	// Required и Available заполняются только для KindInsufficientFunds
	Required  decimal.Decimal
	Available decimal.Decimal
}

// Error реализует интерфейс error
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap позволяет errors.Is / errors.As спускаться к причине
func (e *Error) Unwrap() error { return e.Cause }

// Is сравнивает ошибки по виду, чтобы работали сторожевые значения ниже
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// Сторожевые значения для errors.Is
var (
	ErrNotRegistered          = &Error{Kind: KindNotRegistered}
	ErrInsufficientPermission = &Error{Kind: KindInsufficientPermission}
	ErrInsufficientFunds      = &Error{Kind: KindInsufficientFunds}
	ErrInvalidInput           = &Error{Kind: KindInvalidInput}
	ErrConflict               = &Error{Kind: KindConflict}
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrRateLimited            = &Error{Kind: KindRateLimited}
	ErrTransientStore         = &Error{Kind: KindTransientStore}
	ErrPlatform               = &Error{Kind: KindPlatform}
	ErrInternal               = &Error{Kind: KindInternal}

	// ErrCacheMiss возвращается, когда ключ не найден в Redis
	ErrCacheMiss = redis.Nil
	// ErrRecordNotFound возвращается, когда запись не найдена в базе данных
	ErrRecordNotFound = gorm.ErrRecordNotFound

	// IgnoredErrors не считаются отказом для circuit breaker
	IgnoredErrors = []error{
		ErrNotFound,
		ErrCacheMiss,
		ErrRecordNotFound,
		ErrInsufficientFunds,
		ErrInvalidInput,
		ErrConflict,
		ErrNotRegistered,
		ErrInsufficientPermission,
		ErrRateLimited,
	}
)

// New создает ошибку заданного вида
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap оборачивает причину ошибкой заданного вида
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func NotRegistered(format string, args ...any) *Error {
	return New(KindNotRegistered, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return New(KindInsufficientPermission, format, args...)
}

func InvalidInput(format string, args ...any) *Error {
	return New(KindInvalidInput, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return New(KindConflict, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

func RateLimited(format string, args ...any) *Error {
	return New(KindRateLimited, format, args...)
}

func Platform(cause error, format string, args ...any) *Error {
	return Wrap(KindPlatform, cause, format, args...)
}

func Internal(cause error, format string, args ...any) *Error {
	return Wrap(KindInternal, cause, format, args...)
}

// InsufficientFunds сообщает о нехватке баллов с требуемой и доступной суммой
func InsufficientFunds(required, available decimal.Decimal) *Error {
	return &Error{
		Kind:      KindInsufficientFunds,
		Message:   fmt.Sprintf("required %s, available %s", required.StringFixed(2), available.StringFixed(2)),
		Required:  required,
		Available: available,
	}
}

// KindOf возвращает вид ошибки; неизвестные ошибки считаются внутренними
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if IsNotFound(err) {
		return KindNotFound
	}
	return KindInternal
}

// Is проверяет вид ошибки
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsNotFound проверяет, является ли ошибка ошибкой "запись не найдена"
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindNotFound
	}
	return errors.Is(err, ErrCacheMiss) ||
		errors.Is(err, ErrRecordNotFound)
}

// IsTransient сообщает, можно ли безопасно повторить операцию на уровне пользователя
func IsTransient(err error) bool {
	return KindOf(err) == KindTransientStore
}

// FromStore переводит ошибку хранилища в ошибку предметной области
func FromStore(err error, operation string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, redis.Nil) {
		return Wrap(KindNotFound, err, "%s", operation)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation {
		return Wrap(KindConflict, err, "%s: duplicate key", operation)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return Wrap(KindConflict, err, "%s: duplicate key", operation)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		errors.Is(err, driver.ErrBadConn) || errors.Is(err, redis.ErrClosed) {
		return Wrap(KindTransientStore, err, "%s", operation)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Wrap(KindTransientStore, err, "%s", operation)
	}
	return Wrap(KindInternal, err, "%s", operation)
}
