package errors

import (
	"errors"
	"fmt"
)

// ErrorCode 错误码类型
type ErrorCode string

const (
	CodeInvalidInput   ErrorCode = "INVALID_INPUT"
	CodeNotFound       ErrorCode = "NOT_FOUND"
	CodeAlreadyExists  ErrorCode = "ALREADY_EXISTS"
	CodeUnauthorized   ErrorCode = "UNAUTHORIZED"
	CodeForbidden      ErrorCode = "FORBIDDEN"
	CodeInternal       ErrorCode = "INTERNAL_ERROR"
	CodeServiceUnavail ErrorCode = "SERVICE_UNAVAILABLE"
)

// Kind classifies an error by subsystem, independent of ErrorCode's HTTP-ish
// status grouping. Mirrors the taxonomy the platform's error handling design
// enumerates: callers switch on Kind to decide whether to retry, surface to
// the end user, or escalate.
type Kind string

const (
	KindProvider         Kind = "provider"
	KindProviderNotFound Kind = "provider_not_found"
	KindModelNotFound    Kind = "model_not_found"
	KindAPIKeyMissing    Kind = "api_key_missing"
	KindChannel          Kind = "channel"
	KindChannelOffline   Kind = "channel_not_connected"
	KindAuthFailed       Kind = "auth_failed"
	KindMemory           Kind = "memory"
	KindTool             Kind = "tool"
	KindToolNotFound     Kind = "tool_not_found"
	KindSecurity         Kind = "security"
	KindPermissionDenied Kind = "permission_denied"
	KindConfig           Kind = "config"
	KindConfigNotFound   Kind = "config_not_found"
	KindGateway          Kind = "gateway"
	KindIO               Kind = "io"
	KindJSON             Kind = "json"
	KindHTTP             Kind = "http"
	KindTimeout          Kind = "timeout"
	KindRateLimited      Kind = "rate_limited"
	KindDelegation       Kind = "delegation"
	KindAgentNotFound    Kind = "agent_not_found"
	KindNoPermission     Kind = "no_permission"
	KindTeam             Kind = "team"
	KindHandoff          Kind = "handoff"
	KindEvaluateLoop     Kind = "evaluate_loop"
	KindQualityGate      Kind = "quality_gate"
	KindDatabase         Kind = "database"
	KindNotFound         Kind = "not_found"
	KindConflict         Kind = "conflict"
	KindOther            Kind = "other"
)

// maxUserMessageLen is the truncation bound applied when an error surfaces to
// an end user (~200 characters).
const maxUserMessageLen = 200

// Truncate trims a message to the user-visible error detail bound.
func Truncate(message string) string {
	if len(message) <= maxUserMessageLen {
		return message
	}
	return message[:maxUserMessageLen] + "…"
}

// AppError 应用错误
type AppError struct {
	Code    ErrorCode
	Kind    Kind
	Message string
	Err     error
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 实现 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// UserMessage returns a truncated, user-safe rendering of the error.
func (e *AppError) UserMessage() string {
	return Truncate(e.Message)
}

// NewInvalidInputError 创建无效输入错误
func NewInvalidInputError(message string) *AppError {
	return &AppError{
		Code:    CodeInvalidInput,
		Message: message,
	}
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: message,
	}
}

// NewAlreadyExistsError 创建已存在错误
func NewAlreadyExistsError(message string) *AppError {
	return &AppError{
		Code:    CodeAlreadyExists,
		Message: message,
	}
}

// NewInternalError 创建内部错误
func NewInternalError(message string) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: message,
	}
}

// NewInternalErrorWithCause 创建带原因的内部错误
func NewInternalErrorWithCause(message string, cause error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: message,
		Err:     cause,
	}
}

// IsNotFound 判断是否为未找到错误
func IsNotFound(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == CodeNotFound
	}
	return false
}

// IsInvalidInput 判断是否为无效输入错误
func IsInvalidInput(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == CodeInvalidInput
	}
	return false
}

// IsKind reports whether err (or any error it wraps) carries the given Kind.
func IsKind(err error, kind Kind) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// New builds an AppError tagged with a specific subsystem Kind. Most call
// sites use this instead of the legacy Code-only constructors so that
// retry/escalation logic can dispatch on Kind.
func New(kind Kind, message string, cause error) *AppError {
	code := CodeInternal
	switch kind {
	case KindProviderNotFound, KindModelNotFound, KindToolNotFound, KindAgentNotFound, KindConfigNotFound, KindNotFound:
		code = CodeNotFound
	case KindAuthFailed, KindAPIKeyMissing:
		code = CodeUnauthorized
	case KindPermissionDenied, KindSecurity, KindNoPermission:
		code = CodeForbidden
	case KindRateLimited, KindTimeout:
		code = CodeServiceUnavail
	case KindConflict:
		code = CodeAlreadyExists
	}
	return &AppError{Code: code, Kind: kind, Message: message, Err: cause}
}

// Wrap builds an AppError of the given Kind with err as its cause and
// err.Error() as its message. Unlike New, its Code is always CodeInternal.
func Wrap(kind Kind, err error) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: CodeInternal, Kind: kind, Message: err.Error(), Err: err}
}
