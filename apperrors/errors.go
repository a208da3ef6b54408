package apperrors

import (
	"errors"
	"fmt"
)

// Kind 错误分类，决定对外的HTTP状态码和错误码
type Kind string

const (
	KindInvalidInput        Kind = "InvalidInput"
	KindInvalidWeights      Kind = "InvalidWeights"
	KindEmptyCategorySet    Kind = "EmptyCategorySet"
	KindQuotaExceeded       Kind = "QuotaExceeded"
	KindAnalysisUnavailable Kind = "AnalysisUnavailable"
	KindInsightUnavailable  Kind = "InsightUnavailable"
	KindUnauthorized        Kind = "Unauthorized"
	KindNotFound            Kind = "NotFound"
	KindInternal            Kind = "Internal"
)

var (
	ErrInvalidInput        = &Error{Kind: KindInvalidInput, Message: "invalid input"}
	ErrInvalidWeights      = &Error{Kind: KindInvalidWeights, Message: "weights must each be within [0,1] and sum to 1.0 (±0.01)"}
	ErrEmptyCategorySet    = &Error{Kind: KindEmptyCategorySet, Message: "at least one category is required"}
	ErrQuotaExceeded       = &Error{Kind: KindQuotaExceeded, Message: "monthly quota exceeded"}
	ErrAnalysisUnavailable = &Error{Kind: KindAnalysisUnavailable, Message: "analysis is temporarily unavailable"}
	ErrInsightUnavailable  = &Error{Kind: KindInsightUnavailable, Message: "insight generation unavailable"}
	ErrUnauthorized        = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
	ErrNotFound            = &Error{Kind: KindNotFound, Message: "not found"}
)

// Error 带分类的业务错误
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

// Is 同一Kind的错误视为相等，便于 errors.Is(err, apperrors.ErrInvalidInput)
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New 创建指定分类的错误
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap 用指定分类包装底层错误
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// InvalidInput 参数校验失败
func InvalidInput(format string, args ...any) *Error {
	return New(KindInvalidInput, format, args...)
}

// KindOf 提取错误分类，未分类的错误视为Internal
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// PublicMessage 返回可以直接给调用方看的消息，内部错误不暴露细节
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return "internal server error"
}
