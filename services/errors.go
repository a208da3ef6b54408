package services

import (
	"errors"
	"fmt"
	"time"

	"suanming_maya/apperrors"
)

// SubsystemErrorKind 子系统调用失败的类型
type SubsystemErrorKind string

const (
	// SubsystemUnavailable 超时、网络错误或非2xx响应，编排器会重试一次
	SubsystemUnavailable SubsystemErrorKind = "Unavailable"
	// SubsystemMalformed 响应结构或取值不合法，不重试
	SubsystemMalformed SubsystemErrorKind = "MalformedResponse"
)

// SubsystemError 子系统调用失败
type SubsystemError struct {
	Subsystem string
	Kind      SubsystemErrorKind
	Err       error
}

func (e *SubsystemError) Error() string {
	return fmt.Sprintf("%s subsystem %s: %v", e.Subsystem, e.Kind, e.Err)
}

func (e *SubsystemError) Unwrap() error {
	return e.Err
}

func unavailable(subsystem string, err error) *SubsystemError {
	return &SubsystemError{Subsystem: subsystem, Kind: SubsystemUnavailable, Err: err}
}

func malformed(subsystem string, format string, args ...any) *SubsystemError {
	return &SubsystemError{Subsystem: subsystem, Kind: SubsystemMalformed, Err: fmt.Errorf(format, args...)}
}

// IsUnavailable 是否属于可重试的子系统错误
func IsUnavailable(err error) bool {
	var se *SubsystemError
	return errors.As(err, &se) && se.Kind == SubsystemUnavailable
}

// QuotaExceededError 本月额度已用完
type QuotaExceededError struct {
	Limit   int
	Used    int
	ResetAt time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("monthly quota exceeded (%d/%d), resets at %s", e.Used, e.Limit, e.ResetAt.Format(time.RFC3339))
}

// Unwrap 使 errors.Is(err, apperrors.ErrQuotaExceeded) 成立
func (e *QuotaExceededError) Unwrap() error {
	return apperrors.ErrQuotaExceeded
}
