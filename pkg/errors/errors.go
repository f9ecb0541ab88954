// Package errors 定义同步管道的错误分类
//
// ErrConfiguration 在任何网络调用前返回, 不重试;
// ErrUpstream / ErrTimeout 可被抓取阶段的重试器重试;
// ErrValidation 只影响单条记录; ErrDispatch 记录到通知状态上.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// Error 业务错误
type Error struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	HTTPStatus int               `json:"-"`
	Retryable  bool              `json:"-"`
	Cause      error             `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
	Stack      string            `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is 按错误码匹配
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetails 添加详情
func (e *Error) WithDetails(details map[string]string) *Error {
	newErr := e.Copy()
	if newErr.Details == nil {
		newErr.Details = make(map[string]string, len(details))
	}
	for k, v := range details {
		newErr.Details[k] = v
	}
	return newErr
}

// WithDetail 添加单个详情
func (e *Error) WithDetail(key, value string) *Error {
	return e.WithDetails(map[string]string{key: value})
}

// WithMessage 替换错误消息
func (e *Error) WithMessage(message string) *Error {
	newErr := e.Copy()
	newErr.Message = message
	return newErr
}

// WithMessagef 格式化替换错误消息
func (e *Error) WithMessagef(format string, args ...interface{}) *Error {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// Copy 复制错误
func (e *Error) Copy() *Error {
	newErr := &Error{
		Code:       e.Code,
		Message:    e.Message,
		HTTPStatus: e.HTTPStatus,
		Retryable:  e.Retryable,
		Cause:      e.Cause,
		Stack:      e.Stack,
	}
	if e.Details != nil {
		newErr.Details = make(map[string]string, len(e.Details))
		for k, v := range e.Details {
			newErr.Details[k] = v
		}
	}
	return newErr
}

// MarshalJSON 实现 json.Marshaler
func (e *Error) MarshalJSON() ([]byte, error) {
	type Alias Error
	return json.Marshal(&struct {
		*Alias
		Error string `json:"error,omitempty"`
	}{
		Alias: (*Alias)(e),
		Error: e.Error(),
	})
}

// New 创建新错误
func New(code, message string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// NewWithStatus 创建带状态码的错误
func NewWithStatus(code, message string, httpStatus int, retryable bool) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Retryable:  retryable,
	}
}

// Wrap 包装错误
func Wrap(err *Error, cause error) *Error {
	newErr := err.Copy()
	newErr.Cause = cause
	newErr.Stack = getStack()
	return newErr
}

// Wrapf 包装错误并添加信息
func Wrapf(err *Error, format string, args ...interface{}) *Error {
	newErr := err.Copy()
	newErr.Message = fmt.Sprintf("%s: %s", err.Message, fmt.Sprintf(format, args...))
	newErr.Stack = getStack()
	return newErr
}

// WrapWithCause 包装错误并添加原因和信息
func WrapWithCause(err *Error, cause error, format string, args ...interface{}) *Error {
	newErr := err.Copy()
	newErr.Message = fmt.Sprintf("%s: %s", err.Message, fmt.Sprintf(format, args...))
	newErr.Cause = cause
	newErr.Stack = getStack()
	return newErr
}

func getStack() string {
	var pcs [32]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var builder strings.Builder
	for {
		frame, more := frames.Next()
		builder.WriteString(fmt.Sprintf("%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line))
		if !more {
			break
		}
	}
	return builder.String()
}

// FromError 从标准错误转换
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var bizErr *Error
	if errors.As(err, &bizErr) {
		return bizErr
	}
	return Wrap(ErrInternal, err)
}

// 通用错误码
var (
	ErrInternal        = NewWithStatus("INTERNAL_ERROR", "内部错误", http.StatusInternalServerError, false)
	ErrInvalidArgument = NewWithStatus("INVALID_ARGUMENT", "请求参数无效", http.StatusBadRequest, false)
	ErrNotFound        = NewWithStatus("NOT_FOUND", "资源不存在", http.StatusNotFound, false)
	ErrConflict        = NewWithStatus("CONFLICT", "资源冲突", http.StatusConflict, false)
	ErrLimitExceeded   = NewWithStatus("LIMIT_EXCEEDED", "超过限额", http.StatusForbidden, false)
	ErrCanceled        = NewWithStatus("CANCELED", "请求已取消", 499, false)
)

// 同步管道错误码
var (
	ErrConfiguration = NewWithStatus("CONFIGURATION_ERROR", "配置缺失", http.StatusInternalServerError, false)
	ErrUpstream      = NewWithStatus("UPSTREAM_ERROR", "上游接口错误", http.StatusBadGateway, true)
	ErrTimeout       = NewWithStatus("TIMEOUT", "请求超时", http.StatusGatewayTimeout, true)
	ErrValidation    = NewWithStatus("VALIDATION_ERROR", "记录校验失败", http.StatusUnprocessableEntity, false)
	ErrDispatch      = NewWithStatus("DISPATCH_ERROR", "通知投递失败", http.StatusBadGateway, false)
	ErrCircuitOpen   = NewWithStatus("CIRCUIT_OPEN", "上游熔断中", http.StatusServiceUnavailable, true)
)

// ToHTTPStatus 获取 HTTP 状态码
func ToHTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var bizErr *Error
	if errors.As(err, &bizErr) && bizErr.HTTPStatus != 0 {
		return bizErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// Is 判断错误类型
func Is(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	return errors.Is(err, target)
}

// As 提取错误类型
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// GetCode 获取错误码
func GetCode(err error) string {
	if err == nil {
		return ""
	}
	var bizErr *Error
	if errors.As(err, &bizErr) {
		return bizErr.Code
	}
	return "UNKNOWN"
}

// GetMessage 获取错误消息
func GetMessage(err error) string {
	if err == nil {
		return ""
	}
	var bizErr *Error
	if errors.As(err, &bizErr) {
		return bizErr.Message
	}
	return err.Error()
}

// IsRetryable 判断错误是否值得重试
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var bizErr *Error
	if errors.As(err, &bizErr) {
		return bizErr.Retryable
	}
	return false
}

// IsNotFound 判断是否为未找到错误
func IsNotFound(err error) bool {
	return Is(err, ErrNotFound)
}
