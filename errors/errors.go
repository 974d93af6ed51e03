package errors

import (
	stdErrors "errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorCode 错误代码类型
type ErrorCode string

// 预定义错误代码
const (
	// 通用错误代码
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeTimeout  ErrorCode = "TIMEOUT"

	// 关系加载错误代码
	ErrCodeConfiguration  ErrorCode = "CONFIGURATION_ERROR"
	ErrCodePlan           ErrorCode = "PLAN_ERROR"
	ErrCodeQueryExecution ErrorCode = "QUERY_EXECUTION_ERROR"

	// 基础设施错误代码
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
	ErrCodeQueue    ErrorCode = "QUEUE_ERROR"
)

// ICoded 可选接口：自带错误代码的错误类型（例如关系加载的三类错误）
type ICoded interface {
	error
	ErrorCode() ErrorCode
}

// IDetailed 可选接口：规范化时附加到 AppError 的详情
type IDetailed interface {
	ErrorDetails() map[string]any
}

// IError 错误接口
type IError interface {
	error

	Code() ErrorCode
	Message() string
	Cause() error
	Details() map[string]any
	Stack() string
	Is(target error) bool

	WithDetails(details map[string]any) IError
}

// AppError 应用错误实现
type AppError struct {
	code    ErrorCode
	message string
	cause   error
	details map[string]any
	stack   string
}

// NewError 创建新错误
func NewError(code ErrorCode, message string) IError {
	return &AppError{
		code:    code,
		message: message,
		details: make(map[string]any),
		stack:   captureStack(),
	}
}

// WrapError 包装错误
func WrapError(err error, code ErrorCode, message string) IError {
	if err == nil {
		return nil
	}
	return &AppError{
		code:    code,
		message: message,
		cause:   err,
		details: make(map[string]any),
		stack:   captureStack(),
	}
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

func (e *AppError) Code() ErrorCode { return e.code }
func (e *AppError) Message() string { return e.message }
func (e *AppError) Cause() error    { return e.cause }
func (e *AppError) Stack() string   { return e.stack }

// Details 获取错误详情
func (e *AppError) Details() map[string]any {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	return e.details
}

// Is 同码 AppError 视为相等，否则委托给 cause
func (e *AppError) Is(target error) bool {
	if target == nil {
		return false
	}
	if appErr, ok := target.(*AppError); ok {
		return e.code == appErr.code
	}
	if e.cause != nil {
		return stdErrors.Is(e.cause, target)
	}
	return false
}

// Unwrap 解包错误（支持 errors.Unwrap）
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithDetails 添加详情，返回副本
func (e *AppError) WithDetails(details map[string]any) IError {
	newDetails := copyMap(e.details)
	for k, v := range details {
		newDetails[k] = v
	}
	return &AppError{
		code:    e.code,
		message: e.message,
		cause:   e.cause,
		details: newDetails,
		stack:   e.stack,
	}
}

// 预定义错误变量
var (
	ErrTimeout        = NewError(ErrCodeTimeout, "操作超时")
	ErrConfiguration  = NewError(ErrCodeConfiguration, "关系元数据配置错误")
	ErrPlan           = NewError(ErrCodePlan, "关系查询计划构建失败")
	ErrQueryExecution = NewError(ErrCodeQueryExecution, "关系查询执行失败")
	ErrDatabase       = NewError(ErrCodeDatabase, "数据库错误")
)

// IsErrorCode 检查是否为指定错误代码；同时识别 AppError 与 ICoded
func IsErrorCode(err error, code ErrorCode) bool {
	return err != nil && GetErrorCode(err) == code
}

// GetErrorCode 获取错误代码，未识别的错误视为内部错误
func GetErrorCode(err error) ErrorCode {
	if err == nil {
		return ""
	}

	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return appErr.code
	}

	var coded ICoded
	if stdErrors.As(err, &coded) {
		return coded.ErrorCode()
	}

	return ErrCodeInternal
}

// captureStack 捕获堆栈信息
func captureStack() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])

	var builder strings.Builder
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		builder.WriteString(fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function))
		if !more {
			break
		}
	}
	return builder.String()
}

// copyMap 复制映射
func copyMap(original map[string]any) map[string]any {
	copied := make(map[string]any, len(original))
	for k, v := range original {
		copied[k] = v
	}
	return copied
}
