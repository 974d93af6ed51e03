package errors

import (
	"context"
	stdErrors "errors"
)

// Normalize 将 orm/数据库层错误规范化为 AppError。
//
// 约定：
//   - 已经是 IError 的原样返回；
//   - 实现 ICoded 的错误（ConfigurationError/PlanError/QueryExecutionError）按自带代码包装，
//     原始错误保留为 cause，errors.Is / errors.As 仍可命中原类型；实现 IDetailed 的附带详情；
//   - context 超时归为 TIMEOUT；
//   - 未识别的错误保持原样，交由调用方决定是否 Wrap。
func Normalize(err error) error {
	if err == nil {
		return nil
	}

	if _, ok := err.(IError); ok {
		return err
	}

	var coded ICoded
	if stdErrors.As(err, &coded) {
		wrapped := WrapError(err, coded.ErrorCode(), messageFor(coded.ErrorCode()))
		var detailed IDetailed
		if stdErrors.As(err, &detailed) {
			return wrapped.WithDetails(detailed.ErrorDetails())
		}
		return wrapped
	}

	if stdErrors.Is(err, context.DeadlineExceeded) {
		return WrapError(err, ErrCodeTimeout, ErrTimeout.Message())
	}

	return err
}

func messageFor(code ErrorCode) string {
	switch code {
	case ErrCodeConfiguration:
		return ErrConfiguration.Message()
	case ErrCodePlan:
		return ErrPlan.Message()
	case ErrCodeQueryExecution:
		return ErrQueryExecution.Message()
	case ErrCodeDatabase:
		return ErrDatabase.Message()
	default:
		return string(code)
	}
}
