package errors

import (
	"context"
	"fmt"
	"runtime"

	"relgraph/logging"
)

// WrapWithLog 包装错误并记录警告日志
func WrapWithLog(ctx context.Context, err error, code ErrorCode, msg string, fields ...logging.Field) error {
	if err == nil {
		return nil
	}

	_, file, line, _ := runtime.Caller(1)
	wrapped := WrapError(err, code, msg)

	allFields := append([]logging.Field{
		logging.Error(err),
		logging.String("error_code", string(code)),
		logging.String("location", fmt.Sprintf("%s:%d", file, line)),
	}, fields...)
	logging.GetLogger().Warn(ctx, msg, allFields...)

	return wrapped
}

// WrapDatabaseError 包装数据库错误，已带错误码的错误保留原码
func WrapDatabaseError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	if code := GetErrorCode(err); code != ErrCodeInternal {
		return WrapError(err, code, operation)
	}

	return WrapWithLog(ctx, err, ErrCodeDatabase,
		fmt.Sprintf("数据库操作失败: %s", operation),
		logging.String("operation", operation),
	)
}
