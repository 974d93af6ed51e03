package relation

import (
	"errors"
	"fmt"

	"relgraph/data/db/dialect"
	apperrors "relgraph/errors"
)

// 用于 errors.Is 判断的哨兵错误
var (
	ErrConfiguration  = errors.New("relation: configuration error")
	ErrPlan           = errors.New("relation: plan error")
	ErrQueryExecution = errors.New("relation: query execution error")
)

// ConfigurationError 声明的关联元数据无效：关联模型无法解析、键字段缺失、
// 中间模型或反向属性声明不完整。
type ConfigurationError struct {
	Owner    string
	Property string
	Reason   string
	Err      error
}

func (e *ConfigurationError) Error() string {
	return format("configuration", e.Owner, e.Property, e.Reason, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

func (e *ConfigurationError) ErrorCode() apperrors.ErrorCode { return apperrors.ErrCodeConfiguration }

func (e *ConfigurationError) ErrorDetails() map[string]any {
	return details(e.Owner, e.Property, "reason", e.Reason)
}

// PlanError 元数据看似有效但无法构建查询计划（表结构不符、标识符非法、别名冲突）。
type PlanError struct {
	Owner    string
	Property string
	Reason   string
	Err      error
}

func (e *PlanError) Error() string {
	return format("plan", e.Owner, e.Property, e.Reason, e.Err)
}

func (e *PlanError) Unwrap() error { return e.Err }

func (e *PlanError) Is(target error) bool { return target == ErrPlan }

func (e *PlanError) ErrorCode() apperrors.ErrorCode { return apperrors.ErrCodePlan }

func (e *PlanError) ErrorDetails() map[string]any {
	return details(e.Owner, e.Property, "reason", e.Reason)
}

// QueryExecutionError 数据库调用或结果物化失败。Class 仅用于诊断。
type QueryExecutionError struct {
	Owner    string
	Property string
	Query    string
	Class    dialect.ErrorClass
	Err      error
}

func (e *QueryExecutionError) Error() string {
	return format("query execution", e.Owner, e.Property, string(e.Class), e.Err)
}

func (e *QueryExecutionError) Unwrap() error { return e.Err }

func (e *QueryExecutionError) Is(target error) bool { return target == ErrQueryExecution }

func (e *QueryExecutionError) ErrorCode() apperrors.ErrorCode {
	return apperrors.ErrCodeQueryExecution
}

func (e *QueryExecutionError) ErrorDetails() map[string]any {
	return details(e.Owner, e.Property, "class", string(e.Class))
}

func format(kind, owner, property, reason string, err error) string {
	msg := fmt.Sprintf("relation %s.%s: %s", owner, property, kind)
	if reason != "" {
		msg += ": " + reason
	}
	if err != nil {
		msg += ": " + err.Error()
	}
	return msg
}

func details(owner, property, key, value string) map[string]any {
	d := map[string]any{"owner": owner, "property": property}
	if value != "" {
		d[key] = value
	}
	return d
}

func configErr(d Descriptor, reason string, err error) error {
	return &ConfigurationError{Owner: d.OwnerModel, Property: d.Property, Reason: reason, Err: err}
}

func planErr(d Descriptor, reason string, err error) error {
	return &PlanError{Owner: d.OwnerModel, Property: d.Property, Reason: reason, Err: err}
}
