package relation

import (
	"context"
	"time"
)

// InitEvent 单个关联属性初始化完成后发出的事件。
type InitEvent struct {
	LoadID   string        `json:"load_id" msgpack:"load_id"`
	Model    string        `json:"model" msgpack:"model"`
	Property string        `json:"property" msgpack:"property"`
	Kind     string        `json:"kind" msgpack:"kind"`
	Rows     int           `json:"rows" msgpack:"rows"`
	Skipped  bool          `json:"skipped" msgpack:"skipped"`
	Duration time.Duration `json:"duration_ns" msgpack:"duration_ns"`
	Err      string        `json:"error,omitempty" msgpack:"error,omitempty"`
	Code     string        `json:"code,omitempty" msgpack:"code,omitempty"`
	At       time.Time     `json:"at" msgpack:"at"`
}

// EventSink 接收初始化事件。投递失败只记录日志，不影响加载结果。
type EventSink interface {
	Publish(ctx context.Context, evt InitEvent) error
}

// EventSinkFunc 函数适配器
type EventSinkFunc func(ctx context.Context, evt InitEvent) error

func (f EventSinkFunc) Publish(ctx context.Context, evt InitEvent) error { return f(ctx, evt) }
