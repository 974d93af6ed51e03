// Package logging 提供统一的日志接口抽象
package logging

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

// Level 日志级别
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// ParseLevel 解析级别名称（大小写不敏感），未知名称返回 InfoLevel
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Logger 日志接口
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)

	// WithFields 添加字段，返回新的Logger
	WithFields(fields ...Field) Logger
}

// Field 日志字段
type Field struct {
	Key   string
	Value any
}

// 字段构造函数
func String(key, value string) Field                 { return Field{Key: key, Value: value} }
func Int(key string, value int) Field                { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field            { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field              { return Field{Key: key, Value: value} }
func Any(key string, value any) Field                { return Field{Key: key, Value: value} }
func Error(err error) Field                          { return Field{Key: "error", Value: err} }
func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value} }

// Component 约定的组件字段
func Component(name string) Field { return Field{Key: "component", Value: name} }

// StdLogger 标准库log实现，低于 level 的日志被丢弃
type StdLogger struct {
	out    *log.Logger
	prefix string
	level  Level
	fields []Field
}

// NewStdLogger 创建输出到 stderr、级别为 Info 的标准库Logger
func NewStdLogger(prefix string) *StdLogger {
	return NewStdLoggerWithWriter(prefix, os.Stderr, InfoLevel)
}

// NewStdLoggerWithWriter 创建输出到指定 writer 的标准库Logger
func NewStdLoggerWithWriter(prefix string, w io.Writer, level Level) *StdLogger {
	return &StdLogger{
		out:    log.New(w, "", log.LstdFlags),
		prefix: prefix,
		level:  level,
	}
}

func (l *StdLogger) format(msg string, fields ...Field) string {
	var sb strings.Builder
	if l.prefix != "" {
		sb.WriteString(l.prefix)
		sb.WriteByte(' ')
	}
	sb.WriteString(msg)
	for _, f := range l.fields {
		sb.WriteString(" " + f.Key + "=" + formatValue(f.Value))
	}
	for _, f := range fields {
		sb.WriteString(" " + f.Key + "=" + formatValue(f.Value))
	}
	return sb.String()
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case error:
		if val == nil {
			return "<nil>"
		}
		return val.Error()
	default:
		return fmt.Sprint(val)
	}
}

func (l *StdLogger) log(level Level, msg string, fields []Field) {
	if level < l.level {
		return
	}
	l.out.Println("["+level.String()+"]", l.format(msg, fields...))
}

func (l *StdLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.log(DebugLevel, msg, fields)
}

func (l *StdLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.log(InfoLevel, msg, fields)
}

func (l *StdLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.log(WarnLevel, msg, fields)
}

func (l *StdLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.log(ErrorLevel, msg, fields)
}

func (l *StdLogger) WithFields(fields ...Field) Logger {
	newFields := make([]Field, len(l.fields)+len(fields))
	copy(newFields, l.fields)
	copy(newFields[len(l.fields):], fields)
	return &StdLogger{
		out:    l.out,
		prefix: l.prefix,
		level:  l.level,
		fields: newFields,
	}
}

// NoopLogger 空日志实现（用于测试）
type NoopLogger struct{}

func NewNoopLogger() *NoopLogger { return &NoopLogger{} }

func (l *NoopLogger) Debug(ctx context.Context, msg string, fields ...Field) {}
func (l *NoopLogger) Info(ctx context.Context, msg string, fields ...Field)  {}
func (l *NoopLogger) Warn(ctx context.Context, msg string, fields ...Field)  {}
func (l *NoopLogger) Error(ctx context.Context, msg string, fields ...Field) {}
func (l *NoopLogger) WithFields(fields ...Field) Logger                      { return l }

type loggerHolder struct{ Logger }

// 全局Logger，并发安全
var globalLogger atomic.Value

func init() {
	globalLogger.Store(loggerHolder{NewStdLogger("")})
}

// SetLogger 设置全局Logger，nil 被忽略
func SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	globalLogger.Store(loggerHolder{logger})
}

// GetLogger 获取全局Logger
func GetLogger() Logger {
	return globalLogger.Load().(loggerHolder).Logger
}
