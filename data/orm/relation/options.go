package relation

import "relgraph/logging"

const defaultDescriptorCacheSize = 1024

type options struct {
	logger      logging.Logger
	concurrency int
	sinks       []EventSink
	cacheSize   int
}

// Option 配置 Loader
type Option func(*options)

// WithLogger 指定日志器，默认使用全局日志器
func WithLogger(l logging.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithConcurrency InitializeAll 同时初始化的属性数，默认 1（按声明顺序串行）
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithEventSink 追加初始化事件接收方
func WithEventSink(sink EventSink) Option {
	return func(o *options) {
		if sink != nil {
			o.sinks = append(o.sinks, sink)
		}
	}
}

// WithDescriptorCacheSize 描述符缓存容量，<=0 表示不限制
func WithDescriptorCacheSize(n int) Option {
	return func(o *options) { o.cacheSize = n }
}
