package notify

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"relgraph/data/orm/relation"
	apperrors "relgraph/errors"
	"relgraph/logging"
)

// streamClient 仅依赖 XADD
type streamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisStreamConfig Redis Streams 事件投递配置
type RedisStreamConfig struct {
	// Client 已建立的客户端；为空时按 Addr 创建并由 RedisStreamPublisher 持有
	Client   redis.UniversalClient
	Addr     string
	Username string
	Password string
	DB       int

	Stream string
	// MaxLen 近似裁剪流长度，0 表示不裁剪
	MaxLen int64
	Codec  Codec
	Logger logging.Logger
}

// RedisStreamPublisher 以 XADD 投递初始化事件，实现 relation.EventSink。
type RedisStreamPublisher struct {
	cfg    RedisStreamConfig
	client streamClient
	owned  *redis.Client
	codec  Codec
	logger logging.Logger
}

// NewRedisStreamPublisher 创建 Redis Streams 投递器
func NewRedisStreamPublisher(cfg RedisStreamConfig) (*RedisStreamPublisher, error) {
	if cfg.Stream == "" {
		cfg.Stream = "relgraph:relation:init"
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.GetLogger().WithFields(logging.Component("relation.notify.redis"))
	}
	p := &RedisStreamPublisher{cfg: cfg, codec: codecOrDefault(cfg.Codec), logger: cfg.Logger}

	if cfg.Client != nil {
		p.client = cfg.Client
		return p, nil
	}
	if cfg.Addr == "" {
		return nil, errors.New("redis stream publisher: addr or client is required")
	}
	c := redis.NewClient(&redis.Options{Addr: cfg.Addr, Username: cfg.Username, Password: cfg.Password, DB: cfg.DB})
	p.client = c
	p.owned = c
	return p, nil
}

func newRedisStreamPublisherWith(client streamClient, cfg RedisStreamConfig) *RedisStreamPublisher {
	if cfg.Stream == "" {
		cfg.Stream = "relgraph:relation:init"
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNoopLogger()
	}
	return &RedisStreamPublisher{cfg: cfg, client: client, codec: codecOrDefault(cfg.Codec), logger: cfg.Logger}
}

// Publish 实现 relation.EventSink
func (p *RedisStreamPublisher) Publish(ctx context.Context, evt relation.InitEvent) error {
	values, err := p.encode(evt)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{Stream: p.cfg.Stream, Values: values}
	if p.cfg.MaxLen > 0 {
		args.MaxLen = p.cfg.MaxLen
		args.Approx = true
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeQueue, "redis xadd "+p.cfg.Stream)
	}
	return nil
}

func (p *RedisStreamPublisher) encode(evt relation.InitEvent) (map[string]any, error) {
	data, err := p.codec.Encode(evt)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"load_id":      evt.LoadID,
		"model":        evt.Model,
		"property":     evt.Property,
		"content_type": p.codec.ContentType(),
		"payload":      data,
	}, nil
}

// DecodeStreamEntry 还原流中的事件条目
func DecodeStreamEntry(entry redis.XMessage) (relation.InitEvent, error) {
	var codec Codec = JSONCodec{}
	if ct, _ := entry.Values["content_type"].(string); ct == (MsgpackCodec{}).ContentType() {
		codec = MsgpackCodec{}
	}
	switch payload := entry.Values["payload"].(type) {
	case string:
		return codec.Decode([]byte(payload))
	case []byte:
		return codec.Decode(payload)
	default:
		return relation.InitEvent{}, errors.New("redis stream entry has no payload")
	}
}

// Close 关闭自行创建的客户端
func (p *RedisStreamPublisher) Close() error {
	if p.owned != nil {
		return p.owned.Close()
	}
	return nil
}

var _ relation.EventSink = (*RedisStreamPublisher)(nil)
