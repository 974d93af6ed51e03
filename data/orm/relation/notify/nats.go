package notify

import (
	"context"
	"errors"
	"strings"

	"github.com/nats-io/nats.go"

	"relgraph/data/orm/relation"
	apperrors "relgraph/errors"
	"relgraph/logging"
)

// natsPublisher 仅依赖 PublishMsg，*nats.Conn 与测试替身均满足
type natsPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// NatsConfig NATS 事件投递配置
type NatsConfig struct {
	// Conn 已建立的连接；为空时按 URL 建立并由 NatsPublisher 持有
	Conn *nats.Conn
	URL  string

	// SubjectPrefix 主题前缀，完整主题为 <prefix><model>.<property>
	SubjectPrefix string
	Codec         Codec
	Logger        logging.Logger
}

// NatsPublisher 以 core NATS publish 投递初始化事件，实现 relation.EventSink。
type NatsPublisher struct {
	cfg    NatsConfig
	conn   natsPublisher
	owned  *nats.Conn
	codec  Codec
	logger logging.Logger
}

// NewNatsPublisher 创建 NATS 投递器
func NewNatsPublisher(cfg NatsConfig) (*NatsPublisher, error) {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "relgraph.relation."
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.GetLogger().WithFields(logging.Component("relation.notify.nats"))
	}
	p := &NatsPublisher{cfg: cfg, codec: codecOrDefault(cfg.Codec), logger: cfg.Logger}

	if cfg.Conn != nil {
		p.conn = cfg.Conn
		return p, nil
	}
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	conn, err := nats.Connect(url, nats.Name("relgraph-relation-notify"))
	if err != nil {
		return nil, err
	}
	p.conn = conn
	p.owned = conn
	return p, nil
}

func newNatsPublisherWith(conn natsPublisher, cfg NatsConfig) *NatsPublisher {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "relgraph.relation."
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNoopLogger()
	}
	return &NatsPublisher{cfg: cfg, conn: conn, codec: codecOrDefault(cfg.Codec), logger: cfg.Logger}
}

// Publish 实现 relation.EventSink
func (p *NatsPublisher) Publish(ctx context.Context, evt relation.InitEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.conn == nil {
		return errors.New("nats publisher not connected")
	}
	data, err := p.codec.Encode(evt)
	if err != nil {
		return err
	}
	msg := nats.NewMsg(p.subject(evt))
	msg.Header.Set("Content-Type", p.codec.ContentType())
	msg.Header.Set("Load-Id", evt.LoadID)
	msg.Data = data
	if err := p.conn.PublishMsg(msg); err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeQueue, "nats publish "+msg.Subject)
	}
	return nil
}

func (p *NatsPublisher) subject(evt relation.InitEvent) string {
	return p.cfg.SubjectPrefix + subjectToken(evt.Model) + "." + subjectToken(evt.Property)
}

// subjectToken NATS 主题中 "." 为层级分隔，空白与通配符不可用
func subjectToken(s string) string {
	return strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(s)
}

// Close 关闭自行建立的连接
func (p *NatsPublisher) Close() error {
	if p.owned != nil {
		if err := p.owned.Drain(); err != nil {
			p.logger.Warn(context.Background(), "nats drain failed", logging.Error(err))
			p.owned.Close()
		}
	}
	return nil
}

var _ relation.EventSink = (*NatsPublisher)(nil)
