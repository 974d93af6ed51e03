// Package notify 将关联初始化事件投递到消息系统（NATS、Redis Streams）。
package notify

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"

	"relgraph/data/orm/relation"
)

// Codec 事件载荷编解码
type Codec interface {
	Encode(evt relation.InitEvent) ([]byte, error)
	Decode(data []byte) (relation.InitEvent, error)
	ContentType() string
}

// JSONCodec 使用 JSON 编码
type JSONCodec struct{}

func (JSONCodec) Encode(evt relation.InitEvent) ([]byte, error) { return json.Marshal(evt) }

func (JSONCodec) Decode(data []byte) (relation.InitEvent, error) {
	var evt relation.InitEvent
	err := json.Unmarshal(data, &evt)
	return evt, err
}

func (JSONCodec) ContentType() string { return "application/json" }

// MsgpackCodec 使用 msgpack 编码，载荷更小
type MsgpackCodec struct{}

func (MsgpackCodec) Encode(evt relation.InitEvent) ([]byte, error) { return msgpack.Marshal(&evt) }

func (MsgpackCodec) Decode(data []byte) (relation.InitEvent, error) {
	var evt relation.InitEvent
	err := msgpack.Unmarshal(data, &evt)
	return evt, err
}

func (MsgpackCodec) ContentType() string { return "application/msgpack" }

func codecOrDefault(c Codec) Codec {
	if c == nil {
		return JSONCodec{}
	}
	return c
}
