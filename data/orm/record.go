package orm

import "sync"

// Entity 基于字段表的模型实例，适用于未映射到结构体的模型。
//
// 并发安全：不同属性可以由多个 goroutine 同时赋值。
type Entity struct {
	model string

	mu     sync.RWMutex
	fields map[string]any
}

// NewEntity 创建实例，fields 会被复制。
func NewEntity(model string, fields map[string]any) *Entity {
	e := &Entity{model: model, fields: make(map[string]any, len(fields))}
	for k, v := range fields {
		e.fields[k] = v
	}
	return e
}

func (e *Entity) Model() string { return e.model }

func (e *Entity) GetField(name string) (any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.fields[name]
	return v, ok
}

func (e *Entity) SetField(name string, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fields[name] = value
	return nil
}

// DeleteField 删除字段
func (e *Entity) DeleteField(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.fields, name)
}

// Fields 返回字段表副本
func (e *Entity) Fields() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]any, len(e.fields))
	for k, v := range e.fields {
		out[k] = v
	}
	return out
}

// Collection 有序的同模型实例集合。
type Collection struct {
	model string
	items []IRecord
}

// NewCollection 创建空集合
func NewCollection(model string) *Collection {
	return &Collection{model: model, items: []IRecord{}}
}

func (c *Collection) Model() string { return c.model }

func (c *Collection) Append(records ...IRecord) {
	c.items = append(c.items, records...)
}

func (c *Collection) Len() int { return len(c.items) }

func (c *Collection) At(i int) IRecord { return c.items[i] }

// Items 返回元素切片副本
func (c *Collection) Items() []IRecord {
	out := make([]IRecord, len(c.items))
	copy(out, c.items)
	return out
}
