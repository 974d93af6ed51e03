// Package cache 提供关系描述符等只读元数据的进程内缓存
//
// 设计原则：
// 1. 容量管理：超过 MaxSize 时按 LRU 驱逐
// 2. 加载合并：同一键的并发加载只执行一次（singleflight）
// 3. 并发安全：互斥锁保护链表与索引
package cache

import (
	"container/list"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache 泛型 LRU 缓存
//
// 使用示例：
//
//	descriptors := cache.New[string, relation.Descriptor](cache.Config{
//	    Name:    "relation_descriptor",
//	    MaxSize: 512,
//	})
//	d, err := descriptors.GetOrLoad("app.User.roles", func() (relation.Descriptor, error) {
//	    return resolver.resolve(...)
//	})
type Cache[K comparable, V any] struct {
	config Config

	mu    sync.Mutex
	items map[K]*list.Element
	lru   *list.List // 最近使用的在前

	group singleflight.Group

	stats Stats
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

// Config 缓存配置
type Config struct {
	// Name 缓存名称（用于日志和统计）
	Name string

	// MaxSize 最大条目数，<=0 表示不限制
	MaxSize int

	// OnEvict 驱逐回调（可选），在持锁状态下调用，不得回调缓存自身
	OnEvict func(key, value any)

	// KeyString 合并并发加载时使用的键串（可选），不同的键必须映射为不同的串。
	// 默认 fmt.Sprintf("%#v", key)
	KeyString func(key any) string
}

// Stats 缓存统计信息
type Stats struct {
	Hits      int64
	Misses    int64
	Loads     int64 // GetOrLoad 实际执行 loader 的次数
	Evictions int64
	Size      int
}

// New 创建缓存实例
func New[K comparable, V any](config Config) *Cache[K, V] {
	if config.Name == "" {
		config.Name = "unnamed"
	}
	if config.KeyString == nil {
		config.KeyString = func(key any) string { return fmt.Sprintf("%#v", key) }
	}
	return &Cache[K, V]{
		config: config,
		items:  make(map[K]*list.Element),
		lru:    list.New(),
	}
}

// Get 获取缓存值，命中时刷新 LRU 位置
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.lru.MoveToFront(el)
		c.stats.Hits++
		return el.Value.(*entry[K, V]).value, true
	}
	c.stats.Misses++
	var zero V
	return zero, false
}

// Set 写入缓存值
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value)
}

func (c *Cache[K, V]) setLocked(key K, value V) {
	if el, ok := c.items[key]; ok {
		el.Value.(*entry[K, V]).value = value
		c.lru.MoveToFront(el)
		return
	}
	if c.config.MaxSize > 0 && len(c.items) >= c.config.MaxSize {
		c.evictOldestLocked()
	}
	c.items[key] = c.lru.PushFront(&entry[K, V]{key: key, value: value})
}

// GetOrLoad 命中则直接返回；未命中时调用 loader 并缓存其结果。
//
// 同一键的并发调用共享一次 loader 执行；loader 返回错误时不缓存。
func (c *Cache[K, V]) GetOrLoad(key K, loader func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(c.config.KeyString(key), func() (any, error) {
		// 另一个调用方可能已完成加载
		c.mu.Lock()
		if el, ok := c.items[key]; ok {
			c.mu.Unlock()
			return el.Value.(*entry[K, V]).value, nil
		}
		c.mu.Unlock()

		loaded, err := loader()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.stats.Loads++
		c.setLocked(key, loaded)
		c.mu.Unlock()
		return loaded, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// Delete 删除条目，返回是否存在
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeLocked(el)
	return true
}

// Clear 清空所有条目
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for el := c.lru.Back(); el != nil; el = c.lru.Back() {
		c.removeLocked(el)
	}
}

// Len 当前条目数
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats 统计信息副本
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = len(c.items)
	return s
}

func (c *Cache[K, V]) evictOldestLocked() {
	if oldest := c.lru.Back(); oldest != nil {
		c.removeLocked(oldest)
		c.stats.Evictions++
	}
}

func (c *Cache[K, V]) removeLocked(el *list.Element) {
	e := el.Value.(*entry[K, V])
	if c.config.OnEvict != nil {
		c.config.OnEvict(e.key, e.value)
	}
	c.lru.Remove(el)
	delete(c.items, e.key)
}

// String 返回缓存信息的字符串表示
func (c *Cache[K, V]) String() string {
	s := c.Stats()
	return fmt.Sprintf("Cache[%s]: size=%d/%d, hits=%d, misses=%d, loads=%d, evictions=%d",
		c.config.Name, s.Size, c.config.MaxSize, s.Hits, s.Misses, s.Loads, s.Evictions)
}
