package orm

import (
	"fmt"
	"reflect"
	"sync"
)

// Registry 模型注册表：逻辑模型名 -> 元数据与构造方式。
//
// 在进程启动时由结构体标签或显式 ModelMeta 填充，之后只读。
// 同时实现 IMetadataProvider 与 IModelFactory。
type Registry struct {
	mu     sync.RWMutex
	models map[string]*registeredModel
	byType map[reflect.Type]*registeredModel
}

type registeredModel struct {
	meta *ModelMeta
	sm   *structMeta // map 模型为 nil
}

// RegisterOption 注册选项
type RegisterOption func(*registerOptions)

type registerOptions struct {
	name      string
	namespace *string
	table     string
}

// WithName 覆盖模型短名（默认为结构体类型名）
func WithName(name string) RegisterOption {
	return func(o *registerOptions) { o.name = name }
}

// WithNamespace 覆盖命名空间（默认为结构体所在包名）
func WithNamespace(ns string) RegisterOption {
	return func(o *registerOptions) { o.namespace = &ns }
}

// WithTable 指定表名，模型实现 TableName() 时以方法为准
func WithTable(table string) RegisterOption {
	return func(o *registerOptions) { o.table = table }
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{
		models: make(map[string]*registeredModel),
		byType: make(map[reflect.Type]*registeredModel),
	}
}

// Register 注册结构体模型，model 为 T 或 *T 的零值。返回注册全名。
func (r *Registry) Register(model any, opts ...RegisterOption) (string, error) {
	t := reflect.TypeOf(model)
	if t == nil {
		return "", fmt.Errorf("orm: register nil model")
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return "", fmt.Errorf("orm: register %s: model must be a struct", t)
	}

	o := registerOptions{name: t.Name()}
	for _, opt := range opts {
		opt(&o)
	}
	namespace := packageName(t)
	if o.namespace != nil {
		namespace = *o.namespace
	}

	sm, err := buildStructMeta(t)
	if err != nil {
		return "", fmt.Errorf("orm: register %s: %w", t, err)
	}

	table := o.table
	if tn, ok := tryGetTableName(reflect.New(t).Interface()); ok {
		table = tn
	}
	if table == "" {
		table = TableNameFor(o.name)
	}

	meta := &ModelMeta{
		Name:       o.name,
		Namespace:  namespace,
		Table:      table,
		PrimaryKey: sm.primaryKey(),
		Fields:     sm.fieldMetas(),
		Relations:  sm.relations,
	}
	return meta.QualifiedName(), r.add(t, &registeredModel{meta: meta, sm: sm})
}

// MustRegister 同 Register，失败时 panic（用于进程启动）
func (r *Registry) MustRegister(model any, opts ...RegisterOption) string {
	name, err := r.Register(model, opts...)
	if err != nil {
		panic(err)
	}
	return name
}

// RegisterMeta 注册以字段表描述的模型，实例为 *Entity。
func (r *Registry) RegisterMeta(meta *ModelMeta) error {
	if meta == nil || meta.Name == "" {
		return fmt.Errorf("orm: register meta: name is required")
	}
	m := *meta
	m.Fields = append([]FieldMeta(nil), meta.Fields...)
	m.Relations = append([]RelationMeta(nil), meta.Relations...)
	if m.Table == "" {
		m.Table = TableNameFor(m.Name)
	}
	if m.PrimaryKey == "" {
		for _, f := range m.Fields {
			if f.PrimaryKey {
				m.PrimaryKey = f.Name
				break
			}
		}
		if m.PrimaryKey == "" && m.HasField("id") {
			m.PrimaryKey = "id"
		}
	}
	for i, rel := range m.Relations {
		if !rel.Annotation.Kind.Valid() {
			return fmt.Errorf("orm: register %s: relation %s has invalid kind", m.Name, rel.Property)
		}
		if rel.Property == "" {
			m.Relations[i].Property = PropertyName(rel.GoName)
		}
	}
	return r.add(nil, &registeredModel{meta: &m})
}

func (r *Registry) add(t reflect.Type, rm *registeredModel) error {
	name := rm.meta.QualifiedName()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.models[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateModel, name)
	}
	r.models[name] = rm
	if t != nil {
		r.byType[t] = rm
	}
	return nil
}

func (r *Registry) get(name string) (*registeredModel, error) {
	r.mu.RLock()
	rm, ok := r.models[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelNotRegistered, name)
	}
	return rm, nil
}

// Lookup 按注册全名查找
func (r *Registry) Lookup(name string) (*ModelMeta, bool) {
	rm, err := r.get(name)
	if err != nil {
		return nil, false
	}
	return rm.meta, true
}

// Models 返回所有注册全名（无序）
func (r *Registry) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	return names
}

func (r *Registry) RelationAnnotation(model, property string) (RelationAnnotation, bool) {
	rm, err := r.get(model)
	if err != nil {
		return RelationAnnotation{}, false
	}
	rel, ok := rm.meta.Relation(property)
	return rel.Annotation, ok
}

func (r *Registry) AutoSelect(model, property string) bool {
	rm, err := r.get(model)
	if err != nil {
		return true
	}
	if rel, ok := rm.meta.Relation(property); ok {
		return !rel.NoAutoSelect
	}
	return true
}

func (r *Registry) RelationProperties(model string) []string {
	rm, err := r.get(model)
	if err != nil {
		return nil
	}
	props := make([]string, len(rm.meta.Relations))
	for i, rel := range rm.meta.Relations {
		props[i] = rel.Property
	}
	return props
}

func (r *Registry) FieldNames(model string) ([]string, error) {
	rm, err := r.get(model)
	if err != nil {
		return nil, err
	}
	return rm.meta.FieldNames(), nil
}

func (r *Registry) TableName(model string) (string, error) {
	rm, err := r.get(model)
	if err != nil {
		return "", err
	}
	return rm.meta.Table, nil
}

func (r *Registry) PrimaryKey(model string) (string, error) {
	rm, err := r.get(model)
	if err != nil {
		return "", err
	}
	return rm.meta.PrimaryKey, nil
}

func (r *Registry) Namespace(model string) string {
	rm, err := r.get(model)
	if err != nil {
		return ""
	}
	return rm.meta.Namespace
}

// NewInstance 构造模型实例并写入初始字段。
//
// 结构体模型忽略未映射的列（与按列扫描时丢弃未知列一致）。
func (r *Registry) NewInstance(model string, fields map[string]any) (IRecord, error) {
	rm, err := r.get(model)
	if err != nil {
		return nil, err
	}
	if rm.sm == nil {
		return NewEntity(model, fields), nil
	}

	rec := &structRecord{model: model, sm: rm.sm, ptr: reflect.New(rm.sm.typ)}
	for name, value := range fields {
		if _, ok := rm.sm.byColumn[name]; !ok {
			continue
		}
		if err := rec.SetField(name, value); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// Wrap 包装已注册结构体的 *T 为 IRecord。
func (r *Registry) Wrap(ptr any) (IRecord, error) {
	rv := reflect.ValueOf(ptr)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("orm: wrap %T: expected non-nil pointer to struct", ptr)
	}
	r.mu.RLock()
	rm, ok := r.byType[rv.Elem().Type()]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelNotRegistered, rv.Elem().Type())
	}
	return &structRecord{model: rm.meta.QualifiedName(), sm: rm.sm, ptr: rv}, nil
}

// MustWrap 同 Wrap，失败时 panic
func (r *Registry) MustWrap(ptr any) IRecord {
	rec, err := r.Wrap(ptr)
	if err != nil {
		panic(err)
	}
	return rec
}

func packageName(t reflect.Type) string {
	path := t.PkgPath()
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

// tryGetTableName 若模型实现了 TableName() string，则返回其值。
func tryGetTableName(model any) (string, bool) {
	type tableNamer interface {
		TableName() string
	}
	if tn, ok := model.(tableNamer); ok {
		name := tn.TableName()
		return name, name != ""
	}
	return "", false
}

var (
	_ IMetadataProvider = (*Registry)(nil)
	_ IModelFactory     = (*Registry)(nil)
)
