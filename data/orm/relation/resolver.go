package relation

import (
	"fmt"

	"relgraph/cache"
	"relgraph/data/orm"
)

type descriptorKey struct {
	owner      string
	property   string
	annotation orm.RelationAnnotation
}

// Resolver 将注解与属主模型解析为 Descriptor。
//
// 模型结构在进程生命周期内不变，解析结果按 (owner, property, annotation) 缓存。
type Resolver struct {
	meta        orm.IMetadataProvider
	descriptors *cache.Cache[descriptorKey, Descriptor]
}

// NewResolver 创建解析器，cacheSize<=0 表示不限制缓存容量
func NewResolver(meta orm.IMetadataProvider, cacheSize int) *Resolver {
	return &Resolver{
		meta: meta,
		descriptors: cache.New[descriptorKey, Descriptor](cache.Config{
			Name:    "relation_descriptor",
			MaxSize: cacheSize,
		}),
	}
}

// AutoSelectEnabled 属性未关闭自动加载时返回 true
func (r *Resolver) AutoSelectEnabled(owner, property string) bool {
	return r.meta.AutoSelect(owner, property)
}

// CacheStats 描述符缓存统计
func (r *Resolver) CacheStats() cache.Stats {
	return r.descriptors.Stats()
}

// Resolve 解析关联描述符，失败时返回 *ConfigurationError。
func (r *Resolver) Resolve(owner, property string, ann orm.RelationAnnotation) (Descriptor, error) {
	key := descriptorKey{owner: owner, property: property, annotation: ann}
	return r.descriptors.GetOrLoad(key, func() (Descriptor, error) {
		return r.resolve(owner, property, ann)
	})
}

func (r *Resolver) resolve(owner, property string, ann orm.RelationAnnotation) (Descriptor, error) {
	d := Descriptor{Kind: ann.Kind, OwnerModel: owner, Property: property}

	if !ann.Kind.Valid() {
		return d, configErr(d, fmt.Sprintf("unknown relation kind %s", ann.Kind), nil)
	}
	ownerMeta, ok := r.meta.Lookup(owner)
	if !ok {
		return d, configErr(d, "owner model is not registered", orm.ErrModelNotRegistered)
	}

	related, err := r.resolveModel(d, ann.Model, ownerMeta.Namespace, "related model")
	if err != nil {
		return d, err
	}
	d.RelatedModel = related.QualifiedName()

	d.LocalKey = ann.Left
	if d.LocalKey == "" {
		d.LocalKey = ownerMeta.PrimaryKey
	}
	if err := requireField(d, ownerMeta, d.LocalKey, "local key"); err != nil {
		return d, err
	}

	switch ann.Kind {
	case orm.OneToOne, orm.OneToMany:
		d.RemoteKey = ann.Right
		if d.RemoteKey == "" {
			d.RemoteKey = orm.ForeignKeyFor(ownerMeta.Name, d.LocalKey)
		}
		if err := requireField(d, related, d.RemoteKey, "remote key"); err != nil {
			return d, err
		}

	case orm.ManyToMany:
		middle, err := r.resolveModel(d, ann.Middle, ownerMeta.Namespace, "middle model")
		if err != nil {
			return d, err
		}
		d.MiddleModel = middle.QualifiedName()

		if ann.RightMany == "" {
			return d, configErr(d, "many-to-many relation requires an inverse property (right_many)", nil)
		}
		if orm.PropertyName(ann.RightMany) == orm.PropertyName(property) {
			return d, configErr(d, fmt.Sprintf("inverse property %q must differ from the declared property", ann.RightMany), nil)
		}
		d.InverseProperty = ann.RightMany

		d.RemoteKey = ann.Right
		if d.RemoteKey == "" {
			d.RemoteKey = related.PrimaryKey
		}
		if err := requireField(d, related, d.RemoteKey, "remote key"); err != nil {
			return d, err
		}

		d.MiddleLocalKey = ann.MiddleLeft
		if d.MiddleLocalKey == "" {
			d.MiddleLocalKey = orm.ForeignKeyFor(ownerMeta.Name, d.LocalKey)
		}
		if err := requireField(d, middle, d.MiddleLocalKey, "middle local key"); err != nil {
			return d, err
		}

		d.MiddleRemoteKey = ann.MiddleRight
		if d.MiddleRemoteKey == "" {
			d.MiddleRemoteKey = orm.ForeignKeyFor(related.Name, d.RemoteKey)
		}
		if err := requireField(d, middle, d.MiddleRemoteKey, "middle remote key"); err != nil {
			return d, err
		}
	}

	return d, nil
}

// resolveModel 先按字面名查找，再按属主命名空间限定名查找
func (r *Resolver) resolveModel(d Descriptor, name, namespace, role string) (*orm.ModelMeta, error) {
	if name == "" {
		return nil, configErr(d, role+" is not declared", nil)
	}
	if m, ok := r.meta.Lookup(name); ok {
		return m, nil
	}
	if namespace != "" {
		if m, ok := r.meta.Lookup(namespace + "." + name); ok {
			return m, nil
		}
	}
	return nil, configErr(d, fmt.Sprintf("%s %q cannot be resolved", role, name), orm.ErrModelNotRegistered)
}

func requireField(d Descriptor, m *orm.ModelMeta, field, role string) error {
	if field == "" {
		return configErr(d, fmt.Sprintf("%s is not declared and %s has no primary key", role, m.QualifiedName()), nil)
	}
	if !m.HasField(field) {
		return configErr(d, fmt.Sprintf("%s %q is not a field of %s", role, field, m.QualifiedName()), orm.ErrFieldNotFound)
	}
	return nil
}
