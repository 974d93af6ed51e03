package orm

import (
	"fmt"
	"reflect"
)

// structRecord 以反射方式访问已注册结构体实例的字段。
type structRecord struct {
	model string
	sm    *structMeta
	ptr   reflect.Value // *T
}

func (r *structRecord) Model() string { return r.model }

// Interface 返回被包装的 *T
func (r *structRecord) Interface() any { return r.ptr.Interface() }

func (r *structRecord) GetField(name string) (any, bool) {
	fv, _, ok := r.lookup(name)
	if !ok {
		return nil, false
	}
	return fv.Interface(), true
}

func (r *structRecord) SetField(name string, value any) error {
	fv, scalar, ok := r.lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrFieldNotFound, r.model, name)
	}
	if !fv.CanSet() {
		return fmt.Errorf("%w: %s.%s is not settable", ErrFieldType, r.model, name)
	}
	var err error
	if scalar {
		err = assignScalar(fv, value)
	} else {
		err = assignProperty(fv, value)
	}
	if err != nil {
		return fmt.Errorf("%s.%s: %w", r.model, name, err)
	}
	return nil
}

// lookup 依次按列名、Go 字段名、属性名查找
func (r *structRecord) lookup(name string) (reflect.Value, bool, bool) {
	elem := r.ptr.Elem()
	if pos, ok := r.sm.byColumn[name]; ok {
		fv := fieldByIndexSafe(elem, r.sm.fields[pos].index)
		return fv, true, fv.IsValid()
	}
	if pos, ok := r.sm.byGoName[name]; ok {
		fv := fieldByIndexSafe(elem, r.sm.fields[pos].index)
		return fv, true, fv.IsValid()
	}
	if p, ok := r.sm.props[name]; ok {
		fv := fieldByIndexSafe(elem, p.index)
		return fv, false, fv.IsValid()
	}
	return reflect.Value{}, false, false
}

// Unwrap 返回结构体记录包装的 *T，其他记录原样返回。
func Unwrap(rec IRecord) any {
	if sr, ok := rec.(*structRecord); ok {
		return sr.Interface()
	}
	return rec
}

// assignProperty 将关联结果写入非标量字段：
//   - *Collection 写入 []*T / []T 切片字段（空集合得到非 nil 空切片）；
//   - IRecord 写入 *T / T 字段；
//   - 值类型可直接赋值时（例如字段类型为 *Collection 或 IRecord）原样写入。
func assignProperty(fv reflect.Value, value any) error {
	if value == nil {
		fv.Set(reflect.Zero(fv.Type()))
		return nil
	}
	rv := reflect.ValueOf(value)
	if rv.Type().AssignableTo(fv.Type()) {
		fv.Set(rv)
		return nil
	}

	switch v := value.(type) {
	case *Collection:
		if fv.Kind() != reflect.Slice {
			return fmt.Errorf("%w: cannot assign collection to %s", ErrFieldType, fv.Type())
		}
		out := reflect.MakeSlice(fv.Type(), 0, v.Len())
		for _, item := range v.items {
			ev, err := recordValue(item, fv.Type().Elem())
			if err != nil {
				return err
			}
			out = reflect.Append(out, ev)
		}
		fv.Set(out)
		return nil
	case IRecord:
		ev, err := recordValue(v, fv.Type())
		if err != nil {
			return err
		}
		fv.Set(ev)
		return nil
	}
	return fmt.Errorf("%w: cannot assign %T to %s", ErrFieldType, value, fv.Type())
}

func recordValue(rec IRecord, target reflect.Type) (reflect.Value, error) {
	raw := reflect.ValueOf(Unwrap(rec))
	if raw.Type().AssignableTo(target) {
		return raw, nil
	}
	if raw.Kind() == reflect.Ptr && raw.Elem().Type().AssignableTo(target) {
		return raw.Elem(), nil
	}
	return reflect.Value{}, fmt.Errorf("%w: %s record cannot be stored as %s", ErrFieldType, rec.Model(), target)
}
