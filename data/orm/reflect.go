package orm

import (
	"database/sql"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()

type fieldInfo struct {
	FieldMeta
	index []int
}

type propInfo struct {
	goName string
	index  []int
}

// structMeta 结构体模型的反射信息，按类型构建一次。
type structMeta struct {
	typ       reflect.Type
	fields    []fieldInfo
	byColumn  map[string]int
	byGoName  map[string]int
	props     map[string]propInfo // 非标量字段，键为 Go 字段名与 snake_case 名
	relations []RelationMeta
}

func buildStructMeta(t reflect.Type) (*structMeta, error) {
	sm := &structMeta{
		typ:      t,
		byColumn: make(map[string]int),
		byGoName: make(map[string]int),
		props:    make(map[string]propInfo),
	}

	var walk func(reflect.Type, []int) error
	walk = func(cur reflect.Type, prefix []int) error {
		for i := 0; i < cur.NumField(); i++ {
			f := cur.Field(i)
			// 跳过未导出字段
			if f.PkgPath != "" {
				continue
			}

			index := append(append([]int(nil), prefix...), i)

			if f.Anonymous && f.Type.Kind() == reflect.Struct && !isScalarDBField(f.Type) {
				// 内嵌结构体，递归展开
				if err := walk(f.Type, index); err != nil {
					return err
				}
				continue
			}

			if f.Tag.Get("db") == "-" {
				continue
			}

			if relTag, ok := f.Tag.Lookup("rel"); ok {
				ann, auto, err := parseRelationTag(relTag)
				if err != nil {
					return fmt.Errorf("field %s: %w", f.Name, err)
				}
				sm.relations = append(sm.relations, RelationMeta{
					Property:     PropertyName(f.Name),
					GoName:       f.Name,
					Annotation:   ann,
					NoAutoSelect: !auto,
				})
			}

			if !isScalarDBField(f.Type) {
				p := propInfo{goName: f.Name, index: index}
				sm.props[f.Name] = p
				sm.props[PropertyName(f.Name)] = p
				continue
			}

			col, pk, auto := parseColumnTag(f)
			if col == "" {
				col = toSnakeCase(f.Name)
			}
			info := fieldInfo{
				FieldMeta: FieldMeta{Name: col, GoName: f.Name, PrimaryKey: pk, AutoIncrement: auto},
				index:     index,
			}
			// 后来的同名列覆盖之前的定义（以最内层为准）
			if pos, dup := sm.byColumn[col]; dup {
				sm.fields[pos] = info
			} else {
				sm.byColumn[col] = len(sm.fields)
				sm.fields = append(sm.fields, info)
			}
			sm.byGoName[f.Name] = sm.byColumn[col]
		}
		return nil
	}

	if err := walk(t, nil); err != nil {
		return nil, err
	}
	return sm, nil
}

// primaryKey 返回带 primaryKey 标记的列，缺省时使用 id 列
func (sm *structMeta) primaryKey() string {
	for _, f := range sm.fields {
		if f.PrimaryKey {
			return f.Name
		}
	}
	if _, ok := sm.byColumn["id"]; ok {
		return "id"
	}
	return ""
}

func (sm *structMeta) fieldMetas() []FieldMeta {
	out := make([]FieldMeta, len(sm.fields))
	pk := sm.primaryKey()
	for i, f := range sm.fields {
		out[i] = f.FieldMeta
		if f.Name == pk {
			out[i].PrimaryKey = true
		}
	}
	return out
}

func isScalarDBField(t reflect.Type) bool {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if isTimeType(t) || reflect.PointerTo(t).Implements(scannerType) {
		return true
	}
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.String:
		return true
	case reflect.Slice:
		return t.Elem().Kind() == reflect.Uint8
	default:
		return false
	}
}

func isTimeType(t reflect.Type) bool {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.PkgPath() == "time" && t.Name() == "Time"
}

func parseColumnTag(f reflect.StructField) (column string, primaryKey, autoIncrement bool) {
	gormTag := f.Tag.Get("gorm")
	if gormTag != "" {
		parts := strings.Split(gormTag, ";")
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if strings.HasPrefix(part, "column:") {
				column = strings.TrimPrefix(part, "column:")
			}
			if strings.EqualFold(part, "primaryKey") || strings.EqualFold(part, "primary_key") {
				primaryKey = true
			}
			if strings.EqualFold(part, "autoIncrement") || strings.EqualFold(part, "autoincrement") {
				autoIncrement = true
			}
		}
	}

	if column == "" {
		if dbTag := f.Tag.Get("db"); dbTag != "" {
			column = strings.Split(dbTag, ",")[0]
		} else if jsonTag := f.Tag.Get("json"); jsonTag != "" && jsonTag != "-" {
			column = strings.Split(jsonTag, ",")[0]
		}
	}

	return column, primaryKey, autoIncrement
}

// parseRelationTag 解析 rel 标签：
//
//	rel:"many_to_many,model=Role,middle=UserRole,right_many=Roles,autoselect=false"
func parseRelationTag(tag string) (RelationAnnotation, bool, error) {
	var ann RelationAnnotation
	autoSelect := true

	parts := strings.Split(tag, ",")
	kind, err := ParseRelationKind(parts[0])
	if err != nil {
		return ann, false, err
	}
	ann.Kind = kind

	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return ann, false, fmt.Errorf("orm: malformed rel option %q", part)
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "model":
			ann.Model = value
		case "left":
			ann.Left = value
		case "right":
			ann.Right = value
		case "middle":
			ann.Middle = value
		case "middle_left":
			ann.MiddleLeft = value
		case "middle_right":
			ann.MiddleRight = value
		case "right_many":
			ann.RightMany = value
		case "autoselect":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return ann, false, fmt.Errorf("orm: invalid autoselect %q", value)
			}
			autoSelect = b
		default:
			return ann, false, fmt.Errorf("orm: unknown rel option %q", key)
		}
	}
	return ann, autoSelect, nil
}

func toSnakeCase(s string) string {
	return PropertyName(s)
}

func fieldByIndexSafe(v reflect.Value, index []int) reflect.Value {
	for _, i := range index {
		if v.Kind() == reflect.Ptr {
			if v.IsNil() {
				return reflect.Value{}
			}
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct || i < 0 || i >= v.NumField() {
			return reflect.Value{}
		}
		v = v.Field(i)
	}
	return v
}

// assignScalar 将驱动返回的值写入列字段。
func assignScalar(fv reflect.Value, value any) error {
	if value == nil {
		fv.Set(reflect.Zero(fv.Type()))
		return nil
	}
	if fv.CanAddr() {
		if s, ok := fv.Addr().Interface().(sql.Scanner); ok {
			return s.Scan(value)
		}
	}
	if fv.Kind() == reflect.Ptr {
		elem := reflect.New(fv.Type().Elem())
		if err := assignScalar(elem.Elem(), value); err != nil {
			return err
		}
		fv.Set(elem)
		return nil
	}

	src := reflect.ValueOf(value)
	for src.Kind() == reflect.Ptr {
		if src.IsNil() {
			fv.Set(reflect.Zero(fv.Type()))
			return nil
		}
		src = src.Elem()
	}
	if src.Type().AssignableTo(fv.Type()) {
		fv.Set(src)
		return nil
	}

	switch fv.Kind() {
	case reflect.String:
		switch src.Kind() {
		case reflect.String:
			fv.SetString(src.String())
			return nil
		case reflect.Slice:
			if src.Type().Elem().Kind() == reflect.Uint8 {
				fv.SetString(string(src.Bytes()))
				return nil
			}
		case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64:
			fv.SetString(fmt.Sprint(src.Interface()))
			return nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := toInt64(src)
		if err != nil {
			return err
		}
		if fv.OverflowInt(n) {
			return fmt.Errorf("%w: %d overflows %s", ErrFieldType, n, fv.Type())
		}
		fv.SetInt(n)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := toInt64(src)
		if err != nil {
			return err
		}
		if n < 0 || fv.OverflowUint(uint64(n)) {
			return fmt.Errorf("%w: %d overflows %s", ErrFieldType, n, fv.Type())
		}
		fv.SetUint(uint64(n))
		return nil
	case reflect.Float32, reflect.Float64:
		f, err := toFloat64(src)
		if err != nil {
			return err
		}
		fv.SetFloat(f)
		return nil
	case reflect.Bool:
		n, err := toInt64(src)
		if err != nil {
			b, perr := strconv.ParseBool(fmt.Sprint(src.Interface()))
			if perr != nil {
				return err
			}
			fv.SetBool(b)
			return nil
		}
		fv.SetBool(n != 0)
		return nil
	case reflect.Slice:
		if fv.Type().Elem().Kind() == reflect.Uint8 && src.Kind() == reflect.String {
			fv.SetBytes([]byte(src.String()))
			return nil
		}
	case reflect.Struct:
		if isTimeType(fv.Type()) {
			if t, ok := parseTime(src); ok {
				fv.Set(reflect.ValueOf(t))
				return nil
			}
		}
	}
	return fmt.Errorf("%w: cannot assign %s to %s", ErrFieldType, src.Type(), fv.Type())
}

func toInt64(src reflect.Value) (int64, error) {
	switch src.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return src.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(src.Uint()), nil
	case reflect.Float32, reflect.Float64:
		f := src.Float()
		if f != float64(int64(f)) {
			return 0, fmt.Errorf("%w: %v is not integral", ErrFieldType, f)
		}
		return int64(f), nil
	case reflect.Bool:
		if src.Bool() {
			return 1, nil
		}
		return 0, nil
	case reflect.String:
		return parseInt(src.String())
	case reflect.Slice:
		if src.Type().Elem().Kind() == reflect.Uint8 {
			return parseInt(string(src.Bytes()))
		}
	}
	return 0, fmt.Errorf("%w: cannot convert %s to integer", ErrFieldType, src.Type())
}

func parseInt(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFieldType, err)
	}
	return n, nil
}

func toFloat64(src reflect.Value) (float64, error) {
	switch src.Kind() {
	case reflect.Float32, reflect.Float64:
		return src.Float(), nil
	case reflect.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(src.String()), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrFieldType, err)
		}
		return f, nil
	case reflect.Slice:
		if src.Type().Elem().Kind() == reflect.Uint8 {
			f, err := strconv.ParseFloat(strings.TrimSpace(string(src.Bytes())), 64)
			if err != nil {
				return 0, fmt.Errorf("%w: %v", ErrFieldType, err)
			}
			return f, nil
		}
	}
	n, err := toInt64(src)
	return float64(n), err
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(src reflect.Value) (time.Time, bool) {
	var s string
	switch {
	case src.Kind() == reflect.String:
		s = src.String()
	case src.Kind() == reflect.Slice && src.Type().Elem().Kind() == reflect.Uint8:
		s = string(src.Bytes())
	default:
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
