package jansson

import "errors"

// ErrBuilt is returned when a Builder is used after Build.
var ErrBuilt = errors.New("jansson: builder already built")

// Builder assembles an object one member at a time. The first failing step
// is kept and reported by Build.
type Builder struct {
	obj *Value
	err error
}

// NewBuilder starts an empty object.
func NewBuilder() *Builder {
	return &Builder{obj: Object()}
}

func (b *Builder) set(key string, v *Value) *Builder {
	defer v.Release()
	if b.obj == nil {
		b.err = ErrBuilt
	}
	if b.err == nil {
		b.err = b.obj.Set(key, v)
	}
	return b
}

// Str adds a string member.
func (b *Builder) Str(key, s string) *Builder { return b.set(key, String(s)) }

// Int adds an integer member.
func (b *Builder) Int(key string, n int64) *Builder { return b.set(key, Integer(n)) }

// Real adds a real member.
func (b *Builder) Real(key string, f float64) *Builder { return b.set(key, Real(f)) }

// Bool adds true or false.
func (b *Builder) Bool(key string, v bool) *Builder { return b.set(key, Bool(v)) }

// Null adds null.
func (b *Builder) Null(key string) *Builder { return b.set(key, Null()) }

// Value adds an existing value. v stays owned by the caller; a nil v adds null.
func (b *Builder) Value(key string, v *Value) *Builder {
	if v == nil {
		return b.Null(key)
	}
	return b.set(key, v.Clone())
}

// Strs adds an array of strings.
func (b *Builder) Strs(key string, items []string) *Builder {
	arr := Array()
	for _, s := range items {
		item := String(s)
		if err := arr.Append(item); err != nil && b.err == nil {
			b.err = err
		}
		item.Release()
	}
	return b.set(key, arr)
}

// Build returns the object, or the first error and no object. The object is
// handed out once; later calls return ErrBuilt.
func (b *Builder) Build() (*Value, error) {
	obj := b.obj
	if obj == nil {
		return nil, ErrBuilt
	}
	b.obj = nil
	if b.err != nil {
		obj.Release()
		return nil, b.err
	}
	return obj, nil
}
