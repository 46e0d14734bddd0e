package pipeline

// Context carries typed state between stages. It is immutable: Set and
// WithMeta return a fresh Context and never touch the receiver, so a stage
// that holds on to its input can never observe writes made downstream.
type Context struct {
	values map[Key]any
	meta   map[string]string
}

// Key tags a single context slot. Keys compare by identity of their name,
// and the value type stored under a key is fixed by the call sites that
// read it through Value.
type Key struct {
	name string
}

// NewKey returns a key for the given slot name.
func NewKey(name string) Key {
	return Key{name: name}
}

func (k Key) String() string { return k.name }

// NewContext returns an empty Context.
func NewContext() Context {
	return Context{}
}

// Get returns the raw value stored under k.
func (c Context) Get(k Key) (any, bool) {
	v, ok := c.values[k]
	return v, ok
}

// GetOr returns the value stored under k, or def when the slot is empty.
func (c Context) GetOr(k Key, def any) any {
	if v, ok := c.values[k]; ok {
		return v
	}
	return def
}

// Set returns a copy of c with k bound to v.
func (c Context) Set(k Key, v any) Context {
	values := make(map[Key]any, len(c.values)+1)
	for key, val := range c.values {
		values[key] = val
	}
	values[k] = v
	return Context{values: values, meta: c.meta}
}

// Meta returns the metadata value for key.
func (c Context) Meta(key string) string {
	return c.meta[key]
}

// WithMeta returns a copy of c with the metadata entry set.
func (c Context) WithMeta(key, value string) Context {
	meta := make(map[string]string, len(c.meta)+1)
	for k, v := range c.meta {
		meta[k] = v
	}
	meta[key] = value
	return Context{values: c.values, meta: meta}
}

// Len reports the number of bound value slots.
func (c Context) Len() int { return len(c.values) }

// Value reads the slot k as type T. The second return is false when the
// slot is empty or holds a different type.
func Value[T any](c Context, k Key) (T, bool) {
	raw, ok := c.values[k]
	if !ok {
		var zero T
		return zero, false
	}
	v, ok := raw.(T)
	return v, ok
}
