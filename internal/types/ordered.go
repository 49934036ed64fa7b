package types

// Map is an insertion-ordered string-keyed map of Values. Variable
// declarations, mapping literals and form values rely on its order.
type Map struct {
	keys []string
	vals map[string]Value
}

// NewMap creates an empty Map.
func NewMap() *Map {
	return &Map{vals: make(map[string]Value)}
}

// Set adds or replaces a key. Replacing keeps the original position.
func (m *Map) Set(key string, v Value) {
	if _, ok := m.vals[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.vals[key] = v
}

// Get returns the value for key.
func (m *Map) Get(key string) (Value, bool) {
	if m == nil {
		return Null(), false
	}
	v, ok := m.vals[key]
	return v, ok
}

// Has reports whether key is present.
func (m *Map) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Delete removes key, preserving the order of the remaining keys.
func (m *Map) Delete(key string) {
	if _, ok := m.vals[key]; !ok {
		return
	}
	delete(m.vals, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i:i], m.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of keys.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Range calls fn for each entry in order until fn returns false.
func (m *Map) Range(fn func(key string, v Value) bool) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		if !fn(k, m.vals[k]) {
			return
		}
	}
}

// Clone returns a shallow copy; nested containers are shared.
func (m *Map) Clone() *Map {
	out := NewMap()
	m.Range(func(k string, v Value) bool {
		out.Set(k, v)
		return true
	})
	return out
}

// MapOf builds a Map from alternating key/value pairs.
func MapOf(pairs ...any) *Map {
	m := NewMap()
	for i := 0; i+1 < len(pairs); i += 2 {
		k, _ := pairs[i].(string)
		v, err := FromGo(pairs[i+1])
		if err != nil {
			v = Null()
		}
		m.Set(k, v)
	}
	return m
}
