package ir

// ExprMap maps expressions to values by structural equality. Two separately
// built but equal expressions address the same entry. Iteration follows
// insertion order. The zero value is an empty map ready to use.
type ExprMap[V any] struct {
	buckets map[uint64][]int
	keys    []Expr
	values  []V
}

// NewExprMap returns an empty map.
func NewExprMap[V any]() *ExprMap[V] {
	return &ExprMap[V]{buckets: make(map[uint64][]int)}
}

// Len returns the number of entries.
func (m *ExprMap[V]) Len() int { return len(m.keys) }

// Get returns the value stored under key.
func (m *ExprMap[V]) Get(key Expr) (V, bool) {
	if i := m.find(key); i >= 0 {
		return m.values[i], true
	}
	var zero V
	return zero, false
}

// Set stores value under key, replacing any previous value.
func (m *ExprMap[V]) Set(key Expr, value V) {
	if i := m.find(key); i >= 0 {
		m.values[i] = value
		return
	}
	if m.buckets == nil {
		m.buckets = make(map[uint64][]int)
	}
	h := key.hash()
	m.buckets[h] = append(m.buckets[h], len(m.keys))
	m.keys = append(m.keys, key)
	m.values = append(m.values, value)
}

// Keys returns the keys in insertion order.
func (m *ExprMap[V]) Keys() []Expr { return append([]Expr(nil), m.keys...) }

// Each calls fn for every entry in insertion order.
func (m *ExprMap[V]) Each(fn func(key Expr, value V)) {
	for i := range m.keys {
		fn(m.keys[i], m.values[i])
	}
}

func (m *ExprMap[V]) find(key Expr) int {
	for _, i := range m.buckets[key.hash()] {
		if CompareExpr(m.keys[i], key) == 0 {
			return i
		}
	}
	return -1
}
