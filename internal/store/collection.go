package store

import "context"

// Sequence is an insertion-ordered, append-only collection of T.
type Sequence[T any] struct {
	store  *Store
	kind   Kind
	key    func(T) string
	assign func(*T)
}

// NewSequence binds a sequence to kind. key returns a record's id and assign fills it in
// for records appended without one.
func NewSequence[T any](s *Store, kind Kind, key func(T) string, assign func(*T)) *Sequence[T] {
	return &Sequence[T]{store: s, kind: kind, key: key, assign: assign}
}

// List returns every record in insertion order.
func (q *Sequence[T]) List(ctx context.Context) ([]T, error) {
	items := []T{}
	if _, err := q.store.read(ctx, q.kind, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Get returns the record with the given id.
func (q *Sequence[T]) Get(ctx context.Context, id string) (T, bool, error) {
	var zero T
	items, err := q.List(ctx)
	if err != nil {
		return zero, false, err
	}
	for _, it := range items {
		if q.key(it) == id {
			return it, true, nil
		}
	}
	return zero, false, nil
}

// Append assigns an id when rec has none, appends it and persists the whole collection.
func (q *Sequence[T]) Append(ctx context.Context, rec T) (T, error) {
	return q.AppendIf(ctx, rec, nil)
}

// AppendIf is Append with a guard. prepare sees the records already stored and may
// reject the append or fill in rec; it runs in the same atomic step as the write and
// may run more than once.
func (q *Sequence[T]) AppendIf(ctx context.Context, rec T, prepare func(items []T, rec *T) error) (T, error) {
	if q.key(rec) == "" {
		q.assign(&rec)
	}
	var out T
	err := q.store.update(ctx, q.kind, func(raw []byte) (any, error) {
		items := []T{}
		if err := decode(q.kind, raw, &items); err != nil {
			return nil, err
		}
		r := rec
		if prepare != nil {
			if err := prepare(items, &r); err != nil {
				return nil, err
			}
		}
		out = r
		return append(items, r), nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// Mapping is a keyed collection of T persisted as one JSON object.
type Mapping[T any] struct {
	store *Store
	kind  Kind
}

// NewMapping binds a mapping to kind.
func NewMapping[T any](s *Store, kind Kind) *Mapping[T] {
	return &Mapping[T]{store: s, kind: kind}
}

func (m *Mapping[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	all := map[string]T{}
	if _, err := m.store.read(ctx, m.kind, &all); err != nil {
		return zero, false, err
	}
	v, ok := all[key]
	return v, ok, nil
}

// Put stores v under key and persists the whole mapping.
func (m *Mapping[T]) Put(ctx context.Context, key string, v T) error {
	return m.store.update(ctx, m.kind, func(raw []byte) (any, error) {
		all := map[string]T{}
		if err := decode(m.kind, raw, &all); err != nil {
			return nil, err
		}
		all[key] = v
		return all, nil
	})
}

// PutIfAbsent stores v under key unless key already holds a value. It returns the value
// that ends up stored and whether it was v.
func (m *Mapping[T]) PutIfAbsent(ctx context.Context, key string, v T) (T, bool, error) {
	var (
		out     T
		created bool
	)
	err := m.store.update(ctx, m.kind, func(raw []byte) (any, error) {
		all := map[string]T{}
		if err := decode(m.kind, raw, &all); err != nil {
			return nil, err
		}
		if existing, ok := all[key]; ok {
			out, created = existing, false
			return nil, nil
		}
		all[key] = v
		out, created = v, true
		return all, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	return out, created, nil
}

// Value is a single persisted document, such as the current session.
type Value[T any] struct {
	store *Store
	kind  Kind
}

func NewValue[T any](s *Store, kind Kind) *Value[T] {
	return &Value[T]{store: s, kind: kind}
}

func (v *Value[T]) Get(ctx context.Context) (T, bool, error) {
	var out T
	ok, err := v.store.read(ctx, v.kind, &out)
	if err != nil {
		var zero T
		return zero, false, err
	}
	return out, ok, nil
}

func (v *Value[T]) Set(ctx context.Context, val T) error {
	return v.store.update(ctx, v.kind, func([]byte) (any, error) {
		return val, nil
	})
}

func (v *Value[T]) Clear(ctx context.Context) error {
	return v.store.remove(ctx, v.kind)
}
