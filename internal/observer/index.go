// Package observer provides the dispatch index used to find the callbacks
// interested in an event notification.
//
// Entries are bucketed by stage, then field name, then event typename. Each
// bucket keeps insertion order, which is also invocation order. Lookups
// take the full typename lineage of the firing event (most derived first)
// and concatenate the matching buckets, so an entry registered against a
// base typename fires for every derived typename.
package observer

// Key identifies a single bucket.
type Key struct {
	Stage string
	Name  string
	Kind  string
}

// Index maps (stage, name, kind) to ordered entries.
//
// T must be comparable; entry identity is T equality. Index is not safe for
// concurrent use.
type Index[T comparable] struct {
	buckets   map[string]map[string]map[string][]T
	inversion map[T][]Key
	size      int
}

// New creates an empty index.
func New[T comparable]() *Index[T] {
	return &Index[T]{
		buckets:   make(map[string]map[string]map[string][]T),
		inversion: make(map[T][]Key),
	}
}

// Add appends v to the bucket. Adding an entry that is already present in
// the bucket is a no-op and returns false.
func (x *Index[T]) Add(stage, name, kind string, v T) bool {
	names, ok := x.buckets[stage]
	if !ok {
		names = make(map[string]map[string][]T)
		x.buckets[stage] = names
	}
	kinds, ok := names[name]
	if !ok {
		kinds = make(map[string][]T)
		names[name] = kinds
	}

	for _, existing := range kinds[kind] {
		if existing == v {
			return false
		}
	}

	kinds[kind] = append(kinds[kind], v)
	x.inversion[v] = append(x.inversion[v], Key{Stage: stage, Name: name, Kind: kind})
	x.size++
	return true
}

// Get returns the entries for name and stage across every typename in
// lineage, in lineage order. The result is a fresh slice.
func (x *Index[T]) Get(name string, lineage []string, stage string) []T {
	kinds := x.buckets[stage][name]
	if kinds == nil {
		return nil
	}

	var result []T
	for _, kind := range lineage {
		result = append(result, kinds[kind]...)
	}
	return result
}

// Bucket returns a copy of a single bucket.
func (x *Index[T]) Bucket(stage, name, kind string) []T {
	entries := x.buckets[stage][name][kind]
	if len(entries) == 0 {
		return nil
	}
	out := make([]T, len(entries))
	copy(out, entries)
	return out
}

// Keys returns the buckets v is registered in.
func (x *Index[T]) Keys(v T) []Key {
	keys := x.inversion[v]
	out := make([]Key, len(keys))
	copy(out, keys)
	return out
}

// Delete removes v from one bucket. Returns false if it was not there.
func (x *Index[T]) Delete(stage, name, kind string, v T) bool {
	entries := x.buckets[stage][name][kind]
	for i, existing := range entries {
		if existing != v {
			continue
		}
		remaining := append(entries[:i:i], entries[i+1:]...)
		x.store(stage, name, kind, remaining)
		x.forget(v, Key{Stage: stage, Name: name, Kind: kind})
		x.size--
		return true
	}
	return false
}

// Clear removes every entry from one bucket and returns how many were
// removed.
func (x *Index[T]) Clear(stage, name, kind string) int {
	entries := x.buckets[stage][name][kind]
	if len(entries) == 0 {
		return 0
	}
	key := Key{Stage: stage, Name: name, Kind: kind}
	for _, v := range entries {
		x.forget(v, key)
	}
	x.store(stage, name, kind, nil)
	x.size -= len(entries)
	return len(entries)
}

// Remove deletes v from every bucket it was added to and returns the number
// of buckets it was removed from.
func (x *Index[T]) Remove(v T) int {
	removed := 0
	for _, key := range x.Keys(v) {
		if x.Delete(key.Stage, key.Name, key.Kind, v) {
			removed++
		}
	}
	return removed
}

// Len returns the total number of registrations.
func (x *Index[T]) Len() int {
	return x.size
}

// Stages returns the number of stage maps currently held. Used to check
// pruning.
func (x *Index[T]) Stages() int {
	return len(x.buckets)
}

// store writes entries back, pruning empty buckets and the intermediate
// maps that become empty with them.
func (x *Index[T]) store(stage, name, kind string, entries []T) {
	names := x.buckets[stage]
	kinds := names[name]

	if len(entries) > 0 {
		kinds[kind] = entries
		return
	}

	delete(kinds, kind)
	if len(kinds) == 0 {
		delete(names, name)
	}
	if len(names) == 0 {
		delete(x.buckets, stage)
	}
}

func (x *Index[T]) forget(v T, key Key) {
	keys := x.inversion[v]
	for i, k := range keys {
		if k == key {
			keys = append(keys[:i:i], keys[i+1:]...)
			break
		}
	}
	if len(keys) == 0 {
		delete(x.inversion, v)
		return
	}
	x.inversion[v] = keys
}
