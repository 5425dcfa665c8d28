package daemon

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"dsf/internal/domain"
)

// directory is an indexed in-memory view of one kind of record, written
// through to storage. Every mutation holds the write lock for the whole
// read-modify-save cycle, so updates to a record are serialised.
type directory[T any] struct {
	mu      sync.RWMutex
	byID    map[domain.ID]*T
	byIndex map[int]domain.ID
	next    int

	key    func(*T) (domain.ID, int)
	save   func(context.Context, *T) error
	delete func(context.Context, domain.ID) error
}

func newDirectory[T any](
	key func(*T) (domain.ID, int),
	save func(context.Context, *T) error,
	del func(context.Context, domain.ID) error,
) *directory[T] {
	return &directory[T]{
		byID:    make(map[domain.ID]*T),
		byIndex: make(map[int]domain.ID),
		key:     key,
		save:    save,
		delete:  del,
	}
}

// load replaces the contents with records read from storage. next is the
// persisted high-water mark; indexes below it are never handed out again
// even when their records were deleted.
func (d *directory[T]) load(records []*T, next int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.byID = make(map[domain.ID]*T, len(records))
	d.byIndex = make(map[int]domain.ID, len(records))
	d.next = next
	for _, rec := range records {
		id, index := d.key(rec)
		d.byID[id] = rec
		d.byIndex[index] = id
		if index >= d.next {
			d.next = index + 1
		}
	}
}

// ResolveByID implements domain.Directory.
func (d *directory[T]) ResolveByID(id domain.ID) (T, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.byID[id]
	if !ok {
		var zero T
		return zero, false
	}
	return *rec, true
}

// ResolveByIndex implements domain.Directory.
func (d *directory[T]) ResolveByIndex(index int) (T, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byIndex[index]
	if !ok {
		var zero T
		return zero, false
	}
	return *d.byID[id], true
}

// Len returns the number of records.
func (d *directory[T]) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byID)
}

// List returns copies of every record ordered by index.
func (d *directory[T]) List() []T {
	d.mu.RLock()
	defer d.mu.RUnlock()

	indexes := make([]int, 0, len(d.byIndex))
	for i := range d.byIndex {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	out := make([]T, 0, len(indexes))
	for _, i := range indexes {
		out = append(out, *d.byID[d.byIndex[i]])
	}
	return out
}

// Update applies fn to a copy of the record and stores the result. The
// stored record is unchanged if fn or the save fails.
func (d *directory[T]) Update(ctx context.Context, id domain.ID, fn func(*T) error) (T, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var zero T
	rec, ok := d.byID[id]
	if !ok {
		return zero, fmt.Errorf("%w: id %s", domain.ErrNotFound, id)
	}

	next := *rec
	if err := fn(&next); err != nil {
		return zero, err
	}
	if err := d.save(ctx, &next); err != nil {
		return zero, err
	}
	d.byID[id] = &next
	return next, nil
}

// Upsert updates the record for id, creating it with the next free index
// first when it does not exist. It reports whether the record was created.
func (d *directory[T]) Upsert(ctx context.Context, id domain.ID, create func(index int) *T, fn func(*T) error) (T, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var zero T
	var next T
	created := false
	if rec, ok := d.byID[id]; ok {
		next = *rec
	} else {
		next = *create(d.next)
		created = true
	}

	if fn != nil {
		if err := fn(&next); err != nil {
			return zero, false, err
		}
	}
	if err := d.save(ctx, &next); err != nil {
		return zero, false, err
	}

	d.byID[id] = &next
	if created {
		_, index := d.key(&next)
		d.byIndex[index] = id
		if index >= d.next {
			d.next = index + 1
		}
	}
	return next, created, nil
}

// Delete removes the record. Indexes are never reused.
func (d *directory[T]) Delete(ctx context.Context, id domain.ID) (T, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var zero T
	rec, ok := d.byID[id]
	if !ok {
		return zero, fmt.Errorf("%w: id %s", domain.ErrNotFound, id)
	}
	if err := d.delete(ctx, id); err != nil {
		return zero, err
	}

	_, index := d.key(rec)
	delete(d.byID, id)
	delete(d.byIndex, index)
	return *rec, nil
}
