package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// Item is a decoded Scan entry
type Item[V any] struct {
	Key   string
	Value V
}

// Dict is a typed JSON view over one named dictionary
type Dict[V any] struct {
	name string
}

// NewDict names a dictionary holding values of type V
func NewDict[V any](name string) Dict[V] {
	return Dict[V]{name: name}
}

func (d Dict[V]) Name() string {
	return d.name
}

func (d Dict[V]) Get(ctx context.Context, tx Tx, key string, lock LockMode) (V, bool, error) {
	var v V
	raw, ok, err := tx.Get(ctx, d.name, key, lock)
	if err != nil || !ok {
		return v, ok, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, fmt.Errorf("decoding %s/%s: %w", d.name, key, err)
	}
	return v, true, nil
}

func (d Dict[V]) Set(ctx context.Context, tx Tx, key string, v V) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", d.name, key, err)
	}
	return tx.Set(ctx, d.name, key, raw)
}

func (d Dict[V]) Add(ctx context.Context, tx Tx, key string, v V) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", d.name, key, err)
	}
	return tx.Add(ctx, d.name, key, raw)
}

func (d Dict[V]) Remove(ctx context.Context, tx Tx, key string) (bool, error) {
	return tx.Remove(ctx, d.name, key)
}

func (d Dict[V]) ContainsKey(ctx context.Context, tx Tx, key string) (bool, error) {
	return tx.ContainsKey(ctx, d.name, key)
}

func (d Dict[V]) Count(ctx context.Context, tx Tx) (int, error) {
	return tx.Count(ctx, d.name)
}

// Scan decodes every entry in key order
func (d Dict[V]) Scan(ctx context.Context, tx Tx) ([]Item[V], error) {
	entries, err := tx.Scan(ctx, d.name)
	if err != nil {
		return nil, err
	}
	items := make([]Item[V], 0, len(entries))
	for _, e := range entries {
		var v V
		if err := json.Unmarshal(e.Value, &v); err != nil {
			return nil, fmt.Errorf("decoding %s/%s: %w", d.name, e.Key, err)
		}
		items = append(items, Item[V]{Key: e.Key, Value: v})
	}
	return items, nil
}
