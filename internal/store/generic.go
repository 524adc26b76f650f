package store

import (
	"context"
	"encoding/json"
	"fmt"
)

func decode[T any](doc json.RawMessage) (*T, error) {
	var v T
	if err := json.Unmarshal(doc, &v); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &v, nil
}

func decodeAll[T any](docs []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		v, err := decode[T](d)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}

// One returns the record stored under key, or nil.
func One[T any](ctx context.Context, s *Store, collection string, key any) (*T, error) {
	doc, err := s.Get(ctx, collection, key)
	if err != nil || doc == nil {
		return nil, err
	}
	return decode[T](doc)
}

func ByIndex[T any](ctx context.Context, s *Store, collection, index string, value any) (*T, error) {
	doc, err := s.GetByIndex(ctx, collection, index, value)
	if err != nil || doc == nil {
		return nil, err
	}
	return decode[T](doc)
}

func AllByIndex[T any](ctx context.Context, s *Store, collection, index string, value any) ([]T, error) {
	docs, err := s.GetAllByIndex(ctx, collection, index, value)
	if err != nil {
		return nil, err
	}
	return decodeAll[T](docs)
}

func All[T any](ctx context.Context, s *Store, collection string) ([]T, error) {
	docs, err := s.GetAll(ctx, collection)
	if err != nil {
		return nil, err
	}
	return decodeAll[T](docs)
}

// PutAll is BulkPut for a typed slice.
func PutAll[T any](ctx context.Context, s *Store, collection string, records []T) (int, error) {
	batch := make([]any, len(records))
	for i := range records {
		batch[i] = records[i]
	}
	return s.BulkPut(ctx, collection, batch)
}
